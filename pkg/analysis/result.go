// Package analysis assembles the per-run interpretation: it wires the
// domain components into one pure, deterministic engine and defines the wire
// shape and lifecycle of the immutable result the rendering consumers read.
package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/runsight/server/pkg/domain/drift"
	"github.com/runsight/server/pkg/domain/moment"
	"github.com/runsight/server/pkg/domain/plan"
	"github.com/runsight/server/pkg/domain/segment"
	"github.com/runsight/server/pkg/domain/stream"
	"github.com/runsight/server/pkg/domain/tier"
)

// Result is the root aggregate. Field names and units are a compatibility
// contract with the summary widget and the interactive canvas; renaming a
// field or changing a unit is a breaking change, never a silent
// reinterpretation.
//
// Invariants: Segments partition [0, PointCount); len(EffortIntensity) ==
// len(Stream) == PointCount; Confidence in [0,1]; CrossRunComparable is
// false exactly when TierUsed is the stream-relative tier.
type Result struct {
	Key                string            `json:"key"`
	ActivityID         string            `json:"activity_id"`
	PlanID             string            `json:"plan_id,omitempty"`
	Segments           []segment.Segment `json:"segments"`
	Drift              drift.Analysis    `json:"drift"`
	Moments            []moment.Moment   `json:"moments"`
	PlanComparison     *plan.Comparison  `json:"plan_comparison"`
	ChannelsPresent    []string          `json:"channels_present"`
	ChannelsMissing    []string          `json:"channels_missing"`
	PointCount         int               `json:"point_count"`
	Confidence         float64           `json:"confidence"`
	TierUsed           tier.Code         `json:"tier_used"`
	EstimatedFlags     []string          `json:"estimated_flags"`
	CrossRunComparable bool              `json:"cross_run_comparable"`
	EffortIntensity    []float64         `json:"effort_intensity"`
	HRReliable         *bool             `json:"hr_reliable,omitempty"`
	HRNote             string            `json:"hr_note,omitempty"`
	Stream             []stream.Point    `json:"stream"`
}

// Encode serializes the result to its canonical JSON form. Identical inputs
// produce byte-identical output, so the encoding is safe to hash, cache and
// compare.
func (r *Result) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode analysis result: %w", err)
	}
	return data, nil
}

// DecodeResult parses a stored canonical result document.
func DecodeResult(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	return &r, nil
}

func channelStrings(chs []stream.Channel) []string {
	out := make([]string, 0, len(chs))
	for _, ch := range chs {
		out = append(out, string(ch))
	}
	return out
}
