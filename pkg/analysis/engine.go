package analysis

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/runsight/server/pkg/domain/drift"
	"github.com/runsight/server/pkg/domain/effort"
	"github.com/runsight/server/pkg/domain/moment"
	"github.com/runsight/server/pkg/domain/plan"
	"github.com/runsight/server/pkg/domain/reliability"
	"github.com/runsight/server/pkg/domain/segment"
	"github.com/runsight/server/pkg/domain/stream"
	"github.com/runsight/server/pkg/domain/tier"
)

// ErrEmptyStream means no sample in the input survived normalization. The
// caller surfaces this as the terminal unavailable state; it is the only
// input shape the engine refuses to interpret.
var ErrEmptyStream = errors.New("analysis: no usable samples in stream")

// Input is everything one analysis reads. Baseline and Plan are optional;
// their absence routes tier selection and plan comparison, it never fails.
type Input struct {
	ActivityID string             `json:"activity_id"`
	PlanID     string             `json:"plan_id,omitempty"`
	Samples    []stream.RawSample `json:"samples"`
	Baseline   *tier.Baseline     `json:"baseline,omitempty"`
	Plan       *plan.Workout      `json:"plan,omitempty"`
}

// Engine runs the full analysis pipeline. It holds no state between calls
// and never touches the network or the clock: identical inputs produce
// byte-identical results, so results are safe to cache until inputs change.
type Engine struct {
	// Budget caps the display point count. Zero means the engine-wide
	// default of stream.DownsampleBudget.
	Budget int
}

// Analyze interprets one recorded run. Components execute leaf to root:
// normalize, reliability, tier selection, downsample, segment, then drift
// and moment detection (independent of each other) and plan comparison.
func (e Engine) Analyze(ctx context.Context, in Input) (*Result, error) {
	series := stream.Normalize(in.Samples)
	if len(series.Points) == 0 {
		return nil, ErrEmptyStream
	}

	rel := reliability.Check(&series)
	sel := tier.Select(&series, rel, in.Baseline)

	budget := e.Budget
	if budget <= 0 {
		budget = stream.DownsampleBudget
	}
	displayIdx := stream.DownsampleIndices(series.Points, budget)
	intensity := effort.Resample(sel.Effort, displayIdx)

	display := make([]stream.Point, len(displayIdx))
	for i, g := range displayIdx {
		p := series.Points[g]
		p.Effort = intensity[i]
		display[i] = p
	}

	segments := segment.Split(intensity, display, &series)

	// Drift and moment detection both read only the segmenter's inputs, so
	// they run concurrently; each writes its own variable and the group has
	// no error paths, keeping the result deterministic.
	hrUsable := rel == nil || rel.Reliable
	var driftRes drift.Analysis
	var moments []moment.Moment
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		driftRes = drift.Compute(&series, sel.Effort, hrUsable)
		return nil
	})
	g.Go(func() error {
		moments = moment.Detect(&series, sel.Effort, hrUsable)
		return nil
	})
	_ = g.Wait()
	moments = moment.MapToDisplay(moments, displayIdx)
	if moments == nil {
		moments = []moment.Moment{}
	}

	comparison := plan.Compare(in.Plan, segments, &series)

	flags := sel.Flags
	if flags == nil {
		flags = []string{}
	}

	res := &Result{
		Key:                ResultKey(in.ActivityID, in.PlanID, HashInput(in)),
		ActivityID:         in.ActivityID,
		PlanID:             in.PlanID,
		Segments:           segments,
		Drift:              driftRes,
		Moments:            moments,
		PlanComparison:     comparison,
		ChannelsPresent:    channelStrings(series.Present),
		ChannelsMissing:    channelStrings(series.Missing),
		PointCount:         len(display),
		Confidence:         sel.Confidence,
		TierUsed:           sel.Code,
		EstimatedFlags:     flags,
		CrossRunComparable: sel.CrossRunComparable,
		EffortIntensity:    intensity,
		Stream:             display,
	}
	if rel != nil {
		reliable := rel.Reliable
		res.HRReliable = &reliable
		res.HRNote = rel.Note
	}
	return res, nil
}
