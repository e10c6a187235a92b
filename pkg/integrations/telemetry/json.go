package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/runsight/server/pkg/domain/stream"
)

// streamDocument is the provider's per-sample export, also the shape of the
// activities/{id}.json blobs in the stream bucket and of CLI input files.
type streamDocument struct {
	ActivityID string         `json:"activity_id,omitempty"`
	Samples    []streamSample `json:"samples"`
}

type streamSample struct {
	TimeS      float64  `json:"time_s"`
	HR         *float64 `json:"hr,omitempty"`
	PaceSKm    *float64 `json:"pace_s_km,omitempty"`
	AltitudeM  *float64 `json:"altitude_m,omitempty"`
	GradePct   *float64 `json:"grade_pct,omitempty"`
	CadenceSPM *float64 `json:"cadence_spm,omitempty"`
	PowerW     *float64 `json:"power_w,omitempty"`
	DistanceM  *float64 `json:"distance_m,omitempty"`
}

// ParseStreamJSON decodes a stream document into raw sample rows. A document
// with no samples is valid input; the engine decides what an empty stream
// means.
func ParseStreamJSON(data []byte) ([]stream.RawSample, error) {
	var doc streamDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode stream document: %w", err)
	}

	samples := make([]stream.RawSample, 0, len(doc.Samples))
	for _, s := range doc.Samples {
		samples = append(samples, stream.RawSample{
			TimeS:      s.TimeS,
			HR:         s.HR,
			PaceSKm:    s.PaceSKm,
			AltitudeM:  s.AltitudeM,
			GradePct:   s.GradePct,
			CadenceSPM: s.CadenceSPM,
			PowerW:     s.PowerW,
			DistanceM:  s.DistanceM,
		})
	}
	return samples, nil
}

// EncodeStreamJSON is the inverse of ParseStreamJSON, used by tooling that
// writes stream documents into the bucket.
func EncodeStreamJSON(activityID string, samples []stream.RawSample) ([]byte, error) {
	doc := streamDocument{
		ActivityID: activityID,
		Samples:    make([]streamSample, 0, len(samples)),
	}
	for _, s := range samples {
		doc.Samples = append(doc.Samples, streamSample{
			TimeS:      s.TimeS,
			HR:         s.HR,
			PaceSKm:    s.PaceSKm,
			AltitudeM:  s.AltitudeM,
			GradePct:   s.GradePct,
			CadenceSPM: s.CadenceSPM,
			PowerW:     s.PowerW,
			DistanceM:  s.DistanceM,
		})
	}
	return json.Marshal(doc)
}
