// Package plan compares detected work segments against a prescribed
// workout. No plan is a common, valid state: the comparison is simply
// absent, never an error.
package plan

import (
	"github.com/runsight/server/pkg/domain/segment"
	"github.com/runsight/server/pkg/domain/stream"
)

// Workout is the prescribed session. Every field is optional; athletes plan
// by duration, by distance, by pace or by interval count, rarely all four.
type Workout struct {
	DurationMin   *float64 `json:"duration_min,omitempty"`
	DistanceKm    *float64 `json:"distance_km,omitempty"`
	PaceSKm       *float64 `json:"pace_s_km,omitempty"`
	IntervalCount *int     `json:"interval_count,omitempty"`
}

// Comparison is the plan-vs-actual result. Units are minutes, km and
// seconds-per-km throughout; deltas are actual minus planned. Nil values
// mean the planned side was not prescribed.
type Comparison struct {
	PlannedDurationMin   *float64 `json:"planned_duration_min"`
	ActualDurationMin    *float64 `json:"actual_duration_min"`
	DurationDeltaMin     *float64 `json:"duration_delta_min"`
	PlannedDistanceKm    *float64 `json:"planned_distance_km"`
	ActualDistanceKm     *float64 `json:"actual_distance_km"`
	DistanceDeltaKm      *float64 `json:"distance_delta_km"`
	PlannedPaceSKm       *float64 `json:"planned_pace_s_km"`
	ActualPaceSKm        *float64 `json:"actual_pace_s_km"`
	PaceDeltaSKm         *float64 `json:"pace_delta_s_km"`
	PlannedIntervalCount int      `json:"planned_interval_count"`
	DetectedWorkCount    int      `json:"detected_work_count"`
	IntervalCountMatch   bool     `json:"interval_count_match"`
}

// Compare aligns the detected work segments with the prescribed workout.
// Returns nil when no workout was supplied.
func Compare(w *Workout, segments []segment.Segment, s *stream.Series) *Comparison {
	if w == nil {
		return nil
	}

	actualDur := s.DurationS() / 60.0
	actualDist := s.DistanceKm()

	c := &Comparison{
		ActualDurationMin: &actualDur,
		DetectedWorkCount: countWork(segments),
	}
	if actualDist > 0.01 {
		c.ActualDistanceKm = &actualDist
		pace := s.DurationS() / actualDist
		c.ActualPaceSKm = &pace
	}

	c.PlannedDurationMin = w.DurationMin
	c.PlannedDistanceKm = w.DistanceKm
	c.PlannedPaceSKm = plannedPace(w)

	c.DurationDeltaMin = delta(c.ActualDurationMin, c.PlannedDurationMin)
	c.DistanceDeltaKm = delta(c.ActualDistanceKm, c.PlannedDistanceKm)
	c.PaceDeltaSKm = delta(c.ActualPaceSKm, c.PlannedPaceSKm)

	if w.IntervalCount != nil {
		c.PlannedIntervalCount = *w.IntervalCount
	}
	c.IntervalCountMatch = c.DetectedWorkCount == c.PlannedIntervalCount

	return c
}

// plannedPace returns the prescribed pace, deriving it from duration and
// distance when only those were given.
func plannedPace(w *Workout) *float64 {
	if w.PaceSKm != nil {
		return w.PaceSKm
	}
	if w.DurationMin != nil && w.DistanceKm != nil && *w.DistanceKm > 0.01 {
		pace := *w.DurationMin * 60.0 / *w.DistanceKm
		return &pace
	}
	return nil
}

func countWork(segments []segment.Segment) int {
	n := 0
	for _, s := range segments {
		if s.Type == segment.Work {
			n++
		}
	}
	return n
}

func delta(actual, planned *float64) *float64 {
	if actual == nil || planned == nil {
		return nil
	}
	d := *actual - *planned
	return &d
}
