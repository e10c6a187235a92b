package tier

import (
	"math"
	"sort"

	"github.com/runsight/server/pkg/domain/stream"
)

// smoothWindowS is the centered moving-average window applied to every
// effort signal before classification. Thirty seconds rides out watch noise
// without swallowing real interval transitions.
const smoothWindowS = 30

// Threshold-anchored effort: 70% of threshold HR reads as zero effort and
// 105% as full effort, putting the threshold itself deep in the high band.
const (
	thresholdFloor   = 0.70
	thresholdCeiling = 1.05
)

// Max-HR-anchored effort: 50% of max is zero, 95% of max is full.
const (
	maxHRFloor   = 0.50
	maxHRCeiling = 0.95
)

// Pace-anchored effort uses a fixed absolute speed ramp so values stay
// comparable across runs: 1.8 m/s (a 9:15/km shuffle) is zero, 5.0 m/s
// (3:20/km) is full. Grade-adjusted speed feeds the ramp.
const (
	paceFloorMS      = 1.8
	paceCeilingMS    = 5.0
	gradeSpeedFactor = 0.03
	maxEffortGrade   = 15.0
)

// relativeQuantile bounds the stream-relative normalization so a single
// glitch sample cannot own the whole range.
const relativeQuantile = 0.05

func thresholdEffort(s *stream.Series, lthr float64) []float64 {
	hr, ok := s.HRValues()
	sm := smooth(hr, ok, smoothWindowS)
	out := make([]float64, len(sm))
	for i, v := range sm {
		out[i] = clamp01((v/lthr - thresholdFloor) / (thresholdCeiling - thresholdFloor))
	}
	return out
}

func maxHREffort(s *stream.Series, maxHR float64) []float64 {
	hr, ok := s.HRValues()
	sm := smooth(hr, ok, smoothWindowS)
	out := make([]float64, len(sm))
	for i, v := range sm {
		out[i] = clamp01((v/maxHR - maxHRFloor) / (maxHRCeiling - maxHRFloor))
	}
	return out
}

func paceEffort(s *stream.Series) []float64 {
	speed := gradeAdjustedSpeed(s)
	out := make([]float64, len(speed))
	for i, v := range speed {
		out[i] = clamp01((v - paceFloorMS) / (paceCeilingMS - paceFloorMS))
	}
	return out
}

// relativeEffort normalizes the best available signal against this run's own
// observed range. The resulting values mean nothing outside this run.
func relativeEffort(s *stream.Series) []float64 {
	var vals []float64
	switch {
	case s.Has(stream.ChannelPace):
		vals = gradeAdjustedSpeed(s)
	case s.Has(stream.ChannelHR):
		hr, ok := s.HRValues()
		vals = smooth(hr, ok, smoothWindowS)
	case s.Has(stream.ChannelCadence):
		cad, ok := s.CadenceValues()
		vals = smooth(cad, ok, smoothWindowS)
	default:
		return make([]float64, len(s.Points))
	}

	lo := quantile(vals, relativeQuantile)
	hi := quantile(vals, 1-relativeQuantile)
	out := make([]float64, len(vals))
	if hi-lo < 1e-9 {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	for i, v := range vals {
		out[i] = clamp01((v - lo) / (hi - lo))
	}
	return out
}

// gradeAdjustedSpeed converts pace to speed and compensates for gradient so
// honest uphill effort is not read as slowing down.
func gradeAdjustedSpeed(s *stream.Series) []float64 {
	pace, ok := s.PaceValues()
	speed := make([]float64, len(pace))
	for i := range pace {
		if ok[i] && pace[i] > 0 {
			speed[i] = 1000.0 / pace[i]
		}
	}
	sm := smooth(speed, ok, smoothWindowS)
	if !s.Has(stream.ChannelGrade) {
		return sm
	}
	for i, p := range s.Points {
		if p.GradePct == nil {
			continue
		}
		g := *p.GradePct
		if g > maxEffortGrade {
			g = maxEffortGrade
		}
		if g < -maxEffortGrade {
			g = -maxEffortGrade
		}
		adj := sm[i] * (1 + gradeSpeedFactor*g)
		if adj < 0 {
			adj = 0
		}
		sm[i] = adj
	}
	return sm
}

// smooth applies a centered moving average over valid samples, carrying the
// nearest value across gaps so the output is dense.
func smooth(vals []float64, ok []bool, window int) []float64 {
	n := len(vals)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	half := window / 2
	for i := 0; i < n; i++ {
		lo, hi := i-half, i+half
		if lo < 0 {
			lo = 0
		}
		if hi >= n {
			hi = n - 1
		}
		sum, count := 0.0, 0
		for j := lo; j <= hi; j++ {
			if ok[j] {
				sum += vals[j]
				count++
			}
		}
		if count > 0 {
			out[i] = sum / float64(count)
		} else if i > 0 {
			out[i] = out[i-1]
		}
	}
	return out
}

func quantile(vals []float64, q float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
