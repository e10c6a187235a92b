// Package drift quantifies how the run's physiology and mechanics changed
// between its first and second half. All outputs are plain descriptive
// numbers; judging them good or bad is a coaching concern, not ours.
package drift

import (
	"sort"

	"github.com/runsight/server/pkg/domain/stream"
)

const (
	// sustainedEffortMin excludes standing around and warmup shuffle from
	// the half-to-half comparison.
	sustainedEffortMin = 0.35

	// matchedEffortBand keeps the pace comparison at like-for-like effort.
	matchedEffortBand = 0.15

	// minHalfSamples is the least data per half worth comparing, in grid
	// seconds.
	minHalfSamples = 300

	// minTrendKm is the shortest distance over which a cadence slope means
	// anything.
	minTrendKm = 1.0
)

// Analysis carries the three drift figures. A nil field means the underlying
// channel was absent or untrustworthy; JSON emits explicit nulls so
// consumers can tell "not computed" from zero.
type Analysis struct {
	CardiacPct        *float64 `json:"cardiac_pct"`
	PacePct           *float64 `json:"pace_pct"`
	CadenceTrendBpmKm *float64 `json:"cadence_trend_bpm_per_km"`
}

// Compute derives cardiac drift, pace drift and cadence trend from the
// normalized grid and the tier's effort series. hrUsable must be false when
// the reliability check rejected the heart-rate channel.
func Compute(s *stream.Series, effort []float64, hrUsable bool) Analysis {
	var out Analysis
	if len(s.Points) == 0 || len(effort) != len(s.Points) {
		return out
	}

	hr, hrOK := s.HRValues()
	pace, paceOK := s.PaceValues()

	if hrUsable && s.Has(stream.ChannelHR) && s.Has(stream.ChannelPace) {
		out.CardiacPct = cardiacDrift(hr, hrOK, pace, paceOK, effort)
	}
	if s.Has(stream.ChannelPace) {
		out.PacePct = paceDrift(pace, paceOK, effort)
	}
	if s.Has(stream.ChannelCadence) {
		cad, cadOK := s.CadenceValues()
		out.CadenceTrendBpmKm = cadenceTrend(cad, cadOK, s.CumKm)
	}
	return out
}

// cardiacDrift compares beats-per-km between halves of the sustained-effort
// samples. Beats-per-km rises when HR climbs without pace to show for it.
func cardiacDrift(hr []float64, hrOK []bool, pace []float64, paceOK []bool, effort []float64) *float64 {
	var idx []int
	for i := range effort {
		if effort[i] >= sustainedEffortMin && hrOK[i] && paceOK[i] && pace[i] > 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) < 2*minHalfSamples {
		return nil
	}

	half := len(idx) / 2
	b1 := beatsPerKm(hr, pace, idx[:half])
	b2 := beatsPerKm(hr, pace, idx[half:])
	if b1 <= 0 {
		return nil
	}
	pct := (b2/b1 - 1) * 100
	return &pct
}

func beatsPerKm(hr, pace []float64, idx []int) float64 {
	var sumHR, sumPace float64
	for _, i := range idx {
		sumHR += hr[i]
		sumPace += pace[i]
	}
	n := float64(len(idx))
	meanHR := sumHR / n
	meanPaceMin := sumPace / n / 60.0
	return meanHR * meanPaceMin
}

// paceDrift compares average pace between halves, restricted to samples near
// the run's dominant sustained effort so the figure is like-for-like.
func paceDrift(pace []float64, paceOK []bool, effort []float64) *float64 {
	var sustained []float64
	for i := range effort {
		if effort[i] >= sustainedEffortMin && paceOK[i] && pace[i] > 0 {
			sustained = append(sustained, effort[i])
		}
	}
	if len(sustained) < 2*minHalfSamples {
		return nil
	}
	center := median(sustained)

	var idx []int
	for i := range effort {
		if paceOK[i] && pace[i] > 0 && abs(effort[i]-center) <= matchedEffortBand {
			idx = append(idx, i)
		}
	}
	if len(idx) < 2*minHalfSamples {
		return nil
	}

	half := len(idx) / 2
	p1 := meanAt(pace, idx[:half])
	p2 := meanAt(pace, idx[half:])
	if p1 <= 0 {
		return nil
	}
	pct := (p2/p1 - 1) * 100
	return &pct
}

// cadenceTrend fits a least-squares line of cadence against distance and
// returns its slope in steps-per-minute per km.
func cadenceTrend(cad []float64, cadOK []bool, cumKm []float64) *float64 {
	var xs, ys []float64
	for i := range cad {
		if cadOK[i] && cad[i] > 0 {
			xs = append(xs, cumKm[i])
			ys = append(ys, cad[i])
		}
	}
	if len(xs) < 2*minHalfSamples {
		return nil
	}
	if xs[len(xs)-1]-xs[0] < minTrendKm {
		return nil
	}

	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n
	var cov, varX float64
	for i := range xs {
		cov += (xs[i] - meanX) * (ys[i] - meanY)
		varX += (xs[i] - meanX) * (xs[i] - meanX)
	}
	if varX == 0 {
		return nil
	}
	slope := cov / varX
	return &slope
}

func meanAt(vals []float64, idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += vals[i]
	}
	return sum / float64(len(idx))
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
