// Package moment locates discrete notable events in a run: pace surges,
// cadence drops and the onset of heart-rate drift. Narrative sentences are
// attached later by an external collaborator; detection never waits for one.
package moment

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/runsight/server/pkg/domain/stream"
)

// Moment types. The strings are a wire contract.
const (
	TypePaceSurge   = "pace_surge"
	TypeCadenceDrop = "cadence_drop"
	TypeDriftOnset  = "drift_onset"
)

// Detection thresholds. Tuned against structured-workout fixtures; a surge
// must be meaningfully faster than the surrounding baseline and sustained
// long enough to be deliberate.
const (
	baselineWindowS = 120

	surgeFactor    = 1.12
	surgeSustainS  = 20
	cadenceDropSPM = 8.0
	dropSustainS   = 20

	driftRatioFactor = 1.05
	driftSustainS    = 60

	// matchedEffortBand keeps drift-onset comparison at like-for-like
	// effort.
	matchedEffortBand = 0.15

	// maxMoments bounds the payload for runs that oscillate constantly.
	maxMoments = 20
)

// Moment is one point event. Index refers to the display sequence once
// MapToDisplay has run; Detect emits full-grid indices.
type Moment struct {
	Type      string  `json:"type"`
	Index     int     `json:"index"`
	TimeS     float64 `json:"time_s"`
	Value     float64 `json:"value"`
	Context   string  `json:"context,omitempty"`
	Narrative string  `json:"narrative,omitempty"`
}

var titleCaser = cases.Title(language.English)

// Label returns the text a renderer should show for the moment: narrative
// when present, then context, then a title-cased form of the type. Never
// empty.
func Label(m Moment) string {
	if m.Narrative != "" {
		return m.Narrative
	}
	if m.Context != "" {
		return m.Context
	}
	return titleCaser.String(strings.ReplaceAll(m.Type, "_", " "))
}

// Detect scans the normalized grid for notable events. effort is the tier's
// series over the same grid; hrUsable must be false when the reliability
// check rejected the heart-rate channel, which skips drift onset. Returned
// moments are ordered by time.
func Detect(s *stream.Series, effort []float64, hrUsable bool) []Moment {
	var moments []Moment
	moments = append(moments, paceSurges(s)...)
	moments = append(moments, cadenceDrops(s)...)
	if hrUsable {
		if m := driftOnset(s, effort); m != nil {
			moments = append(moments, *m)
		}
	}

	sort.SliceStable(moments, func(i, j int) bool { return moments[i].TimeS < moments[j].TimeS })
	if len(moments) > maxMoments {
		moments = moments[:maxMoments]
	}
	return moments
}

// MapToDisplay rewrites grid indices to the nearest display index. TimeS
// keeps the grid-accurate timestamp.
func MapToDisplay(moments []Moment, displayIdx []int) []Moment {
	if len(displayIdx) == 0 {
		return moments
	}
	out := make([]Moment, len(moments))
	for i, m := range moments {
		pos := sort.SearchInts(displayIdx, m.Index)
		if pos >= len(displayIdx) {
			pos = len(displayIdx) - 1
		} else if pos > 0 && m.Index-displayIdx[pos-1] < displayIdx[pos]-m.Index {
			pos--
		}
		m.Index = pos
		out[i] = m
	}
	return out
}

// paceSurges finds stretches where speed exceeds its trailing baseline by
// surgeFactor for at least surgeSustainS seconds.
func paceSurges(s *stream.Series) []Moment {
	if !s.Has(stream.ChannelPace) {
		return nil
	}
	pace, ok := s.PaceValues()
	speed := make([]float64, len(pace))
	for i := range pace {
		if ok[i] && pace[i] > 0 {
			speed[i] = 1000.0 / pace[i]
		}
	}

	baseline := trailingMean(speed, ok, baselineWindowS)
	above := func(i int) bool {
		return ok[i] && baseline[i] > 0 && speed[i] >= baseline[i]*surgeFactor
	}

	var moments []Moment
	for _, ev := range sustainedStretches(len(speed), above, surgeSustainS) {
		peak := 0.0
		for i := ev.start; i < ev.end; i++ {
			if excess := (speed[i]/baseline[i] - 1) * 100; excess > peak {
				peak = excess
			}
		}
		moments = append(moments, Moment{
			Type:    TypePaceSurge,
			Index:   ev.start,
			TimeS:   s.Points[ev.start].TimeS,
			Value:   round1(peak),
			Context: fmt.Sprintf("Pace %.0f%% faster than the surrounding baseline", peak),
		})
	}
	return moments
}

// cadenceDrops finds stretches where cadence falls cadenceDropSPM below its
// trailing baseline for at least dropSustainS seconds.
func cadenceDrops(s *stream.Series) []Moment {
	if !s.Has(stream.ChannelCadence) {
		return nil
	}
	cad, ok := s.CadenceValues()
	baseline := trailingMean(cad, ok, baselineWindowS)
	below := func(i int) bool {
		return ok[i] && cad[i] > 0 && baseline[i] > 0 && cad[i] <= baseline[i]-cadenceDropSPM
	}

	var moments []Moment
	for _, ev := range sustainedStretches(len(cad), below, dropSustainS) {
		deepest := 0.0
		for i := ev.start; i < ev.end; i++ {
			if drop := baseline[i] - cad[i]; drop > deepest {
				deepest = drop
			}
		}
		moments = append(moments, Moment{
			Type:    TypeCadenceDrop,
			Index:   ev.start,
			TimeS:   s.Points[ev.start].TimeS,
			Value:   round1(deepest),
			Context: fmt.Sprintf("Cadence dropped %.0f spm below baseline", deepest),
		})
	}
	return moments
}

// driftOnset finds the first point where heart rate per unit speed stays
// driftRatioFactor above the first-quarter baseline for driftSustainS
// seconds. Only samples near the run's dominant effort are compared, so an
// interval workout's hard reps do not read as drift. At most one onset is
// reported per run.
func driftOnset(s *stream.Series, effort []float64) *Moment {
	if !s.Has(stream.ChannelHR) || !s.Has(stream.ChannelPace) {
		return nil
	}
	hr, hrOK := s.HRValues()
	pace, paceOK := s.PaceValues()

	n := len(hr)
	if len(effort) != n {
		return nil
	}
	ratio := make([]float64, n)
	ok := make([]bool, n)
	var efforts []float64
	for i := 0; i < n; i++ {
		if hrOK[i] && paceOK[i] && pace[i] > 0 {
			ratio[i] = hr[i] / (1000.0 / pace[i])
			ok[i] = true
			efforts = append(efforts, effort[i])
		}
	}
	if len(efforts) == 0 {
		return nil
	}
	center := median(efforts)
	for i := 0; i < n; i++ {
		if ok[i] && absDiff(effort[i], center) > matchedEffortBand {
			ok[i] = false
		}
	}

	quarter := n / 4
	if quarter < driftSustainS {
		return nil
	}
	var sum float64
	var count int
	for i := 0; i < quarter; i++ {
		if ok[i] {
			sum += ratio[i]
			count++
		}
	}
	if count < quarter/2 {
		return nil
	}
	base := sum / float64(count)

	above := func(i int) bool {
		return i >= quarter && ok[i] && ratio[i] >= base*driftRatioFactor
	}
	stretches := sustainedStretches(n, above, driftSustainS)
	if len(stretches) == 0 {
		return nil
	}
	start := stretches[0].start
	excess := (ratio[start]/base - 1) * 100
	return &Moment{
		Type:    TypeDriftOnset,
		Index:   start,
		TimeS:   s.Points[start].TimeS,
		Value:   round1(excess),
		Context: "Heart rate began drifting above its early-run baseline",
	}
}

type stretch struct {
	start, end int
}

// sustainedStretches returns maximal index ranges where cond holds for at
// least minLen consecutive samples.
func sustainedStretches(n int, cond func(int) bool, minLen int) []stretch {
	var out []stretch
	for i := 0; i < n; {
		if !cond(i) {
			i++
			continue
		}
		j := i
		for j < n && cond(j) {
			j++
		}
		if j-i >= minLen {
			out = append(out, stretch{i, j})
		}
		i = j
	}
	return out
}

// trailingMean computes the mean of valid samples over the window ending
// just before each index. Indices with no valid history yield zero.
func trailingMean(vals []float64, ok []bool, window int) []float64 {
	n := len(vals)
	out := make([]float64, n)
	sum, count := 0.0, 0
	for i := 0; i < n; i++ {
		if i > 0 {
			j := i - 1
			if ok[j] {
				sum += vals[j]
				count++
			}
			if i-window-1 >= 0 {
				k := i - window - 1
				if ok[k] {
					sum -= vals[k]
					count--
				}
			}
		}
		if count > 0 {
			out[i] = sum / float64(count)
		}
	}
	return out
}

func round1(v float64) float64 {
	if v < 0 {
		return float64(int(v*10-0.5)) / 10
	}
	return float64(int(v*10+0.5)) / 10
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

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
