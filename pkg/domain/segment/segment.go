// Package segment splits a run into contiguous labeled phases using the
// effort series the selected tier derived. Output always partitions the full
// display sequence: every point belongs to exactly one segment.
package segment

import (
	"github.com/runsight/server/pkg/domain/stream"
)

// Type is the closed set of phase labels.
type Type string

const (
	Warmup   Type = "warmup"
	Work     Type = "work"
	Recovery Type = "recovery"
	Cooldown Type = "cooldown"
	Steady   Type = "steady"
)

// Effort bands. Below LowMax reads as low effort, at or above HighMin as
// high; everything between is moderate.
const (
	LowMax  = 0.40
	HighMin = 0.70
)

// MinSegmentS is the shortest phase worth reporting. Shorter blocks are
// absorbed into the longer adjacent segment instead of creating slivers.
const MinSegmentS = 60.0

// Segment is one labeled phase. StartIndex is inclusive and EndIndex
// exclusive, both into the display sequence; consecutive segments share a
// boundary index so the list partitions [0, point_count).
type Segment struct {
	Type       Type     `json:"type"`
	StartIndex int      `json:"start_index"`
	EndIndex   int      `json:"end_index"`
	StartTimeS float64  `json:"start_time_s"`
	EndTimeS   float64  `json:"end_time_s"`
	DurationS  float64  `json:"duration_s"`
	AvgPaceSKm *float64 `json:"avg_pace_s_km"`
	AvgHR      *float64 `json:"avg_hr"`
	AvgCadence *float64 `json:"avg_cadence"`
	AvgGrade   *float64 `json:"avg_grade"`
}

// effort levels used while building runs
const (
	levelLow = iota
	levelModerate
	levelHigh
)

// run is a maximal stretch of display points at one effort level,
// half-open [start, end).
type run struct {
	level      int
	start, end int
}

// Split labels the run's phases. effort and points describe the display
// sequence (same length); full is the normalized grid used for per-segment
// channel averages. The returned segments partition [0, len(points)).
func Split(effort []float64, points []stream.Point, full *stream.Series) []Segment {
	n := len(points)
	if n == 0 || len(effort) != n {
		return nil
	}

	times := make([]float64, n)
	for i, p := range points {
		times[i] = p.TimeS
	}

	runs := buildRuns(classify(effort))
	runs = absorbShort(runs, times)
	labeled := label(runs)

	segments := make([]Segment, 0, len(labeled))
	for _, lr := range labeled {
		segments = append(segments, describe(lr, times, full))
	}
	return segments
}

func classify(effort []float64) []int {
	levels := make([]int, len(effort))
	for i, e := range effort {
		switch {
		case e >= HighMin:
			levels[i] = levelHigh
		case e < LowMax:
			levels[i] = levelLow
		default:
			levels[i] = levelModerate
		}
	}
	return levels
}

func buildRuns(levels []int) []run {
	var runs []run
	for i := 0; i < len(levels); {
		j := i
		for j < len(levels) && levels[j] == levels[i] {
			j++
		}
		runs = append(runs, run{level: levels[i], start: i, end: j})
		i = j
	}
	return runs
}

// absorbShort repeatedly folds the shortest under-length run into its longer
// neighbor until every remaining run is long enough or only one is left.
// Ties pick the earlier run, keeping the pass deterministic.
func absorbShort(runs []run, times []float64) []run {
	dur := func(r run) float64 {
		return timeAt(times, r.end) - timeAt(times, r.start)
	}

	for len(runs) > 1 {
		shortest, shortestDur := -1, MinSegmentS
		for i, r := range runs {
			if d := dur(r); d < shortestDur {
				shortest, shortestDur = i, d
			}
		}
		if shortest == -1 {
			break
		}

		target := shortest - 1
		if shortest == 0 {
			target = 1
		} else if shortest < len(runs)-1 && dur(runs[shortest+1]) > dur(runs[shortest-1]) {
			target = shortest + 1
		}

		if target < shortest {
			runs[target].end = runs[shortest].end
		} else {
			runs[target].start = runs[shortest].start
		}
		runs = append(runs[:shortest], runs[shortest+1:]...)
		runs = mergeAdjacent(runs)
	}
	return runs
}

func mergeAdjacent(runs []run) []run {
	out := runs[:0]
	for _, r := range runs {
		if len(out) > 0 && out[len(out)-1].level == r.level {
			out[len(out)-1].end = r.end
			continue
		}
		out = append(out, r)
	}
	return out
}

type labeledRun struct {
	run
	label Type
}

// label assigns phase names. Runs containing high-effort blocks read as a
// structured workout: highs become work, the lead-in warmup, gaps between
// works recovery, and the tail cooldown. Without any high block the run is
// steady, with optional low-effort warmup and cooldown bookends.
func label(runs []run) []labeledRun {
	firstHigh, lastHigh := -1, -1
	for i, r := range runs {
		if r.level == levelHigh {
			if firstHigh == -1 {
				firstHigh = i
			}
			lastHigh = i
		}
	}

	if firstHigh == -1 {
		return labelUnstructured(runs)
	}

	var out []labeledRun
	if firstHigh > 0 {
		out = append(out, labeledRun{mergeSpan(runs[:firstHigh]), Warmup})
	}
	gapStart := -1
	for i := firstHigh; i <= lastHigh; i++ {
		if runs[i].level == levelHigh {
			if gapStart != -1 {
				out = append(out, labeledRun{mergeSpan(runs[gapStart:i]), Recovery})
				gapStart = -1
			}
			out = append(out, labeledRun{runs[i], Work})
			continue
		}
		if gapStart == -1 {
			gapStart = i
		}
	}
	if lastHigh < len(runs)-1 {
		out = append(out, labeledRun{mergeSpan(runs[lastHigh+1:]), Cooldown})
	}
	return out
}

func labelUnstructured(runs []run) []labeledRun {
	if len(runs) == 1 {
		return []labeledRun{{runs[0], Steady}}
	}

	var out []labeledRun
	lo, hi := 0, len(runs)
	if runs[0].level == levelLow && runs[1].level > levelLow {
		out = append(out, labeledRun{runs[0], Warmup})
		lo = 1
	}
	hasCooldown := runs[len(runs)-1].level == levelLow && runs[len(runs)-2].level > levelLow && hi-lo > 1
	if hasCooldown {
		hi--
	}
	if hi > lo {
		out = append(out, labeledRun{mergeSpan(runs[lo:hi]), Steady})
	}
	if hasCooldown {
		out = append(out, labeledRun{runs[len(runs)-1], Cooldown})
	}
	return out
}

func mergeSpan(runs []run) run {
	return run{level: runs[0].level, start: runs[0].start, end: runs[len(runs)-1].end}
}

// describe fills in times and full-grid channel averages for one phase.
func describe(lr labeledRun, times []float64, full *stream.Series) Segment {
	startT := timeAt(times, lr.start)
	endT := timeAt(times, lr.end)

	seg := Segment{
		Type:       lr.label,
		StartIndex: lr.start,
		EndIndex:   lr.end,
		StartTimeS: startT,
		EndTimeS:   endT,
		DurationS:  endT - startT,
	}

	gridLo, gridHi := gridWindow(full, startT, endT, lr.end == len(times))
	seg.AvgHR = meanChannel(full.Points[gridLo:gridHi], func(p stream.Point) *float64 { return p.HR })
	seg.AvgCadence = meanChannel(full.Points[gridLo:gridHi], func(p stream.Point) *float64 { return p.CadenceSPM })
	seg.AvgGrade = meanChannel(full.Points[gridLo:gridHi], func(p stream.Point) *float64 { return p.GradePct })
	seg.AvgPaceSKm = meanPace(full, gridLo, gridHi)
	return seg
}

// timeAt treats index len(times) as the end of the run so half-open spans
// have well-defined boundary timestamps.
func timeAt(times []float64, i int) float64 {
	if i >= len(times) {
		return times[len(times)-1]
	}
	return times[i]
}

// gridWindow maps a display-time span onto full-grid indices. The grid is
// 1 Hz with time equal to index, so the mapping is direct.
func gridWindow(full *stream.Series, startT, endT float64, last bool) (int, int) {
	n := len(full.Points)
	lo := int(startT)
	hi := int(endT)
	if last {
		hi = n
	}
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	if lo >= hi {
		if lo >= n {
			lo = n - 1
		}
		hi = lo + 1
	}
	return lo, hi
}

func meanChannel(points []stream.Point, pick func(stream.Point) *float64) *float64 {
	sum, count := 0.0, 0
	for _, p := range points {
		if v := pick(p); v != nil {
			sum += *v
			count++
		}
	}
	if count == 0 {
		return nil
	}
	m := sum / float64(count)
	return &m
}

// meanPace derives true average pace from distance covered rather than
// averaging instantaneous pace values.
func meanPace(full *stream.Series, lo, hi int) *float64 {
	if hi-lo < 2 || hi > len(full.CumKm) {
		return nil
	}
	dist := full.CumKm[hi-1] - full.CumKm[lo]
	if dist < 1e-6 {
		return nil
	}
	dur := float64(hi - 1 - lo)
	pace := dur / dist
	return &pace
}
