package stream

import (
	"math"
	"sort"
)

const (
	// MinPresenceFraction is the share of raw samples that must carry a value
	// before a channel counts as structurally present.
	MinPresenceFraction = 0.25

	// holdS is the longest gap a recorded value is carried forward across on
	// the uniform grid. Anything sparser stays nil.
	holdS = 10

	// maxGridPoints caps the uniform index at 24 hours of 1 Hz samples.
	maxGridPoints = 24 * 60 * 60
)

// Plausibility bounds per channel. Values outside are recording glitches and
// are excluded sample by sample rather than failing the whole stream.
const (
	minPlausibleHR      = 25.0
	maxPlausibleHR      = 250.0
	minPlausiblePace    = 60.0 // s/km, ~2x world record
	maxPlausiblePace    = 3600.0
	minPlausibleAlt     = -500.0
	maxPlausibleAlt     = 9000.0
	maxPlausibleGrade   = 50.0
	maxPlausibleCadence = 300.0
	maxPlausiblePower   = 2000.0
)

// Normalize aligns raw telemetry onto a uniform one-second time index
// starting at zero and reports which channels are structurally present.
// Malformed samples are dropped and implausible channel values are nulled
// individually; missing channels are never an error.
func Normalize(raw []RawSample) Series {
	rows := sanitize(raw)
	if len(rows) == 0 {
		return Series{Missing: append([]Channel(nil), AllChannels...)}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TimeS < rows[j].TimeS })
	rows = dedupeTimes(rows)

	t0 := rows[0].TimeS
	span := rows[len(rows)-1].TimeS - t0
	n := int(math.Floor(span)) + 1
	if n > maxGridPoints {
		n = maxGridPoints
	}

	hr := gridChannel(rows, n, t0, func(r RawSample) *float64 { return r.HR })
	pace := gridChannel(rows, n, t0, func(r RawSample) *float64 { return r.PaceSKm })
	alt := gridChannel(rows, n, t0, func(r RawSample) *float64 { return r.AltitudeM })
	grade := gridChannel(rows, n, t0, func(r RawSample) *float64 { return r.GradePct })
	cad := gridChannel(rows, n, t0, func(r RawSample) *float64 { return r.CadenceSPM })
	dist := gridChannel(rows, n, t0, func(r RawSample) *float64 { return r.DistanceM })

	present, missing := presence(rows)
	has := make(map[Channel]bool, len(present))
	for _, ch := range present {
		has[ch] = true
	}

	points := make([]Point, n)
	for i := 0; i < n; i++ {
		points[i].TimeS = float64(i)
		if has[ChannelHR] {
			points[i].HR = hr[i]
		}
		if has[ChannelPace] {
			points[i].PaceSKm = pace[i]
		}
		if has[ChannelAltitude] {
			points[i].AltitudeM = alt[i]
		}
		if has[ChannelGrade] {
			points[i].GradePct = grade[i]
		}
		if has[ChannelCadence] {
			points[i].CadenceSPM = cad[i]
		}
	}

	return Series{
		Points:  points,
		CumKm:   cumulativeKm(dist, pace, n),
		Present: present,
		Missing: missing,
	}
}

// sanitize drops rows with unusable timestamps and nulls individual channel
// values outside plausibility bounds.
func sanitize(raw []RawSample) []RawSample {
	rows := make([]RawSample, 0, len(raw))
	for _, r := range raw {
		if math.IsNaN(r.TimeS) || math.IsInf(r.TimeS, 0) || r.TimeS < 0 {
			continue
		}
		r.HR = boundedValue(r.HR, minPlausibleHR, maxPlausibleHR)
		r.PaceSKm = boundedValue(r.PaceSKm, minPlausiblePace, maxPlausiblePace)
		r.AltitudeM = boundedValue(r.AltitudeM, minPlausibleAlt, maxPlausibleAlt)
		r.GradePct = boundedValue(r.GradePct, -maxPlausibleGrade, maxPlausibleGrade)
		r.CadenceSPM = boundedValue(r.CadenceSPM, 0, maxPlausibleCadence)
		r.PowerW = boundedValue(r.PowerW, 0, maxPlausiblePower)
		r.DistanceM = boundedValue(r.DistanceM, 0, math.MaxFloat64)
		rows = append(rows, r)
	}
	return rows
}

func boundedValue(v *float64, lo, hi float64) *float64 {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < lo || *v > hi {
		return nil
	}
	return v
}

// dedupeTimes keeps the first row for each recorded second. Input must be
// sorted by time.
func dedupeTimes(rows []RawSample) []RawSample {
	out := rows[:0]
	for i, r := range rows {
		if i > 0 && r.TimeS == rows[i-1].TimeS {
			continue
		}
		out = append(out, r)
	}
	return out
}

// gridChannel places each raw value on its nearest grid second and carries
// values forward across gaps of at most holdS seconds.
func gridChannel(rows []RawSample, n int, t0 float64, pick func(RawSample) *float64) []*float64 {
	grid := make([]*float64, n)
	for _, r := range rows {
		v := pick(r)
		if v == nil {
			continue
		}
		g := int(math.Round(r.TimeS - t0))
		if g < 0 || g >= n || grid[g] != nil {
			continue
		}
		grid[g] = v
	}
	lastSeen := -holdS - 1
	var lastVal *float64
	for i := 0; i < n; i++ {
		if grid[i] != nil {
			lastSeen = i
			lastVal = grid[i]
			continue
		}
		if lastVal != nil && i-lastSeen <= holdS {
			grid[i] = lastVal
		}
	}
	return grid
}

// presence applies the structural presence rule over the sanitized rows.
func presence(rows []RawSample) (present, missing []Channel) {
	counts := map[Channel]int{}
	for _, r := range rows {
		if r.HR != nil {
			counts[ChannelHR]++
		}
		if r.PaceSKm != nil {
			counts[ChannelPace]++
		}
		if r.AltitudeM != nil {
			counts[ChannelAltitude]++
		}
		if r.GradePct != nil {
			counts[ChannelGrade]++
		}
		if r.CadenceSPM != nil {
			counts[ChannelCadence]++
		}
		if r.PowerW != nil {
			counts[ChannelPower]++
		}
	}
	threshold := int(math.Ceil(MinPresenceFraction * float64(len(rows))))
	if threshold < 1 {
		threshold = 1
	}
	for _, ch := range AllChannels {
		if counts[ch] >= threshold {
			present = append(present, ch)
		} else {
			missing = append(missing, ch)
		}
	}
	return present, missing
}

// cumulativeKm builds per-second cumulative distance. Recorded distance wins
// when the device provides it; otherwise pace is integrated. A cumulative
// counter interpolates cleanly, unlike instantaneous channels.
func cumulativeKm(dist, pace []*float64, n int) []float64 {
	cum := make([]float64, n)
	if interpolateCumulative(dist, cum) {
		return cum
	}
	speed := 0.0 // m/s, holds last known between pace samples
	for i := 1; i < n; i++ {
		if pace[i] != nil && *pace[i] > 0 {
			speed = 1000.0 / *pace[i]
		}
		cum[i] = cum[i-1] + speed/1000.0
	}
	return cum
}

// interpolateCumulative fills cum from sparse recorded distance anchors,
// rebased so the run starts at zero. Returns false when fewer than two
// anchors exist.
func interpolateCumulative(dist []*float64, cum []float64) bool {
	type anchor struct {
		idx int
		km  float64
	}
	var anchors []anchor
	for i, d := range dist {
		if d != nil {
			anchors = append(anchors, anchor{i, *d / 1000.0})
		}
	}
	if len(anchors) < 2 {
		return false
	}
	base := anchors[0].km
	for j := 0; j < len(anchors)-1; j++ {
		a, b := anchors[j], anchors[j+1]
		span := b.idx - a.idx
		for i := a.idx; i <= b.idx; i++ {
			frac := 0.0
			if span > 0 {
				frac = float64(i-a.idx) / float64(span)
			}
			cum[i] = a.km - base + frac*(b.km-a.km)
		}
	}
	// Hold the last anchor through any trailing gap.
	last := anchors[len(anchors)-1]
	for i := last.idx + 1; i < len(cum); i++ {
		cum[i] = last.km - base
	}
	// Leading gap before the first anchor stays at zero.
	for i := 0; i < anchors[0].idx; i++ {
		cum[i] = 0
	}
	return true
}
