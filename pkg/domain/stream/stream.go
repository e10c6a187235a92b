// Package stream converts raw per-sample run telemetry into the uniform,
// bounded representation every downstream analysis component consumes.
package stream

// Channel identifies one telemetry channel in reporting vocabulary.
type Channel string

const (
	ChannelHR       Channel = "hr"
	ChannelPace     Channel = "pace"
	ChannelAltitude Channel = "altitude"
	ChannelGrade    Channel = "grade"
	ChannelCadence  Channel = "cadence"
	ChannelPower    Channel = "power"
)

// AllChannels is the fixed reporting order for presence lists.
var AllChannels = []Channel{ChannelHR, ChannelPace, ChannelAltitude, ChannelGrade, ChannelCadence, ChannelPower}

// RawSample is one row of upstream telemetry. Nil means the recording device
// did not report that channel for this sample. Units follow the upstream
// export: pace in seconds per km, altitude in metres, grade in percent,
// cadence in steps per minute, power in watts.
type RawSample struct {
	TimeS      float64
	HR         *float64
	PaceSKm    *float64
	AltitudeM  *float64
	GradePct   *float64
	CadenceSPM *float64
	PowerW     *float64
	DistanceM  *float64
}

// Point is one normalized sample on the uniform time index. Optional
// channels stay nil when the source carried no trustworthy value near that
// second. Effort is filled in by the effort mapper on display points only.
type Point struct {
	TimeS      float64  `json:"time"`
	HR         *float64 `json:"hr,omitempty"`
	PaceSKm    *float64 `json:"pace,omitempty"`
	AltitudeM  *float64 `json:"altitude,omitempty"`
	GradePct   *float64 `json:"grade,omitempty"`
	CadenceSPM *float64 `json:"cadence,omitempty"`
	Effort     float64  `json:"effort"`
}

// Series is the normalized stream plus the structural presence report.
// CumKm runs parallel to Points and carries cumulative distance, derived
// from recorded distance when available and integrated pace otherwise.
type Series struct {
	Points  []Point
	CumKm   []float64
	Present []Channel
	Missing []Channel
}

// Has reports whether a channel passed the structural presence check.
func (s *Series) Has(ch Channel) bool {
	for _, c := range s.Present {
		if c == ch {
			return true
		}
	}
	return false
}

// DurationS returns the elapsed time covered by the series.
func (s *Series) DurationS() float64 {
	if len(s.Points) == 0 {
		return 0
	}
	return s.Points[len(s.Points)-1].TimeS
}

// DistanceKm returns total distance covered by the series.
func (s *Series) DistanceKm() float64 {
	if len(s.CumKm) == 0 {
		return 0
	}
	return s.CumKm[len(s.CumKm)-1]
}

// HRValues returns the heart-rate channel as a dense slice with nil samples
// reported via the ok mask.
func (s *Series) HRValues() (vals []float64, ok []bool) {
	vals = make([]float64, len(s.Points))
	ok = make([]bool, len(s.Points))
	for i, p := range s.Points {
		if p.HR != nil {
			vals[i] = *p.HR
			ok[i] = true
		}
	}
	return vals, ok
}

// PaceValues returns the pace channel as a dense slice with nil samples
// reported via the ok mask.
func (s *Series) PaceValues() (vals []float64, ok []bool) {
	vals = make([]float64, len(s.Points))
	ok = make([]bool, len(s.Points))
	for i, p := range s.Points {
		if p.PaceSKm != nil {
			vals[i] = *p.PaceSKm
			ok[i] = true
		}
	}
	return vals, ok
}

// CadenceValues returns the cadence channel as a dense slice with nil
// samples reported via the ok mask.
func (s *Series) CadenceValues() (vals []float64, ok []bool) {
	vals = make([]float64, len(s.Points))
	ok = make([]bool, len(s.Points))
	for i, p := range s.Points {
		if p.CadenceSPM != nil {
			vals[i] = *p.CadenceSPM
			ok[i] = true
		}
	}
	return vals, ok
}

// Float64 returns a pointer to v. Telemetry rows are built almost entirely
// from optional values, so the helper lives here rather than in every caller.
func Float64(v float64) *float64 {
	return &v
}
