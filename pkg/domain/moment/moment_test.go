package moment

import (
	"testing"

	"github.com/runsight/server/pkg/domain/stream"
)

func steadySeries(t *testing.T, n int, mutate func(i int, r *stream.RawSample)) *stream.Series {
	t.Helper()
	raw := make([]stream.RawSample, n)
	for i := range raw {
		raw[i] = stream.RawSample{
			TimeS:      float64(i),
			HR:         stream.Float64(140),
			PaceSKm:    stream.Float64(360),
			CadenceSPM: stream.Float64(175),
		}
		if mutate != nil {
			mutate(i, &raw[i])
		}
	}
	s := stream.Normalize(raw)
	return &s
}

func momentsOfType(moments []Moment, typ string) []Moment {
	var out []Moment
	for _, m := range moments {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func flatEffort(n int) []float64 {
	effort := make([]float64, n)
	for i := range effort {
		effort[i] = 0.5
	}
	return effort
}

func TestDetectPaceSurge(t *testing.T) {
	s := steadySeries(t, 1200, func(i int, r *stream.RawSample) {
		if i >= 600 && i < 700 {
			r.PaceSKm = stream.Float64(240) // 50% faster than baseline
		}
	})

	surges := momentsOfType(Detect(s, flatEffort(len(s.Points)), true), TypePaceSurge)

	if len(surges) != 1 {
		t.Fatalf("expected exactly one surge, got %d: %+v", len(surges), surges)
	}
	if surges[0].Index != 600 {
		t.Errorf("surge should be anchored at its onset, got index %d", surges[0].Index)
	}
	if surges[0].Value < 40 || surges[0].Value > 60 {
		t.Errorf("expected ~50%% surge magnitude, got %v", surges[0].Value)
	}
	if surges[0].Context == "" {
		t.Error("every moment must carry a context label")
	}
}

func TestDetectCadenceDrop(t *testing.T) {
	s := steadySeries(t, 1200, func(i int, r *stream.RawSample) {
		if i >= 800 && i < 900 {
			r.CadenceSPM = stream.Float64(160)
		}
	})

	drops := momentsOfType(Detect(s, flatEffort(len(s.Points)), true), TypeCadenceDrop)

	if len(drops) != 1 {
		t.Fatalf("expected exactly one cadence drop, got %d", len(drops))
	}
	if drops[0].Index != 800 {
		t.Errorf("drop should be anchored at its onset, got index %d", drops[0].Index)
	}
	if drops[0].Value < 10 || drops[0].Value > 16 {
		t.Errorf("expected ~15 spm drop, got %v", drops[0].Value)
	}
}

func TestDetectDriftOnset(t *testing.T) {
	s := steadySeries(t, 3600, func(i int, r *stream.RawSample) {
		if i >= 1800 {
			r.HR = stream.Float64(154) // +10% at constant pace
		}
	})

	onsets := momentsOfType(Detect(s, flatEffort(len(s.Points)), true), TypeDriftOnset)

	if len(onsets) != 1 {
		t.Fatalf("expected exactly one drift onset, got %d", len(onsets))
	}
	if onsets[0].Index < 1790 || onsets[0].Index > 1810 {
		t.Errorf("expected onset near sample 1800, got %d", onsets[0].Index)
	}
}

func TestDetectSkipsDriftWhenHRUnusable(t *testing.T) {
	s := steadySeries(t, 3600, func(i int, r *stream.RawSample) {
		if i >= 1800 {
			r.HR = stream.Float64(154)
		}
	})

	if onsets := momentsOfType(Detect(s, flatEffort(len(s.Points)), false), TypeDriftOnset); len(onsets) != 0 {
		t.Fatalf("drift onset must not be reported on untrusted HR, got %+v", onsets)
	}
}

func TestDetectIntervalWorkIsNotDriftOnset(t *testing.T) {
	// Hard reps raise HR and effort together; drift is only judged at
	// like-for-like effort, so a structured rep must not read as drift.
	s := steadySeries(t, 3600, func(i int, r *stream.RawSample) {
		if i >= 2000 && i < 2400 {
			r.HR = stream.Float64(172)
		}
	})
	effort := flatEffort(len(s.Points))
	for i := 2000; i < 2400; i++ {
		effort[i] = 0.85
	}

	if onsets := momentsOfType(Detect(s, effort, true), TypeDriftOnset); len(onsets) != 0 {
		t.Fatalf("interval rep misread as drift onset: %+v", onsets)
	}
}

func TestDetectQuietRunHasNoMoments(t *testing.T) {
	s := steadySeries(t, 1800, nil)

	if moments := Detect(s, flatEffort(len(s.Points)), true); len(moments) != 0 {
		t.Fatalf("steady run should produce no moments, got %+v", moments)
	}
}

func TestMapToDisplay(t *testing.T) {
	moments := []Moment{
		{Type: TypePaceSurge, Index: 14, TimeS: 14},
		{Type: TypePaceSurge, Index: 35, TimeS: 35},
	}

	mapped := MapToDisplay(moments, []int{0, 10, 20, 30})

	if mapped[0].Index != 1 {
		t.Errorf("index 14 should map to display point 1 (grid 10), got %d", mapped[0].Index)
	}
	if mapped[1].Index != 3 {
		t.Errorf("index 35 should clamp to the last display point, got %d", mapped[1].Index)
	}
	if mapped[0].TimeS != 14 {
		t.Errorf("mapping must keep grid-accurate time, got %v", mapped[0].TimeS)
	}
}

func TestLabelFallbackChain(t *testing.T) {
	cases := []struct {
		name string
		m    Moment
		want string
	}{
		{"narrative wins", Moment{Type: TypePaceSurge, Context: "ctx", Narrative: "You kicked hard at the end."}, "You kicked hard at the end."},
		{"context next", Moment{Type: TypePaceSurge, Context: "15% pace surge"}, "15% pace surge"},
		{"type last resort", Moment{Type: TypeCadenceDrop}, "Cadence Drop"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Label(tc.m); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
