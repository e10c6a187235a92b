package drift

import (
	"math"
	"testing"

	"github.com/runsight/server/pkg/domain/stream"
)

// driftSeries builds a steady-pace run where HR climbs hrRise bpm over the
// whole run and cadence falls linearly.
func driftSeries(t *testing.T, n int, hrRise float64) *stream.Series {
	t.Helper()
	raw := make([]stream.RawSample, n)
	for i := range raw {
		frac := float64(i) / float64(n-1)
		raw[i] = stream.RawSample{
			TimeS:      float64(i),
			HR:         stream.Float64(150 + hrRise*frac),
			PaceSKm:    stream.Float64(300),
			CadenceSPM: stream.Float64(175 - 5*frac),
		}
	}
	s := stream.Normalize(raw)
	return &s
}

func flatEffort(n int, level float64) []float64 {
	effort := make([]float64, n)
	for i := range effort {
		effort[i] = level
	}
	return effort
}

func TestComputeCardiacDriftPositiveWhenHRClimbs(t *testing.T) {
	s := driftSeries(t, 3600, 15)
	effort := flatEffort(len(s.Points), 0.6)

	a := Compute(s, effort, true)

	if a.CardiacPct == nil {
		t.Fatal("expected cardiac drift with reliable HR and pace")
	}
	// 15 bpm rise at constant pace: halves average ~153.75 vs ~161.25,
	// roughly +4.9% beats per km.
	if *a.CardiacPct < 3 || *a.CardiacPct > 7 {
		t.Errorf("expected cardiac drift near +5%%, got %.2f", *a.CardiacPct)
	}
}

func TestComputeNoDriftOnSteadyRun(t *testing.T) {
	s := driftSeries(t, 3600, 0)
	effort := flatEffort(len(s.Points), 0.6)

	a := Compute(s, effort, true)

	if a.CardiacPct == nil || math.Abs(*a.CardiacPct) > 0.5 {
		t.Errorf("expected ~0%% cardiac drift, got %v", a.CardiacPct)
	}
	if a.PacePct == nil || math.Abs(*a.PacePct) > 0.5 {
		t.Errorf("expected ~0%% pace drift, got %v", a.PacePct)
	}
}

func TestComputeCardiacNilWhenHRUnusable(t *testing.T) {
	s := driftSeries(t, 3600, 15)
	effort := flatEffort(len(s.Points), 0.6)

	a := Compute(s, effort, false)

	if a.CardiacPct != nil {
		t.Errorf("unreliable HR must null cardiac drift, got %v", *a.CardiacPct)
	}
	if a.PacePct == nil {
		t.Error("pace drift does not depend on HR and should still be computed")
	}
}

func TestComputeCadenceTrendSlope(t *testing.T) {
	s := driftSeries(t, 3600, 0)
	effort := flatEffort(len(s.Points), 0.6)

	a := Compute(s, effort, true)

	if a.CadenceTrendBpmKm == nil {
		t.Fatal("expected cadence trend with cadence and distance present")
	}
	// 5 spm drop over 12 km is about -0.42 spm/km.
	distKm := s.DistanceKm()
	want := -5.0 / distKm
	if math.Abs(*a.CadenceTrendBpmKm-want) > 0.1 {
		t.Errorf("expected slope near %.3f, got %.3f", want, *a.CadenceTrendBpmKm)
	}
}

func TestComputeNilsOnShortRun(t *testing.T) {
	s := driftSeries(t, 300, 10) // under two full halves of evidence
	effort := flatEffort(len(s.Points), 0.6)

	a := Compute(s, effort, true)

	if a.CardiacPct != nil || a.PacePct != nil {
		t.Errorf("short runs must not report drift, got %+v", a)
	}
}

func TestComputeAllNilWithoutChannels(t *testing.T) {
	raw := make([]stream.RawSample, 1200)
	for i := range raw {
		raw[i] = stream.RawSample{TimeS: float64(i), AltitudeM: stream.Float64(100)}
	}
	s := stream.Normalize(raw)
	effort := flatEffort(len(s.Points), 0.5)

	a := Compute(&s, effort, false)

	if a.CardiacPct != nil || a.PacePct != nil || a.CadenceTrendBpmKm != nil {
		t.Errorf("expected all-nil analysis without hr/pace/cadence, got %+v", a)
	}
}
