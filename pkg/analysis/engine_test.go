package analysis_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runsight/server/pkg/analysis"
	"github.com/runsight/server/pkg/domain/moment"
	"github.com/runsight/server/pkg/domain/plan"
	"github.com/runsight/server/pkg/domain/segment"
	"github.com/runsight/server/pkg/domain/stream"
	"github.com/runsight/server/pkg/domain/tier"
)

// intervalSamples is a 60-minute session with two 4-minute hard repetitions:
// easy running at 130 bpm / 6:00 per km, reps at 168 bpm / 4:30 per km.
func intervalSamples() []stream.RawSample {
	raw := make([]stream.RawSample, 0, 3600)
	for i := 0; i < 3600; i++ {
		hr, pace := 130.0, 360.0
		if (i >= 900 && i < 1140) || (i >= 1440 && i < 1680) {
			hr, pace = 168.0, 270.0
		}
		raw = append(raw, stream.RawSample{
			TimeS:      float64(i),
			HR:         stream.Float64(hr),
			PaceSKm:    stream.Float64(pace),
			AltitudeM:  stream.Float64(40),
			CadenceSPM: stream.Float64(172),
		})
	}
	return raw
}

// steadySamples is a 60-minute even-paced run whose heart rate climbs from
// 145 to 160 bpm while cadence decays slightly, the classic drift shape.
func steadySamples() []stream.RawSample {
	raw := make([]stream.RawSample, 0, 3600)
	for i := 0; i < 3600; i++ {
		frac := float64(i) / 3599.0
		raw = append(raw, stream.RawSample{
			TimeS:      float64(i),
			HR:         stream.Float64(145 + 15*frac),
			PaceSKm:    stream.Float64(330),
			AltitudeM:  stream.Float64(40),
			CadenceSPM: stream.Float64(172 - 6*frac),
		})
	}
	return raw
}

func intervalInput() analysis.Input {
	return analysis.Input{
		ActivityID: "morning-intervals",
		PlanID:     "tempo-2x4",
		Samples:    intervalSamples(),
		Baseline:   &tier.Baseline{ThresholdHR: stream.Float64(170)},
		Plan: &plan.Workout{
			DurationMin:   stream.Float64(60),
			DistanceKm:    stream.Float64(10.5),
			IntervalCount: intPtr(2),
		},
	}
}

func intPtr(v int) *int { return &v }

func segmentTypes(segments []segment.Segment) []segment.Type {
	out := make([]segment.Type, len(segments))
	for i, s := range segments {
		out[i] = s.Type
	}
	return out
}

func assertPartition(t *testing.T, res *analysis.Result) {
	t.Helper()
	require.NotEmpty(t, res.Segments)
	assert.Equal(t, 0, res.Segments[0].StartIndex)
	assert.Equal(t, res.PointCount, res.Segments[len(res.Segments)-1].EndIndex)
	for i := 1; i < len(res.Segments); i++ {
		assert.Equal(t, res.Segments[i-1].EndIndex, res.Segments[i].StartIndex,
			"segment %d must start where segment %d ends", i, i-1)
	}
}

func TestAnalyzeStructuredIntervalSession(t *testing.T) {
	in := intervalInput()

	res, err := analysis.Engine{}.Analyze(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, tier.Tier1ThresholdHR, res.TierUsed)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	assert.True(t, res.CrossRunComparable)
	assert.Empty(t, res.EstimatedFlags)
	require.NotNil(t, res.HRReliable)
	assert.True(t, *res.HRReliable)
	assert.Empty(t, res.HRNote)

	assert.Equal(t, []string{"hr", "pace", "altitude", "cadence"}, res.ChannelsPresent)
	assert.Equal(t, []string{"grade", "power"}, res.ChannelsMissing)

	assert.Equal(t, stream.DownsampleBudget, res.PointCount)
	assert.Len(t, res.Stream, res.PointCount)
	assert.Len(t, res.EffortIntensity, res.PointCount)

	assertPartition(t, res)
	require.Equal(t,
		[]segment.Type{segment.Warmup, segment.Work, segment.Recovery, segment.Work, segment.Cooldown},
		segmentTypes(res.Segments))

	warmup, work1, work2 := res.Segments[0], res.Segments[1], res.Segments[3]
	require.NotNil(t, warmup.AvgHR)
	assert.Less(t, *warmup.AvgHR, 140.0)
	for _, w := range []segment.Segment{work1, work2} {
		require.NotNil(t, w.AvgHR)
		assert.Greater(t, *w.AvgHR, 160.0)
		require.NotNil(t, w.AvgPaceSKm)
		assert.InDelta(t, 270, *w.AvgPaceSKm, 10)
		assert.InDelta(t, 225, w.DurationS, 45)
	}
	// Smoothing shifts the detected rep edges a little past the raw 900s
	// boundary; it must never move them by more than the smoothing window.
	assert.InDelta(t, 915, work1.StartTimeS, 25)
	assert.InDelta(t, 1455, work2.StartTimeS, 25)

	require.Len(t, res.Moments, 2)
	for _, m := range res.Moments {
		assert.Equal(t, moment.TypePaceSurge, m.Type)
		assert.GreaterOrEqual(t, m.Index, 0)
		assert.Less(t, m.Index, res.PointCount)
	}
	assert.InDelta(t, 900, res.Moments[0].TimeS, 1)
	assert.InDelta(t, 1440, res.Moments[1].TimeS, 1)

	// Both reps sit well under the 10-minute half-sample floor, so the
	// half-to-half drift figures stay uncomputed rather than misleading.
	assert.Nil(t, res.Drift.CardiacPct)
	assert.Nil(t, res.Drift.PacePct)
	require.NotNil(t, res.Drift.CadenceTrendBpmKm)
	assert.InDelta(t, 0, *res.Drift.CadenceTrendBpmKm, 0.2)

	c := res.PlanComparison
	require.NotNil(t, c)
	assert.Equal(t, 2, c.PlannedIntervalCount)
	assert.Equal(t, 2, c.DetectedWorkCount)
	assert.True(t, c.IntervalCountMatch)
	require.NotNil(t, c.DurationDeltaMin)
	assert.InDelta(t, 0, *c.DurationDeltaMin, 0.05)
	require.NotNil(t, c.DistanceDeltaKm)
	assert.InDelta(t, 0, *c.DistanceDeltaKm, 0.2)
	require.NotNil(t, c.PaceDeltaSKm)
	assert.InDelta(t, 2, *c.PaceDeltaSKm, 2)

	assert.Equal(t, analysis.ResultKey(in.ActivityID, in.PlanID, analysis.HashInput(in)), res.Key)
}

func TestAnalyzeSteadyRunComputesDrift(t *testing.T) {
	in := analysis.Input{
		ActivityID: "steady-hour",
		Samples:    steadySamples(),
		Baseline:   &tier.Baseline{ThresholdHR: stream.Float64(170)},
	}

	res, err := analysis.Engine{}.Analyze(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, tier.Tier1ThresholdHR, res.TierUsed)
	require.Equal(t, []segment.Type{segment.Steady}, segmentTypes(res.Segments))
	assertPartition(t, res)

	// HR rose ~5% at constant pace, so beats-per-km rises ~5% half to half.
	require.NotNil(t, res.Drift.CardiacPct)
	assert.InDelta(t, 5.0, *res.Drift.CardiacPct, 0.6)
	require.NotNil(t, res.Drift.PacePct)
	assert.InDelta(t, 0, *res.Drift.PacePct, 0.3)
	require.NotNil(t, res.Drift.CadenceTrendBpmKm)
	assert.InDelta(t, -0.55, *res.Drift.CadenceTrendBpmKm, 0.15)

	require.Len(t, res.Moments, 1)
	onset := res.Moments[0]
	assert.Equal(t, moment.TypeDriftOnset, onset.Type)
	assert.InDelta(t, 2210, onset.TimeS, 150)
	assert.InDelta(t, 5.0, onset.Value, 0.3)

	assert.Nil(t, res.PlanComparison)
}

func TestAnalyzeWithoutPhysiologyFallsBackToRelative(t *testing.T) {
	raw := make([]stream.RawSample, 0, 1800)
	for i := 0; i < 1800; i++ {
		pace := 360 + 60*math.Sin(2*math.Pi*float64(i)/600)
		raw = append(raw, stream.RawSample{
			TimeS:     float64(i),
			PaceSKm:   stream.Float64(pace),
			AltitudeM: stream.Float64(50),
		})
	}

	res, err := analysis.Engine{}.Analyze(context.Background(), analysis.Input{
		ActivityID: "watch-only",
		Samples:    raw,
	})
	require.NoError(t, err)

	assert.Equal(t, tier.Tier4StreamRelative, res.TierUsed)
	assert.False(t, res.CrossRunComparable)
	assert.InDelta(t, 0.40, res.Confidence, 1e-9)
	assert.Equal(t, []string{"effort_relative_to_this_run_only", "missing_hr", "missing_cadence"}, res.EstimatedFlags)
	assert.Equal(t, []string{"pace", "altitude"}, res.ChannelsPresent)
	assert.Equal(t, []string{"hr", "grade", "cadence", "power"}, res.ChannelsMissing)
	assert.Nil(t, res.HRReliable)
	assert.Nil(t, res.Drift.CardiacPct)
	assert.Nil(t, res.Drift.CadenceTrendBpmKm)

	assertPartition(t, res)
	for i, v := range res.EffortIntensity {
		if v < 0 || v > 1 {
			t.Fatalf("effort intensity %d out of range: %v", i, v)
		}
	}
	for _, m := range res.Moments {
		assert.GreaterOrEqual(t, m.Index, 0)
		assert.Less(t, m.Index, res.PointCount)
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	in := intervalInput()
	eng := analysis.Engine{}

	first, err := eng.Analyze(context.Background(), in)
	require.NoError(t, err)
	second, err := eng.Analyze(context.Background(), in)
	require.NoError(t, err)

	a, err := first.Encode()
	require.NoError(t, err)
	b, err := second.Encode()
	require.NoError(t, err)
	require.Equal(t, a, b, "identical inputs must encode byte-identically")

	decoded, err := analysis.DecodeResult(a)
	require.NoError(t, err)
	assert.Equal(t, first.Key, decoded.Key)
	assert.Equal(t, first.TierUsed, decoded.TierUsed)
	assert.Len(t, decoded.Stream, first.PointCount)
}

func TestAnalyzeDownsamplesToBudget(t *testing.T) {
	raw := make([]stream.RawSample, 0, 3601)
	for i := 0; i <= 3600; i++ {
		raw = append(raw, stream.RawSample{
			TimeS: float64(i),
			HR:    stream.Float64(120 + 40*float64(i)/3600),
		})
	}
	in := analysis.Input{ActivityID: "long-ramp", Samples: raw}

	res, err := analysis.Engine{}.Analyze(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, stream.DownsampleBudget, res.PointCount)
	assert.Equal(t, 0.0, res.Stream[0].TimeS)
	assert.Equal(t, 3600.0, res.Stream[res.PointCount-1].TimeS)
	for i := 1; i < len(res.Stream); i++ {
		assert.Less(t, res.Stream[i-1].TimeS, res.Stream[i].TimeS)
	}
	assertPartition(t, res)

	small, err := analysis.Engine{Budget: 100}.Analyze(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 100, small.PointCount)
	assert.Equal(t, 0.0, small.Stream[0].TimeS)
	assert.Equal(t, 3600.0, small.Stream[99].TimeS)

	// Runs shorter than the budget pass through unsampled.
	tiny, err := analysis.Engine{}.Analyze(context.Background(), analysis.Input{
		ActivityID: "short-jog",
		Samples:    raw[:120],
	})
	require.NoError(t, err)
	assert.Equal(t, 120, tiny.PointCount)
}

func TestAnalyzeRejectsEmptyStream(t *testing.T) {
	_, err := analysis.Engine{}.Analyze(context.Background(), analysis.Input{ActivityID: "empty"})
	require.ErrorIs(t, err, analysis.ErrEmptyStream)

	_, err = analysis.Engine{}.Analyze(context.Background(), analysis.Input{
		ActivityID: "garbage",
		Samples:    []stream.RawSample{{TimeS: math.NaN(), HR: stream.Float64(140)}},
	})
	require.ErrorIs(t, err, analysis.ErrEmptyStream)
}
