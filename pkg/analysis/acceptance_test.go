package analysis_test

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/runsight/server/pkg/analysis"
	"github.com/runsight/server/pkg/domain/plan"
	"github.com/runsight/server/pkg/domain/stream"
	"github.com/runsight/server/pkg/domain/tier"
	"github.com/runsight/server/pkg/testing/mocks"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// analysisFeature carries scenario state: the engine input under
// construction, its results, and a lifecycle over an in-memory store.
type analysisFeature struct {
	input  analysis.Input
	result *analysis.Result
	twin   *analysis.Result

	lc    *analysis.Lifecycle
	store *mocks.MemoryStore
	rec   *analysis.Record
	fresh bool
}

func (f *analysisFeature) reset() {
	f.input = analysis.Input{}
	f.result, f.twin = nil, nil
	f.store = mocks.NewMemoryStore()
	f.lc = analysis.NewLifecycle(f.store)
	f.rec, f.fresh = nil, false
}

func (f *analysisFeature) recordingWithRepetitions(totalMin, reps, repMin int) error {
	total := totalMin * 60
	inRep := func(i int) bool {
		start := 900
		for r := 0; r < reps; r++ {
			if i >= start && i < start+repMin*60 {
				return true
			}
			start += repMin*60 + 300
		}
		return false
	}

	raw := make([]stream.RawSample, 0, total)
	for i := 0; i < total; i++ {
		hr, pace := 130.0, 360.0
		if inRep(i) {
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
	f.input = analysis.Input{ActivityID: "feature-run", Samples: raw}
	return nil
}

func (f *analysisFeature) paceOnlyRecording(totalMin int) error {
	total := totalMin * 60
	raw := make([]stream.RawSample, 0, total)
	for i := 0; i < total; i++ {
		pace := 360 + 60*math.Sin(2*math.Pi*float64(i)/600)
		raw = append(raw, stream.RawSample{
			TimeS:     float64(i),
			PaceSKm:   stream.Float64(pace),
			AltitudeM: stream.Float64(50),
		})
	}
	f.input = analysis.Input{ActivityID: "feature-run", Samples: raw}
	return nil
}

func (f *analysisFeature) thresholdHeartRate(lthr int) error {
	f.input.Baseline = &tier.Baseline{ThresholdHR: stream.Float64(float64(lthr))}
	return nil
}

func (f *analysisFeature) plannedRepetitions(n int) error {
	f.input.Plan = &plan.Workout{IntervalCount: intPtr(n)}
	return nil
}

func (f *analysisFeature) analyzeOnce() error {
	res, err := analysis.Engine{}.Analyze(context.Background(), f.input)
	if err != nil {
		return err
	}
	f.result = res
	return nil
}

func (f *analysisFeature) analyzeTwice() error {
	if err := f.analyzeOnce(); err != nil {
		return err
	}
	twin, err := analysis.Engine{}.Analyze(context.Background(), f.input)
	if err != nil {
		return err
	}
	f.twin = twin
	return nil
}

func (f *analysisFeature) tierUsed(code string) error {
	if got := string(f.result.TierUsed); got != code {
		return fmt.Errorf("expected tier %q, got %q", code, got)
	}
	return nil
}

func (f *analysisFeature) phasesRead(list string) error {
	var want []string
	for _, p := range strings.Split(list, ",") {
		want = append(want, strings.TrimSpace(p))
	}
	got := make([]string, len(f.result.Segments))
	for i, s := range f.result.Segments {
		got[i] = string(s.Type)
	}
	if len(got) != len(want) {
		return fmt.Errorf("expected phases %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("expected phases %v, got %v", want, got)
		}
	}
	return nil
}

func (f *analysisFeature) planComparisonConfirmed() error {
	c := f.result.PlanComparison
	if c == nil {
		return fmt.Errorf("expected a plan comparison")
	}
	if !c.IntervalCountMatch {
		return fmt.Errorf("expected interval count match: planned %d, detected %d",
			c.PlannedIntervalCount, c.DetectedWorkCount)
	}
	return nil
}

func (f *analysisFeature) encodedByteIdentical() error {
	a, err := f.result.Encode()
	if err != nil {
		return err
	}
	b, err := f.twin.Encode()
	if err != nil {
		return err
	}
	if !bytes.Equal(a, b) {
		return fmt.Errorf("encoded results differ: %d vs %d bytes", len(a), len(b))
	}
	return nil
}

func (f *analysisFeature) flaggedNotComparable() error {
	if f.result.CrossRunComparable {
		return fmt.Errorf("expected cross_run_comparable to be false")
	}
	return nil
}

func (f *analysisFeature) pendingRequest(activityID string) error {
	rec, fresh, err := f.lc.Begin(context.Background(), activityID, "", "")
	if err != nil {
		return err
	}
	if !fresh || rec.Status != analysis.StatusPending {
		return fmt.Errorf("expected a fresh pending record, got fresh=%v status=%s", fresh, rec.Status)
	}
	f.rec, f.fresh = rec, fresh
	return nil
}

func (f *analysisFeature) fetchedAndCompleted() error {
	ctx := context.Background()
	if err := f.lc.MarkFetching(ctx, f.rec); err != nil {
		return err
	}
	hash := analysis.HashInput(analysis.Input{ActivityID: f.rec.ActivityID})
	res := &analysis.Result{
		Key:        analysis.ResultKey(f.rec.ActivityID, f.rec.PlanID, hash),
		ActivityID: f.rec.ActivityID,
	}
	return f.lc.Complete(ctx, f.rec, res, hash)
}

func (f *analysisFeature) storedRecordReads(status string) error {
	rec, err := f.store.GetAnalysisRecord(context.Background(), f.rec.Key)
	if err != nil {
		return err
	}
	if string(rec.Status) != status {
		return fmt.Errorf("expected stored status %q, got %q", status, rec.Status)
	}
	return nil
}

func (f *analysisFeature) requestAgainReturnsCached(activityID string) error {
	ctx := context.Background()
	rec, fresh, err := f.lc.Begin(ctx, activityID, "", "")
	if err != nil {
		return err
	}
	if fresh {
		return fmt.Errorf("completed request must not be reissued")
	}
	if rec.Status != analysis.StatusSuccess || rec.ResultKey == "" {
		return fmt.Errorf("expected a success record carrying a result key, got %+v", rec)
	}
	data, err := f.store.GetAnalysisResult(ctx, rec.ResultKey)
	if err != nil {
		return fmt.Errorf("cached result missing: %w", err)
	}
	_, err = analysis.DecodeResult(data)
	return err
}

func (f *analysisFeature) fetchedAndFailed(note string) error {
	ctx := context.Background()
	if err := f.lc.MarkFetching(ctx, f.rec); err != nil {
		return err
	}
	return f.lc.Fail(ctx, f.rec, note)
}

func (f *analysisFeature) requestedAgain(activityID string) error {
	rec, fresh, err := f.lc.Begin(context.Background(), activityID, "", "")
	if err != nil {
		return err
	}
	f.rec, f.fresh = rec, fresh
	return nil
}

func (f *analysisFeature) reissuedFresh() error {
	if !f.fresh || f.rec.Status != analysis.StatusPending {
		return fmt.Errorf("expected a fresh pending reissue, got fresh=%v status=%s", f.fresh, f.rec.Status)
	}
	return nil
}

func (f *analysisFeature) fetchedAndUnavailable() error {
	ctx := context.Background()
	if err := f.lc.MarkFetching(ctx, f.rec); err != nil {
		return err
	}
	return f.lc.MarkUnavailable(ctx, f.rec, "provider has no stream")
}

func (f *analysisFeature) servedFromTerminalState() error {
	if f.fresh {
		return fmt.Errorf("terminal record must not be reissued")
	}
	if f.rec.Status != analysis.StatusUnavailable {
		return fmt.Errorf("expected unavailable, got %s", f.rec.Status)
	}
	return nil
}

func InitializeScenario(sc *godog.ScenarioContext) {
	f := &analysisFeature{}
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		f.reset()
		return ctx, nil
	})

	sc.Step(`^a (\d+) minute recording with (\d+) hard repetitions of (\d+) minutes$`, f.recordingWithRepetitions)
	sc.Step(`^a (\d+) minute recording carrying only pace and altitude$`, f.paceOnlyRecording)
	sc.Step(`^the athlete's threshold heart rate is (\d+)$`, f.thresholdHeartRate)
	sc.Step(`^the athlete planned (\d+) repetitions$`, f.plannedRepetitions)
	sc.Step(`^the run is analyzed$`, f.analyzeOnce)
	sc.Step(`^the run is analyzed twice$`, f.analyzeTwice)
	sc.Step(`^the analysis uses tier "([^"]*)"$`, f.tierUsed)
	sc.Step(`^the phases read "([^"]*)"$`, f.phasesRead)
	sc.Step(`^the plan comparison confirms the repetition count$`, f.planComparisonConfirmed)
	sc.Step(`^both encoded results are byte-identical$`, f.encodedByteIdentical)
	sc.Step(`^the result is flagged as not comparable across runs$`, f.flaggedNotComparable)
	sc.Step(`^a pending analysis request for activity "([^"]*)"$`, f.pendingRequest)
	sc.Step(`^the request is fetched and completed$`, f.fetchedAndCompleted)
	sc.Step(`^the stored record reads "([^"]*)"$`, f.storedRecordReads)
	sc.Step(`^requesting activity "([^"]*)" again returns the cached result$`, f.requestAgainReturnsCached)
	sc.Step(`^the request is fetched and fails with "([^"]*)"$`, f.fetchedAndFailed)
	sc.Step(`^activity "([^"]*)" is requested again$`, f.requestedAgain)
	sc.Step(`^the request is reissued fresh$`, f.reissuedFresh)
	sc.Step(`^the request is served from its terminal state$`, f.servedFromTerminalState)
}
