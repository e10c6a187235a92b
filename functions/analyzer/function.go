// Package analyzer consumes analysis requests, acquires the raw telemetry
// stream and stores the immutable interpretation.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	shared "github.com/runsight/server/pkg"
	"github.com/runsight/server/pkg/analysis"
	"github.com/runsight/server/pkg/bootstrap"
	"github.com/runsight/server/pkg/domain/athlete"
	"github.com/runsight/server/pkg/domain/stream"
	"github.com/runsight/server/pkg/framework"
	"github.com/runsight/server/pkg/infrastructure/oauth"
	infrapubsub "github.com/runsight/server/pkg/infrastructure/pubsub"
	infrastorage "github.com/runsight/server/pkg/infrastructure/storage"
	"github.com/runsight/server/pkg/integrations/telemetry"
	"github.com/runsight/server/pkg/metrics"
	"github.com/runsight/server/pkg/types"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.CloudEvent("AnalyzeActivity", AnalyzeActivity)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	if svc != nil {
		return svc, nil
	}
	svcOnce.Do(func() {
		svc, svcErr = bootstrap.NewService(ctx)
		if svcErr != nil {
			slog.Error("Failed to initialize service", "error", svcErr)
		}
	})
	return svc, svcErr
}

// AnalyzeActivity is the entry point
func AnalyzeActivity(ctx context.Context, e event.Event) error {
	svc, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %v", err)
	}
	metrics.Init()
	return framework.WrapCloudEvent("analyzer", svc, analyzeHandler)(ctx, e)
}

// analyzeHandler contains the business logic
func analyzeHandler(ctx context.Context, e event.Event, fwCtx *framework.FrameworkContext) (interface{}, error) {
	svc := fwCtx.Service
	logger := fwCtx.Logger

	var req types.AnalysisRequested
	if err := e.DataAs(&req); err != nil {
		return nil, fmt.Errorf("event.DataAs: %v", err)
	}
	if req.ActivityID == "" {
		return nil, fmt.Errorf("analysis request missing activity_id")
	}

	logger = logger.With("activity_id", req.ActivityID)
	if req.PlanID != "" {
		logger = logger.With("plan_id", req.PlanID)
	}

	lifecycle := analysis.NewLifecycle(svc.DB)
	rec, fresh, err := lifecycle.Begin(ctx, req.ActivityID, req.PlanID, req.AthleteID)
	if err != nil {
		return nil, err
	}

	if !fresh {
		switch rec.Status {
		case analysis.StatusSuccess:
			logger.Info("Analysis already stored", "result_key", rec.ResultKey)
			return map[string]interface{}{
				"status":     "skipped",
				"reason":     "already analyzed",
				"result_key": rec.ResultKey,
			}, nil
		case analysis.StatusUnavailable:
			logger.Info("Input known unavailable, nothing to do")
			return map[string]interface{}{
				"status": "skipped",
				"reason": "input unavailable",
			}, nil
		case analysis.StatusFetching:
			// A previous delivery crashed mid-flight; carry on from here.
			// The transition table allows fetching to reach any terminal
			// state, so no status change is needed.
			logger.Warn("Resuming analysis left in fetching state")
		}
	}

	if rec.Status == analysis.StatusPending {
		if err := lifecycle.MarkFetching(ctx, rec); err != nil {
			return nil, err
		}
	}

	athleteRec := loadAthlete(ctx, svc, logger, req.AthleteID)

	samples, sourceNote, fetchErr := acquireStream(ctx, svc, logger, req.ActivityID, athleteRec)
	if fetchErr != nil {
		var unavail *unavailableError
		if errors.As(fetchErr, &unavail) {
			metrics.RecordAnalysis("none", "unavailable")
			if err := lifecycle.MarkUnavailable(ctx, rec, unavail.Note); err != nil {
				return nil, err
			}
			logger.Info("No raw telemetry for activity", "note", unavail.Note)
			return map[string]interface{}{
				"status": "skipped",
				"reason": unavail.Note,
			}, nil
		}
		metrics.RecordAnalysis("none", "failed")
		if err := lifecycle.Fail(ctx, rec, fetchErr.Error()); err != nil {
			logger.Error("Failed to mark record failed", "error", err)
		}
		if telemetry.IsRetryable(fetchErr) {
			// Surface the error so the message is redelivered; Begin
			// reissues failed records as fresh pending ones.
			return nil, fetchErr
		}
		logger.Error("Stream acquisition failed", "error", fetchErr)
		return map[string]interface{}{
			"status": "failure",
			"reason": fetchErr.Error(),
		}, nil
	}

	input := analysis.Input{
		ActivityID: req.ActivityID,
		PlanID:     req.PlanID,
		Samples:    samples,
		Baseline:   athleteRec.Baseline(),
		Plan:       req.Plan,
	}

	observe := metrics.ObserveAnalysis()
	engine := analysis.Engine{}
	res, err := engine.Analyze(ctx, input)
	if err != nil {
		if errors.Is(err, analysis.ErrEmptyStream) {
			metrics.RecordAnalysis("none", "unavailable")
			if terr := lifecycle.MarkUnavailable(ctx, rec, "stream has no usable samples"); terr != nil {
				return nil, terr
			}
			return map[string]interface{}{
				"status": "skipped",
				"reason": "stream has no usable samples",
			}, nil
		}
		metrics.RecordAnalysis("none", "failed")
		if terr := lifecycle.Fail(ctx, rec, err.Error()); terr != nil {
			logger.Error("Failed to mark record failed", "error", terr)
		}
		return nil, err
	}
	observe(string(res.TierUsed))

	inputHash := analysis.HashInput(input)
	if err := lifecycle.Complete(ctx, rec, res, inputHash); err != nil {
		// Result write failures are worth a redelivery; the record stays in
		// fetching and the next attempt resumes from there.
		return nil, err
	}

	metrics.RecordAnalysis(string(res.TierUsed), "success")
	metrics.RecordStreamPoints(len(samples))
	for _, m := range res.Moments {
		metrics.RecordMoment(m.Type)
	}

	logger.Info("Analysis stored",
		"result_key", res.Key,
		"tier", res.TierUsed,
		"confidence", res.Confidence,
		"segments", len(res.Segments),
		"moments", len(res.Moments),
		"source", sourceNote,
	)

	publishCompleted(ctx, svc, logger, rec, res)
	notifyAthlete(ctx, svc, logger, athleteRec, res)

	return map[string]interface{}{
		"record_key": rec.Key,
		"result_key": res.Key,
		"tier":       string(res.TierUsed),
		"confidence": res.Confidence,
		"moments":    len(res.Moments),
		"points":     res.PointCount,
	}, nil
}

// unavailableError marks stream acquisition outcomes that are terminal for
// the input rather than transient.
type unavailableError struct {
	Note string
}

func (e *unavailableError) Error() string { return e.Note }

// loadAthlete returns nil for unknown athletes. Analysis proceeds without a
// profile at a lower confidence tier.
func loadAthlete(ctx context.Context, svc *bootstrap.Service, logger *slog.Logger, athleteID string) *athlete.Record {
	if athleteID == "" {
		return nil
	}
	rec, err := svc.DB.GetAthlete(ctx, athleteID)
	if err != nil {
		if !errors.Is(err, analysis.ErrNotFound) {
			logger.Warn("Failed to load athlete", "error", err)
		}
		return nil
	}
	return rec
}

// acquireStream finds the raw telemetry for an activity. Stored JSON streams
// are preferred, then stored FIT files, then a live provider fetch when the
// athlete has linked an account.
func acquireStream(ctx context.Context, svc *bootstrap.Service, logger *slog.Logger, activityID string, athleteRec *athlete.Record) ([]stream.RawSample, string, error) {
	bucket := svc.Config.StreamBucket

	if bucket != "" {
		data, err := svc.Store.Read(ctx, bucket, infrastorage.StreamObjectPath(activityID))
		if err == nil {
			samples, perr := telemetry.ParseStreamJSON(data)
			if perr != nil {
				return nil, "", fmt.Errorf("stored stream malformed: %w", perr)
			}
			metrics.RecordProviderFetch("stored_json")
			return samples, "stored_json", nil
		}
		if !errors.Is(err, analysis.ErrNotFound) {
			return nil, "", fmt.Errorf("read stored stream: %w", err)
		}

		data, err = svc.Store.Read(ctx, bucket, infrastorage.FITObjectPath(activityID))
		if err == nil {
			samples, perr := telemetry.ParseStreamFIT(data)
			if perr != nil {
				return nil, "", fmt.Errorf("stored fit file malformed: %w", perr)
			}
			metrics.RecordProviderFetch("stored_fit")
			return samples, "stored_fit", nil
		}
		if !errors.Is(err, analysis.ErrNotFound) {
			return nil, "", fmt.Errorf("read stored fit file: %w", err)
		}
	}

	if athleteRec == nil {
		metrics.RecordProviderFetch("miss")
		return nil, "", &unavailableError{Note: "no stored stream and no athlete to fetch for"}
	}
	if athleteRec.Telemetry == nil || !athleteRec.Telemetry.Enabled {
		metrics.RecordProviderFetch("miss")
		return nil, "", &unavailableError{Note: "no stored stream and no linked telemetry provider"}
	}

	logger.Info("Fetching stream from telemetry provider")
	source := oauth.NewFirestoreTokenSource(svc, athleteRec.AthleteID)
	client := telemetry.NewClient(oauth.NewClientWithUsageTracking(source, svc, athleteRec.AthleteID))

	data, err := client.FetchStream(ctx, activityID)
	if err != nil {
		if errors.Is(err, telemetry.ErrStreamNotFound) {
			metrics.RecordProviderFetch("not_found")
			return nil, "", &unavailableError{Note: "provider has no stream for activity"}
		}
		metrics.RecordProviderFetch("error")
		return nil, "", fmt.Errorf("fetch stream: %w", err)
	}

	samples, err := telemetry.ParseStreamJSON(data)
	if err != nil {
		return nil, "", fmt.Errorf("provider stream malformed: %w", err)
	}
	metrics.RecordProviderFetch("provider")
	return samples, "provider", nil
}

func publishCompleted(ctx context.Context, svc *bootstrap.Service, logger *slog.Logger, rec *analysis.Record, res *analysis.Result) {
	completed := types.AnalysisCompleted{
		RecordKey:   rec.Key,
		ResultKey:   res.Key,
		ActivityID:  res.ActivityID,
		AthleteID:   rec.AthleteID,
		PlanID:      res.PlanID,
		TierUsed:    string(res.TierUsed),
		Confidence:  res.Confidence,
		MomentCount: len(res.Moments),
	}
	evt, err := infrapubsub.NewCloudEvent(infrapubsub.SourceAnalyzer, infrapubsub.EventTypeAnalysisCompleted, completed)
	if err != nil {
		logger.Error("Failed to build completion event", "error", err)
		return
	}
	if _, err := svc.Pub.PublishCloudEvent(ctx, shared.TopicAnalysisComplete, evt); err != nil {
		// The result is stored; downstream consumers can be replayed.
		logger.Error("Failed to publish completion event", "error", err)
	}
}

func notifyAthlete(ctx context.Context, svc *bootstrap.Service, logger *slog.Logger, athleteRec *athlete.Record, res *analysis.Result) {
	if athleteRec == nil || len(athleteRec.FCMTokens) == 0 {
		return
	}
	body := fmt.Sprintf("Confidence %.0f%%", res.Confidence*100)
	if n := len(res.Moments); n == 1 {
		body = "1 notable moment. " + body
	} else if n > 1 {
		body = fmt.Sprintf("%d notable moments. %s", n, body)
	}
	err := svc.Notify.SendPushNotification(ctx, athleteRec.AthleteID, "Run analysis ready", body, athleteRec.FCMTokens, map[string]string{
		"activity_id": res.ActivityID,
		"result_key":  res.Key,
	})
	if err != nil {
		logger.Warn("Failed to send push notification", "error", err)
	}
}
