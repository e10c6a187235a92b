// Package narrator listens for stored analyses and attaches short
// model-written sentences to their notable moments. Narration is best-effort
// enrichment: the result document itself is never touched.
package narrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/runsight/server/pkg/analysis"
	"github.com/runsight/server/pkg/bootstrap"
	"github.com/runsight/server/pkg/framework"
	"github.com/runsight/server/pkg/metrics"
	"github.com/runsight/server/pkg/narrative"
	"github.com/runsight/server/pkg/types"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.CloudEvent("NarrateAnalysis", NarrateAnalysis)
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

// NarrateAnalysis is the entry point
func NarrateAnalysis(ctx context.Context, e event.Event) error {
	svc, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %v", err)
	}
	metrics.Init()
	return framework.WrapCloudEvent("narrator", svc, narrateHandler)(ctx, e)
}

// narrateHandler contains the business logic
func narrateHandler(ctx context.Context, e event.Event, fwCtx *framework.FrameworkContext) (interface{}, error) {
	svc := fwCtx.Service
	logger := fwCtx.Logger

	var completed types.AnalysisCompleted
	if err := e.DataAs(&completed); err != nil {
		return nil, fmt.Errorf("event.DataAs: %v", err)
	}
	if completed.ResultKey == "" {
		return nil, fmt.Errorf("completion event missing result_key")
	}

	logger = logger.With("result_key", completed.ResultKey)

	gen := narrative.NewGenerator(svc.Config.GeminiAPIKey)
	if !gen.Available() {
		logger.Info("Narration not configured, skipping")
		metrics.RecordNarration("skipped")
		return map[string]interface{}{
			"status": "skipped",
			"reason": "narration not configured",
		}, nil
	}

	if completed.MomentCount == 0 {
		logger.Info("No moments to narrate")
		metrics.RecordNarration("skipped")
		return map[string]interface{}{
			"status": "skipped",
			"reason": "no moments to narrate",
		}, nil
	}

	// Redeliveries must not spend model tokens on work already done.
	if existing, err := svc.DB.GetNarrativeOverlay(ctx, completed.ResultKey); err == nil && existing != nil {
		logger.Info("Overlay already stored")
		metrics.RecordNarration("skipped")
		return map[string]interface{}{
			"status":    "skipped",
			"reason":    "already narrated",
			"sentences": len(existing.Sentences),
		}, nil
	} else if err != nil && !errors.Is(err, analysis.ErrNotFound) {
		return nil, fmt.Errorf("check existing overlay: %w", err)
	}

	data, err := svc.DB.GetAnalysisResult(ctx, completed.ResultKey)
	if err != nil {
		return nil, fmt.Errorf("load analysis result: %w", err)
	}
	res, err := analysis.DecodeResult(data)
	if err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}

	overlay, err := gen.Generate(ctx, res)
	if err != nil {
		// Surfacing the error lets Pub/Sub redeliver; the overlay check
		// above keeps retries idempotent.
		metrics.RecordNarration("failed")
		return nil, fmt.Errorf("generate narration: %w", err)
	}

	if err := svc.DB.SetNarrativeOverlay(ctx, overlay); err != nil {
		metrics.RecordNarration("failed")
		return nil, fmt.Errorf("store narrative overlay: %w", err)
	}

	metrics.RecordNarration("success")
	logger.Info("Narration stored", "sentences", len(overlay.Sentences), "model", overlay.Model)

	return map[string]interface{}{
		"result_key": overlay.ResultKey,
		"sentences":  len(overlay.Sentences),
		"model":      overlay.Model,
	}, nil
}
