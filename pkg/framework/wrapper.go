// Package framework wraps CloudEvent handlers with the cross-cutting pieces
// every function needs: Pub/Sub envelope unwrapping, execution audit
// records, a request-scoped logger and error capture.
package framework

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/runsight/server/pkg/bootstrap"
	"github.com/runsight/server/pkg/execution"
	infrasentry "github.com/runsight/server/pkg/infrastructure/sentry"
	"github.com/runsight/server/pkg/types"
)

const pubsubEventType = "google.cloud.pubsub.topic.v1.messagePublished"

// FrameworkContext contains dependencies injected by the framework
type FrameworkContext struct {
	Service     *bootstrap.Service
	Logger      *slog.Logger
	ExecutionID string
}

// HandlerFunc is the signature for a cloud function handler. The event is
// the application CloudEvent, already unwrapped from the Pub/Sub envelope.
type HandlerFunc func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error)

// WrapCloudEvent wraps a handler with automatic execution logging.
// Handles both HTTP and Pub/Sub triggers.
func WrapCloudEvent(serviceName string, svc *bootstrap.Service, handler HandlerFunc) func(context.Context, event.Event) error {
	return func(ctx context.Context, e event.Event) error {
		inner, attrs := unwrapPubSubEnvelope(e)
		athleteID, testRunID := extractEventMetadata(inner, attrs)

		triggerType := "pubsub"
		if e.Type() == "google.cloud.functions.http" {
			triggerType = "http"
		}

		logLevelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
		var logLevel slog.Level
		switch logLevelStr {
		case "debug":
			logLevel = slog.LevelDebug
		case "info":
			logLevel = slog.LevelInfo
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}

		opts := bootstrap.GetSlogHandlerOptions(logLevel)
		logger := slog.New(slog.NewJSONHandler(os.Stdout, opts)).With("service", serviceName)
		if athleteID != "" {
			logger = logger.With("athlete_id", athleteID)
		}

		execID, err := execution.LogStart(ctx, svc.DB, serviceName, execution.ExecutionOptions{
			AthleteID:   athleteID,
			TestRunID:   testRunID,
			TriggerType: triggerType,
		})
		if err != nil {
			// Don't fail the function just because audit logging failed
			logger.Error("Failed to log execution start", "error", err)
		}

		logger = logger.With("execution_id", execID)
		logger.Info("Function started")

		fwCtx := &FrameworkContext{
			Service:     svc,
			Logger:      logger,
			ExecutionID: execID,
		}

		outputs, handlerErr := handler(ctx, inner, fwCtx)

		if handlerErr != nil {
			logger.Error("Function failed", "error", handlerErr)
			infrasentry.CaptureException(handlerErr, map[string]interface{}{
				"service":      serviceName,
				"execution_id": execID,
				"athlete_id":   athleteID,
			}, logger)
			infrasentry.Flush(2 * time.Second)
			if logErr := execution.LogFailure(ctx, svc.DB, execID, handlerErr, outputs); logErr != nil {
				logger.Warn("Failed to log execution failure", "error", logErr)
			}
			return handlerErr
		}

		logger.Info("Function completed successfully")

		// Handlers can report a non-success outcome (skipped, for example)
		// through a "status" output
		customStatus := ""
		if outputsMap, ok := outputs.(map[string]interface{}); ok {
			if s, ok := outputsMap["status"].(string); ok {
				customStatus = s
			}
		}

		if customStatus != "" {
			status := types.ExecutionStatus(strings.ToLower(customStatus))
			switch status {
			case types.ExecutionStarted, types.ExecutionSuccess, types.ExecutionFailure, types.ExecutionSkipped:
			default:
				logger.Warn("Unknown custom status returned", "status", customStatus)
				status = types.ExecutionSuccess
			}
			if logErr := execution.LogExecutionStatus(ctx, svc.DB, execID, status, outputs); logErr != nil {
				logger.Warn("Failed to log execution status", "error", logErr)
			}
		} else {
			if logErr := execution.LogSuccess(ctx, svc.DB, execID, outputs); logErr != nil {
				logger.Warn("Failed to log execution success", "error", logErr)
			}
		}

		return nil
	}
}

// unwrapPubSubEnvelope digs the application CloudEvent out of the Pub/Sub
// push envelope. Messages carrying a naked JSON payload instead of an
// envelope come back as a synthesized event holding that payload, so
// handlers always read their input the same way.
func unwrapPubSubEnvelope(e event.Event) (event.Event, map[string]string) {
	if e.Type() != pubsubEventType {
		return e, nil
	}

	var msg types.PubSubMessage
	if err := e.DataAs(&msg); err != nil || len(msg.Message.Data) == 0 {
		return e, nil
	}

	var inner event.Event
	if err := json.Unmarshal(msg.Message.Data, &inner); err == nil && inner.SpecVersion() != "" {
		return inner, msg.Message.Attributes
	}

	synth := event.New()
	synth.SetID(msg.Message.MessageID)
	synth.SetType(e.Type())
	synth.SetSource(e.Source())
	if err := synth.SetData(event.ApplicationJSON, msg.Message.Data); err != nil {
		return e, msg.Message.Attributes
	}
	return synth, msg.Message.Attributes
}

// extractEventMetadata pulls athlete_id from the event payload and
// test_run_id from the envelope attributes or CloudEvent extensions.
func extractEventMetadata(e event.Event, attrs map[string]string) (athleteID string, testRunID string) {
	var payload map[string]interface{}
	if err := json.Unmarshal(e.Data(), &payload); err == nil {
		if id, ok := payload["athlete_id"].(string); ok {
			athleteID = id
		}
	}

	if attrs != nil {
		if trid, ok := attrs["test_run_id"]; ok {
			testRunID = trid
		}
	}

	// For HTTP requests, check CloudEvent extensions
	// (HTTP headers are mapped to extensions by Functions Framework)
	if testRunID == "" {
		extensions := e.Extensions()
		if trid, ok := extensions["test_run_id"].(string); ok {
			testRunID = trid
		}
		if trid, ok := extensions["testrunid"].(string); ok {
			testRunID = trid
		}
	}

	return athleteID, testRunID
}
