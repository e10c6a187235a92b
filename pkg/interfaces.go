package shared

import (
	"context"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/runsight/server/pkg/analysis"
	"github.com/runsight/server/pkg/domain/athlete"
	"github.com/runsight/server/pkg/narrative"
	"github.com/runsight/server/pkg/types"
)

// --- Persistence Interfaces ---

// Database is the full persistence surface. Implementations return
// analysis.ErrNotFound for missing documents so callers can branch without
// knowing the backing store.
type Database interface {
	// Execution audit trail
	SetExecution(ctx context.Context, record *types.ExecutionRecord) error
	UpdateExecution(ctx context.Context, id string, data map[string]interface{}) error

	// Athlete profiles (baseline physiology, telemetry auth, push tokens)
	GetAthlete(ctx context.Context, id string) (*athlete.Record, error)
	UpdateAthlete(ctx context.Context, id string, data map[string]interface{}) error

	// Analysis lifecycle records, one per (activity, plan) pair
	GetAnalysisRecord(ctx context.Context, key string) (*analysis.Record, error)
	SetAnalysisRecord(ctx context.Context, rec *analysis.Record) error
	UpdateAnalysisRecord(ctx context.Context, key string, data map[string]interface{}) error

	// Immutable result documents, write-once per result key
	CreateAnalysisResult(ctx context.Context, key string, data []byte) error
	GetAnalysisResult(ctx context.Context, key string) ([]byte, error)

	// Narrative overlays, keyed by result key; the result doc is never
	// touched by narrative writes
	GetNarrativeOverlay(ctx context.Context, resultKey string) (*narrative.Overlay, error)
	SetNarrativeOverlay(ctx context.Context, overlay *narrative.Overlay) error
}

// --- Messaging Interfaces ---

type Publisher interface {
	PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error)
}

// --- Storage Interfaces ---

type BlobStore interface {
	Write(ctx context.Context, bucket, object string, data []byte) error
	Read(ctx context.Context, bucket, object string) ([]byte, error)
}

// --- Notification Interfaces ---

type NotificationService interface {
	SendPushNotification(ctx context.Context, athleteID string, title, body string, tokens []string, data map[string]string) error
}
