// Package database adapts the typed Firestore client to the shared.Database
// interface.
package database

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/runsight/server/pkg/analysis"
	"github.com/runsight/server/pkg/domain/athlete"
	"github.com/runsight/server/pkg/narrative"
	storage "github.com/runsight/server/pkg/storage/firestore"
	"github.com/runsight/server/pkg/types"
)

// FirestoreAdapter implements shared.Database over the typed storage client.
type FirestoreAdapter struct {
	Client  *firestore.Client
	storage *storage.Client
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{
		Client:  client,
		storage: storage.NewClient(client),
	}
}

func (a *FirestoreAdapter) SetExecution(ctx context.Context, record *types.ExecutionRecord) error {
	return a.storage.Executions().Doc(record.ExecutionID).Set(ctx, record)
}

func (a *FirestoreAdapter) UpdateExecution(ctx context.Context, id string, data map[string]interface{}) error {
	return a.storage.Executions().Doc(id).Update(ctx, data)
}

func (a *FirestoreAdapter) GetAthlete(ctx context.Context, id string) (*athlete.Record, error) {
	return a.storage.Athletes().Doc(id).Get(ctx)
}

func (a *FirestoreAdapter) UpdateAthlete(ctx context.Context, id string, data map[string]interface{}) error {
	return a.storage.Athletes().Doc(id).Update(ctx, data)
}

func (a *FirestoreAdapter) GetAnalysisRecord(ctx context.Context, key string) (*analysis.Record, error) {
	return a.storage.AnalysisRecords().Doc(key).Get(ctx)
}

func (a *FirestoreAdapter) SetAnalysisRecord(ctx context.Context, rec *analysis.Record) error {
	return a.storage.AnalysisRecords().Doc(rec.Key).Set(ctx, rec)
}

func (a *FirestoreAdapter) UpdateAnalysisRecord(ctx context.Context, key string, data map[string]interface{}) error {
	return a.storage.AnalysisRecords().Doc(key).Update(ctx, data)
}

// CreateAnalysisResult is write-once. An existing document comes back as
// analysis.ErrAlreadyExists and is never overwritten.
func (a *FirestoreAdapter) CreateAnalysisResult(ctx context.Context, key string, data []byte) error {
	doc := &storage.ResultDocument{
		Key:       key,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	return a.storage.AnalysisResults().Doc(key).Create(ctx, doc)
}

func (a *FirestoreAdapter) GetAnalysisResult(ctx context.Context, key string) ([]byte, error) {
	doc, err := a.storage.AnalysisResults().Doc(key).Get(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

func (a *FirestoreAdapter) GetNarrativeOverlay(ctx context.Context, resultKey string) (*narrative.Overlay, error) {
	return a.storage.Narratives().Doc(resultKey).Get(ctx)
}

func (a *FirestoreAdapter) SetNarrativeOverlay(ctx context.Context, overlay *narrative.Overlay) error {
	return a.storage.Narratives().Doc(overlay.ResultKey).Set(ctx, overlay)
}
