// Package mocks provides function-field doubles for the shared interfaces.
// Unset fields fall back to benign defaults so tests only stub what they
// assert on.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/runsight/server/pkg/analysis"
	"github.com/runsight/server/pkg/domain/athlete"
	"github.com/runsight/server/pkg/narrative"
	"github.com/runsight/server/pkg/types"
)

// --- Mock Database ---

type MockDatabase struct {
	SetExecutionFunc    func(ctx context.Context, record *types.ExecutionRecord) error
	UpdateExecutionFunc func(ctx context.Context, id string, data map[string]interface{}) error

	GetAthleteFunc    func(ctx context.Context, id string) (*athlete.Record, error)
	UpdateAthleteFunc func(ctx context.Context, id string, data map[string]interface{}) error

	GetAnalysisRecordFunc    func(ctx context.Context, key string) (*analysis.Record, error)
	SetAnalysisRecordFunc    func(ctx context.Context, rec *analysis.Record) error
	UpdateAnalysisRecordFunc func(ctx context.Context, key string, data map[string]interface{}) error

	CreateAnalysisResultFunc func(ctx context.Context, key string, data []byte) error
	GetAnalysisResultFunc    func(ctx context.Context, key string) ([]byte, error)

	GetNarrativeOverlayFunc func(ctx context.Context, resultKey string) (*narrative.Overlay, error)
	SetNarrativeOverlayFunc func(ctx context.Context, overlay *narrative.Overlay) error
}

func (m *MockDatabase) SetExecution(ctx context.Context, record *types.ExecutionRecord) error {
	if m.SetExecutionFunc != nil {
		return m.SetExecutionFunc(ctx, record)
	}
	return nil
}
func (m *MockDatabase) UpdateExecution(ctx context.Context, id string, data map[string]interface{}) error {
	if m.UpdateExecutionFunc != nil {
		return m.UpdateExecutionFunc(ctx, id, data)
	}
	return nil
}
func (m *MockDatabase) GetAthlete(ctx context.Context, id string) (*athlete.Record, error) {
	if m.GetAthleteFunc != nil {
		return m.GetAthleteFunc(ctx, id)
	}
	return nil, analysis.ErrNotFound
}
func (m *MockDatabase) UpdateAthlete(ctx context.Context, id string, data map[string]interface{}) error {
	if m.UpdateAthleteFunc != nil {
		return m.UpdateAthleteFunc(ctx, id, data)
	}
	return nil
}
func (m *MockDatabase) GetAnalysisRecord(ctx context.Context, key string) (*analysis.Record, error) {
	if m.GetAnalysisRecordFunc != nil {
		return m.GetAnalysisRecordFunc(ctx, key)
	}
	return nil, analysis.ErrNotFound
}
func (m *MockDatabase) SetAnalysisRecord(ctx context.Context, rec *analysis.Record) error {
	if m.SetAnalysisRecordFunc != nil {
		return m.SetAnalysisRecordFunc(ctx, rec)
	}
	return nil
}
func (m *MockDatabase) UpdateAnalysisRecord(ctx context.Context, key string, data map[string]interface{}) error {
	if m.UpdateAnalysisRecordFunc != nil {
		return m.UpdateAnalysisRecordFunc(ctx, key, data)
	}
	return nil
}
func (m *MockDatabase) CreateAnalysisResult(ctx context.Context, key string, data []byte) error {
	if m.CreateAnalysisResultFunc != nil {
		return m.CreateAnalysisResultFunc(ctx, key, data)
	}
	return nil
}
func (m *MockDatabase) GetAnalysisResult(ctx context.Context, key string) ([]byte, error) {
	if m.GetAnalysisResultFunc != nil {
		return m.GetAnalysisResultFunc(ctx, key)
	}
	return nil, analysis.ErrNotFound
}
func (m *MockDatabase) GetNarrativeOverlay(ctx context.Context, resultKey string) (*narrative.Overlay, error) {
	if m.GetNarrativeOverlayFunc != nil {
		return m.GetNarrativeOverlayFunc(ctx, resultKey)
	}
	return nil, analysis.ErrNotFound
}
func (m *MockDatabase) SetNarrativeOverlay(ctx context.Context, overlay *narrative.Overlay) error {
	if m.SetNarrativeOverlayFunc != nil {
		return m.SetNarrativeOverlayFunc(ctx, overlay)
	}
	return nil
}

// --- Mock Publisher ---

type MockPublisher struct {
	PublishCloudEventFunc func(ctx context.Context, topic string, e event.Event) (string, error)
}

func (m *MockPublisher) PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error) {
	if m.PublishCloudEventFunc != nil {
		return m.PublishCloudEventFunc(ctx, topic, e)
	}
	return "msg-id", nil
}

// --- Mock Storage ---

type MockBlobStore struct {
	WriteFunc func(ctx context.Context, bucket, object string, data []byte) error
	ReadFunc  func(ctx context.Context, bucket, object string) ([]byte, error)
}

func (m *MockBlobStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, bucket, object, data)
	}
	return nil
}
func (m *MockBlobStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, bucket, object)
	}
	return []byte("mock-data"), nil
}

// --- Mock Notifications ---

type MockNotificationService struct {
	SendPushNotificationFunc func(ctx context.Context, athleteID string, title, body string, tokens []string, data map[string]string) error
}

func (m *MockNotificationService) SendPushNotification(ctx context.Context, athleteID string, title, body string, tokens []string, data map[string]string) error {
	if m.SendPushNotificationFunc != nil {
		return m.SendPushNotificationFunc(ctx, athleteID, title, body, tokens, data)
	}
	return nil
}

// --- In-memory Store ---

// MemoryStore is a map-backed analysis.Store for lifecycle tests. It mirrors
// the adapter's semantics: missing keys return analysis.ErrNotFound and
// result creation fails on an existing key.
type MemoryStore struct {
	mu      sync.Mutex
	Records map[string]*analysis.Record
	Results map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Records: map[string]*analysis.Record{},
		Results: map[string][]byte{},
	}
}

func (s *MemoryStore) GetAnalysisRecord(ctx context.Context, key string) (*analysis.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.Records[key]
	if !ok {
		return nil, analysis.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) SetAnalysisRecord(ctx context.Context, rec *analysis.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.Records[rec.Key] = &cp
	return nil
}

func (s *MemoryStore) UpdateAnalysisRecord(ctx context.Context, key string, data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.Records[key]
	if !ok {
		return analysis.ErrNotFound
	}
	for k, v := range data {
		switch k {
		case "status":
			if status, ok := v.(analysis.Status); ok {
				rec.Status = status
			} else if str, ok := v.(string); ok {
				rec.Status = analysis.Status(str)
			}
		case "request_id":
			rec.RequestID, _ = v.(string)
		case "input_hash":
			rec.InputHash, _ = v.(string)
		case "result_key":
			rec.ResultKey, _ = v.(string)
		case "failure_note":
			rec.FailureNote, _ = v.(string)
		case "updated_at":
			if t, ok := v.(time.Time); ok {
				rec.UpdatedAt = t
			}
		}
	}
	return nil
}

func (s *MemoryStore) CreateAnalysisResult(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.Results[key]; exists {
		return analysis.ErrAlreadyExists
	}
	s.Results[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) GetAnalysisResult(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.Results[key]
	if !ok {
		return nil, analysis.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}
