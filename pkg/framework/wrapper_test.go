package framework

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/runsight/server/pkg/bootstrap"
	"github.com/runsight/server/pkg/testing/mocks"
	"github.com/runsight/server/pkg/types"
)

func TestWrapCloudEvent(t *testing.T) {
	mockDB := &mocks.MockDatabase{
		SetExecutionFunc: func(ctx context.Context, record *types.ExecutionRecord) error {
			if record.Status != types.ExecutionStarted {
				t.Errorf("Expected status started, got %v", record.Status)
			}
			if record.ServiceName != "test-service" {
				t.Errorf("Expected service name test-service, got %s", record.ServiceName)
			}
			return nil
		},
		UpdateExecutionFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			status, ok := data["status"].(string)
			if !ok {
				return nil
			}
			if status != string(types.ExecutionSuccess) {
				t.Errorf("Unexpected status update: %v", status)
			}
			return nil
		},
	}

	svc := &bootstrap.Service{
		DB: mockDB,
	}

	handler := func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error) {
		if fwCtx.Service != svc {
			t.Error("Service not injected correctly")
		}
		if fwCtx.ExecutionID == "" {
			t.Error("ExecutionID not generated")
		}
		return "ok", nil
	}

	wrapped := WrapCloudEvent("test-service", svc, handler)

	e := event.New()
	e.SetType("google.cloud.pubsub.topic.v1.messagePublished")
	e.SetSource("test-source")

	err := wrapped(context.Background(), e)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
}

func TestWrapCloudEvent_Failure(t *testing.T) {
	mockDB := &mocks.MockDatabase{
		UpdateExecutionFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			status, ok := data["status"].(string)
			if !ok {
				return nil
			}
			if status != string(types.ExecutionFailure) {
				t.Errorf("Unexpected status update: %v", status)
			}
			if _, ok := data["error"]; !ok {
				t.Error("Expected error message in failure update")
			}
			return nil
		},
	}

	svc := &bootstrap.Service{
		DB: mockDB,
	}

	handler := func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error) {
		return nil, errors.New("simulated error")
	}

	wrapped := WrapCloudEvent("test-service", svc, handler)

	e := event.New()
	err := wrapped(context.Background(), e)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestWrapCloudEvent_CustomStatus(t *testing.T) {
	var recorded string
	mockDB := &mocks.MockDatabase{
		UpdateExecutionFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			if status, ok := data["status"].(string); ok {
				recorded = status
			}
			return nil
		},
	}

	svc := &bootstrap.Service{DB: mockDB}

	handler := func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error) {
		return map[string]interface{}{"status": "skipped", "reason": "nothing to do"}, nil
	}

	wrapped := WrapCloudEvent("test-service", svc, handler)

	e := event.New()
	if err := wrapped(context.Background(), e); err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	if recorded != string(types.ExecutionSkipped) {
		t.Errorf("Expected recorded status skipped, got %q", recorded)
	}
}

func TestWrapCloudEvent_UnwrapsNestedEvent(t *testing.T) {
	svc := &bootstrap.Service{
		DB: &mocks.MockDatabase{},
	}

	expectedID := "inner-event-123"
	expectedType := "com.runsight.analysis.requested"

	handler := func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error) {
		// Assert that 'e' is the INNER event
		if e.ID() != expectedID {
			t.Errorf("Expected event ID %s, got %s", expectedID, e.ID())
		}
		if e.Type() != expectedType {
			t.Errorf("Expected event type %s, got %s", expectedType, e.Type())
		}
		var payload types.AnalysisRequested
		if err := e.DataAs(&payload); err != nil {
			t.Fatalf("DataAs failed: %v", err)
		}
		if payload.ActivityID != "act-1" {
			t.Errorf("Expected activity act-1, got %s", payload.ActivityID)
		}
		return "ok", nil
	}

	wrapped := WrapCloudEvent("test-service", svc, handler)

	// 1. Create inner CloudEvent
	inner := event.New()
	inner.SetID(expectedID)
	inner.SetType(expectedType)
	inner.SetSource("/test/source")
	inner.SetData(event.ApplicationJSON, types.AnalysisRequested{ActivityID: "act-1", AthleteID: "ath-1"})

	innerBytes, _ := json.Marshal(inner)

	// 2. Wrap in Pub/Sub envelope (as if coming from GCP)
	var psMsg types.PubSubMessage
	psMsg.Message.Data = innerBytes
	psMsg.Message.MessageID = "outer-msg-id"

	outer := event.New()
	outer.SetID("outer-msg-id")
	outer.SetType("google.cloud.pubsub.topic.v1.messagePublished")
	outer.SetSource("//pubsub")
	outer.SetData(event.ApplicationJSON, psMsg)

	// 3. Execute
	err := wrapped(context.Background(), outer)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
}

func TestWrapCloudEvent_NakedPayload(t *testing.T) {
	var startedAthleteID string
	mockDB := &mocks.MockDatabase{
		SetExecutionFunc: func(ctx context.Context, record *types.ExecutionRecord) error {
			startedAthleteID = record.AthleteID
			return nil
		},
	}
	svc := &bootstrap.Service{DB: mockDB}

	handler := func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error) {
		var payload types.AnalysisRequested
		if err := e.DataAs(&payload); err != nil {
			t.Fatalf("DataAs failed: %v", err)
		}
		if payload.ActivityID != "act-2" {
			t.Errorf("Expected activity act-2, got %s", payload.ActivityID)
		}
		return "ok", nil
	}

	wrapped := WrapCloudEvent("test-service", svc, handler)

	// Envelope carries a plain JSON payload instead of a CloudEvent
	var psMsg types.PubSubMessage
	psMsg.Message.Data = []byte(`{"activity_id":"act-2","athlete_id":"ath-2"}`)
	psMsg.Message.MessageID = "msg-2"
	psMsg.Message.Attributes = map[string]string{"test_run_id": "tr-9"}

	outer := event.New()
	outer.SetID("msg-2")
	outer.SetType("google.cloud.pubsub.topic.v1.messagePublished")
	outer.SetSource("//pubsub")
	outer.SetData(event.ApplicationJSON, psMsg)

	if err := wrapped(context.Background(), outer); err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	if startedAthleteID != "ath-2" {
		t.Errorf("Expected athlete ath-2 on execution record, got %q", startedAthleteID)
	}
}
