package narrator

import (
	"context"
	"testing"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/runsight/server/pkg/bootstrap"
	infrapubsub "github.com/runsight/server/pkg/infrastructure/pubsub"
	"github.com/runsight/server/pkg/narrative"
	"github.com/runsight/server/pkg/testing/mocks"
	"github.com/runsight/server/pkg/types"
)

func newService(t *testing.T, db *mocks.MockDatabase, apiKey string) {
	t.Helper()
	svc = &bootstrap.Service{
		DB:     db,
		Store:  &mocks.MockBlobStore{},
		Pub:    &mocks.MockPublisher{},
		Notify: &mocks.MockNotificationService{},
		Config: &bootstrap.Config{
			ProjectID:    "test-project",
			GeminiAPIKey: apiKey,
		},
	}
	t.Cleanup(func() { svc = nil })
}

func completionEvent(t *testing.T, completed types.AnalysisCompleted) event.Event {
	t.Helper()
	e, err := infrapubsub.NewCloudEvent(infrapubsub.SourceAnalyzer, infrapubsub.EventTypeAnalysisCompleted, completed)
	if err != nil {
		t.Fatalf("NewCloudEvent failed: %v", err)
	}
	return e
}

func TestNarrateAnalysis_SkipsWithoutAPIKey(t *testing.T) {
	stored := false
	db := &mocks.MockDatabase{
		SetNarrativeOverlayFunc: func(ctx context.Context, overlay *narrative.Overlay) error {
			stored = true
			return nil
		},
	}
	newService(t, db, "")

	e := completionEvent(t, types.AnalysisCompleted{
		ResultKey:   "results/act-1/abc",
		MomentCount: 2,
	})
	if err := NarrateAnalysis(context.Background(), e); err != nil {
		t.Fatalf("NarrateAnalysis failed: %v", err)
	}
	if stored {
		t.Error("Expected no overlay without an API key")
	}
}

func TestNarrateAnalysis_SkipsWithoutMoments(t *testing.T) {
	stored := false
	db := &mocks.MockDatabase{
		SetNarrativeOverlayFunc: func(ctx context.Context, overlay *narrative.Overlay) error {
			stored = true
			return nil
		},
	}
	newService(t, db, "test-key")

	e := completionEvent(t, types.AnalysisCompleted{
		ResultKey:   "results/act-1/abc",
		MomentCount: 0,
	})
	if err := NarrateAnalysis(context.Background(), e); err != nil {
		t.Fatalf("NarrateAnalysis failed: %v", err)
	}
	if stored {
		t.Error("Expected no overlay for a result without moments")
	}
}

func TestNarrateAnalysis_SkipsExistingOverlay(t *testing.T) {
	stored := false
	db := &mocks.MockDatabase{
		GetNarrativeOverlayFunc: func(ctx context.Context, resultKey string) (*narrative.Overlay, error) {
			return &narrative.Overlay{
				ResultKey: resultKey,
				Sentences: []narrative.Sentence{{MomentIndex: 0, Text: "Strong surge at the half."}},
			}, nil
		},
		SetNarrativeOverlayFunc: func(ctx context.Context, overlay *narrative.Overlay) error {
			stored = true
			return nil
		},
	}
	newService(t, db, "test-key")

	e := completionEvent(t, types.AnalysisCompleted{
		ResultKey:   "results/act-1/abc",
		MomentCount: 1,
	})
	if err := NarrateAnalysis(context.Background(), e); err != nil {
		t.Fatalf("NarrateAnalysis failed: %v", err)
	}
	if stored {
		t.Error("Expected redelivery to leave the stored overlay alone")
	}
}

func TestNarrateAnalysis_FailsWhenResultMissing(t *testing.T) {
	// Defaults return not found for both overlay and result
	db := &mocks.MockDatabase{}
	newService(t, db, "test-key")

	e := completionEvent(t, types.AnalysisCompleted{
		ResultKey:   "results/act-9/missing",
		MomentCount: 1,
	})
	if err := NarrateAnalysis(context.Background(), e); err == nil {
		t.Fatal("Expected error when the result document is missing")
	}
}

func TestNarrateAnalysis_RejectsEventWithoutResultKey(t *testing.T) {
	newService(t, &mocks.MockDatabase{}, "test-key")

	e := completionEvent(t, types.AnalysisCompleted{})
	if err := NarrateAnalysis(context.Background(), e); err == nil {
		t.Fatal("Expected error for event without result_key")
	}
}
