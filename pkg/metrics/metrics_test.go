package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerServesRecordedMetrics(t *testing.T) {
	Init()
	EnableMetrics(true)

	RecordAnalysis("tier1_threshold_hr", "success")
	RecordStreamPoints(3600)
	RecordMoment("pace_surge")
	RecordProviderFetch("hit")
	RecordNarration("success")
	RecordAPIRequest("GET", "/v1/activities/{activityID}/analysis", http.StatusOK, 12*time.Millisecond)

	done := ObserveAnalysis()
	done("tier1_threshold_hr")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"runsight_analyses_total",
		"runsight_stream_points",
		"runsight_moments_detected_total",
		"runsight_api_requests_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metric %s in output", want)
		}
	}
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	Init()
	EnableMetrics(false)
	defer EnableMetrics(true)

	// Must not panic or record
	RecordAnalysis("tier4_stream_relative", "failed")
	ObserveAnalysis()("tier4_stream_relative")
}
