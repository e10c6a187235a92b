package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/runsight/server/pkg/domain/stream"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{baseURL: srv.URL, client: srv.Client()}
}

func TestFetchStreamSuccess(t *testing.T) {
	body := `{"activity_id":"a1","samples":[{"time_s":0,"hr":140},{"time_s":1,"hr":141}]}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/activities/a1/streams" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})

	data, err := c.FetchStream(context.Background(), "a1")
	if err != nil {
		t.Fatalf("FetchStream: %v", err)
	}
	samples, err := ParseStreamJSON(data)
	if err != nil {
		t.Fatalf("ParseStreamJSON: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].HR == nil || *samples[0].HR != 140 {
		t.Errorf("unexpected first sample: %+v", samples[0])
	}
}

func TestFetchStreamNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such activity", http.StatusNotFound)
	})

	_, err := c.FetchStream(context.Background(), "missing")
	if !errors.Is(err, ErrStreamNotFound) {
		t.Fatalf("expected ErrStreamNotFound, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("not-found must not be retryable")
	}
}

func TestFetchStreamRetryable(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream unhappy", code)
		})
		_, err := c.FetchStream(context.Background(), "a1")
		if err == nil {
			t.Fatalf("status %d: expected error", code)
		}
		if !IsRetryable(err) {
			t.Errorf("status %d should be retryable, got %v", code, err)
		}
	}
}

func TestFetchStreamClientError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token scope", http.StatusForbidden)
	})
	_, err := c.FetchStream(context.Background(), "a1")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Errorf("4xx must not be retryable: %v", err)
	}
	if !strings.Contains(err.Error(), "bad token scope") {
		t.Errorf("error should carry the response body, got %v", err)
	}
}

func TestParseStreamJSONRejectsGarbage(t *testing.T) {
	if _, err := ParseStreamJSON([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestParseStreamJSONEmptySamples(t *testing.T) {
	samples, err := ParseStreamJSON([]byte(`{"activity_id":"a1","samples":[]}`))
	if err != nil {
		t.Fatalf("ParseStreamJSON: %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("expected 0 samples, got %d", len(samples))
	}
}

func TestEncodeStreamJSONRoundTrip(t *testing.T) {
	in := []stream.RawSample{
		{TimeS: 0, HR: stream.Float64(142), PaceSKm: stream.Float64(305)},
		{TimeS: 1, CadenceSPM: stream.Float64(172), DistanceM: stream.Float64(3.3)},
	}
	data, err := EncodeStreamJSON("a9", in)
	if err != nil {
		t.Fatalf("EncodeStreamJSON: %v", err)
	}
	out, err := ParseStreamJSON(data)
	if err != nil {
		t.Fatalf("ParseStreamJSON: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	if out[0].HR == nil || *out[0].HR != 142 {
		t.Errorf("hr lost in round trip: %+v", out[0])
	}
	if out[1].CadenceSPM == nil || *out[1].CadenceSPM != 172 {
		t.Errorf("cadence lost in round trip: %+v", out[1])
	}
	if out[0].GradePct != nil {
		t.Errorf("absent channel must stay nil, got %v", *out[0].GradePct)
	}
}
