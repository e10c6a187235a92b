// Package telemetry talks to the upstream telemetry provider and decodes its
// activity exports into raw sample rows. It is the only package that knows
// the provider's wire shapes; everything downstream sees stream.RawSample.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	httputil "github.com/runsight/server/pkg/infrastructure/http"
)

const defaultBaseURL = "https://api.telemetryhub.io/v1"

// ErrStreamNotFound means the provider has no per-sample telemetry for the
// activity. This is terminal: the analysis must be marked unavailable, not
// retried.
var ErrStreamNotFound = errors.New("telemetry: stream not found")

// RetryableError indicates a transient upstream failure (rate limit, 5xx).
// The caller should surface it to the queue so delivery retries with
// backoff.
type RetryableError struct {
	Err    error
	Reason string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s: %v", e.Reason, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient upstream failure.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Client is an API client for the telemetry provider. The HTTP client is
// expected to carry the athlete's OAuth transport.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a provider client. TELEMETRY_API_URL overrides the
// production base URL, which local runs point at a stub.
func NewClient(httpClient *http.Client) *Client {
	baseURL := os.Getenv("TELEMETRY_API_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		client:  httpClient,
	}
}

// FetchStream retrieves the per-sample export for one activity. A 404 maps
// to ErrStreamNotFound; rate limits and server errors come back as
// RetryableError.
func (c *Client) FetchStream(ctx context.Context, activityID string) ([]byte, error) {
	url := fmt.Sprintf("%s/activities/%s/streams", c.baseURL, activityID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &RetryableError{Err: err, Reason: "provider unreachable"}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrStreamNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RetryableError{Err: httputil.ParseErrorResponse(resp), Reason: "rate limited"}
	case resp.StatusCode >= 500:
		return nil, &RetryableError{Err: httputil.ParseErrorResponse(resp), Reason: "provider error"}
	case resp.StatusCode >= 400:
		return nil, httputil.ParseErrorResponse(resp)
	}

	var buf json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&buf); err != nil {
		return nil, fmt.Errorf("read stream response: %w", err)
	}
	return buf, nil
}
