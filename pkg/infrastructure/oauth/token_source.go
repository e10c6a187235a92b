// Package oauth manages the athlete's telemetry-provider OAuth grant:
// proactive refresh ahead of expiry, reactive refresh on 401 and persistence
// of rotated tokens back to the athlete document.
package oauth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/runsight/server/pkg/bootstrap"
)

// TokenSource returns a valid token.
// It is safe for concurrent use by multiple goroutines.
type TokenSource interface {
	Token(context.Context) (*oauth2.Token, error)
	ForceRefresh(context.Context) (*oauth2.Token, error)
}

// FirestoreTokenSource reads the athlete's telemetry grant from Firestore
// and refreshes it through the provider's token endpoint when necessary.
type FirestoreTokenSource struct {
	svc       *bootstrap.Service
	athleteID string
	mu        sync.Mutex
}

func NewFirestoreTokenSource(svc *bootstrap.Service, athleteID string) *FirestoreTokenSource {
	return &FirestoreTokenSource{
		svc:       svc,
		athleteID: athleteID,
	}
}

// ForceRefresh forcibly refreshes the token regardless of expiry.
func (s *FirestoreTokenSource) ForceRefresh(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Fetch the refresh token from the DB again to be safe
	auth, err := s.loadAuth(ctx)
	if err != nil {
		return nil, err
	}
	if auth.RefreshToken == "" {
		return nil, fmt.Errorf("missing telemetry refresh token")
	}

	return s.refreshToken(ctx, auth.RefreshToken)
}

// Token returns a token, refreshing it if necessary.
func (s *FirestoreTokenSource) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auth, err := s.loadAuth(ctx)
	if err != nil {
		return nil, err
	}
	if auth.AccessToken == "" {
		return nil, fmt.Errorf("missing telemetry access token")
	}
	if auth.RefreshToken == "" {
		return nil, fmt.Errorf("missing telemetry refresh token")
	}

	// Proactive refresh if expired or expiring in the next minute
	if !auth.ExpiresAt.IsZero() && time.Now().Add(1*time.Minute).After(auth.ExpiresAt) {
		return s.refreshToken(ctx, auth.RefreshToken)
	}

	return &oauth2.Token{
		AccessToken:  auth.AccessToken,
		RefreshToken: auth.RefreshToken,
		Expiry:       auth.ExpiresAt,
	}, nil
}

type telemetryAuth struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (s *FirestoreTokenSource) loadAuth(ctx context.Context) (*telemetryAuth, error) {
	rec, err := s.svc.DB.GetAthlete(ctx, s.athleteID)
	if err != nil {
		return nil, fmt.Errorf("failed to get athlete: %w", err)
	}
	if rec.Telemetry == nil || !rec.Telemetry.Enabled {
		return nil, fmt.Errorf("telemetry provider not linked/enabled")
	}
	return &telemetryAuth{
		AccessToken:  rec.Telemetry.AccessToken,
		RefreshToken: rec.Telemetry.RefreshToken,
		ExpiresAt:    rec.Telemetry.ExpiresAt,
	}, nil
}

// refreshToken exchanges the refresh grant for a new token and persists it.
func (s *FirestoreTokenSource) refreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	cfg, err := providerConfig()
	if err != nil {
		return nil, err
	}

	// Seeding the source with only the refresh grant forces the exchange
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}

	// Dotted paths so the rest of the telemetry sub-object survives the
	// update (enabled, provider_athlete_id)
	updateData := map[string]interface{}{
		"telemetry.access_token": tok.AccessToken,
		"telemetry.expires_at":   tok.Expiry,
		"telemetry.last_used_at": time.Now(),
	}
	// oauth2 carries the old refresh token forward when the provider does
	// not rotate; only a real rotation needs persisting
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		updateData["telemetry.refresh_token"] = tok.RefreshToken
	}

	if err := s.svc.DB.UpdateAthlete(ctx, s.athleteID, updateData); err != nil {
		return nil, fmt.Errorf("failed to persist new tokens: %w", err)
	}

	return tok, nil
}

func providerConfig() (*oauth2.Config, error) {
	clientID, err := getSecret("client-id")
	if err != nil {
		return nil, err
	}
	clientSecret, err := getSecret("client-secret")
	if err != nil {
		return nil, err
	}
	tokenURL := os.Getenv("TELEMETRY_TOKEN_URL")
	if tokenURL == "" {
		return nil, fmt.Errorf("environment variable TELEMETRY_TOKEN_URL not found")
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}, nil
}

func getSecret(keyType string) (string, error) {
	// e.g. "client-id" becomes "TELEMETRY_CLIENT_ID"
	envVarName := "TELEMETRY_" + strings.ToUpper(strings.ReplaceAll(keyType, "-", "_"))

	value := os.Getenv(envVarName)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not found", envVarName)
	}

	return value, nil
}
