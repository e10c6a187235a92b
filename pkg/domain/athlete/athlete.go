// Package athlete holds the athlete document: identity, physiological
// baseline and upstream telemetry credentials.
package athlete

import (
	"time"

	"github.com/runsight/server/pkg/domain/tier"
)

// Record is the athletes/{id} Firestore document.
type Record struct {
	AthleteID   string `firestore:"athlete_id"`
	DisplayName string `firestore:"display_name,omitempty"`
	Email       string `firestore:"email,omitempty"`

	// Physiological baseline, all optional. Threshold HR unlocks the
	// highest-fidelity analysis tier.
	ThresholdHR *float64 `firestore:"threshold_hr,omitempty"`
	MaxHR       *float64 `firestore:"max_hr,omitempty"`
	RestingHR   *float64 `firestore:"resting_hr,omitempty"`

	Telemetry *TelemetryAuth `firestore:"telemetry,omitempty"`
	FCMTokens []string       `firestore:"fcm_tokens,omitempty"`

	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at,omitempty"`
}

// TelemetryAuth carries the OAuth grant for the athlete's telemetry
// provider.
type TelemetryAuth struct {
	Enabled           bool      `firestore:"enabled"`
	AccessToken       string    `firestore:"access_token,omitempty"`
	RefreshToken      string    `firestore:"refresh_token,omitempty"`
	ExpiresAt         time.Time `firestore:"expires_at,omitempty"`
	ProviderAthleteID string    `firestore:"provider_athlete_id,omitempty"`
}

// Baseline extracts the tier-selector baseline. Nil when the athlete has no
// physiological anchors on file, which routes analysis to the
// stream-relative tier.
func (r *Record) Baseline() *tier.Baseline {
	if r == nil {
		return nil
	}
	if r.ThresholdHR == nil && r.MaxHR == nil && r.RestingHR == nil {
		return nil
	}
	return &tier.Baseline{
		ThresholdHR: r.ThresholdHR,
		MaxHR:       r.MaxHR,
		RestingHR:   r.RestingHR,
	}
}
