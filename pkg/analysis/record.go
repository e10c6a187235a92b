package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle of one analysis request. Only success carries a
// result; failed is retryable by issuing a new request, unavailable is
// terminal for the input.
type Status string

const (
	StatusPending     Status = "pending"
	StatusFetching    Status = "fetching"
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
	StatusUnavailable Status = "unavailable"
)

// Terminal reports whether the status ends the request's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusUnavailable
}

var legalTransitions = map[Status][]Status{
	StatusPending:  {StatusFetching},
	StatusFetching: {StatusSuccess, StatusFailed, StatusUnavailable},
}

// CanTransition reports whether a record may move from one status to
// another. No transition leaves a terminal state: a retry of failed is a new
// request, not a state change of the old one.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound is returned by Store implementations for missing
	// documents.
	ErrNotFound = errors.New("analysis: not found")

	// ErrAlreadyExists is returned by CreateAnalysisResult when the result
	// document is already present. Determinism makes this benign: the same
	// result key always names the same bytes.
	ErrAlreadyExists = errors.New("analysis: already exists")

	// ErrIllegalTransition guards the lifecycle state machine.
	ErrIllegalTransition = errors.New("analysis: illegal status transition")
)

// Record is the analyses/{key} lifecycle document for one (activity, plan)
// pair. The document is the request envelope only; result payloads live in
// their own write-once documents under ResultKey.
type Record struct {
	Key         string    `firestore:"key" json:"key"`
	ActivityID  string    `firestore:"activity_id" json:"activity_id"`
	PlanID      string    `firestore:"plan_id,omitempty" json:"plan_id,omitempty"`
	AthleteID   string    `firestore:"athlete_id,omitempty" json:"athlete_id,omitempty"`
	RequestID   string    `firestore:"request_id" json:"request_id"`
	Status      Status    `firestore:"status" json:"status"`
	InputHash   string    `firestore:"input_hash,omitempty" json:"input_hash,omitempty"`
	ResultKey   string    `firestore:"result_key,omitempty" json:"result_key,omitempty"`
	FailureNote string    `firestore:"failure_note,omitempty" json:"failure_note,omitempty"`
	CreatedAt   time.Time `firestore:"created_at" json:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at" json:"updated_at"`
}

// Store is the slice of the persistence layer the lifecycle needs.
// Implementations return ErrNotFound for missing documents, and
// CreateAnalysisResult must be write-once: an existing result document is
// left untouched and reported as ErrAlreadyExists.
type Store interface {
	GetAnalysisRecord(ctx context.Context, key string) (*Record, error)
	SetAnalysisRecord(ctx context.Context, rec *Record) error
	UpdateAnalysisRecord(ctx context.Context, key string, data map[string]interface{}) error
	CreateAnalysisResult(ctx context.Context, key string, data []byte) error
	GetAnalysisResult(ctx context.Context, key string) ([]byte, error)
}

// Lifecycle drives records through pending, fetching and the terminal
// states, enforcing the transition table on every move.
type Lifecycle struct {
	DB Store

	// Now stamps record metadata; injectable for tests. Result payloads
	// never read the clock.
	Now func() time.Time
}

// NewLifecycle wires a lifecycle over the given store.
func NewLifecycle(db Store) *Lifecycle {
	return &Lifecycle{DB: db, Now: time.Now}
}

// Begin ensures a record exists for the (activity, plan) pair and returns it.
// A missing record is created pending under a fresh request id; a failed one
// is reissued the same way. Records already pending, fetching or in a
// terminal non-failed state return unchanged with fresh=false, so callers
// can act on the current state instead of double-processing.
func (l *Lifecycle) Begin(ctx context.Context, activityID, planID, athleteID string) (rec *Record, fresh bool, err error) {
	key := RecordKey(activityID, planID)
	rec, err = l.DB.GetAnalysisRecord(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		now := l.Now()
		rec = &Record{
			Key:        key,
			ActivityID: activityID,
			PlanID:     planID,
			AthleteID:  athleteID,
			RequestID:  uuid.NewString(),
			Status:     StatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := l.DB.SetAnalysisRecord(ctx, rec); err != nil {
			return nil, false, fmt.Errorf("create analysis record: %w", err)
		}
		return rec, true, nil
	case err != nil:
		return nil, false, fmt.Errorf("load analysis record: %w", err)
	}

	if rec.Status == StatusFailed {
		rec.RequestID = uuid.NewString()
		rec.Status = StatusPending
		rec.FailureNote = ""
		rec.UpdatedAt = l.Now()
		if err := l.DB.SetAnalysisRecord(ctx, rec); err != nil {
			return nil, false, fmt.Errorf("reissue analysis record: %w", err)
		}
		return rec, true, nil
	}

	return rec, false, nil
}

// Transition moves the record to a new status, applying extra field updates
// in the same write. The transition table is enforced here and nowhere else.
func (l *Lifecycle) Transition(ctx context.Context, rec *Record, to Status, extra map[string]interface{}) error {
	if !CanTransition(rec.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, rec.Status, to)
	}
	now := l.Now()
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": now,
	}
	for k, v := range extra {
		updates[k] = v
	}
	if err := l.DB.UpdateAnalysisRecord(ctx, rec.Key, updates); err != nil {
		return fmt.Errorf("update analysis record: %w", err)
	}
	rec.Status = to
	rec.UpdatedAt = now
	return nil
}

// MarkFetching records that raw telemetry retrieval has started.
func (l *Lifecycle) MarkFetching(ctx context.Context, rec *Record) error {
	return l.Transition(ctx, rec, StatusFetching, nil)
}

// Complete stores the immutable result document and marks the record
// success. The result write is idempotent: a result key already present is
// the same bytes, so it is never rewritten.
func (l *Lifecycle) Complete(ctx context.Context, rec *Record, res *Result, inputHash string) error {
	data, err := res.Encode()
	if err != nil {
		return err
	}
	if err := l.DB.CreateAnalysisResult(ctx, res.Key, data); err != nil && !errors.Is(err, ErrAlreadyExists) {
		return fmt.Errorf("store analysis result: %w", err)
	}
	rec.ResultKey = res.Key
	rec.InputHash = inputHash
	return l.Transition(ctx, rec, StatusSuccess, map[string]interface{}{
		"result_key": res.Key,
		"input_hash": inputHash,
	})
}

// Fail marks the record failed with a human-readable note. The caller may
// retry by issuing a new request, which Begin turns into a fresh pending
// record.
func (l *Lifecycle) Fail(ctx context.Context, rec *Record, note string) error {
	return l.Transition(ctx, rec, StatusFailed, map[string]interface{}{
		"failure_note": note,
	})
}

// MarkUnavailable records that no raw telemetry exists for the input. This
// is terminal: callers must hide the analysis surface entirely.
func (l *Lifecycle) MarkUnavailable(ctx context.Context, rec *Record, note string) error {
	return l.Transition(ctx, rec, StatusUnavailable, map[string]interface{}{
		"failure_note": note,
	})
}
