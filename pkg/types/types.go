// Package types holds the wire shapes shared across functions, services and
// the CLI: the Pub/Sub push envelope, execution records and the event
// payloads the pipeline passes between stages.
package types

import (
	"time"

	"github.com/runsight/server/pkg/domain/plan"
)

// PubSubMessage is the envelope Pub/Sub delivers to CloudEvent functions.
// Data is base64 on the wire; encoding/json decodes it transparently.
type PubSubMessage struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// ExecutionStatus is the closed set of execution record outcomes.
type ExecutionStatus string

const (
	ExecutionStarted ExecutionStatus = "started"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailure ExecutionStatus = "failure"
	ExecutionSkipped ExecutionStatus = "skipped"
)

// ExecutionRecord is the executions/{id} audit document every wrapped
// function writes around its handler.
type ExecutionRecord struct {
	ExecutionID string                 `firestore:"execution_id" json:"execution_id"`
	ServiceName string                 `firestore:"service_name" json:"service_name"`
	AthleteID   string                 `firestore:"athlete_id,omitempty" json:"athlete_id,omitempty"`
	TestRunID   string                 `firestore:"test_run_id,omitempty" json:"test_run_id,omitempty"`
	TriggerType string                 `firestore:"trigger_type,omitempty" json:"trigger_type,omitempty"`
	Status      ExecutionStatus        `firestore:"status" json:"status"`
	Error       string                 `firestore:"error,omitempty" json:"error,omitempty"`
	Outputs     map[string]interface{} `firestore:"outputs,omitempty" json:"outputs,omitempty"`
	StartedAt   time.Time              `firestore:"started_at" json:"started_at"`
	FinishedAt  time.Time              `firestore:"finished_at,omitempty" json:"finished_at,omitempty"`
}

// AnalysisRequested asks the analyzer to interpret one recorded activity.
// Plan is the prescribed workout when the athlete trained to one; carrying
// it inline keeps the analyzer free of plan-storage knowledge.
type AnalysisRequested struct {
	ActivityID string        `json:"activity_id"`
	AthleteID  string        `json:"athlete_id"`
	PlanID     string        `json:"plan_id,omitempty"`
	Plan       *plan.Workout `json:"plan,omitempty"`
}

// AnalysisCompleted announces a stored result. The narrator and any other
// enrichment consumers key off ResultKey.
type AnalysisCompleted struct {
	RecordKey   string  `json:"record_key"`
	ResultKey   string  `json:"result_key"`
	ActivityID  string  `json:"activity_id"`
	AthleteID   string  `json:"athlete_id,omitempty"`
	PlanID      string  `json:"plan_id,omitempty"`
	TierUsed    string  `json:"tier_used"`
	Confidence  float64 `json:"confidence"`
	MomentCount int     `json:"moment_count"`
}
