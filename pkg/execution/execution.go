// Package execution writes the executions/{id} audit trail around every
// wrapped function invocation. Logging is advisory: callers keep running
// when a write fails.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	shared "github.com/runsight/server/pkg"
	"github.com/runsight/server/pkg/types"
)

// ExecutionOptions carries the per-invocation metadata captured at start.
type ExecutionOptions struct {
	AthleteID   string
	TestRunID   string
	TriggerType string
}

// LogStart creates a started execution record and returns its ID. The ID is
// returned even when the write fails so later status updates still have a
// stable key to aim at.
func LogStart(ctx context.Context, db shared.Database, serviceName string, opts ExecutionOptions) (string, error) {
	execID := uuid.NewString()
	rec := &types.ExecutionRecord{
		ExecutionID: execID,
		ServiceName: serviceName,
		AthleteID:   opts.AthleteID,
		TestRunID:   opts.TestRunID,
		TriggerType: opts.TriggerType,
		Status:      types.ExecutionStarted,
		StartedAt:   time.Now().UTC(),
	}
	if err := db.SetExecution(ctx, rec); err != nil {
		return execID, fmt.Errorf("failed to write execution record: %w", err)
	}
	return execID, nil
}

// LogSuccess marks the execution finished with status success.
func LogSuccess(ctx context.Context, db shared.Database, execID string, outputs interface{}) error {
	return LogExecutionStatus(ctx, db, execID, types.ExecutionSuccess, outputs)
}

// LogFailure marks the execution finished with status failure and records
// the cause.
func LogFailure(ctx context.Context, db shared.Database, execID string, cause error, outputs interface{}) error {
	data := finishData(types.ExecutionFailure, outputs)
	if cause != nil {
		data["error"] = cause.Error()
	}
	return db.UpdateExecution(ctx, execID, data)
}

// LogExecutionStatus marks the execution finished with an explicit status,
// for handlers that report an outcome other than plain success (skipped,
// for example).
func LogExecutionStatus(ctx context.Context, db shared.Database, execID string, status types.ExecutionStatus, outputs interface{}) error {
	return db.UpdateExecution(ctx, execID, finishData(status, outputs))
}

func finishData(status types.ExecutionStatus, outputs interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"status":      string(status),
		"finished_at": time.Now().UTC(),
	}
	if m, ok := outputs.(map[string]interface{}); ok && len(m) > 0 {
		data["outputs"] = m
	}
	return data
}
