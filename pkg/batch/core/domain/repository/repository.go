// Package repository defines the persisted ledger of job and step executions.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
)

// ErrJobExecutionNotFound is returned when a JobExecution is not found.
var ErrJobExecutionNotFound = errors.New("job execution not found")

func init() {
	exception.RegisterErrorType("ErrJobExecutionNotFound", ErrJobExecutionNotFound)
}

// JobExecution defines operations on job execution rows.
type JobExecution interface {
	// CreateJobExecution persists a new execution in STARTING with a fresh run id.
	CreateJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error)

	// UpdateJobExecution persists status, times and failures of an existing execution.
	// It fails with an optimistic locking error when the stored version has moved on.
	UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error

	// FindJobExecutionByID loads an execution and its step executions.
	FindJobExecutionByID(ctx context.Context, runID string) (*model.JobExecution, error)

	// FindLastUnfinishedExecution returns the most recent execution of jobName if it
	// did not complete, with its step executions loaded. It returns nil, nil otherwise.
	FindLastUnfinishedExecution(ctx context.Context, jobName string) (*model.JobExecution, error)
}

// StepExecution defines operations on step execution rows.
type StepExecution interface {
	// CreateStepExecution persists a new step execution in STARTING for the given run.
	CreateStepExecution(ctx context.Context, runID, stepName string) (*model.StepExecution, error)

	// UpdateStepExecution persists counters, offsets and status.
	// When ctx carries a transaction the update joins it.
	UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error
}

// JobRepository is the full execution ledger.
type JobRepository interface {
	JobExecution
	StepExecution

	// Close releases resources held by the repository.
	Close() error
}
