package usecase

import (
	"context"

	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
)

// JobLauncher runs a registered job to completion.
type JobLauncher interface {
	// Launch runs jobName under a new JobExecution, resuming the last unfinished
	// execution when there is one. It returns once the execution reached a terminal
	// status. The error is about the launch itself; a failed run is reported by the
	// execution's status.
	Launch(ctx context.Context, jobName string) (*model.JobExecution, error)
}

// JobOperator acts on running executions.
type JobOperator interface {
	// Stop asks the running execution runID to stop at its next chunk boundary.
	Stop(ctx context.Context, runID string) error
}

// JobExplorer queries the execution ledger.
type JobExplorer interface {
	// GetJobExecution returns an execution and its step executions.
	GetJobExecution(ctx context.Context, runID string) (*model.JobExecution, error)
	// GetLastUnfinishedExecution returns the latest execution of jobName if it did not
	// complete, or nil.
	GetLastUnfinishedExecution(ctx context.Context, jobName string) (*model.JobExecution, error)
}

// ExitCode maps a finished execution to a process exit code: 0 when it completed,
// 1 otherwise.
func ExitCode(jobExecution *model.JobExecution) int {
	if jobExecution != nil && jobExecution.Status == model.BatchStatusCompleted {
		return 0
	}
	return 1
}
