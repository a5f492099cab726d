package usecase

import (
	"context"
	"fmt"

	exception "github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// DefaultJobOperator stops executions launched by a SimpleJobLauncher.
type DefaultJobOperator struct {
	jobLauncher *SimpleJobLauncher
	jobExplorer JobExplorer
}

// Verify that DefaultJobOperator implements JobOperator.
var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator creates a DefaultJobOperator.
func NewDefaultJobOperator(jobLauncher *SimpleJobLauncher, jobExplorer JobExplorer) *DefaultJobOperator {
	return &DefaultJobOperator{jobLauncher: jobLauncher, jobExplorer: jobExplorer}
}

// Stop implements JobOperator. Stopping an execution that already finished, or one
// running in another process, is an ExecutionStateError.
func (o *DefaultJobOperator) Stop(ctx context.Context, runID string) error {
	logger.Infof("JobOperator: Stop method called. Execution ID: %s", runID)

	if o.jobLauncher.RequestStop(runID) {
		return nil
	}
	jobExecution, err := o.jobExplorer.GetJobExecution(ctx, runID)
	if err != nil {
		return err
	}
	if jobExecution.Status.IsFinished() {
		return exception.NewExecutionStateError("job_operator",
			fmt.Sprintf("Stop processing error: JobExecution (ID: %s) is already in a finished state (%s)", runID, jobExecution.Status))
	}
	return exception.NewExecutionStateError("job_operator",
		fmt.Sprintf("Stop processing error: JobExecution (ID: %s) is not running in this process", runID))
}
