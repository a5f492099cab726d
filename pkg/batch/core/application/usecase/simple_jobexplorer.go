package usecase

import (
	"context"
	"fmt"

	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/employee-import/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// SimpleJobExplorer reads executions from a JobRepository.
type SimpleJobExplorer struct {
	jobRepository repository.JobRepository
}

// Verify that SimpleJobExplorer implements the JobExplorer interface.
var _ JobExplorer = (*SimpleJobExplorer)(nil)

// NewSimpleJobExplorer creates a new instance of SimpleJobExplorer.
func NewSimpleJobExplorer(jobRepository repository.JobRepository) *SimpleJobExplorer {
	return &SimpleJobExplorer{jobRepository: jobRepository}
}

// GetJobExecution implements JobExplorer.
func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, runID string) (*model.JobExecution, error) {
	logger.Debugf("JobExplorer: GetJobExecution called. Execution ID: %s", runID)
	jobExecution, err := e.jobRepository.FindJobExecutionByID(ctx, runID)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve JobExecution (ID: %s)", runID), err, false, false)
	}
	return jobExecution, nil
}

// GetLastUnfinishedExecution implements JobExplorer.
func (e *SimpleJobExplorer) GetLastUnfinishedExecution(ctx context.Context, jobName string) (*model.JobExecution, error) {
	logger.Debugf("JobExplorer: GetLastUnfinishedExecution called. Job: %s", jobName)
	jobExecution, err := e.jobRepository.FindLastUnfinishedExecution(ctx, jobName)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve the last unfinished execution of '%s'", jobName), err, false, false)
	}
	return jobExecution, nil
}
