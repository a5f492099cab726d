package test

import (
	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
)

// NewTestJobExecution creates a JobExecution in the given status.
func NewTestJobExecution(jobName string, status model.BatchStatus) *model.JobExecution {
	je := model.NewJobExecution(jobName)
	je.Status = status
	return je
}

// NewTestStepExecution creates a StepExecution attached to jobExecution.
func NewTestStepExecution(jobExecution *model.JobExecution, stepName string) *model.StepExecution {
	se := model.NewStepExecution(jobExecution.ID, stepName)
	jobExecution.AddStepExecution(se)
	return se
}
