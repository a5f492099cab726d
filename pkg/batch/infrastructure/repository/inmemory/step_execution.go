package inmemory

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/employee-import/pkg/batch/core/domain/repository"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
)

// CreateStepExecution implements repository.StepExecution.
func (r *InMemoryJobRepository) CreateStepExecution(ctx context.Context, runID, stepName string) (*model.StepExecution, error) {
	const op = "InMemoryJobRepository.CreateStepExecution"
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobExecutions[runID]; !ok {
		return nil, exception.NewBatchError(op, fmt.Sprintf("JobExecution (ID: %s) not found", runID), repository.ErrJobExecutionNotFound, false, false)
	}
	se := model.NewStepExecution(runID, stepName)
	r.stepExecutions[se.ID] = se.Clone()
	r.track(se.ID)
	return se, nil
}

// UpdateStepExecution implements repository.StepExecution.
// The in-memory store has no transactions; an update inside a chunk is applied at once.
func (r *InMemoryJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "InMemoryJobRepository.UpdateStepExecution"
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.stepExecutions[stepExecution.ID]
	if !ok {
		return exception.NewBatchError(op, fmt.Sprintf("StepExecution (ID: %s) not found for update", stepExecution.ID), nil, false, false)
	}
	if stored.Version != stepExecution.Version {
		return exception.NewOptimisticLockingFailureException(op,
			fmt.Sprintf("StepExecution (ID: %s) was updated concurrently (expected version %d, found %d)", stepExecution.ID, stepExecution.Version, stored.Version), nil)
	}
	stepExecution.Version++
	stepExecution.LastUpdated = time.Now()
	r.stepExecutions[stepExecution.ID] = stepExecution.Clone()
	return nil
}
