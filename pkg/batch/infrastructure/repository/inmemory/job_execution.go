package inmemory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/employee-import/pkg/batch/core/domain/repository"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
)

// CreateJobExecution implements repository.JobExecution.
func (r *InMemoryJobRepository) CreateJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	je := model.NewJobExecution(jobName)
	r.jobExecutions[je.ID] = storedJob(je)
	r.track(je.ID)
	return je, nil
}

// UpdateJobExecution implements repository.JobExecution.
func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "InMemoryJobRepository.UpdateJobExecution"
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobExecutions[jobExecution.ID]
	if !ok {
		return exception.NewBatchError(op, fmt.Sprintf("JobExecution (ID: %s) not found for update", jobExecution.ID), repository.ErrJobExecutionNotFound, false, false)
	}
	if stored.Version != jobExecution.Version {
		return exception.NewOptimisticLockingFailureException(op,
			fmt.Sprintf("JobExecution (ID: %s) was updated concurrently (expected version %d, found %d)", jobExecution.ID, jobExecution.Version, stored.Version), nil)
	}
	jobExecution.Version++
	jobExecution.LastUpdated = time.Now()
	r.jobExecutions[jobExecution.ID] = storedJob(jobExecution)
	return nil
}

// FindJobExecutionByID implements repository.JobExecution.
func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, runID string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.jobExecutions[runID]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.load(stored), nil
}

// FindLastUnfinishedExecution implements repository.JobExecution.
func (r *InMemoryJobRepository) FindLastUnfinishedExecution(ctx context.Context, jobName string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *model.JobExecution
	for _, je := range r.jobExecutions {
		if je.JobName != jobName {
			continue
		}
		if latest == nil || r.seq[je.ID] > r.seq[latest.ID] {
			latest = je
		}
	}
	if latest == nil || !latest.Status.IsUnfinished() {
		return nil, nil
	}
	return r.load(latest), nil
}

// load returns a copy of stored with copies of its step executions in creation order.
// The caller holds the read lock.
func (r *InMemoryJobRepository) load(stored *model.JobExecution) *model.JobExecution {
	je := storedJob(stored)
	je.Stop = &model.StopSignal{}
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == je.ID {
			je.StepExecutions = append(je.StepExecutions, se.Clone())
		}
	}
	sort.Slice(je.StepExecutions, func(i, j int) bool {
		return r.seq[je.StepExecutions[i].ID] < r.seq[je.StepExecutions[j].ID]
	})
	return je
}

func storedJob(je *model.JobExecution) *model.JobExecution {
	cp := je.Snapshot()
	cp.Stop = nil
	return &cp
}
