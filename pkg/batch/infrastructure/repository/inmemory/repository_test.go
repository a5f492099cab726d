package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/employee-import/pkg/batch/core/domain/repository"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
)

func TestCreateAndFindJobExecution(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryJobRepository()

	je, err := repo.CreateJobExecution(ctx, "employeeJob")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStarting, je.Status)

	se, err := repo.CreateStepExecution(ctx, je.ID, "saveEmployeesToDatabase")
	require.NoError(t, err)

	found, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, je.ID, found.ID)
	require.Len(t, found.StepExecutions, 1)
	assert.Equal(t, se.ID, found.StepExecutions[0].ID)

	_, err = repo.FindJobExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
}

func TestUpdateJobExecution_OptimisticLocking(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryJobRepository()
	je, err := repo.CreateJobExecution(ctx, "employeeJob")
	require.NoError(t, err)

	stale, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)

	require.NoError(t, je.MarkAsStarted())
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	assert.Equal(t, 1, je.Version)

	require.NoError(t, stale.MarkAsStarted())
	err = repo.UpdateJobExecution(ctx, stale)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
}

func TestReturnedExecutionsAreCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryJobRepository()
	je, err := repo.CreateJobExecution(ctx, "employeeJob")
	require.NoError(t, err)

	je.ExitMessage = "changed without update"
	found, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Empty(t, found.ExitMessage)
}

func TestFindLastUnfinishedExecution(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryJobRepository()

	last, err := repo.FindLastUnfinishedExecution(ctx, "employeeJob")
	require.NoError(t, err)
	assert.Nil(t, last)

	first, err := repo.CreateJobExecution(ctx, "employeeJob")
	require.NoError(t, err)
	require.NoError(t, first.MarkAsStarted())
	require.NoError(t, first.MarkAsFailed(errors.New("boom")))
	require.NoError(t, repo.UpdateJobExecution(ctx, first))

	last, err = repo.FindLastUnfinishedExecution(ctx, "employeeJob")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, first.ID, last.ID)

	second, err := repo.CreateJobExecution(ctx, "employeeJob")
	require.NoError(t, err)
	require.NoError(t, second.MarkAsStarted())
	require.NoError(t, second.MarkAsCompleted())
	require.NoError(t, repo.UpdateJobExecution(ctx, second))

	last, err = repo.FindLastUnfinishedExecution(ctx, "employeeJob")
	require.NoError(t, err)
	assert.Nil(t, last, "the latest execution completed")

	other, err := repo.FindLastUnfinishedExecution(ctx, "otherJob")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestUpdateStepExecution(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryJobRepository()
	je, err := repo.CreateJobExecution(ctx, "employeeJob")
	require.NoError(t, err)
	se, err := repo.CreateStepExecution(ctx, je.ID, "s")
	require.NoError(t, err)

	require.NoError(t, se.MarkAsStarted())
	se.LastCommittedReadOffset = 10
	require.NoError(t, repo.UpdateStepExecution(ctx, se))

	found, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), found.StepExecutions[0].LastCommittedReadOffset)

	stale := found.StepExecutions[0]
	stale.Version = 0
	assert.True(t, exception.IsOptimisticLockingFailure(repo.UpdateStepExecution(ctx, stale)))

	_, err = repo.CreateStepExecution(ctx, "missing", "s")
	assert.Error(t, err)
}

func TestConcurrentRunsGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryJobRepository()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			je, err := repo.CreateJobExecution(ctx, "employeeJob")
			if assert.NoError(t, err) {
				ids[i] = je.ID
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
}
