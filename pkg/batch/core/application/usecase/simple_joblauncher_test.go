package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/employee-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/employee-import/pkg/batch/core/job/runner"
	"github.com/tigerroll/employee-import/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
)

// offsetStep completes unless failAt is reached, recording the offset it started from.
type offsetStep struct {
	mu       sync.Mutex
	starts   []int64
	total    int64
	failAt   int64
	block    chan struct{}
	started  chan struct{}
	repoSave func(ctx context.Context, se *model.StepExecution) error
}

func (s *offsetStep) StepName() string { return "saveEmployeesToDatabase" }

func (s *offsetStep) Execute(ctx context.Context, je *model.JobExecution, se *model.StepExecution) error {
	s.mu.Lock()
	s.starts = append(s.starts, se.StartOffset)
	failAt := s.failAt
	s.failAt = 0
	s.mu.Unlock()

	if err := se.MarkAsStarted(); err != nil {
		return err
	}
	if s.started != nil {
		close(s.started)
	}
	if s.block != nil {
		<-s.block
		if je.Stop.Requested() {
			_ = se.MarkAsStopped()
			return s.repoSave(ctx, se)
		}
	}
	if failAt > 0 {
		se.LastCommittedReadOffset = failAt
		err := errors.New("writer failed")
		_ = se.MarkAsFailed(err)
		_ = s.repoSave(ctx, se)
		return err
	}
	se.LastCommittedReadOffset = s.total
	_ = se.MarkAsCompleted()
	return s.repoSave(ctx, se)
}

func newLauncher(t *testing.T, step *offsetStep, staleAfter time.Duration) (*SimpleJobLauncher, *inmemory.InMemoryJobRepository) {
	t.Helper()
	repo := inmemory.NewInMemoryJobRepository()
	step.repoSave = repo.UpdateStepExecution
	job := runner.NewSimpleJob("employeeJob", []port.Step{step}, repo, nil, false, nil, nil)
	return NewSimpleJobLauncher(repo, []port.Job{job}, staleAfter), repo
}

func TestLaunch_CompletesAndExitsZero(t *testing.T) {
	launcher, _ := newLauncher(t, &offsetStep{total: 25}, 0)

	je, err := launcher.Launch(context.Background(), "employeeJob")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, 0, ExitCode(je))
	assert.Empty(t, launcher.RunningExecutions())
}

func TestLaunch_UnknownJob(t *testing.T) {
	launcher, _ := newLauncher(t, &offsetStep{}, 0)
	_, err := launcher.Launch(context.Background(), "nope")
	require.Error(t, err)
}

func TestLaunch_RestartResumesFailedRun(t *testing.T) {
	step := &offsetStep{total: 25, failAt: 10}
	launcher, _ := newLauncher(t, step, 0)

	first, err := launcher.Launch(context.Background(), "employeeJob")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, first.Status)
	assert.Equal(t, 1, ExitCode(first))

	second, err := launcher.Launch(context.Background(), "employeeJob")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, second.Status)
	assert.Equal(t, first.ID, second.ResumedFrom)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []int64{0, 10}, step.starts)

	third, err := launcher.Launch(context.Background(), "employeeJob")
	require.NoError(t, err)
	assert.Empty(t, third.ResumedFrom, "a completed run is never resumed")
	assert.Equal(t, []int64{0, 10, 0}, step.starts)
}

func TestLaunch_RestartDisabledStartsFresh(t *testing.T) {
	step := &offsetStep{total: 25, failAt: 10}
	launcher, _ := newLauncher(t, step, 0)
	launcher.SetRestart(false)

	first, err := launcher.Launch(context.Background(), "employeeJob")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, first.Status)

	second, err := launcher.Launch(context.Background(), "employeeJob")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, second.Status)
	assert.Empty(t, second.ResumedFrom)
	assert.Equal(t, []int64{0, 0}, step.starts)
}

func TestLaunch_StaleRunIsAbandonedAndResumed(t *testing.T) {
	step := &offsetStep{total: 25}
	launcher, repo := newLauncher(t, step, time.Millisecond)
	ctx := context.Background()

	// A run that crashed mid-step.
	crashed, err := repo.CreateJobExecution(ctx, "employeeJob")
	require.NoError(t, err)
	require.NoError(t, crashed.MarkAsStarted())
	require.NoError(t, repo.UpdateJobExecution(ctx, crashed))
	se, err := repo.CreateStepExecution(ctx, crashed.ID, "saveEmployeesToDatabase")
	require.NoError(t, err)
	require.NoError(t, se.MarkAsStarted())
	se.LastCommittedReadOffset = 20
	require.NoError(t, repo.UpdateStepExecution(ctx, se))
	time.Sleep(5 * time.Millisecond)

	je, err := launcher.Launch(ctx, "employeeJob")
	require.NoError(t, err)
	assert.Equal(t, crashed.ID, je.ResumedFrom)
	assert.Equal(t, []int64{20}, step.starts)

	old, err := repo.FindJobExecutionByID(ctx, crashed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, old.Status)
	assert.Contains(t, old.ExitMessage, "abandoned; resumed by run "+je.ID)
}

func TestLaunch_LiveRunIsNotResumed(t *testing.T) {
	step := &offsetStep{total: 25}
	launcher, repo := newLauncher(t, step, time.Hour)
	ctx := context.Background()

	live, err := repo.CreateJobExecution(ctx, "employeeJob")
	require.NoError(t, err)
	require.NoError(t, live.MarkAsStarted())
	require.NoError(t, repo.UpdateJobExecution(ctx, live))

	je, err := launcher.Launch(ctx, "employeeJob")
	require.NoError(t, err)
	assert.Empty(t, je.ResumedFrom)
	assert.Equal(t, []int64{0}, step.starts)
}

func TestStop_RunningExecution(t *testing.T) {
	step := &offsetStep{total: 25, block: make(chan struct{}), started: make(chan struct{})}
	launcher, repo := newLauncher(t, step, 0)
	operator := NewDefaultJobOperator(launcher, NewSimpleJobExplorer(repo))

	done := make(chan *model.JobExecution)
	go func() {
		je, err := launcher.Launch(context.Background(), "employeeJob")
		assert.NoError(t, err)
		done <- je
	}()

	<-step.started
	ids := launcher.RunningExecutions()
	require.Len(t, ids, 1)
	require.NoError(t, operator.Stop(context.Background(), ids[0]))
	close(step.block)

	je := <-done
	assert.Equal(t, model.BatchStatusStopped, je.Status)
	assert.Equal(t, 1, ExitCode(je))

	err := operator.Stop(context.Background(), je.ID)
	assert.True(t, exception.IsExecutionStateError(err))
}

func TestLaunch_ConcurrentRunsHaveDistinctIDs(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	var jobs []port.Job
	for _, name := range []string{"jobA", "jobB", "jobC"} {
		step := &offsetStep{total: 1}
		step.repoSave = repo.UpdateStepExecution
		jobs = append(jobs, runner.NewSimpleJob(name, []port.Step{step}, repo, nil, false, nil, nil))
	}
	launcher := NewSimpleJobLauncher(repo, jobs, 0)

	var wg sync.WaitGroup
	ids := make(chan string, 3)
	for _, name := range []string{"jobA", "jobB", "jobC"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			je, err := launcher.Launch(context.Background(), name)
			if assert.NoError(t, err) {
				assert.Equal(t, model.BatchStatusCompleted, je.Status)
				ids <- je.ID
			}
		}(name)
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, 3)
}
