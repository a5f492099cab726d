package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	port "github.com/tigerroll/employee-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/employee-import/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// DefaultStaleAfter is how long a STARTING or STARTED execution may stay silent
// before a new launch treats it as abandoned.
const DefaultStaleAfter = 30 * time.Minute

// SimpleJobLauncher runs jobs in the calling goroutine. Distinct launches may run
// concurrently; each gets its own run id.
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository
	jobs          map[string]port.Job
	staleAfter    time.Duration
	restart       bool

	// running holds the stop signal of every execution launched by this process.
	running map[string]*model.StopSignal
	mu      sync.Mutex
}

// Verify that SimpleJobLauncher implements JobLauncher.
var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a launcher for jobs. A zero staleAfter selects DefaultStaleAfter.
func NewSimpleJobLauncher(repo repository.JobRepository, jobs []port.Job, staleAfter time.Duration) *SimpleJobLauncher {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	registry := make(map[string]port.Job, len(jobs))
	for _, j := range jobs {
		registry[j.JobName()] = j
	}
	return &SimpleJobLauncher{
		jobRepository: repo,
		jobs:          registry,
		staleAfter:    staleAfter,
		restart:       true,
		running:       make(map[string]*model.StopSignal),
	}
}

// SetRestart turns resuming of unfinished executions on or off. With restart off
// every launch starts from the beginning of the input.
func (l *SimpleJobLauncher) SetRestart(restart bool) {
	l.restart = restart
}

// Launch implements JobLauncher.
func (l *SimpleJobLauncher) Launch(ctx context.Context, jobName string) (*model.JobExecution, error) {
	const op = "SimpleJobLauncher.Launch"
	logger.Infof("Launching Job '%s'.", jobName)

	job, ok := l.jobs[jobName]
	if !ok {
		return nil, exception.NewBatchErrorf(op, "Job '%s' is not registered", jobName)
	}

	var previous *model.JobExecution
	if l.restart {
		var err error
		previous, err = l.jobRepository.FindLastUnfinishedExecution(ctx, jobName)
		if err != nil {
			return nil, exception.NewBatchError(op, fmt.Sprintf("Failed to look up unfinished executions of '%s'", jobName), err, false, false)
		}
	}

	jobExecution, err := l.jobRepository.CreateJobExecution(ctx, jobName)
	if err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("Failed to create JobExecution for '%s'", jobName), err, false, false)
	}
	if jobExecution.Stop == nil {
		jobExecution.Stop = &model.StopSignal{}
	}

	resumeFrom := l.resolveResume(ctx, previous, jobExecution)
	if resumeFrom != nil {
		jobExecution.ResumedFrom = resumeFrom.ID
		logger.Infof("JobExecution (ID: %s) resumes unfinished execution %s (Status: %s).", jobExecution.ID, resumeFrom.ID, resumeFrom.Status)
	}

	l.register(jobExecution)
	defer l.unregister(jobExecution.ID)

	if err := job.Run(ctx, jobExecution, resumeFrom); err != nil {
		logger.Debugf("Job '%s' (Execution ID: %s) returned: %v", jobName, jobExecution.ID, err)
	}
	return jobExecution, nil
}

// resolveResume decides whether current continues previous.
// FAILED and STOPPED executions are resumed. A STARTING or STARTED execution is
// resumed only once it went stale; it is marked FAILED first so that exactly one
// launcher claims it. A live execution is left alone and current starts fresh.
func (l *SimpleJobLauncher) resolveResume(ctx context.Context, previous, current *model.JobExecution) *model.JobExecution {
	if previous == nil {
		return nil
	}
	switch previous.Status {
	case model.BatchStatusFailed, model.BatchStatusStopped:
		return previous
	case model.BatchStatusStarting, model.BatchStatusStarted:
		idle := time.Since(previous.LastActivity())
		if idle < l.staleAfter {
			logger.Warnf("JobExecution (ID: %s) is still %s (last activity %s ago); starting a fresh run.", previous.ID, previous.Status, idle.Round(time.Second))
			return nil
		}
		if err := l.abandon(ctx, previous, current.ID); err != nil {
			logger.Warnf("Could not claim stale JobExecution (ID: %s): %v; starting a fresh run.", previous.ID, err)
			return nil
		}
		return previous
	default:
		return nil
	}
}

// abandon marks a stale execution and its unfinished steps FAILED.
func (l *SimpleJobLauncher) abandon(ctx context.Context, stale *model.JobExecution, resumedBy string) error {
	reason := exception.NewExecutionStateError("job_launcher", fmt.Sprintf("abandoned; resumed by run %s", resumedBy))
	for _, se := range stale.StepExecutions {
		if se.Status.IsFinished() {
			continue
		}
		if err := se.MarkAsFailed(reason); err != nil {
			return err
		}
		if err := l.jobRepository.UpdateStepExecution(ctx, se); err != nil {
			return err
		}
	}
	if err := stale.MarkAsFailed(reason); err != nil {
		return err
	}
	return l.jobRepository.UpdateJobExecution(ctx, stale)
}

// RequestStop flags the running execution runID to stop at its next chunk boundary.
// It reports whether runID is running in this process.
func (l *SimpleJobLauncher) RequestStop(runID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	signal, ok := l.running[runID]
	if ok {
		signal.Request()
	}
	return ok
}

// RunningExecutions returns the run ids currently executing in this process.
func (l *SimpleJobLauncher) RunningExecutions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.running))
	for id := range l.running {
		ids = append(ids, id)
	}
	return ids
}

func (l *SimpleJobLauncher) register(je *model.JobExecution) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running[je.ID] = je.Stop
	logger.Debugf("Registered stop signal for JobExecution (ID: %s).", je.ID)
}

func (l *SimpleJobLauncher) unregister(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.running, runID)
	logger.Debugf("Unregistered stop signal for JobExecution (ID: %s).", runID)
}
