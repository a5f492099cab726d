// Package runner runs a job's steps in order and settles the final job status.
package runner

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/employee-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/employee-import/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/employee-import/pkg/batch/core/metrics"
	exception "github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// SimpleJob runs its steps sequentially. The first FAILED step fails the job; later
// steps only run when continueOnError is set. A STOPPED step stops the job.
type SimpleJob struct {
	name            string
	steps           []port.Step
	jobRepository   repository.JobRepository
	jobListeners    []port.JobExecutionListener
	continueOnError bool
	metricRecorder  metrics.MetricRecorder
	tracer          metrics.Tracer
}

// Verify that SimpleJob implements port.Job.
var _ port.Job = (*SimpleJob)(nil)

// NewSimpleJob creates a SimpleJob. Nil recorder and tracer fall back to no-ops.
func NewSimpleJob(
	name string,
	steps []port.Step,
	jobRepository repository.JobRepository,
	jobListeners []port.JobExecutionListener,
	continueOnError bool,
	metricRecorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) *SimpleJob {
	if metricRecorder == nil {
		metricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &SimpleJob{
		name:            name,
		steps:           steps,
		jobRepository:   jobRepository,
		jobListeners:    jobListeners,
		continueOnError: continueOnError,
		metricRecorder:  metricRecorder,
		tracer:          tracer,
	}
}

// JobName implements port.Job.
func (j *SimpleJob) JobName() string {
	return j.name
}

// Steps returns the job's steps in execution order.
func (j *SimpleJob) Steps() []port.Step {
	return j.steps
}

// Run implements port.Job.
//
// The returned error is the first step failure, or a persistence error for the
// job's own metadata. A STOPPED job returns nil.
func (j *SimpleJob) Run(ctx context.Context, jobExecution *model.JobExecution, previous *model.JobExecution) error {
	logger.Infof("Starting Job '%s' (Execution ID: %s).", j.name, jobExecution.ID)

	ctx, finishSpan := j.tracer.StartJobSpan(ctx, jobExecution)
	defer finishSpan()
	j.metricRecorder.RecordJobStart(ctx, jobExecution)

	j.notifyBeforeJob(ctx, jobExecution)

	if err := jobExecution.MarkAsStarted(); err != nil {
		return err
	}
	if err := j.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("Job '%s': failed to persist STARTED status for execution %s: %v", j.name, jobExecution.ID, err)
		_ = jobExecution.MarkAsFailed(err)
		j.finish(ctx, jobExecution)
		return err
	}

	var firstErr error
	stopped := false

	for _, step := range j.steps {
		stepName := step.StepName()

		var prior *model.StepExecution
		if previous != nil {
			prior = previous.FindStepExecution(stepName)
		}
		stepExecution, err := j.jobRepository.CreateStepExecution(ctx, jobExecution.ID, stepName)
		if err != nil {
			firstErr = fmt.Errorf("create step execution for '%s': %w", stepName, err)
			jobExecution.AddFailureException(firstErr)
			break
		}

		if prior != nil && prior.Status == model.BatchStatusCompleted {
			// The completed step is recorded in this run too, or a resume of this run
			// would not find it and would execute it again.
			if err := j.carryForward(ctx, stepExecution, prior); err != nil {
				firstErr = err
				jobExecution.AddFailureException(err)
				break
			}
			jobExecution.AddStepExecution(stepExecution)
			logger.Infof("Job '%s': step '%s' completed in execution %s; skipping.", j.name, stepName, previous.ID)
			continue
		}

		if err := stepExecution.ResumeFrom(prior); err != nil {
			firstErr = err
			jobExecution.AddFailureException(err)
			break
		}
		if prior != nil {
			logger.Infof("Job '%s': resuming step '%s' at record offset %d.", j.name, stepName, stepExecution.StartOffset)
		}
		jobExecution.AddStepExecution(stepExecution)

		err = step.Execute(ctx, jobExecution, stepExecution)

		if stepExecution.Status == model.BatchStatusStopped && err == nil {
			stopped = true
			break
		}
		if err != nil || stepExecution.Status != model.BatchStatusCompleted {
			if err == nil {
				err = exception.NewExecutionStateError(j.name,
					fmt.Sprintf("step '%s' ended in status %s", stepName, stepExecution.Status))
			}
			logger.Errorf("Job '%s': step '%s' failed: %v", j.name, stepName, err)
			j.tracer.RecordError(ctx, j.name, err)
			jobExecution.AddFailureException(err)
			if firstErr == nil {
				firstErr = err
			}
			if !j.continueOnError {
				break
			}
		}
	}

	switch {
	case firstErr != nil:
		_ = jobExecution.MarkAsFailed(firstErr)
	case stopped:
		_ = jobExecution.MarkAsStopped("stopped by request")
	default:
		_ = jobExecution.MarkAsCompleted()
	}

	if err := j.finish(ctx, jobExecution); err != nil && firstErr == nil {
		return err
	}
	return firstErr
}

func (j *SimpleJob) carryForward(ctx context.Context, stepExecution, prior *model.StepExecution) error {
	if err := stepExecution.CarryForward(prior); err != nil {
		return err
	}
	if err := j.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return fmt.Errorf("record completed step '%s': %w", stepExecution.StepName, err)
	}
	return nil
}

// finish notifies after-job listeners and persists the terminal status.
func (j *SimpleJob) finish(ctx context.Context, jobExecution *model.JobExecution) error {
	j.notifyAfterJob(ctx, jobExecution)
	j.metricRecorder.RecordJobEnd(ctx, jobExecution)

	logger.Infof("Job '%s' (Execution ID: %s) finished. Final Status: %s", j.name, jobExecution.ID, jobExecution.Status)
	for _, se := range jobExecution.StepExecutions {
		logger.Debugf("  StepExecution Details (Step: %s): %s", se.StepName, se.DebugString())
	}

	if err := j.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); err != nil {
		logger.Errorf("Job '%s': failed to persist final state of execution %s: %v", j.name, jobExecution.ID, err)
		return err
	}
	return nil
}

func (j *SimpleJob) notifyBeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	var result *multierror.Error
	for _, l := range j.jobListeners {
		result = multierror.Append(result, callListener(func() error { return l.BeforeJob(ctx, jobExecution.Snapshot()) }))
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Warnf("Job '%s': beforeJob listeners reported errors: %v", j.name, err)
	}
}

func (j *SimpleJob) notifyAfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	var result *multierror.Error
	for _, l := range j.jobListeners {
		result = multierror.Append(result, callListener(func() error { return l.AfterJob(ctx, jobExecution.Snapshot()) }))
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Warnf("Job '%s': afterJob listeners reported errors: %v", j.name, err)
	}
}

// callListener runs fn and turns a panic into an error.
func callListener(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return fn()
}
