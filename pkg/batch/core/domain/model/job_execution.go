package model

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
)

// JobExecution is one invocation of a job, keyed by its run identifier (ID).
type JobExecution struct {
	ID          string
	JobName     string
	Status      BatchStatus
	StartTime   time.Time
	EndTime     *time.Time
	ExitMessage string
	Failures    FailureList
	// ResumedFrom is the run id whose committed progress this execution continues, if any.
	ResumedFrom    string
	Version        int
	CreateTime     time.Time
	LastUpdated    time.Time
	StepExecutions []*StepExecution

	// Stop is shared with the launcher; it is not persisted.
	Stop *StopSignal
}

// StopSignal carries a stop request to a running execution. The zero value is usable
// and a nil *StopSignal is never requested.
type StopSignal struct {
	requested atomic.Bool
}

// Request asks the execution to stop at the next chunk boundary.
func (s *StopSignal) Request() {
	if s != nil {
		s.requested.Store(true)
	}
}

// Requested reports whether Request was called.
func (s *StopSignal) Requested() bool {
	return s != nil && s.requested.Load()
}

// NewJobExecution creates a JobExecution in STARTING with a fresh run id.
func NewJobExecution(jobName string) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:          NewID(),
		JobName:     jobName,
		Status:      BatchStatusStarting,
		StartTime:   now,
		Failures:    FailureList{},
		CreateTime:  now,
		LastUpdated: now,
		Stop:        &StopSignal{},
	}
}

// TransitionTo moves the execution to newStatus or returns an ExecutionStateError.
func (je *JobExecution) TransitionTo(newStatus BatchStatus) error {
	if !isValidTransition(je.Status, newStatus) {
		return exception.NewExecutionStateError("model",
			fmt.Sprintf("JobExecution (ID: %s): Invalid state transition: %s -> %s", je.ID, je.Status, newStatus))
	}
	je.Status = newStatus
	je.LastUpdated = time.Now()
	return nil
}

// MarkAsStarted moves the execution to STARTED.
func (je *JobExecution) MarkAsStarted() error {
	return je.TransitionTo(BatchStatusStarted)
}

// MarkAsCompleted moves the execution to COMPLETED.
func (je *JobExecution) MarkAsCompleted() error {
	if err := je.TransitionTo(BatchStatusCompleted); err != nil {
		return err
	}
	je.finish("")
	return nil
}

// MarkAsFailed moves the execution to FAILED and records err.
func (je *JobExecution) MarkAsFailed(err error) error {
	if terr := je.TransitionTo(BatchStatusFailed); terr != nil {
		return terr
	}
	je.AddFailureException(err)
	je.finish(strings.Join(je.Failures, "; "))
	return nil
}

// MarkAsStopped moves the execution to STOPPED.
func (je *JobExecution) MarkAsStopped(reason string) error {
	if err := je.TransitionTo(BatchStatusStopped); err != nil {
		return err
	}
	je.finish(reason)
	return nil
}

func (je *JobExecution) finish(exitMessage string) {
	now := time.Now()
	je.EndTime = &now
	je.LastUpdated = now
	if exitMessage != "" {
		je.ExitMessage = exitMessage
	}
}

// AddFailureException records err's message once.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	msg := exception.ExtractErrorMessage(err)
	for _, existing := range je.Failures {
		if existing == msg {
			return
		}
	}
	je.Failures = append(je.Failures, msg)
	je.LastUpdated = time.Now()
}

// AddStepExecution attaches a step execution to this run.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	je.StepExecutions = append(je.StepExecutions, se)
}

// FindStepExecution returns the step execution named stepName, or nil.
func (je *JobExecution) FindStepExecution(stepName string) *StepExecution {
	for i := len(je.StepExecutions) - 1; i >= 0; i-- {
		if je.StepExecutions[i].StepName == stepName {
			return je.StepExecutions[i]
		}
	}
	return nil
}

// LastActivity is the most recent update time of the run or any of its steps.
func (je *JobExecution) LastActivity() time.Time {
	last := je.LastUpdated
	for _, se := range je.StepExecutions {
		if se.LastUpdated.After(last) {
			last = se.LastUpdated
		}
	}
	return last
}

// Snapshot returns a copy of the execution without its step executions.
// Listeners receive snapshots so they cannot alter the status decision.
func (je *JobExecution) Snapshot() JobExecution {
	cp := *je
	cp.Failures = append(FailureList{}, je.Failures...)
	cp.StepExecutions = nil
	return cp
}
