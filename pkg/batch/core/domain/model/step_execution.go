package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
)

// StepExecution is one run of a step inside a JobExecution.
//
// LastCommittedReadOffset counts input records consumed by committed chunks, measured
// from the beginning of the input. It only advances on commit.
type StepExecution struct {
	ID             string
	StepName       string
	JobExecutionID string
	Status         BatchStatus
	StartTime      time.Time
	EndTime        *time.Time
	ExitMessage    string
	Failures       FailureList

	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	ReadSkipCount    int
	ProcessSkipCount int
	WriteSkipCount   int

	// StartOffset is where this execution began reading (non-zero on restart).
	StartOffset             int64
	LastCommittedReadOffset int64

	Version     int
	LastUpdated time.Time
}

// NewStepExecution creates a StepExecution in STARTING for the given run.
func NewStepExecution(jobExecutionID, stepName string) *StepExecution {
	now := time.Now()
	return &StepExecution{
		ID:             NewID(),
		StepName:       stepName,
		JobExecutionID: jobExecutionID,
		Status:         BatchStatusStarting,
		StartTime:      now,
		Failures:       FailureList{},
		LastUpdated:    now,
	}
}

// ResumeFrom positions a fresh execution at the committed offset of a previous one.
// Resuming a COMPLETED step, or resuming into an execution that already started,
// is an ExecutionStateError.
func (se *StepExecution) ResumeFrom(previous *StepExecution) error {
	if previous == nil {
		return nil
	}
	if previous.Status == BatchStatusCompleted {
		return exception.NewExecutionStateError("model",
			fmt.Sprintf("StepExecution '%s' (ID: %s) is COMPLETED and cannot be resumed", previous.StepName, previous.ID))
	}
	if se.Status != BatchStatusStarting {
		return exception.NewExecutionStateError("model",
			fmt.Sprintf("StepExecution '%s' (ID: %s) is %s; only a STARTING execution can be resumed into", se.StepName, se.ID, se.Status))
	}
	se.StartOffset = previous.LastCommittedReadOffset
	se.LastCommittedReadOffset = previous.LastCommittedReadOffset
	return nil
}

// CarryForward records in a fresh execution that its step already COMPLETED in
// previous: status, counters, offsets and times are copied so that later resumes of
// this run still skip the step.
func (se *StepExecution) CarryForward(previous *StepExecution) error {
	if previous == nil || previous.Status != BatchStatusCompleted {
		return exception.NewExecutionStateError("model",
			fmt.Sprintf("StepExecution '%s' can only carry forward a COMPLETED execution", se.StepName))
	}
	if se.Status != BatchStatusStarting {
		return exception.NewExecutionStateError("model",
			fmt.Sprintf("StepExecution '%s' (ID: %s) is %s; only a STARTING execution can carry a completed step forward", se.StepName, se.ID, se.Status))
	}
	se.Status = BatchStatusCompleted
	se.StartTime = previous.StartTime
	se.EndTime = previous.EndTime
	se.ExitMessage = fmt.Sprintf("completed in execution %s", previous.JobExecutionID)
	se.ReadCount = previous.ReadCount
	se.WriteCount = previous.WriteCount
	se.CommitCount = previous.CommitCount
	se.RollbackCount = previous.RollbackCount
	se.ReadSkipCount = previous.ReadSkipCount
	se.ProcessSkipCount = previous.ProcessSkipCount
	se.WriteSkipCount = previous.WriteSkipCount
	se.StartOffset = previous.StartOffset
	se.LastCommittedReadOffset = previous.LastCommittedReadOffset
	se.LastUpdated = time.Now()
	return nil
}

// TransitionTo moves the execution to newStatus or returns an ExecutionStateError.
func (se *StepExecution) TransitionTo(newStatus BatchStatus) error {
	if !isValidTransition(se.Status, newStatus) {
		return exception.NewExecutionStateError("model",
			fmt.Sprintf("StepExecution '%s' (ID: %s): Invalid state transition: %s -> %s", se.StepName, se.ID, se.Status, newStatus))
	}
	se.Status = newStatus
	se.LastUpdated = time.Now()
	return nil
}

// MarkAsStarted moves the execution to STARTED.
func (se *StepExecution) MarkAsStarted() error {
	return se.TransitionTo(BatchStatusStarted)
}

// MarkAsCompleted moves the execution to COMPLETED.
func (se *StepExecution) MarkAsCompleted() error {
	if err := se.TransitionTo(BatchStatusCompleted); err != nil {
		return err
	}
	se.finish("")
	return nil
}

// MarkAsFailed moves the execution to FAILED and records err.
func (se *StepExecution) MarkAsFailed(err error) error {
	if terr := se.TransitionTo(BatchStatusFailed); terr != nil {
		return terr
	}
	se.AddFailureException(err)
	se.finish(strings.Join(se.Failures, "; "))
	return nil
}

// MarkAsStopped moves the execution to STOPPED.
func (se *StepExecution) MarkAsStopped() error {
	if err := se.TransitionTo(BatchStatusStopped); err != nil {
		return err
	}
	se.finish("stopped at chunk boundary")
	return nil
}

func (se *StepExecution) finish(exitMessage string) {
	now := time.Now()
	se.EndTime = &now
	se.LastUpdated = now
	if exitMessage != "" {
		se.ExitMessage = exitMessage
	}
}

// AddFailureException records err's message once.
func (se *StepExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	msg := exception.ExtractErrorMessage(err)
	for _, existing := range se.Failures {
		if existing == msg {
			return
		}
	}
	se.Failures = append(se.Failures, msg)
	se.LastUpdated = time.Now()
}

// Clone returns a copy that can be modified without touching the receiver.
func (se *StepExecution) Clone() *StepExecution {
	cp := *se
	cp.Failures = append(FailureList{}, se.Failures...)
	return &cp
}

// SkipCount is the total number of records skipped by this execution.
func (se *StepExecution) SkipCount() int {
	return se.ReadSkipCount + se.ProcessSkipCount + se.WriteSkipCount
}

// DebugString summarizes the counters for logging.
func (se *StepExecution) DebugString() string {
	return fmt.Sprintf("StepExecution{name=%s, status=%s, read=%d, write=%d, commit=%d, rollback=%d, readSkip=%d, processSkip=%d, writeSkip=%d, offset=%d}",
		se.StepName, se.Status, se.ReadCount, se.WriteCount, se.CommitCount, se.RollbackCount,
		se.ReadSkipCount, se.ProcessSkipCount, se.WriteSkipCount, se.LastCommittedReadOffset)
}
