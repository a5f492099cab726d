// Package model holds the execution metadata of the batch runtime: job and step
// executions, their status state machine and the failure list persisted with them.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle status shared by JobExecution and StepExecution.
type BatchStatus string

const (
	BatchStatusStarting  BatchStatus = "STARTING"
	BatchStatusStarted   BatchStatus = "STARTED"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
	BatchStatusStopped   BatchStatus = "STOPPED"
)

// String returns the string representation of the status.
func (s BatchStatus) String() string {
	return string(s)
}

// IsFinished reports whether the status is terminal.
func (s BatchStatus) IsFinished() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed || s == BatchStatusStopped
}

// IsUnfinished reports whether an execution in this status can be resumed by a later launch.
func (s BatchStatus) IsUnfinished() bool {
	return s != BatchStatusCompleted
}

// isValidTransition is the transition table for both jobs and steps.
// Terminal states have no outgoing transitions.
func isValidTransition(current, next BatchStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped
	case BatchStatusStarted:
		return next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusStopped
	default:
		return false
	}
}

// FailureList holds the error messages recorded against an execution.
type FailureList []string

// Value implements driver.Valuer, storing the list as a JSON array.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (fl *FailureList) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*fl = FailureList{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for FailureList: %T", value)
	}
	if len(b) == 0 {
		*fl = FailureList{}
		return nil
	}
	if err := json.Unmarshal(b, fl); err != nil {
		return fmt.Errorf("failed to unmarshal FailureList JSON: %w", err)
	}
	return nil
}

// NewID returns a new random (v4) UUID string. Run identifiers use it so that they
// are unique across processes without coordination.
func NewID() string {
	return uuid.NewString()
}
