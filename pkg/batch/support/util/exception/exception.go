// Package exception provides the error taxonomy of the batch runtime.
// Every error raised by the engine is a BatchError carrying the module where it
// happened and a Kind that skip policies and exit handling classify on.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// Kind classifies a BatchError.
type Kind string

const (
	// KindUnknown is used for errors that carry no specific classification.
	KindUnknown Kind = ""
	// KindRead marks malformed or unreadable input records.
	KindRead Kind = "ReadError"
	// KindWrite marks persistence failures (constraint violation, lost connection, chunk timeout).
	KindWrite Kind = "WriteError"
	// KindConnection marks data-store connection failures at startup.
	KindConnection Kind = "ConnectionError"
	// KindExecutionState marks invalid execution state transitions.
	KindExecutionState Kind = "ExecutionStateError"
	// KindOptimisticLock marks a concurrent update of the same execution row.
	KindOptimisticLock Kind = OptimisticLockingFailureException
)

// OptimisticLockingFailureException is the registry name of optimistic locking failures.
const OptimisticLockingFailureException = "OptimisticLockingFailureException"

// Sentinel errors, one per Kind. A BatchError matches its kind's sentinel under errors.Is.
var (
	ErrRead                     = errors.New(string(KindRead))
	ErrWrite                    = errors.New(string(KindWrite))
	ErrConnection               = errors.New(string(KindConnection))
	ErrExecutionState           = errors.New(string(KindExecutionState))
	ErrOptimisticLockingFailure = errors.New(OptimisticLockingFailureException)
)

var (
	errorRegistry = make(map[string]error)
	registryMutex sync.RWMutex
)

// RegisterErrorType registers an error prototype under a name so that configuration
// (for example the skippable error list) can refer to it.
// It panics if name is empty or prototype is nil.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name is known to the registry.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// BatchError is the error type raised by batch components.
type BatchError struct {
	// Module indicates where the error occurred (e.g., "reader", "writer", "repository").
	Module string
	// Message is a concise description of the error.
	Message string
	// Kind classifies the error.
	Kind Kind
	// OriginalErr is the wrapped cause.
	OriginalErr error
	isRetryable bool
	isSkippable bool
	// StackTrace is captured at construction for debugging.
	StackTrace string
}

// NewBatchError creates a BatchError without a specific kind.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return newBatchError(KindUnknown, module, message, originalErr, isSkippable, isRetryable)
}

// NewBatchErrorf creates an unclassified BatchError using a format string.
// If the last argument is an error it becomes the wrapped cause.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok {
			originalErr = err
			a = a[:len(a)-1]
		}
	}
	return newBatchError(KindUnknown, module, fmt.Sprintf(format, a...), originalErr, false, false)
}

// NewReadError creates a ReadError. Read errors are skippable when a skip policy allows it.
func NewReadError(module, message string, originalErr error) *BatchError {
	return newBatchError(KindRead, module, message, originalErr, true, false)
}

// NewWriteError creates a WriteError. Write errors are skippable when a skip policy allows it.
func NewWriteError(module, message string, originalErr error) *BatchError {
	return newBatchError(KindWrite, module, message, originalErr, true, true)
}

// NewConnectionError creates a ConnectionError. It is always fatal.
func NewConnectionError(module, message string, originalErr error) *BatchError {
	return newBatchError(KindConnection, module, message, originalErr, false, false)
}

// NewExecutionStateError creates an ExecutionStateError. It is always fatal.
func NewExecutionStateError(module, message string) *BatchError {
	return newBatchError(KindExecutionState, module, message, nil, false, false)
}

// NewOptimisticLockingFailureException creates a BatchError for a lost optimistic lock.
func NewOptimisticLockingFailureException(module, message string, originalErr error) *BatchError {
	return newBatchError(KindOptimisticLock, module, message, originalErr, false, false)
}

func newBatchError(kind Kind, module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &BatchError{
		Module:      module,
		Message:     message,
		Kind:        kind,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  string(buf[:n]),
	}
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	prefix := e.Module
	if e.Kind != KindUnknown {
		prefix = fmt.Sprintf("%s %s", e.Module, e.Kind)
	}
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", prefix, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", prefix, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// Is matches the sentinel of the error's kind.
func (e *BatchError) Is(target error) bool {
	switch e.Kind {
	case KindRead:
		return target == ErrRead
	case KindWrite:
		return target == ErrWrite
	case KindConnection:
		return target == ErrConnection
	case KindExecutionState:
		return target == ErrExecutionState
	case KindOptimisticLock:
		return target == ErrOptimisticLockingFailure
	}
	return false
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsBatchError reports whether err is, or wraps, a BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// KindOf returns the kind of the outermost BatchError in err's chain.
func KindOf(err error) Kind {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// IsReadError reports whether err is a ReadError.
func IsReadError(err error) bool { return errors.Is(err, ErrRead) }

// IsWriteError reports whether err is a WriteError.
func IsWriteError(err error) bool { return errors.Is(err, ErrWrite) }

// IsConnectionError reports whether err is a ConnectionError.
func IsConnectionError(err error) bool { return errors.Is(err, ErrConnection) }

// IsExecutionStateError reports whether err is an ExecutionStateError.
func IsExecutionStateError(err error) bool { return errors.Is(err, ErrExecutionState) }

// IsOptimisticLockingFailure reports whether err is an optimistic locking failure.
func IsOptimisticLockingFailure(err error) bool {
	return errors.Is(err, ErrOptimisticLockingFailure)
}

// IsSkippable reports whether err allows skipping. Errors that are not BatchErrors are not skippable.
func IsSkippable(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsSkippable()
	}
	return false
}

// IsErrorOfType checks whether err matches errorTypeName.
// It checks, in order: registered prototypes (errors.Is), a substring of the message of
// any error in the chain, and the Go type name of any error in the chain.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	for current := err; current != nil; current = errors.Unwrap(current) {
		if strings.Contains(current.Error(), errorTypeName) {
			return true
		}
		if t := reflect.TypeOf(current); t != nil {
			if t.String() == errorTypeName || (t.Kind() == reflect.Ptr && t.Elem().String() == errorTypeName) {
				return true
			}
		}
	}
	return false
}

// ExtractErrorMessage returns the Message of a BatchError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		if be.OriginalErr != nil {
			return fmt.Sprintf("%s: %v", be.Message, be.OriginalErr)
		}
		return be.Message
	}
	return err.Error()
}

func init() {
	RegisterErrorType(string(KindRead), ErrRead)
	RegisterErrorType(string(KindWrite), ErrWrite)
	RegisterErrorType(string(KindConnection), ErrConnection)
	RegisterErrorType(string(KindExecutionState), ErrExecutionState)
	RegisterErrorType(OptimisticLockingFailureException, ErrOptimisticLockingFailure)

	RegisterErrorType("io.EOF", io.EOF)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
}
