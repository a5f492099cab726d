package exception_test

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
)

func TestBatchError_KindsMatchSentinels(t *testing.T) {
	_, parseErr := strconv.Atoi("x")
	readErr := exception.NewReadError("reader", "age is not numeric", parseErr)
	writeErr := exception.NewWriteError("writer", "insert failed", errors.New("UNIQUE constraint failed"))
	connErr := exception.NewConnectionError("database", "couldn't connect", errors.New("dial tcp: refused"))
	stateErr := exception.NewExecutionStateError("model", "Invalid state transition: COMPLETED -> STARTED")

	assert.True(t, exception.IsReadError(readErr))
	assert.False(t, exception.IsWriteError(readErr))
	assert.True(t, exception.IsWriteError(writeErr))
	assert.True(t, exception.IsConnectionError(connErr))
	assert.True(t, exception.IsExecutionStateError(stateErr))
	assert.ErrorIs(t, readErr, strconv.ErrSyntax)

	assert.True(t, readErr.IsSkippable())
	assert.False(t, connErr.IsSkippable())
	assert.Equal(t, exception.KindWrite, exception.KindOf(fmt.Errorf("chunk: %w", writeErr)))
}

func TestBatchError_ErrorFormat(t *testing.T) {
	err := exception.NewWriteError("writer", "insert failed", errors.New("boom"))
	assert.Equal(t, "[writer WriteError] insert failed: boom", err.Error())

	plain := exception.NewBatchError("config", "bad value", nil, false, false)
	assert.Equal(t, "[config] bad value", plain.Error())
}

func TestIsErrorOfType_UsesRegistryThroughWrapping(t *testing.T) {
	readErr := exception.NewReadError("reader", "wrong field count", nil)
	var joined error = multierror.Append(nil, errors.New("listener failed"), readErr)

	assert.True(t, exception.IsErrorOfType(readErr, "ReadError"))
	assert.True(t, exception.IsErrorOfType(fmt.Errorf("wrapped: %w", readErr), "ReadError"))
	assert.True(t, exception.IsErrorOfType(joined, "ReadError"))
	assert.False(t, exception.IsErrorOfType(readErr, "WriteError"))
	assert.True(t, exception.IsErrorOfType(errors.New("connection refused"), "connection refused"))
}

func TestOptimisticLockingFailure(t *testing.T) {
	err := exception.NewOptimisticLockingFailureException("repository", "version mismatch", nil)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.True(t, exception.IsErrorTypeRegistered(exception.OptimisticLockingFailureException))
}

func TestExtractErrorMessage(t *testing.T) {
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
	assert.Equal(t, "insert failed: boom", exception.ExtractErrorMessage(exception.NewWriteError("writer", "insert failed", errors.New("boom"))))
	assert.Equal(t, "plain", exception.ExtractErrorMessage(errors.New("plain")))
}
