package skip_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/employee-import/pkg/batch/engine/step/skip"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
)

func TestNeverSkip(t *testing.T) {
	p := skip.NeverSkip{}
	assert.False(t, p.ShouldSkip(exception.NewReadError("reader", "bad", nil), 0))
	assert.Zero(t, p.GetSkipLimit())
}

func TestLimitedSkipPolicy_RespectsLimitAndPredicate(t *testing.T) {
	p := skip.NewLimitedSkipPolicy(2, skip.ErrorTypes("ReadError"))
	readErr := exception.NewReadError("reader", "bad age", nil)
	writeErr := exception.NewWriteError("writer", "duplicate key", nil)

	assert.True(t, p.ShouldSkip(readErr, 0))
	assert.True(t, p.ShouldSkip(readErr, 1))
	assert.False(t, p.ShouldSkip(readErr, 2), "limit reached")
	assert.False(t, p.ShouldSkip(writeErr, 0), "not in the skippable list")
	assert.False(t, p.ShouldSkip(nil, 0))
}

func TestErrorTypes_EmptyFallsBackToSkippableFlag(t *testing.T) {
	pred := skip.ErrorTypes()
	assert.True(t, pred(exception.NewWriteError("writer", "x", nil)))
	assert.False(t, pred(exception.NewConnectionError("database", "x", nil)))
	assert.False(t, pred(errors.New("plain")))
}

func TestDefaultSkipPolicyFactory(t *testing.T) {
	f := skip.NewDefaultSkipPolicyFactory()

	p, err := f.Create(0, []string{"ReadError"})
	require.NoError(t, err)
	assert.IsType(t, skip.NeverSkip{}, p)

	p, err = f.Create(3, []string{"ReadError", "WriteError"})
	require.NoError(t, err)
	assert.Equal(t, 3, p.GetSkipLimit())
	assert.True(t, p.ShouldSkip(exception.NewWriteError("writer", "x", nil), 0))

	_, err = f.Create(3, []string{"NoSuchError"})
	assert.Error(t, err)
}
