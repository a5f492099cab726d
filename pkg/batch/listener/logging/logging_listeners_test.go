package logging

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetFormat("json")
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
		logger.SetFormat("text")
	})
	return &buf
}

func TestLoggingJobListener(t *testing.T) {
	buf := captureJSON(t)
	ctx := context.Background()
	l := NewLoggingJobListener()

	je := model.NewJobExecution("employeeJob")
	require.NoError(t, l.BeforeJob(ctx, je.Snapshot()))
	assert.Contains(t, buf.String(), `"run_id":"`+je.ID+`"`)
	assert.Contains(t, buf.String(), "Job started.")

	require.NoError(t, je.MarkAsStarted())
	require.NoError(t, je.MarkAsFailed(errors.New("db down")))
	require.NoError(t, l.AfterJob(ctx, je.Snapshot()))
	assert.Contains(t, buf.String(), `"status":"FAILED"`)
	assert.Contains(t, buf.String(), "db down")
}

func TestLoggingStepListener(t *testing.T) {
	buf := captureJSON(t)
	ctx := context.Background()
	l := NewLoggingStepListener()

	se := model.NewStepExecution("run-1", "saveEmployeesToDatabase")
	se.WriteCount = 25
	l.BeforeStep(ctx, se)
	l.AfterStep(ctx, se)

	assert.Contains(t, buf.String(), `"step":"saveEmployeesToDatabase"`)
	assert.Contains(t, buf.String(), `"written":25`)
}
