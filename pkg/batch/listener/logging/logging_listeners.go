// Package logging provides listeners that report job, step, chunk and skip events
// to the application log.
package logging

import (
	"context"

	port "github.com/tigerroll/employee-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// --- Job Execution Listener ---

// LoggingJobListener logs the start and the final status of every job run.
type LoggingJobListener struct{}

func NewLoggingJobListener() *LoggingJobListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution model.JobExecution) error {
	entry := logger.WithFields(logger.Fields{"job": jobExecution.JobName, "run_id": jobExecution.ID})
	if jobExecution.ResumedFrom != "" {
		entry.Infof("Job started; resuming run %s.", jobExecution.ResumedFrom)
		return nil
	}
	entry.Info("Job started.")
	return nil
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution model.JobExecution) error {
	entry := logger.WithFields(logger.Fields{
		"job":    jobExecution.JobName,
		"run_id": jobExecution.ID,
		"status": jobExecution.Status.String(),
	})
	if jobExecution.EndTime != nil {
		entry = entry.WithField("duration", jobExecution.EndTime.Sub(jobExecution.StartTime).String())
	}
	if jobExecution.Status == model.BatchStatusCompleted {
		entry.Info("Job finished.")
		return nil
	}
	entry.WithField("exit_message", jobExecution.ExitMessage).Warn("Job finished without completing.")
	return nil
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

// --- Step Execution Listener ---

type LoggingStepListener struct{}

func NewLoggingStepListener() *LoggingStepListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.WithFields(stepFields(stepExecution)).Infof("Step starting at record offset %d.", stepExecution.StartOffset)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.WithFields(stepFields(stepExecution)).WithFields(logger.Fields{
		"status":    stepExecution.Status.String(),
		"read":      stepExecution.ReadCount,
		"written":   stepExecution.WriteCount,
		"commits":   stepExecution.CommitCount,
		"rollbacks": stepExecution.RollbackCount,
		"skipped":   stepExecution.SkipCount(),
	}).Info("Step finished.")
}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)

// --- Chunk Listener ---

type LoggingChunkListener struct{}

func NewLoggingChunkListener() *LoggingChunkListener {
	return &LoggingChunkListener{}
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: BeforeChunk - StepName: %s, Offset: %d", stepExecution.StepName, stepExecution.LastCommittedReadOffset)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: AfterChunk - StepName: %s, Read: %d, Write: %d, Offset: %d",
		stepExecution.StepName, stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.LastCommittedReadOffset)
}

func (l *LoggingChunkListener) AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error) {
	logger.Errorf("ChunkListener: AfterChunkError - StepName: %s, Offset: %d, Error: %v",
		stepExecution.StepName, stepExecution.LastCommittedReadOffset, err)
}

var _ port.ChunkListener = (*LoggingChunkListener)(nil)

// --- Skip Listener ---

type LoggingSkipListener struct{}

func NewLoggingSkipListener() *LoggingSkipListener {
	return &LoggingSkipListener{}
}

func (l *LoggingSkipListener) OnSkipRead(ctx context.Context, err error) {
	logger.Warnf("SkipListener: OnSkipRead - Skipping record due to error: %v", err)
}

func (l *LoggingSkipListener) OnSkipProcess(ctx context.Context, item interface{}, err error) {
	logger.Warnf("SkipListener: OnSkipProcess - Skipping item: %+v, Error: %v", item, err)
}

func (l *LoggingSkipListener) OnSkipWrite(ctx context.Context, item interface{}, err error) {
	logger.Warnf("SkipListener: OnSkipWrite - Skipping item: %+v, Error: %v", item, err)
}

var _ port.SkipListener = (*LoggingSkipListener)(nil)

func stepFields(se *model.StepExecution) logger.Fields {
	return logger.Fields{"step": se.StepName, "run_id": se.JobExecutionID}
}
