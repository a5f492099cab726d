// Package port defines the interfaces the batch engine drives: readers, processors,
// writers, steps and the listener hooks invoked around them.
package port

import (
	"context"
	"io"

	"github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/employee-import/pkg/batch/core/tx"
)

// ErrNoMoreItems signals end of input. It is io.EOF so readers built on io can return it as is.
var ErrNoMoreItems = io.EOF

// ItemReader produces a lazy, finite sequence of items.
// O is the type of item read.
type ItemReader[O any] interface {
	// Open prepares the reader so that the first Read returns the item at startOffset.
	// Offsets count consumed input records from the beginning of the input.
	Open(ctx context.Context, startOffset int64) error
	// Read returns the next item, ErrNoMoreItems at end of input, or a ReadError.
	// A ReadError still consumes the offending record.
	Read(ctx context.Context) (O, error)
	// Close releases the underlying resources.
	Close(ctx context.Context) error
}

// ItemProcessor transforms an input item into an output item.
type ItemProcessor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter persists a batch of items inside the caller's transaction.
type ItemWriter[I any] interface {
	// Open prepares the writer before the first chunk.
	Open(ctx context.Context) error
	// Write persists items using t. The caller commits or rolls back t.
	Write(ctx context.Context, t tx.Tx, items []I) error
	// Close releases the writer's resources.
	Close(ctx context.Context) error
}

// Step is one unit of work within a job.
type Step interface {
	// StepName returns the logical name of the step.
	StepName() string
	// Execute drives stepExecution from STARTING to a terminal status.
	// The returned error is the cause of a FAILED status.
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
}

// Job is an ordered list of steps run under one JobExecution.
type Job interface {
	// JobName returns the logical name of the job.
	JobName() string
	// Run drives jobExecution from STARTING to a terminal status. previous is the
	// unfinished execution being resumed, or nil for a fresh run.
	Run(ctx context.Context, jobExecution *model.JobExecution, previous *model.JobExecution) error
}

// JobExecutionListener is notified synchronously before and after a job run.
// Listeners receive a snapshot; they cannot change the outcome of the run.
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution model.JobExecution) error
	AfterJob(ctx context.Context, jobExecution model.JobExecution) error
}

// JobExecutionListenerFunc adapts plain functions to JobExecutionListener. Nil fields are ignored.
type JobExecutionListenerFunc struct {
	Before func(ctx context.Context, jobExecution model.JobExecution) error
	After  func(ctx context.Context, jobExecution model.JobExecution) error
}

// BeforeJob implements JobExecutionListener.
func (f JobExecutionListenerFunc) BeforeJob(ctx context.Context, je model.JobExecution) error {
	if f.Before == nil {
		return nil
	}
	return f.Before(ctx, je)
}

// AfterJob implements JobExecutionListener.
func (f JobExecutionListenerFunc) AfterJob(ctx context.Context, je model.JobExecution) error {
	if f.After == nil {
		return nil
	}
	return f.After(ctx, je)
}

// StepExecutionListener is notified before and after a step run.
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// ChunkListener is notified around every chunk transaction.
type ChunkListener interface {
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunk is called after a chunk committed.
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunkError is called after a chunk rolled back.
	AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error)
}

// SkipListener is notified of records dropped by the skip policy, after the chunk
// holding them committed.
type SkipListener interface {
	OnSkipRead(ctx context.Context, err error)
	OnSkipProcess(ctx context.Context, item interface{}, err error)
	OnSkipWrite(ctx context.Context, item interface{}, err error)
}
