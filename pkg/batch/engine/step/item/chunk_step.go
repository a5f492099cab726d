package item

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/employee-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/employee-import/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/employee-import/pkg/batch/core/metrics"
	tx "github.com/tigerroll/employee-import/pkg/batch/core/tx"
	"github.com/tigerroll/employee-import/pkg/batch/engine/step/skip"
	exception "github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// StepOptions tunes a ChunkStep. Zero values select the defaults.
type StepOptions struct {
	ChunkSize    int
	ChunkTimeout time.Duration
	SkipPolicy   skip.SkipPolicy

	StepListeners  []port.StepExecutionListener
	ChunkListeners []port.ChunkListener
	SkipListeners  []port.SkipListener

	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
}

// ChunkStep is a port.Step that reads, processes and writes records in chunks,
// committing each chunk together with the step's progress.
type ChunkStep[I, O any] struct {
	name          string
	reader        port.ItemReader[I]
	processor     port.ItemProcessor[I, O]
	writer        port.ItemWriter[O]
	txManager     tx.TransactionManager
	jobRepository repository.StepExecution

	chunkSize    int
	chunkTimeout time.Duration
	skipPolicy   skip.SkipPolicy

	stepListeners  []port.StepExecutionListener
	chunkListeners []port.ChunkListener
	skipListeners  []port.SkipListener

	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// Verify that ChunkStep implements port.Step.
var _ port.Step = (*ChunkStep[any, any])(nil)

// NewChunkStep creates a ChunkStep. processor may be nil when I and O are the same type.
func NewChunkStep[I, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	txManager tx.TransactionManager,
	jobRepository repository.StepExecution,
	opts StepOptions,
) *ChunkStep[I, O] {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.SkipPolicy == nil {
		opts.SkipPolicy = skip.NeverSkip{}
	}
	if opts.MetricRecorder == nil {
		opts.MetricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if opts.Tracer == nil {
		opts.Tracer = metrics.NewNoOpTracer()
	}
	return &ChunkStep[I, O]{
		name:           name,
		reader:         reader,
		processor:      processor,
		writer:         writer,
		txManager:      txManager,
		jobRepository:  jobRepository,
		chunkSize:      opts.ChunkSize,
		chunkTimeout:   opts.ChunkTimeout,
		skipPolicy:     opts.SkipPolicy,
		stepListeners:  opts.StepListeners,
		chunkListeners: opts.ChunkListeners,
		skipListeners:  opts.SkipListeners,
		metricRecorder: opts.MetricRecorder,
		tracer:         opts.Tracer,
	}
}

// StepName implements port.Step.
func (s *ChunkStep[I, O]) StepName() string {
	return s.name
}

// ChunkSize returns the configured chunk size.
func (s *ChunkStep[I, O]) ChunkSize() int {
	return s.chunkSize
}

// Execute implements port.Step.
//
// The step loops over chunks until the reader reports end of input (COMPLETED),
// a chunk rolls back (FAILED) or a stop was requested at a chunk boundary (STOPPED).
// Counters and the committed read offset are persisted inside every chunk transaction.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	ctx, endSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()

	logger.Infof("ChunkStep '%s' is executing (chunk size: %d, start offset: %d).", s.name, s.chunkSize, stepExecution.StartOffset)
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	defer s.metricRecorder.RecordStepEnd(ctx, stepExecution)

	for _, l := range s.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}
	defer func() {
		for _, l := range s.stepListeners {
			l.AfterStep(ctx, stepExecution)
		}
	}()

	if err := s.reader.Open(ctx, stepExecution.LastCommittedReadOffset); err != nil {
		return s.fail(ctx, stepExecution, err)
	}
	defer func() {
		if err := s.reader.Close(ctx); err != nil {
			logger.Warnf("ChunkStep '%s': failed to close reader: %v", s.name, err)
		}
	}()
	if err := s.writer.Open(ctx); err != nil {
		return s.fail(ctx, stepExecution, err)
	}
	defer func() {
		if err := s.writer.Close(ctx); err != nil {
			logger.Warnf("ChunkStep '%s': failed to close writer: %v", s.name, err)
		}
	}()

	if err := stepExecution.MarkAsStarted(); err != nil {
		return err
	}
	if err := s.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return s.fail(ctx, stepExecution, err)
	}

	processor := NewChunkProcessor(s.txManager, s.processor, s.skipPolicy, s.chunkTimeout)
	processor.SetSkipCount(stepExecution.SkipCount())

	var committed *model.StepExecution
	processor.BeforeCommit = func(txCtx context.Context, result ChunkResult) error {
		candidate := stepExecution.Clone()
		applyChunkResult(candidate, result)
		if err := s.jobRepository.UpdateStepExecution(txCtx, candidate); err != nil {
			return err
		}
		committed = candidate
		return nil
	}

	for chunkNumber := 1; ; chunkNumber++ {
		if stopRequested(ctx, jobExecution) {
			logger.Infof("ChunkStep '%s': stop requested; stopping after %d committed chunks.", s.name, stepExecution.CommitCount)
			if err := stepExecution.MarkAsStopped(); err != nil {
				return err
			}
			return s.persist(ctx, stepExecution)
		}

		for _, l := range s.chunkListeners {
			l.BeforeChunk(ctx, stepExecution)
		}

		committed = nil
		chunkCtx, endChunkSpan := s.tracer.StartChunkSpan(ctx, s.name, chunkNumber)
		started := time.Now()
		result, err := processor.RunChunk(chunkCtx, s.reader, s.writer, s.chunkSize)
		s.metricRecorder.RecordDuration(ctx, "chunk", time.Since(started), map[string]string{"step": s.name, "outcome": string(result.Outcome)})

		switch result.Outcome {
		case OutcomeEndOfInput:
			endChunkSpan()
			logger.Infof("ChunkStep '%s': end of input. %s", s.name, stepExecution.DebugString())
			if err := stepExecution.MarkAsCompleted(); err != nil {
				return err
			}
			return s.persist(ctx, stepExecution)

		case OutcomeCommitted:
			*stepExecution = *committed
			s.metricRecorder.RecordChunkCommit(ctx, s.name)
			s.metricRecorder.RecordItemRead(ctx, s.name, result.ItemsRead)
			s.metricRecorder.RecordItemWrite(ctx, s.name, result.ItemsWritten)
			s.notifySkips(chunkCtx, result.Skipped)
			endChunkSpan()
			logger.Debugf("ChunkStep '%s': chunk %d committed (read: %d, written: %d, skipped: %d).",
				s.name, chunkNumber, result.ItemsRead, result.ItemsWritten, len(result.Skipped))
			for _, l := range s.chunkListeners {
				l.AfterChunk(ctx, stepExecution)
			}
			if result.EndOfInput {
				logger.Infof("ChunkStep '%s': end of input. %s", s.name, stepExecution.DebugString())
				if err := stepExecution.MarkAsCompleted(); err != nil {
					return err
				}
				return s.persist(ctx, stepExecution)
			}

		default:
			s.tracer.RecordError(chunkCtx, s.name, err)
			endChunkSpan()
			stepExecution.RollbackCount += result.Rollbacks
			s.metricRecorder.RecordChunkRollback(ctx, s.name, string(exception.KindOf(err)))
			logger.Errorf("ChunkStep '%s': chunk %d rolled back: %v", s.name, chunkNumber, err)
			for _, l := range s.chunkListeners {
				l.AfterChunkError(ctx, stepExecution, err)
			}
			return s.fail(ctx, stepExecution, err)
		}
	}
}

// applyChunkResult folds a committed chunk into the step's counters.
func applyChunkResult(se *model.StepExecution, r ChunkResult) {
	se.ReadCount += r.ItemsRead
	se.WriteCount += r.ItemsWritten
	se.ReadSkipCount += r.ReadSkips
	se.ProcessSkipCount += r.ProcessSkips
	se.WriteSkipCount += r.WriteSkips
	se.CommitCount++
	se.RollbackCount += r.Rollbacks
	se.LastCommittedReadOffset += int64(r.Consumed())
	se.LastUpdated = time.Now()
}

func (s *ChunkStep[I, O]) notifySkips(ctx context.Context, skipped []SkippedRecord) {
	for _, rec := range skipped {
		s.metricRecorder.RecordItemSkip(ctx, s.name, string(rec.Phase))
		for _, l := range s.skipListeners {
			switch rec.Phase {
			case SkipPhaseRead:
				l.OnSkipRead(ctx, rec.Err)
			case SkipPhaseProcess:
				l.OnSkipProcess(ctx, rec.Item, rec.Err)
			case SkipPhaseWrite:
				l.OnSkipWrite(ctx, rec.Item, rec.Err)
			}
		}
	}
}

// fail marks the step FAILED with cause and persists it. The returned error is cause,
// joined with the persistence error if the FAILED status could not be recorded.
func (s *ChunkStep[I, O]) fail(ctx context.Context, se *model.StepExecution, cause error) error {
	s.tracer.RecordError(ctx, s.name, cause)
	if err := se.MarkAsFailed(cause); err != nil {
		return multierror.Append(cause, err)
	}
	if err := s.persist(ctx, se); err != nil {
		return multierror.Append(cause, err)
	}
	return cause
}

func (s *ChunkStep[I, O]) persist(ctx context.Context, se *model.StepExecution) error {
	if err := s.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), se); err != nil {
		logger.Errorf("ChunkStep '%s': failed to persist step execution: %v", s.name, err)
		return fmt.Errorf("persist step execution %s: %w", se.ID, err)
	}
	return nil
}

func stopRequested(ctx context.Context, je *model.JobExecution) bool {
	if ctx.Err() != nil {
		return true
	}
	return je != nil && je.Stop.Requested()
}
