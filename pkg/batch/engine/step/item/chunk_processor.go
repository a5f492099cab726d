// Package item implements chunk-oriented processing: the per-transaction chunk cycle
// (ChunkProcessor) and the step state machine that loops over it (ChunkStep).
package item

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tigerroll/employee-import/pkg/batch/core/application/port"
	"github.com/tigerroll/employee-import/pkg/batch/core/tx"
	"github.com/tigerroll/employee-import/pkg/batch/engine/step/skip"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

const chunkModule = "chunk"

// DefaultChunkSize is used when no chunk size is configured.
const DefaultChunkSize = 10

// ChunkOutcome is the result of one chunk cycle.
type ChunkOutcome string

const (
	// OutcomeCommitted means the chunk transaction committed.
	OutcomeCommitted ChunkOutcome = "COMMITTED"
	// OutcomeRolledBack means the chunk transaction rolled back and nothing was attributed.
	OutcomeRolledBack ChunkOutcome = "ROLLED_BACK"
	// OutcomeEndOfInput means no record was left to read; nothing was committed.
	OutcomeEndOfInput ChunkOutcome = "END_OF_INPUT"
)

// SkipPhase tells where a skipped record failed.
type SkipPhase string

const (
	SkipPhaseRead    SkipPhase = "read"
	SkipPhaseProcess SkipPhase = "process"
	SkipPhaseWrite   SkipPhase = "write"
)

// SkippedRecord is a record dropped by the skip policy. Item is nil for read skips.
type SkippedRecord struct {
	Phase SkipPhase
	Item  interface{}
	Err   error
}

// ChunkResult reports one chunk cycle. For a rolled-back chunk every count is zero
// except Rollbacks.
type ChunkResult struct {
	ItemsRead    int
	ItemsWritten int
	ReadSkips    int
	ProcessSkips int
	WriteSkips   int
	// Rollbacks counts transactions rolled back during the cycle, including the
	// first attempt of a chunk that was then retried without its skipped records.
	Rollbacks  int
	Outcome    ChunkOutcome
	EndOfInput bool
	Skipped    []SkippedRecord
}

// Consumed is the number of input records this chunk moved the read offset by.
func (r ChunkResult) Consumed() int {
	return r.ItemsRead + r.ReadSkips
}

// ChunkProcessor runs read/process/write cycles, one transaction per chunk.
// It is not safe for concurrent use; a step owns one processor.
type ChunkProcessor[I, O any] struct {
	txManager tx.TransactionManager
	processor port.ItemProcessor[I, O]
	policy    skip.SkipPolicy
	timeout   time.Duration
	// skipped is the number of records skipped by committed chunks so far.
	skipped int

	// BeforeCommit runs inside the chunk transaction after the writer succeeded.
	// An error rolls the chunk back.
	BeforeCommit func(ctx context.Context, result ChunkResult) error
}

// NewChunkProcessor creates a ChunkProcessor.
// A nil processor passes items through unchanged and requires I and O to be the same type.
// A nil policy never skips. A zero timeout disables the per-chunk deadline.
func NewChunkProcessor[I, O any](txManager tx.TransactionManager, processor port.ItemProcessor[I, O], policy skip.SkipPolicy, timeout time.Duration) *ChunkProcessor[I, O] {
	if policy == nil {
		policy = skip.NeverSkip{}
	}
	return &ChunkProcessor[I, O]{
		txManager: txManager,
		processor: processor,
		policy:    policy,
		timeout:   timeout,
	}
}

// SetSkipCount seeds the number of records already skipped by this step execution.
func (p *ChunkProcessor[I, O]) SetSkipCount(n int) {
	p.skipped = n
}

// RunChunk runs one chunk: it pulls up to size records from reader, transforms them
// and hands the batch to writer inside a single transaction.
//
// The chunk runs on a context detached from ctx's cancellation so that a stop request
// never interrupts a transaction; the configured timeout still applies.
func (p *ChunkProcessor[I, O]) RunChunk(ctx context.Context, reader port.ItemReader[I], writer port.ItemWriter[O], size int) (ChunkResult, error) {
	if size < 1 {
		return ChunkResult{Outcome: OutcomeRolledBack}, exception.NewBatchError(chunkModule,
			fmt.Sprintf("chunk size must be at least 1, got %d", size), nil, false, false)
	}

	chunkCtx, cancel := p.chunkContext(ctx)
	defer cancel()

	t, err := p.txManager.Begin(chunkCtx)
	if err != nil {
		return ChunkResult{Outcome: OutcomeRolledBack}, p.asWriteError(chunkCtx, "failed to begin chunk transaction", err)
	}
	txCtx := tx.WithTx(chunkCtx, t)

	var result ChunkResult
	items := make([]O, 0, size)

	for result.ItemsRead < size {
		in, err := reader.Read(txCtx)
		if errors.Is(err, port.ErrNoMoreItems) {
			result.EndOfInput = true
			break
		}
		if err != nil {
			err = asReadError(err)
			if p.policy.ShouldSkip(err, p.skipped+len(result.Skipped)) {
				logger.Warnf("Chunk: skipping unreadable record: %v", err)
				result.ReadSkips++
				result.Skipped = append(result.Skipped, SkippedRecord{Phase: SkipPhaseRead, Err: err})
				continue
			}
			return p.rollback(t, result.Rollbacks, err)
		}
		result.ItemsRead++

		out, err := p.process(txCtx, in)
		if err != nil {
			if p.policy.ShouldSkip(err, p.skipped+len(result.Skipped)) {
				logger.Warnf("Chunk: skipping record rejected by processor: %v", err)
				result.ProcessSkips++
				result.Skipped = append(result.Skipped, SkippedRecord{Phase: SkipPhaseProcess, Item: in, Err: err})
				continue
			}
			return p.rollback(t, result.Rollbacks, err)
		}
		items = append(items, out)
	}

	if result.Consumed() == 0 {
		// Nothing was read: release the empty transaction without counting it.
		if err := p.txManager.Rollback(t); err != nil {
			logger.Debugf("Chunk: releasing empty transaction: %v", err)
		}
		return ChunkResult{Outcome: OutcomeEndOfInput, EndOfInput: true}, nil
	}

	if len(items) > 0 {
		werr := writer.Write(txCtx, t, items)
		if werr == nil && chunkCtx.Err() != nil {
			werr = chunkCtx.Err()
		}
		if werr != nil {
			werr = p.asWriteError(chunkCtx, "chunk write failed", werr)
			if chunkCtx.Err() != nil || !p.policy.ShouldSkip(werr, p.skipped+len(result.Skipped)) {
				return p.rollback(t, result.Rollbacks, werr)
			}

			// Retry the chunk without the offending records.
			p.releaseQuietly(t)
			result.Rollbacks++
			logger.Warnf("Chunk: write failed (%v); retrying %d items one by one", werr, len(items))

			t, err = p.txManager.Begin(chunkCtx)
			if err != nil {
				return ChunkResult{Outcome: OutcomeRolledBack, Rollbacks: result.Rollbacks},
					p.asWriteError(chunkCtx, "failed to begin retry transaction", err)
			}
			txCtx = tx.WithTx(chunkCtx, t)
			written, skipped, err := p.scan(txCtx, t, writer, items, p.skipped+len(result.Skipped))
			if err != nil {
				return p.rollback(t, result.Rollbacks, err)
			}
			result.ItemsWritten = written
			result.WriteSkips = len(skipped)
			result.Skipped = append(result.Skipped, skipped...)
		} else {
			result.ItemsWritten = len(items)
		}
	}

	result.Outcome = OutcomeCommitted
	if p.BeforeCommit != nil {
		if err := p.BeforeCommit(txCtx, result); err != nil {
			return p.rollback(t, result.Rollbacks, p.asWriteError(chunkCtx, "failed to record chunk progress", err))
		}
	}
	if err := p.txManager.Commit(t); err != nil {
		return ChunkResult{Outcome: OutcomeRolledBack, Rollbacks: result.Rollbacks + 1},
			p.asWriteError(chunkCtx, "chunk commit failed", err)
	}

	p.skipped += len(result.Skipped)
	return result, nil
}

// scan writes items one at a time, each behind a savepoint, dropping the ones the
// skip policy accepts. It stops at the first error the policy does not accept.
func (p *ChunkProcessor[I, O]) scan(ctx context.Context, t tx.Tx, writer port.ItemWriter[O], items []O, skippedSoFar int) (int, []SkippedRecord, error) {
	var skipped []SkippedRecord
	written := 0
	for i, it := range items {
		sp := fmt.Sprintf("chunk_item_%d", i)
		if err := t.Savepoint(sp); err != nil {
			return 0, nil, p.asWriteError(ctx, "failed to create savepoint", err)
		}
		err := writer.Write(ctx, t, []O{it})
		if err == nil {
			written++
			continue
		}
		err = p.asWriteError(ctx, fmt.Sprintf("write failed for item %d of chunk", i+1), err)
		if rerr := t.RollbackToSavepoint(sp); rerr != nil {
			return 0, nil, p.asWriteError(ctx, "failed to roll back to savepoint", rerr)
		}
		if ctx.Err() != nil || !p.policy.ShouldSkip(err, skippedSoFar+len(skipped)) {
			return 0, nil, err
		}
		logger.Warnf("Chunk: skipping item %d: %v", i+1, err)
		skipped = append(skipped, SkippedRecord{Phase: SkipPhaseWrite, Item: it, Err: err})
	}
	return written, skipped, nil
}

func (p *ChunkProcessor[I, O]) process(ctx context.Context, in I) (O, error) {
	if p.processor != nil {
		return p.processor.Process(ctx, in)
	}
	out, ok := any(in).(O)
	if !ok {
		var zero O
		return zero, exception.NewBatchError(chunkModule,
			fmt.Sprintf("no processor configured and %T is not assignable to the writer's item type", in), nil, false, false)
	}
	return out, nil
}

func (p *ChunkProcessor[I, O]) rollback(t tx.Tx, rollbacks int, cause error) (ChunkResult, error) {
	p.releaseQuietly(t)
	return ChunkResult{Outcome: OutcomeRolledBack, Rollbacks: rollbacks + 1}, cause
}

// releaseQuietly rolls t back. A transaction whose context expired was already
// rolled back by the driver, so rollback errors are only logged.
func (p *ChunkProcessor[I, O]) releaseQuietly(t tx.Tx) {
	if err := p.txManager.Rollback(t); err != nil {
		logger.Debugf("Chunk: rollback returned: %v", err)
	}
}

func (p *ChunkProcessor[I, O]) chunkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if p.timeout > 0 {
		return context.WithTimeout(detached, p.timeout)
	}
	return context.WithCancel(detached)
}

// asWriteError classifies err as a WriteError unless it already carries a kind.
// A deadline on the chunk context is reported as a timed-out chunk.
func (p *ChunkProcessor[I, O]) asWriteError(ctx context.Context, message string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return exception.NewWriteError(chunkModule, fmt.Sprintf("chunk transaction timed out after %s", p.timeout), err)
	}
	if exception.KindOf(err) != exception.KindUnknown {
		return err
	}
	return exception.NewWriteError(chunkModule, message, err)
}

func asReadError(err error) error {
	if exception.KindOf(err) != exception.KindUnknown {
		return err
	}
	return exception.NewReadError("reader", "failed to read record", err)
}
