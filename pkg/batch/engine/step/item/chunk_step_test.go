package item

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/employee-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/employee-import/pkg/batch/core/tx"
	"github.com/tigerroll/employee-import/pkg/batch/engine/step/skip"
	exception "github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
)

// --- fakes ---

type fakeTx struct {
	pending    []string
	savepoints map[string]int
}

func (t *fakeTx) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return 0, nil
}

func (t *fakeTx) Savepoint(name string) error {
	t.savepoints[name] = len(t.pending)
	return nil
}

func (t *fakeTx) RollbackToSavepoint(name string) error {
	n, ok := t.savepoints[name]
	if !ok {
		return fmt.Errorf("no savepoint %s", name)
	}
	t.pending = t.pending[:n]
	return nil
}

type fakeTxManager struct {
	mu        sync.Mutex
	committed []string
	begins    int
	commits   int
	rollbacks int
	commitErr error
}

func (m *fakeTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begins++
	return &fakeTx{savepoints: map[string]int{}}, nil
}

func (m *fakeTxManager) Commit(t tx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	m.commits++
	m.committed = append(m.committed, t.(*fakeTx).pending...)
	return nil
}

func (m *fakeTxManager) Rollback(t tx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks++
	return nil
}

// sliceReader returns records in order; the value "malformed" yields a ReadError.
type sliceReader struct {
	records  []string
	pos      int
	openedAt int64
	closed   bool
}

func (r *sliceReader) Open(ctx context.Context, startOffset int64) error {
	r.openedAt = startOffset
	r.pos = int(startOffset)
	return nil
}

func (r *sliceReader) Read(ctx context.Context) (string, error) {
	if r.pos >= len(r.records) {
		return "", port.ErrNoMoreItems
	}
	rec := r.records[r.pos]
	r.pos++
	if rec == "malformed" {
		return "", exception.NewReadError("reader", fmt.Sprintf("line %d: wrong field count", r.pos), nil)
	}
	return rec, nil
}

func (r *sliceReader) Close(ctx context.Context) error {
	r.closed = true
	return nil
}

// stagingWriter stages items in the fake transaction; items listed in reject fail.
type stagingWriter struct {
	reject map[string]bool
	delay  time.Duration
	calls  int
}

func (w *stagingWriter) Open(ctx context.Context) error  { return nil }
func (w *stagingWriter) Close(ctx context.Context) error { return nil }

func (w *stagingWriter) Write(ctx context.Context, t tx.Tx, items []string) error {
	w.calls++
	if w.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.delay):
		}
	}
	ft := t.(*fakeTx)
	for _, it := range items {
		if w.reject[it] {
			return fmt.Errorf("constraint violation for %s", it)
		}
		ft.pending = append(ft.pending, it)
	}
	return nil
}

type upperProcessor struct{}

func (upperProcessor) Process(ctx context.Context, in string) (string, error) {
	return strings.ToUpper(in), nil
}

// stepRepo records every persisted step execution and whether it joined a transaction.
type stepRepo struct {
	mu        sync.Mutex
	updates   []model.StepExecution
	inTx      []bool
	failAfter int
}

func (r *stepRepo) CreateStepExecution(ctx context.Context, runID, stepName string) (*model.StepExecution, error) {
	return model.NewStepExecution(runID, stepName), nil
}

func (r *stepRepo) UpdateStepExecution(ctx context.Context, se *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAfter > 0 && len(r.updates) >= r.failAfter {
		return errors.New("repository unavailable")
	}
	_, ok := tx.TxFromContext(ctx)
	r.inTx = append(r.inTx, ok)
	r.updates = append(r.updates, *se.Clone())
	se.Version++
	return nil
}

type recordingSkipListener struct {
	reads  []error
	writes []interface{}
}

func (l *recordingSkipListener) OnSkipRead(ctx context.Context, err error) { l.reads = append(l.reads, err) }
func (l *recordingSkipListener) OnSkipProcess(ctx context.Context, item interface{}, err error) {
}
func (l *recordingSkipListener) OnSkipWrite(ctx context.Context, item interface{}, err error) {
	l.writes = append(l.writes, item)
}

// assertNoSkipBeforeCommit checks that no skip was reported while a chunk was open.
type assertNoSkipBeforeCommit struct {
	t        *testing.T
	listener *recordingSkipListener
}

func (a assertNoSkipBeforeCommit) BeforeChunk(ctx context.Context, se *model.StepExecution) {
	assert.Empty(a.t, a.listener.reads)
}
func (a assertNoSkipBeforeCommit) AfterChunk(ctx context.Context, se *model.StepExecution) {}
func (a assertNoSkipBeforeCommit) AfterChunkError(ctx context.Context, se *model.StepExecution, err error) {
}

type stopAfterFirstChunk struct{ je *model.JobExecution }

func (l stopAfterFirstChunk) BeforeChunk(ctx context.Context, se *model.StepExecution) {}
func (l stopAfterFirstChunk) AfterChunk(ctx context.Context, se *model.StepExecution) {
	l.je.Stop.Request()
}
func (l stopAfterFirstChunk) AfterChunkError(ctx context.Context, se *model.StepExecution, err error) {
}

func records(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("r%02d", i+1)
	}
	return out
}

type harness struct {
	reader *sliceReader
	writer *stagingWriter
	txm    *fakeTxManager
	repo   *stepRepo
	je     *model.JobExecution
	se     *model.StepExecution
}

func newHarness(recs []string) *harness {
	je := model.NewJobExecution("employeeJob")
	return &harness{
		reader: &sliceReader{records: recs},
		writer: &stagingWriter{reject: map[string]bool{}},
		txm:    &fakeTxManager{},
		repo:   &stepRepo{},
		je:     je,
		se:     model.NewStepExecution(je.ID, "saveEmployeesToDatabase"),
	}
}

func (h *harness) run(t *testing.T, opts StepOptions) error {
	t.Helper()
	step := NewChunkStep[string, string]("saveEmployeesToDatabase", h.reader, nil, h.writer, h.txm, h.repo, opts)
	return step.Execute(context.Background(), h.je, h.se)
}

// --- tests ---

func TestChunkStep_TwentyFiveRecordsInChunksOfTen(t *testing.T) {
	h := newHarness(records(25))
	require.NoError(t, h.run(t, StepOptions{ChunkSize: 10}))

	assert.Equal(t, model.BatchStatusCompleted, h.se.Status)
	assert.Equal(t, 25, h.se.ReadCount)
	assert.Equal(t, 25, h.se.WriteCount)
	assert.Equal(t, 3, h.se.CommitCount)
	assert.Equal(t, 0, h.se.RollbackCount)
	assert.Equal(t, int64(25), h.se.LastCommittedReadOffset)
	assert.Equal(t, records(25), h.txm.committed)
	assert.True(t, h.reader.closed)
}

func TestChunkStep_CommitCountIsCeilOfInputOverChunkSize(t *testing.T) {
	cases := []struct{ total, size, commits int }{
		{20, 10, 2},
		{21, 10, 3},
		{1, 10, 1},
		{7, 1, 7},
		{0, 10, 0},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%d/%d", c.total, c.size), func(t *testing.T) {
			h := newHarness(records(c.total))
			require.NoError(t, h.run(t, StepOptions{ChunkSize: c.size}))
			assert.Equal(t, model.BatchStatusCompleted, h.se.Status)
			assert.Equal(t, c.commits, h.se.CommitCount)
			assert.Equal(t, c.total, h.se.WriteCount)
		})
	}
}

func TestChunkStep_MalformedRecordRollsBackItsChunk(t *testing.T) {
	recs := records(15)
	recs[11] = "malformed"
	h := newHarness(recs)

	err := h.run(t, StepOptions{ChunkSize: 10})
	require.Error(t, err)
	assert.True(t, exception.IsReadError(err))

	assert.Equal(t, model.BatchStatusFailed, h.se.Status)
	assert.Equal(t, records(10), h.txm.committed)
	assert.Equal(t, 10, h.se.ReadCount)
	assert.Equal(t, 10, h.se.WriteCount)
	assert.Equal(t, 1, h.se.CommitCount)
	assert.Equal(t, 1, h.se.RollbackCount)
	assert.Equal(t, int64(10), h.se.LastCommittedReadOffset)
	assert.Contains(t, h.se.ExitMessage, "line 12")
}

func TestChunkStep_WriterFailureRollsBackWholeChunk(t *testing.T) {
	h := newHarness(records(25))
	h.writer.reject["r13"] = true

	err := h.run(t, StepOptions{ChunkSize: 10})
	require.Error(t, err)
	assert.True(t, exception.IsWriteError(err))
	assert.Equal(t, model.BatchStatusFailed, h.se.Status)
	assert.Equal(t, records(10), h.txm.committed)
	assert.Equal(t, 10, h.se.WriteCount)
	assert.Equal(t, int64(10), h.se.LastCommittedReadOffset)
}

func TestChunkStep_ReadSkip(t *testing.T) {
	recs := records(15)
	recs[11] = "malformed"
	h := newHarness(recs)
	listener := &recordingSkipListener{}

	require.NoError(t, h.run(t, StepOptions{
		ChunkSize:     10,
		SkipPolicy:    skip.NewLimitedSkipPolicy(5, skip.ErrorTypes("ReadError")),
		SkipListeners: []port.SkipListener{listener},
	}))

	assert.Equal(t, model.BatchStatusCompleted, h.se.Status)
	assert.Equal(t, 14, h.se.WriteCount)
	assert.Equal(t, 1, h.se.ReadSkipCount)
	assert.Equal(t, int64(15), h.se.LastCommittedReadOffset)
	assert.NotContains(t, h.txm.committed, "malformed")
	assert.Len(t, listener.reads, 1)
}

func TestChunkStep_SkipListenerIsNotifiedAfterCommit(t *testing.T) {
	recs := records(5)
	recs[2] = "malformed"
	h := newHarness(recs)
	listener := &recordingSkipListener{}
	step := NewChunkStep[string, string]("s", h.reader, nil, h.writer, h.txm, h.repo, StepOptions{
		ChunkSize:      10,
		SkipPolicy:     skip.NewLimitedSkipPolicy(1, skip.ErrorTypes()),
		SkipListeners:  []port.SkipListener{listener},
		ChunkListeners: []port.ChunkListener{assertNoSkipBeforeCommit{t: t, listener: listener}},
	})

	require.NoError(t, step.Execute(context.Background(), h.je, h.se))
	require.Len(t, listener.reads, 1)
	assert.True(t, exception.IsReadError(listener.reads[0]))
	assert.Equal(t, 1, h.txm.commits)
}

func TestChunkStep_SkipLimitExceededFails(t *testing.T) {
	recs := records(6)
	recs[1] = "malformed"
	recs[3] = "malformed"
	h := newHarness(recs)

	err := h.run(t, StepOptions{ChunkSize: 10, SkipPolicy: skip.NewLimitedSkipPolicy(1, skip.ErrorTypes("ReadError"))})
	require.Error(t, err)
	assert.Equal(t, model.BatchStatusFailed, h.se.Status)
	assert.Empty(t, h.txm.committed)
	assert.Equal(t, 0, h.se.ReadSkipCount)
}

func TestChunkStep_WriteSkipRetriesChunkWithoutOffendingItem(t *testing.T) {
	h := newHarness(records(10))
	h.writer.reject["r04"] = true
	listener := &recordingSkipListener{}
	step := NewChunkStep[string, string]("s", h.reader, nil, h.writer, h.txm, h.repo, StepOptions{
		ChunkSize:  10,
		SkipPolicy:    skip.NewLimitedSkipPolicy(1, skip.ErrorTypes("WriteError")),
		SkipListeners: []port.SkipListener{listener},
	})

	require.NoError(t, step.Execute(context.Background(), h.je, h.se))
	assert.Equal(t, model.BatchStatusCompleted, h.se.Status)
	assert.Equal(t, 9, h.se.WriteCount)
	assert.Equal(t, 10, h.se.ReadCount)
	assert.Equal(t, 1, h.se.WriteSkipCount)
	assert.Equal(t, 1, h.se.CommitCount)
	assert.Equal(t, 1, h.se.RollbackCount)
	assert.NotContains(t, h.txm.committed, "r04")
	assert.Len(t, h.txm.committed, 9)
	assert.Equal(t, []interface{}{"r04"}, listener.writes)
}

func TestChunkStep_StopAtChunkBoundary(t *testing.T) {
	h := newHarness(records(25))
	require.NoError(t, h.run(t, StepOptions{
		ChunkSize:      10,
		ChunkListeners: []port.ChunkListener{stopAfterFirstChunk{je: h.je}},
	}))

	assert.Equal(t, model.BatchStatusStopped, h.se.Status)
	assert.Equal(t, 1, h.se.CommitCount)
	assert.Equal(t, records(10), h.txm.committed)
	assert.Equal(t, int64(10), h.se.LastCommittedReadOffset)
}

func TestChunkStep_CancelledContextStopsBeforeFirstChunk(t *testing.T) {
	h := newHarness(records(5))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	step := NewChunkStep[string, string]("s", h.reader, nil, h.writer, h.txm, h.repo, StepOptions{ChunkSize: 10})

	require.NoError(t, step.Execute(ctx, h.je, h.se))
	assert.Equal(t, model.BatchStatusStopped, h.se.Status)
	assert.Zero(t, h.txm.begins)
}

func TestChunkStep_ChunkTimeout(t *testing.T) {
	h := newHarness(records(3))
	h.writer.delay = time.Second

	err := h.run(t, StepOptions{ChunkSize: 10, ChunkTimeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, exception.IsWriteError(err))
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, model.BatchStatusFailed, h.se.Status)
	assert.Empty(t, h.txm.committed)
}

func TestChunkStep_ResumesFromCommittedOffset(t *testing.T) {
	h := newHarness(records(25))
	previous := model.NewStepExecution("old-run", "saveEmployeesToDatabase")
	require.NoError(t, previous.MarkAsStarted())
	previous.LastCommittedReadOffset = 10
	require.NoError(t, previous.MarkAsFailed(errors.New("boom")))
	require.NoError(t, h.se.ResumeFrom(previous))

	require.NoError(t, h.run(t, StepOptions{ChunkSize: 10}))
	assert.Equal(t, int64(10), h.reader.openedAt)
	assert.Equal(t, records(25)[10:], h.txm.committed)
	assert.Equal(t, 15, h.se.WriteCount)
	assert.Equal(t, 2, h.se.CommitCount)
	assert.Equal(t, int64(25), h.se.LastCommittedReadOffset)
}

func TestChunkStep_ProgressIsPersistedInsideChunkTransaction(t *testing.T) {
	h := newHarness(records(15))
	require.NoError(t, h.run(t, StepOptions{ChunkSize: 10}))

	// STARTED, two chunks, COMPLETED.
	require.Len(t, h.repo.updates, 4)
	assert.Equal(t, []bool{false, true, true, false}, h.repo.inTx)
	assert.Equal(t, int64(10), h.repo.updates[1].LastCommittedReadOffset)
	assert.Equal(t, int64(15), h.repo.updates[2].LastCommittedReadOffset)
	assert.Equal(t, model.BatchStatusCompleted, h.repo.updates[3].Status)
}

func TestChunkStep_ProgressFailureRollsBackChunk(t *testing.T) {
	h := newHarness(records(15))
	h.repo.failAfter = 2

	err := h.run(t, StepOptions{ChunkSize: 10})
	require.Error(t, err)
	assert.Equal(t, records(10), h.txm.committed)
	assert.Equal(t, model.BatchStatusFailed, h.se.Status)
	assert.Equal(t, int64(10), h.se.LastCommittedReadOffset)
}

func TestChunkStep_ProcessorTransformsItems(t *testing.T) {
	h := newHarness([]string{"a", "b"})
	step := NewChunkStep[string, string]("s", h.reader, upperProcessor{}, h.writer, h.txm, h.repo, StepOptions{})
	require.NoError(t, step.Execute(context.Background(), h.je, h.se))
	assert.Equal(t, []string{"A", "B"}, h.txm.committed)
	assert.Equal(t, DefaultChunkSize, step.ChunkSize())
}

func TestChunkProcessor_RejectsNonPositiveSize(t *testing.T) {
	p := NewChunkProcessor[string, string](&fakeTxManager{}, nil, nil, 0)
	res, err := p.RunChunk(context.Background(), &sliceReader{}, &stagingWriter{}, 0)
	require.Error(t, err)
	assert.Equal(t, OutcomeRolledBack, res.Outcome)
}

func TestChunkProcessor_EmptyInputSignalsEndOfInput(t *testing.T) {
	txm := &fakeTxManager{}
	p := NewChunkProcessor[string, string](txm, nil, nil, 0)
	res, err := p.RunChunk(context.Background(), &sliceReader{}, &stagingWriter{}, 10)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEndOfInput, res.Outcome)
	assert.True(t, res.EndOfInput)
	assert.Zero(t, txm.commits)
}

func TestChunkProcessor_CommitFailureIsRolledBack(t *testing.T) {
	txm := &fakeTxManager{commitErr: errors.New("disk full")}
	p := NewChunkProcessor[string, string](txm, nil, nil, 0)
	res, err := p.RunChunk(context.Background(), &sliceReader{records: records(3)}, &stagingWriter{}, 10)
	require.Error(t, err)
	assert.True(t, exception.IsWriteError(err))
	assert.Equal(t, OutcomeRolledBack, res.Outcome)
	assert.Zero(t, res.ItemsWritten)
	assert.Equal(t, 1, res.Rollbacks)
}
