// Package writer provides item writers for chunk steps.
package writer

import (
	"context"
	"fmt"

	"github.com/tigerroll/employee-import/pkg/batch/core/application/port"
	"github.com/tigerroll/employee-import/pkg/batch/core/tx"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// StatementMapper returns the parameterized statement that persists item. Named
// parameters are written as @name and supplied in args.
type StatementMapper[T any] func(item T) (query string, args map[string]interface{}, err error)

// SQLItemWriter executes one parameterized statement per item inside the chunk
// transaction it is given. It never commits.
type SQLItemWriter[T any] struct {
	name   string
	mapper StatementMapper[T]
}

// Verify that SQLItemWriter implements the port.ItemWriter interface at compile time.
var _ port.ItemWriter[any] = (*SQLItemWriter[any])(nil)

// NewSQLItemWriter creates a SQLItemWriter.
func NewSQLItemWriter[T any](name string, mapper StatementMapper[T]) *SQLItemWriter[T] {
	return &SQLItemWriter[T]{name: name, mapper: mapper}
}

// Open implements port.ItemWriter.
func (w *SQLItemWriter[T]) Open(ctx context.Context) error {
	logger.Debugf("SQLItemWriter '%s': Opened.", w.name)
	return nil
}

// Write implements port.ItemWriter. The first failing item fails the whole call;
// the caller rolls the transaction back.
func (w *SQLItemWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if t == nil {
		return exception.NewWriteError("writer", fmt.Sprintf("SQLItemWriter '%s' needs an active transaction", w.name), nil)
	}

	for i, item := range items {
		query, args, err := w.mapper(item)
		if err != nil {
			return exception.NewWriteError("writer", fmt.Sprintf("SQLItemWriter '%s': cannot map item %d", w.name, i+1), err)
		}
		if _, err := t.Exec(ctx, query, args); err != nil {
			return exception.NewWriteError("writer", fmt.Sprintf("SQLItemWriter '%s': failed to write item %d", w.name, i+1), err)
		}
	}

	logger.Debugf("SQLItemWriter '%s': wrote %d items.", w.name, len(items))
	return nil
}

// Close implements port.ItemWriter.
func (w *SQLItemWriter[T]) Close(ctx context.Context) error {
	logger.Debugf("SQLItemWriter '%s': Closed.", w.name)
	return nil
}
