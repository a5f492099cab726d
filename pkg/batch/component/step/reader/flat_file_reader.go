// Package reader provides item readers for chunk steps.
package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tigerroll/employee-import/pkg/batch/core/application/port"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// Source opens a location for reading. *storage.Opener implements it.
type Source interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// LineMapper turns the fields of one record into an item. An error marks the
// record malformed.
type LineMapper[T any] func(fields []string) (T, error)

// FlatFileItemReaderConfig describes the input file.
type FlatFileItemReaderConfig struct {
	URI       string // URI is a local path or gs://bucket/object.
	Delimiter rune   // Delimiter defaults to ','.
	HasHeader bool   // HasHeader skips the first line. It does not count as a record.
}

// FlatFileItemReader reads delimited records. Its offset is the number of records
// consumed since the start of the file, malformed ones included, so a reader opened
// at the same offset always yields the same sequence.
type FlatFileItemReader[T any] struct {
	name   string
	config FlatFileItemReaderConfig
	source Source
	mapper LineMapper[T]

	body   io.ReadCloser
	csv    *csv.Reader
	offset int64
}

// Verify that FlatFileItemReader implements port.ItemReader.
var _ port.ItemReader[any] = (*FlatFileItemReader[any])(nil)

// NewFlatFileItemReader creates a reader for config.URI.
func NewFlatFileItemReader[T any](name string, config FlatFileItemReaderConfig, source Source, mapper LineMapper[T]) *FlatFileItemReader[T] {
	if config.Delimiter == 0 {
		config.Delimiter = ','
	}
	return &FlatFileItemReader[T]{name: name, config: config, source: source, mapper: mapper}
}

// Open implements port.ItemReader. It positions the reader after startOffset records.
func (r *FlatFileItemReader[T]) Open(ctx context.Context, startOffset int64) error {
	body, err := r.source.Open(ctx, r.config.URI)
	if err != nil {
		return exception.NewReadError("reader", fmt.Sprintf("FlatFileItemReader '%s': failed to open '%s'", r.name, r.config.URI), err)
	}
	r.body = body
	r.csv = csv.NewReader(body)
	r.csv.Comma = r.config.Delimiter
	r.csv.FieldsPerRecord = -1
	r.offset = 0

	if r.config.HasHeader {
		if _, err := r.csv.Read(); err != nil && !errors.Is(err, io.EOF) {
			logger.Warnf("FlatFileItemReader '%s': unreadable header: %v", r.name, err)
		}
	}

	for r.offset < startOffset {
		if _, err := r.csv.Read(); errors.Is(err, io.EOF) {
			logger.Warnf("FlatFileItemReader '%s': input has only %d records; restart offset was %d.", r.name, r.offset, startOffset)
			break
		}
		r.offset++
	}

	if startOffset > 0 {
		logger.Infof("FlatFileItemReader '%s': resuming '%s' at record %d.", r.name, r.config.URI, r.offset)
	} else {
		logger.Infof("FlatFileItemReader '%s': reading '%s'.", r.name, r.config.URI)
	}
	return nil
}

// Read implements port.ItemReader. A malformed record is a ReadError and is consumed.
func (r *FlatFileItemReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.csv == nil {
		return zero, exception.NewExecutionStateError("reader", fmt.Sprintf("FlatFileItemReader '%s' is not open", r.name))
	}
	fields, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return zero, port.ErrNoMoreItems
	}
	r.offset++
	if err != nil {
		var parseErr *csv.ParseError
		if !errors.As(err, &parseErr) {
			return zero, exception.NewReadError("reader", fmt.Sprintf("FlatFileItemReader '%s': failed to read record %d", r.name, r.offset), err)
		}
		return zero, exception.NewReadError("reader", fmt.Sprintf("record %d is malformed", r.offset), err)
	}

	item, err := r.mapper(fields)
	if err != nil {
		return zero, exception.NewReadError("reader",
			fmt.Sprintf("record %d [%s] is malformed", r.offset, strings.Join(fields, string(r.config.Delimiter))), err)
	}
	return item, nil
}

// Close implements port.ItemReader.
func (r *FlatFileItemReader[T]) Close(ctx context.Context) error {
	r.csv = nil
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}

// Offset returns the number of records consumed so far.
func (r *FlatFileItemReader[T]) Offset() int64 {
	return r.offset
}
