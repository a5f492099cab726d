package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/employee-import/pkg/batch/core/application/port"
	"github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// Sink stores a finished export. *storage.Opener implements it.
type Sink interface {
	Write(ctx context.Context, uri string, data io.Reader, contentType string) error
}

// SkippedRecordRow is one row of the skipped-record export.
type SkippedRecordRow struct {
	RunID     string `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	StepName  string `parquet:"name=step_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Phase     string `parquet:"name=phase, type=BYTE_ARRAY, convertedtype=UTF8"`
	Item      string `parquet:"name=item, type=BYTE_ARRAY, convertedtype=UTF8"`
	Error     string `parquet:"name=error, type=BYTE_ARRAY, convertedtype=UTF8"`
	SkippedAt int64  `parquet:"name=skipped_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// ParquetSkipWriterConfig holds the configuration for ParquetSkipWriter.
type ParquetSkipWriterConfig struct {
	// URI is the export location. The run id is appended to the file name.
	URI string
	// Compression is SNAPPY (default), GZIP, ZSTD or UNCOMPRESSED.
	Compression string
	// Format renders a skipped item. Defaults to fmt's %+v.
	Format func(item interface{}) string
}

// ParquetSkipWriter collects the records a step skipped and writes them to one
// parquet file when the step ends. Nothing is written when no record was skipped.
type ParquetSkipWriter struct {
	config ParquetSkipWriterConfig
	codec  parquet.CompressionCodec
	sink   Sink

	runID    string
	stepName string
	rows     []SkippedRecordRow
}

var (
	_ port.SkipListener          = (*ParquetSkipWriter)(nil)
	_ port.StepExecutionListener = (*ParquetSkipWriter)(nil)
)

// NewParquetSkipWriter creates a ParquetSkipWriter.
func NewParquetSkipWriter(config ParquetSkipWriterConfig, sink Sink) (*ParquetSkipWriter, error) {
	if config.URI == "" {
		return nil, exception.NewBatchErrorf("writer", "ParquetSkipWriter requires an export URI")
	}
	codec, err := getCompressionCodec(config.Compression)
	if err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("invalid compression '%s' for ParquetSkipWriter", config.Compression), err, false, false)
	}
	if config.Format == nil {
		config.Format = func(item interface{}) string { return fmt.Sprintf("%+v", item) }
	}
	return &ParquetSkipWriter{config: config, codec: codec, sink: sink}, nil
}

// BeforeStep implements port.StepExecutionListener.
func (w *ParquetSkipWriter) BeforeStep(ctx context.Context, se *model.StepExecution) {
	w.runID = se.JobExecutionID
	w.stepName = se.StepName
	w.rows = nil
}

// OnSkipRead implements port.SkipListener.
func (w *ParquetSkipWriter) OnSkipRead(ctx context.Context, err error) {
	w.add("read", "", err)
}

// OnSkipProcess implements port.SkipListener.
func (w *ParquetSkipWriter) OnSkipProcess(ctx context.Context, item interface{}, err error) {
	w.add("process", w.config.Format(item), err)
}

// OnSkipWrite implements port.SkipListener.
func (w *ParquetSkipWriter) OnSkipWrite(ctx context.Context, item interface{}, err error) {
	w.add("write", w.config.Format(item), err)
}

func (w *ParquetSkipWriter) add(phase, item string, err error) {
	w.rows = append(w.rows, SkippedRecordRow{
		RunID:     w.runID,
		StepName:  w.stepName,
		Phase:     phase,
		Item:      item,
		Error:     exception.ExtractErrorMessage(err),
		SkippedAt: time.Now().UnixMilli(),
	})
}

// AfterStep implements port.StepExecutionListener. Export failures are logged; they
// never change the step's outcome.
func (w *ParquetSkipWriter) AfterStep(ctx context.Context, se *model.StepExecution) {
	if len(w.rows) == 0 {
		return
	}
	if err := w.Flush(context.WithoutCancel(ctx)); err != nil {
		logger.Errorf("ParquetSkipWriter: failed to export %d skipped records: %v", len(w.rows), err)
	}
}

// Flush writes the collected rows and clears them.
func (w *ParquetSkipWriter) Flush(ctx context.Context) error {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(SkippedRecordRow), 1)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = w.codec

	for _, row := range w.rows {
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := writeStop(pw); err != nil {
		return err
	}

	uri := exportURI(w.config.URI, w.runID)
	if err := w.sink.Write(ctx, uri, buf, "application/vnd.apache.parquet"); err != nil {
		return fmt.Errorf("upload %s: %w", uri, err)
	}
	logger.Infof("ParquetSkipWriter: exported %d skipped records to %s.", len(w.rows), uri)
	w.rows = nil
	return nil
}

// writeStop finalizes the file. The library panics on some malformed rows.
func writeStop(pw *writer.ParquetWriter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet file: %w", err)
	}
	return nil
}

// exportURI inserts the run id before the file extension: skipped.parquet becomes
// skipped-<runID>.parquet.
func exportURI(uri, runID string) string {
	if runID == "" {
		return uri
	}
	ext := path.Ext(uri)
	return strings.TrimSuffix(uri, ext) + "-" + runID + ext
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "ZSTD":
		return parquet.CompressionCodec_ZSTD, nil
	case "NONE", "UNCOMPRESSED":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
