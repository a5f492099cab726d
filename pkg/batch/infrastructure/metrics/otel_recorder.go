package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/employee-import/pkg/batch/core/metrics"
	logger "github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

const instrumentationName = "github.com/tigerroll/employee-import/pkg/batch"

// OTelRecorder records engine metrics as OpenTelemetry instruments.
type OTelRecorder struct {
	jobDuration   otelmetric.Float64Histogram
	jobStatus     otelmetric.Int64Counter
	stepDuration  otelmetric.Float64Histogram
	itemsRead     otelmetric.Int64Counter
	itemsWritten  otelmetric.Int64Counter
	itemsSkipped  otelmetric.Int64Counter
	chunkCommits  otelmetric.Int64Counter
	chunkRollback otelmetric.Int64Counter
	operation     otelmetric.Float64Histogram
}

// NewOTelRecorder creates the instruments on a meter from provider.
func NewOTelRecorder(provider otelmetric.MeterProvider) (*OTelRecorder, error) {
	meter := provider.Meter(instrumentationName)
	r := &OTelRecorder{}
	var err error

	if r.jobDuration, err = meter.Float64Histogram("batch.job.duration", otelmetric.WithUnit("s"),
		otelmetric.WithDescription("Duration of batch job executions.")); err != nil {
		return nil, err
	}
	if r.jobStatus, err = meter.Int64Counter("batch.job.executions",
		otelmetric.WithDescription("Finished job executions by status.")); err != nil {
		return nil, err
	}
	if r.stepDuration, err = meter.Float64Histogram("batch.step.duration", otelmetric.WithUnit("s"),
		otelmetric.WithDescription("Duration of batch step executions.")); err != nil {
		return nil, err
	}
	if r.itemsRead, err = meter.Int64Counter("batch.step.items.read"); err != nil {
		return nil, err
	}
	if r.itemsWritten, err = meter.Int64Counter("batch.step.items.written"); err != nil {
		return nil, err
	}
	if r.itemsSkipped, err = meter.Int64Counter("batch.step.items.skipped"); err != nil {
		return nil, err
	}
	if r.chunkCommits, err = meter.Int64Counter("batch.chunk.commits"); err != nil {
		return nil, err
	}
	if r.chunkRollback, err = meter.Int64Counter("batch.chunk.rollbacks"); err != nil {
		return nil, err
	}
	if r.operation, err = meter.Float64Histogram("batch.operation.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OTelRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	logger.Debugf("Metrics: Job '%s' started.", execution.JobName)
}

func (r *OTelRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	attrs := otelmetric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	)
	r.jobStatus.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.jobDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
	}
}

func (r *OTelRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}

func (r *OTelRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime == nil {
		return
	}
	r.stepDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), otelmetric.WithAttributes(
		attribute.String("step_name", execution.StepName),
		attribute.String("status", execution.Status.String()),
	))
}

func (r *OTelRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.itemsRead.Add(ctx, int64(count), stepAttr(stepName))
}

func (r *OTelRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.itemsWritten.Add(ctx, int64(count), stepAttr(stepName))
}

func (r *OTelRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.itemsSkipped.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("step_name", stepName),
		attribute.String("type", reason),
	))
}

func (r *OTelRecorder) RecordChunkCommit(ctx context.Context, stepName string) {
	r.chunkCommits.Add(ctx, 1, stepAttr(stepName))
}

func (r *OTelRecorder) RecordChunkRollback(ctx context.Context, stepName string, reason string) {
	r.chunkRollback.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("step_name", stepName),
		attribute.String("reason", reason),
	))
}

func (r *OTelRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("operation", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operation.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(attrs...))
}

func stepAttr(stepName string) otelmetric.MeasurementOption {
	return otelmetric.WithAttributes(attribute.String("step_name", stepName))
}

var _ metrics.MetricRecorder = (*OTelRecorder)(nil)
