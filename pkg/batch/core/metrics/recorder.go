// Package metrics defines the observability ports of the batch engine.
// Implementations live in infrastructure/metrics; the engine only sees these interfaces.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
)

// MetricRecorder records job, step, item and chunk metrics.
type MetricRecorder interface {
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	// RecordJobEnd is called once the job reached its terminal status.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)

	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordItemRead and RecordItemWrite are called with committed counts only.
	RecordItemRead(ctx context.Context, stepName string, count int)
	RecordItemWrite(ctx context.Context, stepName string, count int)
	RecordItemSkip(ctx context.Context, stepName string, reason string)

	RecordChunkCommit(ctx context.Context, stepName string)
	RecordChunkRollback(ctx context.Context, stepName string, reason string)

	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
