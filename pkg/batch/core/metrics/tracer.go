package metrics

import (
	"context"

	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
)

// Tracer opens spans around jobs, steps and chunks.
// Every Start* method returns the span context and a function that ends the span.
type Tracer interface {
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())
	StartChunkSpan(ctx context.Context, stepName string, chunkNumber int) (context.Context, func())
	// RecordError marks the span in ctx as failed.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds an event to the span in ctx.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
