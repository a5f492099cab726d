package logging

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/employee-import/pkg/batch/core/application/port"
)

// Fx groups collecting listeners for the job and its steps.
const (
	JobListenerGroup   = "job_listeners"
	StepListenerGroup  = "step_listeners"
	ChunkListenerGroup = "chunk_listeners"
	SkipListenerGroup  = "skip_listeners"
)

// Module registers the logging listeners in the listener groups.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewLoggingJobListener, fx.As(new(port.JobExecutionListener)), fx.ResultTags(`group:"job_listeners"`)),
		fx.Annotate(NewLoggingStepListener, fx.As(new(port.StepExecutionListener)), fx.ResultTags(`group:"step_listeners"`)),
		fx.Annotate(NewLoggingChunkListener, fx.As(new(port.ChunkListener)), fx.ResultTags(`group:"chunk_listeners"`)),
		fx.Annotate(NewLoggingSkipListener, fx.As(new(port.SkipListener)), fx.ResultTags(`group:"skip_listeners"`)),
	),
)
