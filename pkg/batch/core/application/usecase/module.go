package usecase

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/employee-import/pkg/batch/core/application/port"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
	repository "github.com/tigerroll/employee-import/pkg/batch/core/domain/repository"
)

// LauncherParams defines dependencies for SimpleJobLauncher.
type LauncherParams struct {
	fx.In
	JobRepository repository.JobRepository
	Jobs          []port.Job `group:"jobs"`
	Config        *config.Config
}

// NewJobLauncherFromParams builds the launcher from the registered jobs.
func NewJobLauncherFromParams(p LauncherParams) *SimpleJobLauncher {
	launcher := NewSimpleJobLauncher(p.JobRepository, p.Jobs, p.Config.Batch.StaleAfter)
	launcher.SetRestart(p.Config.Batch.Restart)
	return launcher
}

// Module is the Fx module for JobLauncher, JobOperator and JobExplorer.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewSimpleJobExplorer,
		fx.As(new(JobExplorer)),
	)),
	fx.Provide(NewJobLauncherFromParams),
	fx.Provide(func(launcher *SimpleJobLauncher) JobLauncher { return launcher }),
	fx.Provide(fx.Annotate(
		NewDefaultJobOperator,
		fx.As(new(JobOperator)),
	)),
)
