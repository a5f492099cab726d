// Package app wires the employee import application with uber-fx.
package app

import (
	"context"
	"time"

	"go.uber.org/fx"

	appJob "github.com/tigerroll/employee-import/internal/job"
	appMigration "github.com/tigerroll/employee-import/internal/migration"
	gormadapter "github.com/tigerroll/employee-import/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/database/migration"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/storage"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/storage/local"
	usecase "github.com/tigerroll/employee-import/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
	"github.com/tigerroll/employee-import/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/employee-import/pkg/batch/infrastructure/repository"
	"github.com/tigerroll/employee-import/pkg/batch/listener/logging"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// DBProviderModules maps the adapter names accepted by Options.DBAdapters to their modules.
var DBProviderModules = map[string]fx.Option{
	"sqlite":   sqlite.Module,
	"mysql":    mysql.Module,
	"postgres": postgres.Module,
}

// stopPollInterval is how often a pending stop request looks for a registered execution.
const stopPollInterval = 100 * time.Millisecond

// Options selects the configuration sources of one invocation.
type Options struct {
	// EmbeddedConfig is the application.yaml bundled into the binary.
	EmbeddedConfig config.EmbeddedConfig
	// EnvFilePath is a .env file. Empty loads ./.env when present.
	EnvFilePath string
	// ConfigPath is a YAML file applied over the embedded configuration.
	ConfigPath string
	// DBAdapters names the database providers to register. Empty registers all of them.
	DBAdapters []string
	// Override adjusts the loaded configuration, e.g. from command line flags.
	// The result is validated again.
	Override func(cfg *config.Config)
}

func dbProviderOptions(names []string) []fx.Option {
	if len(names) == 0 {
		names = []string{"postgres", "mysql", "sqlite"}
	}
	options := make([]fx.Option, 0, len(names))
	for _, name := range names {
		module, ok := DBProviderModules[name]
		if !ok {
			logger.Warnf("DB Provider '%s' is configured but not recognized/supported. Skipping.", name)
			continue
		}
		options = append(options, module)
		logger.Debugf("DB Provider '%s' selected and registered.", name)
	}
	return options
}

// infrastructureOptions provides configuration, database connections, migrations and
// the job repository. Starting them verifies every configured store is reachable.
func infrastructureOptions(opts Options) fx.Option {
	options := []fx.Option{
		fx.Supply(
			opts.EmbeddedConfig,
			fx.Annotate(opts.EnvFilePath, fx.ResultTags(`name:"envFilePath"`)),
			fx.Annotate(opts.ConfigPath, fx.ResultTags(`name:"configOverlayPath"`)),
		),
		logger.Module,
		config.Module,
		gormadapter.Module,
		fx.Options(dbProviderOptions(opts.DBAdapters)...),
		migration.Module,
		appMigration.Module,
		repository.Module,
	}
	if opts.Override != nil {
		options = append(options, fx.Decorate(func(cfg *config.Config) (*config.Config, error) {
			opts.Override(cfg)
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return cfg, nil
		}))
	}
	return fx.Options(options...)
}

// jobOptions provides everything the employee job needs on top of infrastructureOptions.
func jobOptions() fx.Option {
	return fx.Options(
		storage.Module,
		local.Module,
		gcs.Module,
		metrics.Module,
		logging.Module,
		usecase.Module,
		appJob.Module,
	)
}

// RunApplication runs the configured job once and returns the process exit code:
// 0 when the execution completed, 1 otherwise. Cancelling ctx stops the job at its
// next chunk boundary.
func RunApplication(ctx context.Context, opts Options) int {
	var (
		cfg      *config.Config
		launcher *usecase.SimpleJobLauncher
		operator usecase.JobOperator
	)
	app := fx.New(
		infrastructureOptions(opts),
		jobOptions(),
		fx.Populate(&cfg, &launcher, &operator),
	)
	if err := app.Err(); err != nil {
		logger.Errorf("Failed to initialize the application: %v", err)
		return 1
	}

	if err := start(ctx, app); err != nil {
		return 1
	}
	defer stop(app)

	return launchJob(ctx, launcher, operator, cfg.Batch.JobName)
}

// launchJob runs jobName and turns a cancellation of ctx into a stop request.
// The launch itself runs on a context that is never cancelled so that the
// execution always reaches a terminal status.
func launchJob(ctx context.Context, launcher *usecase.SimpleJobLauncher, operator usecase.JobOperator, jobName string) int {
	if ctx.Err() != nil {
		logger.Warnf("Job '%s' was not launched: %v", jobName, ctx.Err())
		return 1
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		logger.Warnf("Stop requested. Job '%s' stops at its next chunk boundary.", jobName)
		for {
			if requestStop(launcher, operator) {
				return
			}
			select {
			case <-done:
				return
			case <-time.After(stopPollInterval):
			}
		}
	}()

	jobExecution, err := launcher.Launch(context.WithoutCancel(ctx), jobName)
	if err != nil {
		logger.Errorf("Failed to launch job '%s': %v", jobName, err)
		return 1
	}
	logger.WithFields(logger.Fields{
		"job":    jobName,
		"run_id": jobExecution.ID,
		"status": jobExecution.Status,
	}).Infof("Job '%s' finished with status %s.", jobName, jobExecution.Status)
	return usecase.ExitCode(jobExecution)
}

// requestStop asks every execution running in this process to stop. It reports
// whether there was one.
func requestStop(launcher *usecase.SimpleJobLauncher, operator usecase.JobOperator) bool {
	running := launcher.RunningExecutions()
	for _, runID := range running {
		if err := operator.Stop(context.Background(), runID); err != nil {
			logger.Warnf("Failed to stop JobExecution (ID: %s): %v", runID, err)
		}
	}
	return len(running) > 0
}

func start(ctx context.Context, app *fx.App) error {
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		logger.Errorf("Application start failed: %v", err)
		return err
	}
	return nil
}

func stop(app *fx.App) {
	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("Application stop returned: %v", err)
	}
	logger.Infof("Application is shutting down.")
}
