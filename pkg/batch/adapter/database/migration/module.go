package migration

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/employee-import/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/employee-import/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// SourceGroup is the Fx group collecting migration sources.
const SourceGroup = "migration_sources"

// RunParams defines the dependencies for Run.
type RunParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Cfg       *config.Config
	Resolver  database.DBConnectionResolver
	Sources   []Source `group:"migration_sources"`
}

// Run opens every connection a source refers to and applies the sources whose
// connection has migrate enabled. Opening a connection doubles as the startup
// probe: an unreachable database aborts the application before any job runs.
func Run(ctx context.Context, cfg *config.Config, resolver database.DBConnectionResolver, sources []Source) error {
	for _, src := range sources {
		conn, err := resolver.ResolveDBConnection(ctx, src.DBRef)
		if err != nil {
			return err
		}
		dbConfig, err := gormadapter.LookupDatabaseConfig(cfg, src.DBRef)
		if err != nil {
			return err
		}
		if !dbConfig.Migrate {
			logger.Debugf("Migrations '%s' skipped: migrate is disabled for connection '%s'.", src.Name, src.DBRef)
			continue
		}
		if err := NewMigrator(conn).Up(ctx, src.FS, src.Table); err != nil {
			return fmt.Errorf("migrations '%s': %w", src.Name, err)
		}
	}
	return nil
}

func runOnStart(p RunParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return Run(ctx, p.Cfg, p.Resolver, p.Sources)
		},
	})
}

// NewFrameworkSource provides the batch metadata migrations. They are only needed
// when the job repository is SQL backed.
func NewFrameworkSource(cfg *config.Config) []Source {
	if cfg.Infrastructure.JobRepositoryType != "sql" {
		return nil
	}
	return []Source{{
		Name:  "framework",
		FS:    FrameworkMigrationsFS(),
		Table: FrameworkMigrationsTable,
		DBRef: cfg.Infrastructure.JobRepositoryDBRef,
	}}
}

// Module runs the collected migrations when the application starts.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewFrameworkSource, fx.ResultTags(`group:"migration_sources,flatten"`))),
	fx.Invoke(runOnStart),
)
