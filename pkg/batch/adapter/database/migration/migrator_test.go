package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/employee-import/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/employee-import/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
)

func newResolver(t *testing.T, migrate bool) (*config.Config, *gormadapter.GormDBConnectionResolver) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Database = map[string]interface{}{
		"default": map[string]interface{}{
			"type":     "sqlite",
			"database": ":memory:",
			"migrate":  migrate,
			"pool":     map[string]interface{}{"max_open_conns": 1},
		},
	}
	resolver := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{
		DBProviders: []database.DBProvider{sqlite.NewProvider(cfg)},
		Cfg:         cfg,
	})
	t.Cleanup(func() { _ = resolver.CloseAll() })
	return cfg, resolver
}

func tableExists(t *testing.T, resolver database.DBConnectionResolver, table string) bool {
	t.Helper()
	conn, err := resolver.ResolveDBConnection(context.Background(), "default")
	require.NoError(t, err)
	db, err := gormadapter.GormDB(conn)
	require.NoError(t, err)
	return db.Migrator().HasTable(table)
}

func TestRun_AppliesFrameworkMigrationsOnce(t *testing.T) {
	ctx := context.Background()
	cfg, resolver := newResolver(t, true)
	sources := NewFrameworkSource(cfg)
	require.Len(t, sources, 1)

	require.NoError(t, Run(ctx, cfg, resolver, sources))
	assert.True(t, tableExists(t, resolver, "batch_job_execution"))
	assert.True(t, tableExists(t, resolver, "batch_step_execution"))

	// A second run finds nothing to do.
	require.NoError(t, Run(ctx, cfg, resolver, sources))
}

func TestRun_SkipsWhenMigrateDisabled(t *testing.T) {
	cfg, resolver := newResolver(t, false)
	require.NoError(t, Run(context.Background(), cfg, resolver, NewFrameworkSource(cfg)))
	assert.False(t, tableExists(t, resolver, "batch_job_execution"))
}

func TestNewFrameworkSource_OnlyForSQLRepository(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Infrastructure.JobRepositoryType = "inmemory"
	assert.Empty(t, NewFrameworkSource(cfg))
}

func TestRun_UnknownConnection(t *testing.T) {
	cfg, resolver := newResolver(t, true)
	err := Run(context.Background(), cfg, resolver, []Source{{Name: "x", DBRef: "missing"}})
	assert.Error(t, err)
}
