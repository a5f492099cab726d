package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appMigration "github.com/tigerroll/employee-import/internal/migration"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/employee-import/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/database/migration"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/storage"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/storage/local"
	port "github.com/tigerroll/employee-import/pkg/batch/core/application/port"
	"github.com/tigerroll/employee-import/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
	"github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	coreRepository "github.com/tigerroll/employee-import/pkg/batch/core/domain/repository"
	"github.com/tigerroll/employee-import/pkg/batch/infrastructure/repository"
)

type fixture struct {
	cfg      *config.Config
	resolver *gormadapter.GormDBConnectionResolver
	repo     coreRepository.JobRepository
	dir      string
}

func newFixture(t *testing.T, configure func(cfg *config.Config)) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Database = map[string]interface{}{
		"default": map[string]interface{}{
			"type":     "sqlite",
			"database": filepath.Join(dir, "employee.db"),
			"migrate":  true,
			"pool":     map[string]interface{}{"max_open_conns": 1},
		},
	}
	cfg.Input.Path = filepath.Join(dir, "employees.csv")
	if configure != nil {
		configure(cfg)
	}

	resolver := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{
		DBProviders: []database.DBProvider{sqlite.NewProvider(cfg)},
		Cfg:         cfg,
	})
	t.Cleanup(func() { _ = resolver.CloseAll() })

	sources := append(migration.NewFrameworkSource(cfg), appMigration.NewEmployeeSource(cfg))
	require.NoError(t, migration.Run(context.Background(), cfg, resolver, sources))

	repo, err := repository.NewJobRepository(repository.Params{DBResolver: resolver, Cfg: cfg})
	require.NoError(t, err)

	return &fixture{cfg: cfg, resolver: resolver, repo: repo, dir: dir}
}

func (f *fixture) writeInput(t *testing.T, lines []string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.cfg.Input.Path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func (f *fixture) launch(t *testing.T) *model.JobExecution {
	t.Helper()
	employeeJob, err := NewEmployeeJob(JobParams{
		Cfg:           f.cfg,
		JobRepository: f.repo,
		TxFactory:     gormadapter.NewTransactionManagerFactory(f.resolver),
		Storage:       storage.NewOpener(local.NewLocalAdapter("", "local")),
	})
	require.NoError(t, err)

	launcher := usecase.NewSimpleJobLauncher(f.repo, []port.Job{employeeJob}, 0)
	je, err := launcher.Launch(context.Background(), f.cfg.Batch.JobName)
	require.NoError(t, err)
	return je
}

func (f *fixture) employeeCount(t *testing.T) int64 {
	t.Helper()
	conn, err := f.resolver.ResolveDBConnection(context.Background(), "default")
	require.NoError(t, err)
	db, err := gormadapter.GormDB(conn)
	require.NoError(t, err)
	var n int64
	require.NoError(t, db.Table("employee").Count(&n).Error)
	return n
}

func employeeLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("%d, Employee %d ,Engineer,R&D,%d", i+1, i+1, 20+i)
	}
	return lines
}

func TestEmployeeJob_ImportsAllRecordsInChunks(t *testing.T) {
	f := newFixture(t, nil)
	f.writeInput(t, employeeLines(25))

	je := f.launch(t)

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, 0, usecase.ExitCode(je))
	require.Len(t, je.StepExecutions, 1)
	se := je.StepExecutions[0]
	assert.Equal(t, StepName, se.StepName)
	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, 25, se.ReadCount)
	assert.Equal(t, 25, se.WriteCount)
	assert.Equal(t, 3, se.CommitCount)
	assert.Equal(t, 0, se.RollbackCount)
	assert.Equal(t, int64(25), se.LastCommittedReadOffset)
	assert.Equal(t, int64(25), f.employeeCount(t))

	stored, err := f.repo.FindJobExecutionByID(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
}

func TestEmployeeJob_GeneratesMissingIDs(t *testing.T) {
	f := newFixture(t, nil)
	f.writeInput(t, []string{",Ada,Engineer,R&D,36", ",Bob,Clerk,Ops,41"})

	je := f.launch(t)

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, int64(2), f.employeeCount(t))
}

func TestEmployeeJob_FailsThenResumesFromCommittedOffset(t *testing.T) {
	f := newFixture(t, nil)
	lines := employeeLines(25)
	good := lines[14]
	lines[14] = "15,Broken,Engineer,R&D,not-a-number"
	f.writeInput(t, lines)

	failed := f.launch(t)

	assert.Equal(t, model.BatchStatusFailed, failed.Status)
	assert.Equal(t, 1, usecase.ExitCode(failed))
	require.Len(t, failed.StepExecutions, 1)
	assert.Equal(t, int64(10), failed.StepExecutions[0].LastCommittedReadOffset)
	assert.Equal(t, 1, failed.StepExecutions[0].CommitCount)
	assert.NotEmpty(t, failed.StepExecutions[0].ExitMessage)
	assert.Equal(t, int64(10), f.employeeCount(t))

	lines[14] = good
	f.writeInput(t, lines)

	resumed := f.launch(t)

	assert.Equal(t, model.BatchStatusCompleted, resumed.Status)
	assert.Equal(t, failed.ID, resumed.ResumedFrom)
	require.Len(t, resumed.StepExecutions, 1)
	assert.Equal(t, int64(10), resumed.StepExecutions[0].StartOffset)
	assert.Equal(t, int64(25), resumed.StepExecutions[0].LastCommittedReadOffset)
	assert.Equal(t, 15, resumed.StepExecutions[0].WriteCount)
	assert.Equal(t, int64(25), f.employeeCount(t))
}

func TestEmployeeJob_RestartDisabledStartsOver(t *testing.T) {
	f := newFixture(t, nil)
	f.writeInput(t, []string{"1,Ada,Engineer,R&D,36", "2,Bob,Clerk,Ops,-4"})

	failed := f.launch(t)
	require.Equal(t, model.BatchStatusFailed, failed.Status)
	assert.Equal(t, int64(0), f.employeeCount(t))

	employeeJob, err := NewEmployeeJob(JobParams{
		Cfg:           f.cfg,
		JobRepository: f.repo,
		TxFactory:     gormadapter.NewTransactionManagerFactory(f.resolver),
		Storage:       storage.NewOpener(local.NewLocalAdapter("", "local")),
	})
	require.NoError(t, err)
	launcher := usecase.NewSimpleJobLauncher(f.repo, []port.Job{employeeJob}, 0)
	launcher.SetRestart(false)

	f.writeInput(t, []string{"1,Ada,Engineer,R&D,36", "2,Bob,Clerk,Ops,4"})
	fresh, err := launcher.Launch(context.Background(), f.cfg.Batch.JobName)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, fresh.Status)
	assert.Empty(t, fresh.ResumedFrom)
	assert.Equal(t, int64(2), f.employeeCount(t))
}

func TestEmployeeJob_SkipsMalformedRecordsAndExportsThem(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Batch.ItemSkip.SkipLimit = 5
		cfg.Batch.ItemSkip.SkippableExceptions = []string{"ReadError"}
		cfg.Batch.SkippedExport.Enabled = true
	})
	f.cfg.Batch.SkippedExport.URI = filepath.Join(f.dir, "skipped.parquet")
	lines := employeeLines(12)
	lines[3] = "4,Broken,Engineer,R&D"
	f.writeInput(t, lines)

	je := f.launch(t)

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	se := je.StepExecutions[0]
	assert.Equal(t, 1, se.ReadSkipCount)
	assert.Equal(t, 11, se.WriteCount)
	assert.Equal(t, int64(12), se.LastCommittedReadOffset)
	assert.Equal(t, int64(11), f.employeeCount(t))

	export, err := os.ReadFile(filepath.Join(f.dir, "skipped-"+je.ID+".parquet"))
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(export[:4]))
}

func TestEmployeeJob_DuplicateIDRollsBackTheChunk(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Batch.ChunkSize = 3 })
	f.writeInput(t, []string{
		"1,Ada,Engineer,R&D,36",
		"2,Bob,Clerk,Ops,41",
		"3,Cy,Lead,Ops,29",
		"4,Di,Analyst,Finance,33",
		"4,Ed,Analyst,Finance,35",
	})

	je := f.launch(t)

	assert.Equal(t, model.BatchStatusFailed, je.Status)
	se := je.StepExecutions[0]
	assert.Equal(t, 1, se.CommitCount)
	assert.Equal(t, 1, se.RollbackCount)
	assert.Equal(t, int64(3), se.LastCommittedReadOffset)
	assert.Equal(t, int64(3), f.employeeCount(t), "the failed chunk left no partial rows")
}

func TestNewEmployeeStep_RejectsUnknownSkippableError(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Batch.ItemSkip.SkipLimit = 1
	cfg.Batch.ItemSkip.SkippableExceptions = []string{"NoSuchError"}
	_, err := NewEmployeeStep(JobParams{Cfg: cfg})
	assert.Error(t, err)
}
