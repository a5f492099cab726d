// Package sql implements the job repository on the relational store through GORM.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/tigerroll/employee-import/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/employee-import/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
	"github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/employee-import/pkg/batch/core/domain/repository"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// SQLJobRepository stores executions in batch_job_execution and batch_step_execution.
//
// Updates are guarded by the version column. When ctx carries a transaction opened on
// the same connection, writes join it, so a chunk's data and its step progress commit
// together.
type SQLJobRepository struct {
	dbResolver database.DBConnectionResolver
	dbName     string
}

// Verify that SQLJobRepository implements repository.JobRepository.
var _ repository.JobRepository = (*SQLJobRepository)(nil)

// NewSQLJobRepository creates a repository on the connection dbName.
func NewSQLJobRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLJobRepository {
	return &SQLJobRepository{dbResolver: dbResolver, dbName: dbName}
}

func (r *SQLJobRepository) db(ctx context.Context) (*gorm.DB, error) {
	if txDB, ok := gormadapter.TxDB(ctx, r.dbName); ok {
		return txDB.WithContext(ctx), nil
	}
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, err
	}
	db, err := gormadapter.GormDB(conn)
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx), nil
}

// CreateJobExecution implements repository.JobExecution.
func (r *SQLJobRepository) CreateJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error) {
	const op = "SQLJobRepository.CreateJobExecution"
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}
	je := model.NewJobExecution(jobName)
	if err := db.Create(fromDomainJobExecution(je)).Error; err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to save JobExecution (ID: %s)", je.ID), err, false, true)
	}
	return je, nil
}

// UpdateJobExecution implements repository.JobExecution.
func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobRepository.UpdateJobExecution"
	db, err := r.db(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	result := db.Model(&JobExecutionEntity{}).
		Where("id = ? AND version = ?", jobExecution.ID, jobExecution.Version).
		Updates(jobExecutionColumns(jobExecution, now))
	if result.Error != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to update JobExecution (ID: %s)", jobExecution.ID), result.Error, false, true)
	}
	if result.RowsAffected == 0 {
		return exception.NewOptimisticLockingFailureException(op,
			fmt.Sprintf("JobExecution (ID: %s) with version %d not found for update", jobExecution.ID, jobExecution.Version), nil)
	}
	jobExecution.Version++
	jobExecution.LastUpdated = now
	return nil
}

// FindJobExecutionByID implements repository.JobExecution.
func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, runID string) (*model.JobExecution, error) {
	const op = "SQLJobRepository.FindJobExecutionByID"
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}

	var entity JobExecutionEntity
	if err := db.Where("id = ?", runID).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrJobExecutionNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobExecution (ID: %s)", runID), err, false, true)
	}
	return r.withSteps(db, &entity)
}

// FindLastUnfinishedExecution implements repository.JobExecution.
func (r *SQLJobRepository) FindLastUnfinishedExecution(ctx context.Context, jobName string) (*model.JobExecution, error) {
	const op = "SQLJobRepository.FindLastUnfinishedExecution"
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}

	var entities []JobExecutionEntity
	err = db.Where("job_name = ?", jobName).
		Order("create_time DESC").
		Order("id DESC").
		Limit(1).
		Find(&entities).Error
	if err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find last execution of job '%s'", jobName), err, false, true)
	}
	if len(entities) == 0 || !entities[0].Status.IsUnfinished() {
		return nil, nil
	}
	return r.withSteps(db, &entities[0])
}

func (r *SQLJobRepository) withSteps(db *gorm.DB, entity *JobExecutionEntity) (*model.JobExecution, error) {
	var steps []StepExecutionEntity
	err := db.Where("job_execution_id = ?", entity.ID).
		Order("start_time ASC").
		Order("id ASC").
		Find(&steps).Error
	if err != nil {
		return nil, exception.NewBatchError("SQLJobRepository", fmt.Sprintf("failed to load step executions of JobExecution (ID: %s)", entity.ID), err, false, true)
	}
	je := toDomainJobExecution(entity)
	for i := range steps {
		je.StepExecutions = append(je.StepExecutions, toDomainStepExecution(&steps[i]))
	}
	return je, nil
}

// CreateStepExecution implements repository.StepExecution.
func (r *SQLJobRepository) CreateStepExecution(ctx context.Context, runID, stepName string) (*model.StepExecution, error) {
	const op = "SQLJobRepository.CreateStepExecution"
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := db.Model(&JobExecutionEntity{}).Where("id = ?", runID).Count(&count).Error; err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to look up JobExecution (ID: %s)", runID), err, false, true)
	}
	if count == 0 {
		return nil, exception.NewBatchError(op, fmt.Sprintf("JobExecution (ID: %s) not found", runID), repository.ErrJobExecutionNotFound, false, false)
	}

	se := model.NewStepExecution(runID, stepName)
	if err := db.Create(fromDomainStepExecution(se)).Error; err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to save StepExecution (ID: %s)", se.ID), err, false, true)
	}
	return se, nil
}

// UpdateStepExecution implements repository.StepExecution.
func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SQLJobRepository.UpdateStepExecution"
	db, err := r.db(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	result := db.Model(&StepExecutionEntity{}).
		Where("id = ? AND version = ?", stepExecution.ID, stepExecution.Version).
		Updates(stepExecutionColumns(stepExecution, now))
	if result.Error != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to update StepExecution (ID: %s)", stepExecution.ID), result.Error, false, true)
	}
	if result.RowsAffected == 0 {
		return exception.NewOptimisticLockingFailureException(op,
			fmt.Sprintf("StepExecution (ID: %s) with version %d not found for update", stepExecution.ID, stepExecution.Version), nil)
	}
	stepExecution.Version++
	stepExecution.LastUpdated = now
	return nil
}

// Close implements repository.JobRepository.
// The connection belongs to its provider and is closed with it.
func (r *SQLJobRepository) Close() error {
	return nil
}

// JobRepositoryParams defines the dependencies required to create a NewJobRepository.
type JobRepositoryParams struct {
	fx.In
	DBResolver database.DBConnectionResolver
	Cfg        *config.Config
}

// NewJobRepository creates the repository on infrastructure.job_repository_db_ref.
func NewJobRepository(p JobRepositoryParams) repository.JobRepository {
	dbName := p.Cfg.Infrastructure.JobRepositoryDBRef
	if dbName == "" {
		dbName = "default"
	}
	if dbName != p.Cfg.Infrastructure.TargetDBRef {
		logger.Warnf("Job repository connection '%s' differs from the target connection '%s'; step progress is committed separately from chunk data.",
			dbName, p.Cfg.Infrastructure.TargetDBRef)
	}
	return NewSQLJobRepository(p.DBResolver, dbName)
}
