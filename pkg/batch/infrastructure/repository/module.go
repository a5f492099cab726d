// Package repository selects the job repository implementation from configuration.
package repository

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/employee-import/pkg/batch/adapter/database"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
	coreRepository "github.com/tigerroll/employee-import/pkg/batch/core/domain/repository"
	"github.com/tigerroll/employee-import/pkg/batch/infrastructure/repository/inmemory"
	sqlRepository "github.com/tigerroll/employee-import/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// Params defines the dependencies for NewJobRepository.
type Params struct {
	fx.In
	DBResolver database.DBConnectionResolver
	Cfg        *config.Config
}

// NewJobRepository returns the repository named by infrastructure.job_repository_type.
// The in-memory repository forgets every execution when the process exits, so
// restart only works with "sql".
func NewJobRepository(p Params) (coreRepository.JobRepository, error) {
	switch p.Cfg.Infrastructure.JobRepositoryType {
	case "sql", "":
		return sqlRepository.NewJobRepository(sqlRepository.JobRepositoryParams{DBResolver: p.DBResolver, Cfg: p.Cfg}), nil
	case "inmemory":
		logger.Warnf("Using the in-memory job repository: executions are not persisted and cannot be restarted.")
		return inmemory.NewInMemoryJobRepository(), nil
	default:
		return nil, fmt.Errorf("unknown job repository type '%s'", p.Cfg.Infrastructure.JobRepositoryType)
	}
}

// Module provides the configured repository.JobRepository.
var Module = fx.Options(
	fx.Provide(NewJobRepository),
)
