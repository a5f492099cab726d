package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/employee-import/pkg/batch/adapter/database"
	coreAdapter "github.com/tigerroll/employee-import/pkg/batch/core/adapter"
)

// Module provides the connection resolver and the transaction manager factory.
// Concrete providers come from the sqlite, mysql and postgres subpackages.
var Module = fx.Options(
	fx.Provide(NewGormDBConnectionResolver),
	fx.Provide(func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r }),
	fx.Provide(func(r *GormDBConnectionResolver) coreAdapter.ResourceConnectionResolver { return r }),
	fx.Provide(NewTransactionManagerFactory),
	fx.Invoke(func(lc fx.Lifecycle, r *GormDBConnectionResolver) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return r.CloseAll()
			},
		})
	}),
)
