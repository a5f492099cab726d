// Package migration holds the schema of the employee table.
package migration

import (
	"embed"
	"io/fs"

	"go.uber.org/fx"

	"github.com/tigerroll/employee-import/pkg/batch/adapter/database/migration"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
)

//go:embed resource
var rawEmployeeMigrationFS embed.FS

// EmployeeMigrationsFS returns the employee table migrations, one directory per
// database type.
func EmployeeMigrationsFS() fs.FS {
	subFS, err := fs.Sub(rawEmployeeMigrationFS, "resource")
	if err != nil {
		panic(err)
	}
	return subFS
}

// NewEmployeeSource applies the employee migrations on the target connection.
func NewEmployeeSource(cfg *config.Config) migration.Source {
	return migration.Source{
		Name:  "employee",
		FS:    EmployeeMigrationsFS(),
		Table: migration.AppMigrationsTable,
		DBRef: cfg.Infrastructure.TargetDBRef,
	}
}

// Module adds the employee migrations to the migrations run at startup.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewEmployeeSource, fx.ResultTags(`group:"`+migration.SourceGroup+`"`))),
)
