// Package sqlite registers the SQLite dialector and provider.
package sqlite

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/employee-import/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/employee-import/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/employee-import/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/employee-import/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		dsn := ConnectionString(cfg)
		if dsn == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(dsn), nil
	})
}

// ConnectionString returns the file path, or the DSN when one is configured.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	if c.DSN != "" {
		return c.DSN
	}
	return c.Database
}

// SQLiteDBProvider implements database.DBProvider for SQLite connections.
type SQLiteDBProvider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates the SQLite provider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &SQLiteDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "sqlite")}
}
