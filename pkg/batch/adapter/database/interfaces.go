// Package database defines the connection, provider and resolver contracts of the
// relational database adapter.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/employee-import/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/employee-import/pkg/batch/core/adapter"
)

// DBConnection represents an abstraction of a database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection // Embeds Type(), Name(), Close()

	// IsTableNotExistError checks if the given error indicates that a table does not exist.
	IsTableNotExistError(err error) bool
	// RefreshConnection pings the pool.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves a named connection, reconnecting when it went stale.
type DBConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider (e.g., "sqlite").
	Type() string
	// ForceReconnect closes and re-opens the named connection.
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is the Fx group collecting all DBProvider implementations.
const DBProviderGroup = "db_providers"
