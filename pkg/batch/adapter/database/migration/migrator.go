// Package migration applies embedded schema migrations with golang-migrate.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/employee-import/pkg/batch/adapter/database"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// Migration history tables.
const (
	FrameworkMigrationsTable = "batch_framework_migrations"
	AppMigrationsTable       = "batch_app_migrations"
)

// Migrator applies migrations on one connection. Migration files live in a
// directory named after the connection's database type.
type Migrator struct {
	dbConn database.DBConnection
	dbType string
}

// NewMigrator creates a new Migrator for dbConn.
func NewMigrator(dbConn database.DBConnection) *Migrator {
	return &Migrator{
		dbConn: dbConn,
		dbType: dbConn.Type(),
	}
}

// Up applies all pending migrations found under the dialect directory of migrationFS.
// The connection pool of dbConn stays open.
func (m *Migrator) Up(ctx context.Context, migrationFS fs.FS, tableName string) error {
	path := m.dbType
	logger.Infof("Executing migration 'up' on '%s' (Path: %s, Table: %s)", m.dbConn.Name(), path, tableName)

	sqlDB, err := m.dbConn.GetSQLDB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	defer sourceDriver.Close()

	dbDriver, release, err := m.databaseDriver(ctx, sqlDB, tableName)
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	defer release()

	// The migrate instance is not closed: closing it would close the shared pool.
	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := mInstance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if version, dirty, versionErr := mInstance.Version(); versionErr == nil {
			logger.Errorf("Migration stopped at version %d (dirty: %t).", version, dirty)
		}
		return fmt.Errorf("migration failed (DB: %s, Path: %s): %w", m.dbType, path, err)
	}

	version, _, err := mInstance.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	logger.Infof("Migration 'up' completed on '%s' (version %d).", m.dbConn.Name(), version)
	return nil
}

// databaseDriver builds the migrate driver for the dialect. MySQL and PostgreSQL run
// on a dedicated *sql.Conn that release hands back to the pool.
func (m *Migrator) databaseDriver(ctx context.Context, sqlDB *sql.DB, tableName string) (migratedb.Driver, func(), error) {
	noop := func() {}
	switch m.dbType {
	case "sqlite":
		driver, err := sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
		return driver, noop, err
	case "mysql", "postgres":
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			return nil, noop, err
		}
		release := func() { _ = conn.Close() }
		var driver migratedb.Driver
		if m.dbType == "mysql" {
			driver, err = mysql.WithConnection(ctx, conn, &mysql.Config{MigrationsTable: tableName})
		} else {
			driver, err = postgres.WithConnection(ctx, conn, &postgres.Config{MigrationsTable: tableName})
		}
		if err != nil {
			release()
			return nil, noop, err
		}
		return driver, release, nil
	default:
		return nil, noop, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}
