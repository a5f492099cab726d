package gorm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/tigerroll/employee-import/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/employee-import/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

const moduleName = "database"

// connectTimeout bounds the reachability probe done when a connection is opened.
const connectTimeout = 10 * time.Second

// DialectorFactory generates a gorm.Dialector from a dbconfig.DatabaseConfig.
type DialectorFactory func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for the given database type.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory retrieves the DialectorFactory corresponding to the specified DB type.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return factory, nil
}

// BaseProvider opens and caches the connections of one database type.
// Concrete providers embed it and register their dialector in init.
type BaseProvider struct {
	cfg    *config.Config
	dbType string
	// name -> connection
	connections map[string]*GormDBAdapter
	mu          sync.RWMutex
}

// NewBaseProvider creates a new BaseProvider.
func NewBaseProvider(cfg *config.Config, dbType string) *BaseProvider {
	return &BaseProvider{
		cfg:         cfg,
		dbType:      dbType,
		connections: make(map[string]*GormDBAdapter),
	}
}

// Type implements database.DBProvider.
func (p *BaseProvider) Type() string {
	return p.dbType
}

// GetConnection implements database.DBProvider. The connection is opened on first use.
func (p *BaseProvider) GetConnection(name string) (database.DBConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}
	return p.createAndStoreConnection(name)
}

// ForceReconnect implements database.DBProvider.
func (p *BaseProvider) ForceReconnect(name string) (database.DBConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.connections[name]; ok {
		if err := existing.Close(); err != nil {
			logger.Warnf("Failed to close existing connection '%s' before reconnect: %v", name, err)
		}
		delete(p.connections, name)
	}
	conn, err := p.createAndStoreConnection(name)
	if err != nil {
		return nil, err
	}
	logger.Infof("Re-established DB connection: %s (%s)", name, p.dbType)
	return conn, nil
}

// CloseAll implements database.DBProvider.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close connection '%s': %v", name, err)
			result = multierror.Append(result, err)
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

func (p *BaseProvider) createAndStoreConnection(name string) (*GormDBAdapter, error) {
	dbConfig, err := LookupDatabaseConfig(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if dbConfig.Type != p.dbType {
		return nil, fmt.Errorf("provider type mismatch: expected '%s', got '%s' for connection '%s'", p.dbType, dbConfig.Type, name)
	}

	gormDB, err := Open(dbConfig, p.cfg.System.Logging.Level)
	if err != nil {
		return nil, err
	}
	conn, err := NewGormDBAdapter(gormDB, dbConfig, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Infof("Established new DB connection: %s (%s)", name, p.dbType)
	return conn, nil
}

// LookupDatabaseConfig decodes the named entry of the database section.
func LookupDatabaseConfig(cfg *config.Config, name string) (dbconfig.DatabaseConfig, error) {
	raw, ok := cfg.Database[name]
	if !ok {
		return dbconfig.DatabaseConfig{}, fmt.Errorf("database configuration '%s' not found", name)
	}
	dbConfig, err := dbconfig.Decode(raw)
	if err != nil {
		return dbconfig.DatabaseConfig{}, fmt.Errorf("database configuration '%s': %w", name, err)
	}
	return dbConfig, nil
}

// Open opens a pool for dbConfig, applies the pool settings and probes the server.
// An unreachable server yields a ConnectionError.
func Open(dbConfig dbconfig.DatabaseConfig, logLevel string) (*gorm.DB, error) {
	dialectorFactory, err := GetDialectorFactory(dbConfig.Type)
	if err != nil {
		return nil, exception.NewConnectionError(moduleName, "couldn't connect", err)
	}
	dialector, err := dialectorFactory(dbConfig)
	if err != nil {
		return nil, exception.NewConnectionError(moduleName, "couldn't connect", err)
	}

	logger.Infof("Trying to connect to database %s ...", dbConfig.Redacted())

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:               NewGormLogger(logLevel),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, exception.NewConnectionError(moduleName, "couldn't connect", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, exception.NewConnectionError(moduleName, "couldn't connect", err)
	}

	if dbConfig.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbConfig.Pool.MaxOpenConns)
	}
	if dbConfig.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbConfig.Pool.MaxIdleConns)
	}
	if dbConfig.Pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(dbConfig.Pool.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, exception.NewConnectionError(moduleName, "couldn't connect", err)
	}
	logger.Infof("Connected successfully to %s.", dbConfig.Redacted())
	return db, nil
}
