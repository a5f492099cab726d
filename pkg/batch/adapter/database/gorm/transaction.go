package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/employee-import/pkg/batch/adapter/database"
	tx "github.com/tigerroll/employee-import/pkg/batch/core/tx"
)

// GormTxAdapter implements tx.Tx on a GORM transaction.
type GormTxAdapter struct {
	db       *gorm.DB
	connName string
}

// Verify that GormTxAdapter implements tx.Tx.
var _ tx.Tx = (*GormTxAdapter)(nil)

// DB returns the transaction's *gorm.DB.
func (t *GormTxAdapter) DB() *gorm.DB {
	return t.db
}

// ConnectionName returns the name of the connection the transaction was opened on.
func (t *GormTxAdapter) ConnectionName() string {
	return t.connName
}

// Exec implements tx.Tx.
func (t *GormTxAdapter) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result := t.db.WithContext(ctx).Exec(query, args...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Savepoint implements tx.Tx.
func (t *GormTxAdapter) Savepoint(name string) error {
	return t.db.SavePoint(name).Error
}

// RollbackToSavepoint implements tx.Tx.
func (t *GormTxAdapter) RollbackToSavepoint(name string) error {
	return t.db.RollbackTo(name).Error
}

// TxDB returns the GORM transaction carried by ctx when it was opened on connName.
func TxDB(ctx context.Context, connName string) (*gorm.DB, bool) {
	t, ok := tx.TxFromContext(ctx)
	if !ok {
		return nil, false
	}
	g, ok := t.(*GormTxAdapter)
	if !ok || g.connName != connName {
		return nil, false
	}
	return g.db, true
}

// GormTransactionManager implements tx.TransactionManager for one named connection.
type GormTransactionManager struct {
	dbResolver database.DBConnectionResolver
	dbName     string
}

// Verify that GormTransactionManager implements tx.TransactionManager.
var _ tx.TransactionManager = (*GormTransactionManager)(nil)

// NewGormTransactionManager creates a transaction manager for the connection dbName.
func NewGormTransactionManager(dbResolver database.DBConnectionResolver, dbName string) *GormTransactionManager {
	return &GormTransactionManager{dbResolver: dbResolver, dbName: dbName}
}

// Begin implements tx.TransactionManager.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	conn, err := m.dbResolver.ResolveDBConnection(ctx, m.dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DB connection '%s' for transaction: %w", m.dbName, err)
	}
	gormDB, err := GormDB(conn)
	if err != nil {
		return nil, err
	}

	var txOpts *sql.TxOptions
	if len(opts) > 0 && opts[0] != nil {
		txOpts = opts[0]
	}

	gormTx := gormDB.WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", gormTx.Error)
	}
	return &GormTxAdapter{db: gormTx, connName: m.dbName}, nil
}

// Commit implements tx.TransactionManager.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	g, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	return g.db.Commit().Error
}

// Rollback implements tx.TransactionManager. A transaction that database/sql already
// ended, e.g. because its context expired, counts as rolled back.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	g, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	if err := g.db.Rollback().Error; err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// TransactionManagerFactory creates transaction managers bound to named connections.
type TransactionManagerFactory struct {
	dbResolver database.DBConnectionResolver
}

// NewTransactionManagerFactory creates a TransactionManagerFactory.
func NewTransactionManagerFactory(dbResolver database.DBConnectionResolver) *TransactionManagerFactory {
	return &TransactionManagerFactory{dbResolver: dbResolver}
}

// NewTransactionManager returns a transaction manager for dbName.
func (f *TransactionManagerFactory) NewTransactionManager(dbName string) tx.TransactionManager {
	return NewGormTransactionManager(f.dbResolver, dbName)
}
