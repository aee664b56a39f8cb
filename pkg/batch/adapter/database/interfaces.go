// Package database defines the connection abstractions used by SQL readers, writers and
// migrations. pkg/batch/adapter/database/gorm implements them.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/datasus/sihrd/pkg/batch/adapter/database/config"
	coreAdapter "github.com/datasus/sihrd/pkg/batch/core/adapter"
	"github.com/datasus/sihrd/pkg/batch/core/tx"
)

// DBProviderGroup is the Fx value group all DBProvider implementations are provided into.
const DBProviderGroup = "db_providers"

// DBExecutor defines the operations available on a connection outside a managed transaction.
type DBExecutor interface {
	tx.TxExecutor
	tx.SchemaExecutor

	// QueryRows runs a raw SELECT and returns a cursor the caller must close.
	QueryRows(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	// ScanRow scans the current row of rows into dest, matching columns by gorm column names.
	ScanRow(rows *sql.Rows, dest interface{}) error
	// Count counts the rows of tableName matching query.
	Count(ctx context.Context, tableName string, query map[string]interface{}) (int64, error)
}

// DBConnection is a named database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection
	DBExecutor

	// IsTableNotExistError checks if the given error indicates that a table does not exist.
	IsTableNotExistError(err error) bool
	// RefreshConnection pings the database.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves a healthy connection by its configured name.
type DBConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	GetConnection(name string) (DBConnection, error)
	CloseAll() error
	Type() string
	// ForceReconnect closes and re-establishes the named connection.
	ForceReconnect(name string) (DBConnection, error)
	// OpenDedicated opens an uncached connection that the caller owns and closes.
	OpenDedicated(name string) (DBConnection, error)
}

// TransactionManagerFactory creates a TransactionManager bound to a connection.
type TransactionManagerFactory interface {
	NewTransactionManager(conn DBConnection) tx.TransactionManager
}
