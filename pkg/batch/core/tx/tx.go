// Package tx abstracts the transactions a chunk is written in, so that item writers
// can be used against SQL warehouses and non-transactional sinks alike.
package tx

import (
	"context"
	"database/sql"
)

// TxExecutor defines the write operations available inside a transaction.
type TxExecutor interface {
	// ExecuteUpdate performs a write on tableName. operation is "CREATE", "UPDATE" or "DELETE";
	// query holds the AND-ed column conditions of UPDATE and DELETE.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)
}

// SchemaExecutor defines the DDL needed to stage and publish a table.
type SchemaExecutor interface {
	// CreateTable creates tableName with the columns of model. It fails if the table exists.
	CreateTable(ctx context.Context, model interface{}, tableName string) error
	// DropTable drops tableName if it exists.
	DropTable(ctx context.Context, tableName string) error
	// RenameTable renames oldName to newName.
	RenameTable(ctx context.Context, oldName, newName string) error
	// HasTable reports whether tableName exists.
	HasTable(ctx context.Context, tableName string) (bool, error)
}

// Tx represents an ongoing transaction.
type Tx interface {
	TxExecutor
	SchemaExecutor
}

// TransactionManager manages the lifecycle of transactions.
type TransactionManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(tx Tx) error
	Rollback(tx Tx) error
}

// NoOpTransactionManager hands out transactions that do nothing.
// It backs steps whose writers manage durability themselves (files, object storage, load jobs).
type NoOpTransactionManager struct{}

// NewNoOpTransactionManager creates a NoOpTransactionManager.
func NewNoOpTransactionManager() TransactionManager {
	return &NoOpTransactionManager{}
}

// Begin implements TransactionManager.
func (m *NoOpTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error) {
	return noOpTx{}, nil
}

// Commit implements TransactionManager.
func (m *NoOpTransactionManager) Commit(tx Tx) error { return nil }

// Rollback implements TransactionManager.
func (m *NoOpTransactionManager) Rollback(tx Tx) error { return nil }

type noOpTx struct{}

func (noOpTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	return 0, nil
}
func (noOpTx) CreateTable(ctx context.Context, model interface{}, tableName string) error { return nil }
func (noOpTx) DropTable(ctx context.Context, tableName string) error                     { return nil }
func (noOpTx) RenameTable(ctx context.Context, oldName, newName string) error            { return nil }
func (noOpTx) HasTable(ctx context.Context, tableName string) (bool, error)               { return false, nil }

var _ Tx = noOpTx{}
