// Package writer provides the item writers of the pipeline. Every writer here replaces its
// target as a whole: rows go to a staging location during the step and are published
// once, by Complete, after the last chunk has committed.
package writer

import (
	"context"
	"fmt"

	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
	"github.com/datasus/sihrd/pkg/batch/core/tx"
	"github.com/datasus/sihrd/pkg/batch/support/util/exception"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// StagingSuffix is appended to the target table name to form the staging table name.
const StagingSuffix = "__staging"

// SqlTableWriter writes items of type T into a staging table and, on Complete, swaps it in
// place of the target table inside one transaction. T is a struct with gorm column tags.
type SqlTableWriter[T any] struct {
	name         string
	dbName       string
	tableName    string
	stagingTable string
	bulkSize     int
	schema       tx.SchemaExecutor
	txManager    tx.TransactionManager

	written   int
	opened    bool
	published bool
	ec        model.ExecutionContext
}

// NewSqlTableWriter creates a SqlTableWriter. schema runs the staging DDL outside chunk
// transactions; txManager runs the publish transaction.
func NewSqlTableWriter[T any](name, dbName, tableName string, bulkSize int, schema tx.SchemaExecutor, txManager tx.TransactionManager) *SqlTableWriter[T] {
	if bulkSize <= 0 {
		bulkSize = 200
	}
	return &SqlTableWriter[T]{
		name:         name,
		dbName:       dbName,
		tableName:    tableName,
		stagingTable: tableName + StagingSuffix,
		bulkSize:     bulkSize,
		schema:       schema,
		txManager:    txManager,
	}
}

var (
	_ port.ItemWriter[any] = (*SqlTableWriter[any])(nil)
	_ port.Completer       = (*SqlTableWriter[any])(nil)
)

// Open recreates an empty staging table. A staging table left by an aborted run is dropped.
func (w *SqlTableWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	w.ec = ec
	w.written = 0
	w.published = false

	if err := w.schema.DropTable(ctx, w.stagingTable); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("SqlTableWriter '%s': failed to drop stale staging table '%s'", w.name, w.stagingTable), err)
	}
	if err := w.schema.CreateTable(ctx, new(T), w.stagingTable); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("SqlTableWriter '%s': failed to create staging table '%s'", w.name, w.stagingTable), err)
	}
	w.opened = true
	logger.Infof("SqlTableWriter '%s': staging into '%s' for '%s'.", w.name, w.stagingTable, w.tableName)
	return nil
}

// Write inserts items into the staging table within the chunk transaction.
func (w *SqlTableWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	for start := 0; start < len(items); start += w.bulkSize {
		end := start + w.bulkSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		if _, err := t.ExecuteUpdate(ctx, &batch, "CREATE", w.stagingTable, nil); err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("SqlTableWriter '%s': failed to insert %d rows into '%s'", w.name, len(batch), w.stagingTable), err)
		}
	}
	w.written += len(items)
	logger.Debugf("SqlTableWriter '%s': %d rows staged so far.", w.name, w.written)
	return nil
}

// Complete drops the target and renames the staging table to it in one transaction.
func (w *SqlTableWriter[T]) Complete(ctx context.Context) error {
	if !w.opened {
		return exception.NewBatchError("writer", fmt.Sprintf("SqlTableWriter '%s': Complete called before Open", w.name), nil)
	}
	t, err := w.txManager.Begin(ctx)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("SqlTableWriter '%s': failed to begin publish transaction", w.name), err)
	}

	publish := func() error {
		if err := t.DropTable(ctx, w.tableName); err != nil {
			return fmt.Errorf("drop '%s': %w", w.tableName, err)
		}
		if err := t.RenameTable(ctx, w.stagingTable, w.tableName); err != nil {
			return fmt.Errorf("rename '%s' to '%s': %w", w.stagingTable, w.tableName, err)
		}
		return nil
	}
	if err := publish(); err != nil {
		if rbErr := w.txManager.Rollback(t); rbErr != nil {
			logger.Errorf("SqlTableWriter '%s': rollback of publish failed: %v", w.name, rbErr)
		}
		return exception.NewBatchError("writer", fmt.Sprintf("SqlTableWriter '%s': failed to publish '%s'", w.name, w.tableName), err)
	}
	if err := w.txManager.Commit(t); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("SqlTableWriter '%s': failed to commit publish of '%s'", w.name, w.tableName), err)
	}

	w.published = true
	if w.ec != nil {
		w.ec.Put(w.name+".published", w.written)
	}
	logger.Infof("SqlTableWriter '%s': published %d rows to '%s'.", w.name, w.written, w.tableName)
	return nil
}

// Close drops the staging table when the step ends without publishing.
func (w *SqlTableWriter[T]) Close(ctx context.Context) error {
	if !w.opened || w.published {
		return nil
	}
	w.opened = false
	if err := w.schema.DropTable(ctx, w.stagingTable); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("SqlTableWriter '%s': failed to drop staging table '%s'", w.name, w.stagingTable), err)
	}
	logger.Warnf("SqlTableWriter '%s': step ended without publishing; '%s' left untouched.", w.name, w.tableName)
	return nil
}

// GetTargetDBName implements port.ItemWriter.
func (w *SqlTableWriter[T]) GetTargetDBName() string { return w.dbName }

// GetTableName implements port.ItemWriter.
func (w *SqlTableWriter[T]) GetTableName() string { return w.tableName }
