package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
	"github.com/datasus/sihrd/pkg/batch/support/util/exception"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// RowQuerier runs a query and returns a cursor. database.DBConnection satisfies it.
type RowQuerier interface {
	QueryRows(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// RowScanner scans the current row into a struct. database.DBConnection satisfies it.
type RowScanner interface {
	ScanRow(rows *sql.Rows, dest interface{}) error
}

// ScanRowMapper returns a mapper that scans each row into a fresh T using scanner.
func ScanRowMapper[T any](scanner RowScanner) func(*sql.Rows) (T, error) {
	return func(rows *sql.Rows) (T, error) {
		var item T
		err := scanner.ScanRow(rows, &item)
		return item, err
	}
}

// SqlCursorReader is an ItemReader that streams the rows of one query through a cursor.
type SqlCursorReader[T any] struct {
	querier   RowQuerier
	name      string
	query     string
	args      []interface{}
	mapper    func(*sql.Rows) (T, error)
	rows      *sql.Rows
	readCount int
	ec        model.ExecutionContext
}

// NewSqlCursorReader creates a new instance of SqlCursorReader.
func NewSqlCursorReader[T any](querier RowQuerier, name string, query string, args []interface{}, mapper func(*sql.Rows) (T, error)) *SqlCursorReader[T] {
	return &SqlCursorReader[T]{
		querier: querier,
		name:    name,
		query:   query,
		args:    args,
		mapper:  mapper,
	}
}

// Open executes the query.
func (r *SqlCursorReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.ec = ec
	r.readCount = 0
	logger.Infof("SqlCursorReader '%s': starting read. Query: %s", r.name, r.query)

	rows, err := r.querier.QueryRows(ctx, r.query, r.args...)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("failed to execute query for SqlCursorReader '%s'", r.name), err)
	}
	r.rows = rows
	return nil
}

// Read returns the next mapped row, or io.EOF when the cursor is exhausted.
func (r *SqlCursorReader[T]) Read(ctx context.Context) (T, error) {
	var item T
	if r.rows == nil {
		return item, exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s': reader not opened or already closed", r.name), errors.New("reader not initialized"))
	}
	if err := ctx.Err(); err != nil {
		return item, err
	}

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return item, exception.NewBatchError("reader", fmt.Sprintf("error during row iteration for SqlCursorReader '%s'", r.name), err)
		}
		return item, io.EOF
	}

	mapped, err := r.mapper(r.rows)
	if err != nil {
		return item, exception.NewBatchError("reader", fmt.Sprintf("failed to map row %d for SqlCursorReader '%s'", r.readCount+1, r.name), err)
	}
	r.readCount++
	if r.ec != nil {
		r.ec.Put(r.name+".readCount", r.readCount)
	}
	return mapped, nil
}

// Close releases the cursor. Calling it twice is a no-op.
func (r *SqlCursorReader[T]) Close(ctx context.Context) error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("failed to close rows for SqlCursorReader '%s'", r.name), err)
	}
	logger.Debugf("SqlCursorReader '%s': %d rows read, cursor closed.", r.name, r.readCount)
	return nil
}

var _ port.ItemReader[any] = (*SqlCursorReader[any])(nil)
