package writer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	bq "cloud.google.com/go/bigquery"
	"github.com/hashicorp/go-multierror"

	"github.com/datasus/sihrd/pkg/batch/adapter/bigquery"
	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
	"github.com/datasus/sihrd/pkg/batch/core/tx"
	"github.com/datasus/sihrd/pkg/batch/support/util/exception"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// BigQueryLoadWriter spools items as newline-delimited JSON into a temp file and, on
// Complete, replaces dataset.table with one WRITE_TRUNCATE load job. T is encoded with
// encoding/json, so its json tags must match the column names of schema.
type BigQueryLoadWriter[T any] struct {
	name    string
	dbName  string
	dataset string
	table   string
	schema  bq.Schema
	loader  bigquery.Loader

	file    *os.File
	buf     *bufio.Writer
	enc     *json.Encoder
	written int
	ec      model.ExecutionContext
}

// NewBigQueryLoadWriter creates a BigQueryLoadWriter.
func NewBigQueryLoadWriter[T any](name, dbName, dataset, table string, schema bq.Schema, loader bigquery.Loader) *BigQueryLoadWriter[T] {
	return &BigQueryLoadWriter[T]{name: name, dbName: dbName, dataset: dataset, table: table, schema: schema, loader: loader}
}

var (
	_ port.ItemWriter[any] = (*BigQueryLoadWriter[any])(nil)
	_ port.Completer       = (*BigQueryLoadWriter[any])(nil)
)

// Open creates the spool file.
func (w *BigQueryLoadWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	w.ec = ec
	w.written = 0
	f, err := os.CreateTemp("", "sihrd-"+w.table+"-*.ndjson")
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("BigQueryLoadWriter '%s': failed to create spool file", w.name), err)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.enc = json.NewEncoder(w.buf)
	return nil
}

// Write appends items to the spool file. The transaction is not used.
func (w *BigQueryLoadWriter[T]) Write(ctx context.Context, _ tx.Tx, items []T) error {
	if w.enc == nil {
		return exception.NewBatchError("writer", fmt.Sprintf("BigQueryLoadWriter '%s': Write called before Open", w.name), nil)
	}
	for _, item := range items {
		if err := w.enc.Encode(item); err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("BigQueryLoadWriter '%s': failed to encode row %d", w.name, w.written+1), err)
		}
		w.written++
	}
	return nil
}

// Complete flushes the spool file and loads it into the destination table.
func (w *BigQueryLoadWriter[T]) Complete(ctx context.Context) error {
	if w.file == nil {
		return exception.NewBatchError("writer", fmt.Sprintf("BigQueryLoadWriter '%s': Complete called before Open", w.name), nil)
	}
	if err := w.buf.Flush(); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("BigQueryLoadWriter '%s': failed to flush spool file", w.name), err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("BigQueryLoadWriter '%s': failed to rewind spool file", w.name), err)
	}
	err := w.loader.Load(ctx, bigquery.LoadRequest{
		Dataset: w.dataset,
		Table:   w.table,
		Schema:  w.schema,
		Data:    w.file,
	})
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("BigQueryLoadWriter '%s': failed to load %s.%s", w.name, w.dataset, w.table), err)
	}
	if w.ec != nil {
		w.ec.Put(w.name+".published", w.written)
	}
	logger.Infof("BigQueryLoadWriter '%s': published %d rows to %s.%s.", w.name, w.written, w.dataset, w.table)
	return nil
}

// Close removes the spool file.
func (w *BigQueryLoadWriter[T]) Close(ctx context.Context) error {
	if w.file == nil {
		return nil
	}
	var result error
	if err := w.file.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := os.Remove(w.file.Name()); err != nil {
		result = multierror.Append(result, err)
	}
	w.file, w.buf, w.enc = nil, nil, nil
	return result
}

// GetTargetDBName implements port.ItemWriter.
func (w *BigQueryLoadWriter[T]) GetTargetDBName() string { return w.dbName }

// GetTableName implements port.ItemWriter.
func (w *BigQueryLoadWriter[T]) GetTableName() string { return w.dataset + "." + w.table }
