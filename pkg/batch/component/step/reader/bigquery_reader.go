package reader

import (
	"context"
	"errors"
	"fmt"
	"io"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/datasus/sihrd/pkg/batch/adapter/bigquery"
	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
	"github.com/datasus/sihrd/pkg/batch/support/util/exception"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// BigQueryRow is one result row keyed by column name.
type BigQueryRow = map[string]bq.Value

// BigQueryReader is an ItemReader over the result of one BigQuery query.
type BigQueryReader[T any] struct {
	querier   bigquery.Querier
	name      string
	query     string
	mapper    func(BigQueryRow) (T, error)
	it        bigquery.RowIterator
	readCount int
	ec        model.ExecutionContext
}

// NewBigQueryReader creates a BigQueryReader. mapper converts each row into T.
func NewBigQueryReader[T any](querier bigquery.Querier, name, query string, mapper func(BigQueryRow) (T, error)) *BigQueryReader[T] {
	return &BigQueryReader[T]{querier: querier, name: name, query: query, mapper: mapper}
}

var _ port.ItemReader[any] = (*BigQueryReader[any])(nil)

// Open runs the query.
func (r *BigQueryReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.ec = ec
	r.readCount = 0
	logger.Infof("BigQueryReader '%s': starting read. Query: %s", r.name, r.query)
	it, err := r.querier.Query(ctx, r.query)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("failed to execute query for BigQueryReader '%s'", r.name), err)
	}
	r.it = it
	return nil
}

// Read returns the next mapped row, or io.EOF after the last one.
func (r *BigQueryReader[T]) Read(ctx context.Context) (T, error) {
	var item T
	if r.it == nil {
		return item, exception.NewBatchError("reader", fmt.Sprintf("BigQueryReader '%s': reader not opened or already closed", r.name), errors.New("reader not initialized"))
	}
	if err := ctx.Err(); err != nil {
		return item, err
	}

	row := BigQueryRow{}
	if err := r.it.Next(&row); err != nil {
		if errors.Is(err, iterator.Done) {
			return item, io.EOF
		}
		return item, exception.NewBatchError("reader", fmt.Sprintf("error during row iteration for BigQueryReader '%s'", r.name), err)
	}
	mapped, err := r.mapper(row)
	if err != nil {
		return item, exception.NewBatchError("reader", fmt.Sprintf("failed to map row %d for BigQueryReader '%s'", r.readCount+1, r.name), err)
	}
	r.readCount++
	if r.ec != nil {
		r.ec.Put(r.name+".readCount", r.readCount)
	}
	return mapped, nil
}

// Close drops the iterator.
func (r *BigQueryReader[T]) Close(ctx context.Context) error {
	if r.it != nil {
		logger.Debugf("BigQueryReader '%s': %d rows read.", r.name, r.readCount)
	}
	r.it = nil
	return nil
}
