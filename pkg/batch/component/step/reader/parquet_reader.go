package reader

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go-source/buffer"
	preader "github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"

	"github.com/datasus/sihrd/pkg/batch/adapter/storage"
	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
	"github.com/datasus/sihrd/pkg/batch/support/util/exception"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

const defaultParquetBatchSize = 1000

// ParquetReader reads every parquet object under a storage prefix whose base name matches
// pattern, in lexical object order. T is a struct with parquet tags; columns are matched by name.
type ParquetReader[T any] struct {
	conn      storage.StorageExecutor
	name      string
	bucket    string
	prefix    string
	pattern   string
	batchSize int

	objects   []string
	objectIdx int
	file      source.ParquetFile
	pr        *preader.ParquetReader
	remaining int64
	batch     []T
	batchPos  int
	readCount int
	ec        model.ExecutionContext
}

// NewParquetReader creates a ParquetReader. An empty pattern matches "*.parquet".
func NewParquetReader[T any](conn storage.StorageExecutor, name, bucket, prefix, pattern string) *ParquetReader[T] {
	if pattern == "" {
		pattern = "*.parquet"
	}
	return &ParquetReader[T]{
		conn:      conn,
		name:      name,
		bucket:    bucket,
		prefix:    prefix,
		pattern:   pattern,
		batchSize: defaultParquetBatchSize,
	}
}

// Open lists the objects to read. A prefix without matching objects is an error, so that a
// misconfigured source cannot publish an empty table.
func (r *ParquetReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.ec = ec
	r.objects = nil
	r.objectIdx = 0
	err := r.conn.ListObjects(ctx, r.bucket, r.prefix, func(objectName string) error {
		matched, err := path.Match(r.pattern, path.Base(objectName))
		if err != nil {
			return err
		}
		if matched {
			r.objects = append(r.objects, objectName)
		}
		return nil
	})
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("ParquetReader '%s': failed to list '%s'", r.name, r.prefix), err)
	}
	if len(r.objects) == 0 {
		return exception.NewBatchError("reader", fmt.Sprintf("ParquetReader '%s': no object under '%s' matches '%s'", r.name, r.prefix, r.pattern), nil)
	}
	logger.Infof("ParquetReader '%s': %d objects to read under '%s'.", r.name, len(r.objects), r.prefix)
	return nil
}

// Read returns the next row, moving on to the next object when the current one is exhausted.
func (r *ParquetReader[T]) Read(ctx context.Context) (T, error) {
	var item T
	for r.batchPos >= len(r.batch) {
		if err := ctx.Err(); err != nil {
			return item, err
		}
		if r.pr != nil && r.remaining > 0 {
			if err := r.readBatch(); err != nil {
				return item, err
			}
			continue
		}
		r.closeCurrent()
		if r.objectIdx >= len(r.objects) {
			return item, io.EOF
		}
		if err := r.openObject(ctx, r.objects[r.objectIdx]); err != nil {
			return item, err
		}
		r.objectIdx++
	}

	item = r.batch[r.batchPos]
	r.batchPos++
	r.readCount++
	if r.ec != nil {
		r.ec.Put(r.name+".readCount", r.readCount)
	}
	return item, nil
}

func (r *ParquetReader[T]) openObject(ctx context.Context, objectName string) error {
	body, err := r.conn.Download(ctx, r.bucket, objectName)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("ParquetReader '%s': failed to download '%s'", r.name, objectName), err)
	}
	data, err := io.ReadAll(body)
	var result *multierror.Error
	if err != nil {
		result = multierror.Append(result, err)
	}
	if closeErr := body.Close(); closeErr != nil {
		result = multierror.Append(result, closeErr)
	}
	if err := result.ErrorOrNil(); err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("ParquetReader '%s': failed to read '%s'", r.name, objectName), err)
	}

	file, err := buffer.NewBufferFile(data)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("ParquetReader '%s': failed to buffer '%s'", r.name, objectName), err)
	}
	pr, err := preader.NewParquetReader(file, new(T), 1)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("ParquetReader '%s': '%s' is not a readable parquet file", r.name, objectName), err)
	}
	r.file = file
	r.pr = pr
	r.remaining = pr.GetNumRows()
	logger.Debugf("ParquetReader '%s': '%s' has %d rows.", r.name, objectName, r.remaining)
	return nil
}

func (r *ParquetReader[T]) readBatch() error {
	n := int64(r.batchSize)
	if r.remaining < n {
		n = r.remaining
	}
	rows := make([]T, n)
	if err := r.pr.Read(&rows); err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("ParquetReader '%s': failed to decode rows", r.name), err)
	}
	r.remaining -= n
	r.batch = rows
	r.batchPos = 0
	return nil
}

func (r *ParquetReader[T]) closeCurrent() {
	if r.pr != nil {
		r.pr.ReadStop()
		r.pr = nil
	}
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}
	r.batch = nil
	r.batchPos = 0
	r.remaining = 0
}

// Close releases the object being read.
func (r *ParquetReader[T]) Close(ctx context.Context) error {
	r.closeCurrent()
	return nil
}

var _ port.ItemReader[any] = (*ParquetReader[any])(nil)
