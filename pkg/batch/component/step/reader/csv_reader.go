package reader

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/datasus/sihrd/pkg/batch/adapter/storage"
	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
	"github.com/datasus/sihrd/pkg/batch/support/util/exception"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVRecord is one data line keyed by the trimmed header names.
type CSVRecord map[string]string

// CSVReader reads one delimited object from storage. The first line is the header.
type CSVReader[T any] struct {
	conn      storage.StorageExecutor
	name      string
	bucket    string
	object    string
	delimiter rune
	mapper    func(CSVRecord) (T, error)

	body      io.ReadCloser
	csv       *csv.Reader
	header    []string
	line      int
	readCount int
	ec        model.ExecutionContext
}

// NewCSVReader creates a CSVReader. A zero delimiter means comma.
func NewCSVReader[T any](conn storage.StorageExecutor, name, bucket, object string, delimiter rune, mapper func(CSVRecord) (T, error)) *CSVReader[T] {
	if delimiter == 0 {
		delimiter = ','
	}
	return &CSVReader[T]{
		conn:      conn,
		name:      name,
		bucket:    bucket,
		object:    object,
		delimiter: delimiter,
		mapper:    mapper,
	}
}

// Open downloads the object and reads the header line.
func (r *CSVReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.ec = ec
	body, err := r.conn.Download(ctx, r.bucket, r.object)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("CSVReader '%s': failed to open '%s'", r.name, r.object), err)
	}
	r.body = body
	r.csv = csv.NewReader(body)
	r.csv.Comma = r.delimiter
	r.csv.FieldsPerRecord = 0

	header, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("file is empty, a header line is required")
		}
		return exception.NewBatchError("reader", fmt.Sprintf("CSVReader '%s': failed to read header of '%s'", r.name, r.object), err)
	}
	if len(header) > 0 {
		header[0] = string(bytes.TrimPrefix([]byte(header[0]), utf8BOM))
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	r.header = header
	r.line = 1
	logger.Infof("CSVReader '%s': reading '%s' with columns %v.", r.name, r.object, header)
	return nil
}

// Read returns the next mapped line, or io.EOF at the end of the object.
func (r *CSVReader[T]) Read(ctx context.Context) (T, error) {
	var item T
	if r.csv == nil {
		return item, exception.NewBatchError("reader", fmt.Sprintf("CSVReader '%s': reader not opened", r.name), errors.New("reader not initialized"))
	}
	fields, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return item, io.EOF
	}
	r.line++
	if err != nil {
		return item, exception.NewBatchError("reader", fmt.Sprintf("CSVReader '%s': malformed line %d of '%s'", r.name, r.line, r.object), err)
	}

	record := make(CSVRecord, len(r.header))
	for i, col := range r.header {
		record[col] = fields[i]
	}
	mapped, err := r.mapper(record)
	if err != nil {
		return item, exception.NewBatchError("reader", fmt.Sprintf("CSVReader '%s': failed to map line %d of '%s'", r.name, r.line, r.object), err)
	}
	r.readCount++
	if r.ec != nil {
		r.ec.Put(r.name+".readCount", r.readCount)
	}
	return mapped, nil
}

// Close releases the downloaded object.
func (r *CSVReader[T]) Close(ctx context.Context) error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	r.csv = nil
	return err
}

var _ port.ItemReader[any] = (*CSVReader[any])(nil)
