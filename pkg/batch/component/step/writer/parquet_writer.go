package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	pwriter "github.com/xitongsys/parquet-go/writer"

	"github.com/datasus/sihrd/pkg/batch/adapter/storage"
	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
	"github.com/datasus/sihrd/pkg/batch/core/tx"
	"github.com/datasus/sihrd/pkg/batch/support/util/exception"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// ParquetWriterConfig holds the configuration for ParquetWriter.
type ParquetWriterConfig struct {
	// StorageRef is the name of the storage connection.
	StorageRef string `yaml:"storage_ref"`
	// Bucket overrides the bucket of the storage connection.
	Bucket string `yaml:"bucket"`
	// OutputBaseDir is the object prefix the export owns. Everything under it is replaced.
	OutputBaseDir string `yaml:"output_base_dir"`
	// CompressionType is SNAPPY, GZIP or NONE.
	CompressionType string `yaml:"compression_type" default:"SNAPPY"`
}

// ParquetWriter buffers items by partition key and, on Complete, replaces every object
// under OutputBaseDir with one file per partition: <base>/<partition>/part-00000.parquet.
type ParquetWriter[T any] struct {
	name             string
	config           ParquetWriterConfig
	conn             storage.StorageExecutor
	partitionKeyFunc func(T) (string, error)

	buffered      map[string][]T
	totalBuffered int
	ec            model.ExecutionContext
}

// NewParquetWriter creates a ParquetWriter. T must carry parquet struct tags.
func NewParquetWriter[T any](name string, config ParquetWriterConfig, conn storage.StorageExecutor, partitionKeyFunc func(T) (string, error)) (*ParquetWriter[T], error) {
	if strings.Trim(config.OutputBaseDir, "/") == "" {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s' requires a non-root output_base_dir", name), nil)
	}
	if _, err := compressionCodec(config.CompressionType); err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': invalid compression", name), err)
	}
	config.OutputBaseDir = strings.Trim(config.OutputBaseDir, "/")
	return &ParquetWriter[T]{
		name:             name,
		config:           config,
		conn:             conn,
		partitionKeyFunc: partitionKeyFunc,
		buffered:         make(map[string][]T),
	}, nil
}

var (
	_ port.ItemWriter[any] = (*ParquetWriter[any])(nil)
	_ port.Completer       = (*ParquetWriter[any])(nil)
)

// Open clears the buffers.
func (w *ParquetWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	w.ec = ec
	w.buffered = make(map[string][]T)
	w.totalBuffered = 0
	return nil
}

// Write buffers items under their partition key. The transaction is not used.
func (w *ParquetWriter[T]) Write(ctx context.Context, _ tx.Tx, items []T) error {
	for _, item := range items {
		key, err := w.partitionKeyFunc(item)
		if err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': failed to get partition key", w.name), err)
		}
		w.buffered[key] = append(w.buffered[key], item)
	}
	w.totalBuffered += len(items)
	return nil
}

// Complete encodes every partition first, then deletes the previous export and uploads the
// new files. Nothing is deleted if any partition fails to encode.
func (w *ParquetWriter[T]) Complete(ctx context.Context) error {
	codec, _ := compressionCodec(w.config.CompressionType)

	keys := make([]string, 0, len(w.buffered))
	for key := range w.buffered {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	files := make(map[string]*bytes.Buffer, len(keys))
	var encodeErr error
	for _, key := range keys {
		buf, err := w.encode(w.buffered[key], codec)
		if err != nil {
			encodeErr = multierror.Append(encodeErr, fmt.Errorf("partition '%s': %w", key, err))
			continue
		}
		files[key] = buf
	}
	if encodeErr != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': failed to encode partitions", w.name), encodeErr)
	}

	removed, err := storage.DeletePrefix(ctx, w.conn, w.config.Bucket, w.config.OutputBaseDir+"/")
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': failed to clear '%s'", w.name, w.config.OutputBaseDir), err)
	}
	logger.Infof("ParquetWriter '%s': removed %d previous objects under '%s'.", w.name, removed, w.config.OutputBaseDir)

	var uploadErr error
	for _, key := range keys {
		objectName := path.Join(w.config.OutputBaseDir, key, "part-00000.parquet")
		if err := w.conn.Upload(ctx, w.config.Bucket, objectName, files[key], "application/octet-stream"); err != nil {
			uploadErr = multierror.Append(uploadErr, fmt.Errorf("upload '%s': %w", objectName, err))
			continue
		}
		logger.Debugf("ParquetWriter '%s': uploaded %d rows to '%s'.", w.name, len(w.buffered[key]), objectName)
	}
	if uploadErr != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': failed to upload export", w.name), uploadErr)
	}

	if w.ec != nil {
		w.ec.Put(w.name+".partitions", len(keys))
	}
	logger.Infof("ParquetWriter '%s': exported %d rows in %d partitions under '%s'.", w.name, w.totalBuffered, len(keys), w.config.OutputBaseDir)
	return nil
}

func (w *ParquetWriter[T]) encode(items []T, codec parquet.CompressionCodec) (buf *bytes.Buffer, err error) {
	// The library panics on some schema mismatches instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("parquet writer panicked: %v", r)
		}
	}()
	buf = new(bytes.Buffer)
	pw, err := pwriter.NewParquetWriterFromWriter(buf, new(T), 1)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = codec
	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close drops the buffers.
func (w *ParquetWriter[T]) Close(ctx context.Context) error {
	w.buffered = make(map[string][]T)
	w.totalBuffered = 0
	return nil
}

// GetTargetDBName returns the storage connection name.
func (w *ParquetWriter[T]) GetTargetDBName() string { return w.config.StorageRef }

// GetTableName returns the export prefix.
func (w *ParquetWriter[T]) GetTableName() string { return w.config.OutputBaseDir }

func compressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
