// Package storage defines the object storage abstraction used to read lookup CSVs and raw
// parquet files and to write the parquet export. Implementations live in local and gcs.
package storage

import (
	"context"
	"fmt"
	"io"

	storageConfig "github.com/datasus/sihrd/pkg/batch/adapter/storage/config"
	coreAdapter "github.com/datasus/sihrd/pkg/batch/core/adapter"
	coreConfig "github.com/datasus/sihrd/pkg/batch/core/config"
)

// StorageProviderGroup is the Fx value group all StorageProvider implementations are provided into.
const StorageProviderGroup = "storage_providers"

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload writes data to bucket/objectName, replacing any existing object.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens bucket/objectName. The caller closes the reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object under prefix, in lexical order.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject deletes bucket/objectName. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named storage connection.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor

	Config() storageConfig.StorageConfig
}

// StorageProvider opens and caches connections of one storage type.
type StorageProvider interface {
	GetConnection(name string) (StorageConnection, error)
	CloseAll() error
	Type() string
	ForceReconnect(name string) (StorageConnection, error)
}

// StorageConnectionResolver resolves a storage connection by its configured name.
type StorageConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// LookupStorageConfig decodes the "adapter.storage.<name>" entry of cfg.
func LookupStorageConfig(cfg *coreConfig.Config, name string) (storageConfig.StorageConfig, error) {
	var storageCfg storageConfig.StorageConfig
	raw, ok := cfg.StorageAdapterConfigs()[name]
	if !ok {
		return storageCfg, fmt.Errorf("storage configuration '%s' not found in adapter.storage configs", name)
	}
	if err := coreConfig.DecodeSection(raw, &storageCfg); err != nil {
		return storageCfg, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return storageCfg, nil
}

// DeletePrefix removes every object under prefix and returns how many were removed.
func DeletePrefix(ctx context.Context, conn StorageExecutor, bucket, prefix string) (int, error) {
	var names []string
	if err := conn.ListObjects(ctx, bucket, prefix, func(objectName string) error {
		names = append(names, objectName)
		return nil
	}); err != nil {
		return 0, err
	}
	for i, name := range names {
		if err := conn.DeleteObject(ctx, bucket, name); err != nil {
			return i, err
		}
	}
	return len(names), nil
}
