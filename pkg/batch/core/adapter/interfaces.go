// Package adapter defines the connection abstractions shared by database and storage adapters.
package adapter

import "context"

// ResourceConnection is a named, closable connection to a database or a storage backend.
type ResourceConnection interface {
	Close() error
	// Type returns the backend type (e.g., "sqlite", "gcs").
	Type() string
	// Name returns the configured connection name (e.g., "warehouse").
	Name() string
}

// ResourceProvider opens and caches the connections of one backend type.
type ResourceProvider interface {
	GetConnection(name string) (ResourceConnection, error)
	CloseAll() error
	Type() string
	Name() string
}

// ResourceConnectionResolver resolves a connection by its configured name.
type ResourceConnectionResolver interface {
	ResolveConnection(ctx context.Context, name string) (ResourceConnection, error)
}
