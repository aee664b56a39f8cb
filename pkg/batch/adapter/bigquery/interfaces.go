// Package bigquery provides named BigQuery connections: a query iterator for readers and a
// load job runner for writers.
package bigquery

import (
	"context"
	"fmt"
	"io"

	bq "cloud.google.com/go/bigquery"

	coreAdapter "github.com/datasus/sihrd/pkg/batch/core/adapter"
	coreConfig "github.com/datasus/sihrd/pkg/batch/core/config"
)

// ProviderType is the Type() of every BigQuery connection.
const ProviderType = "bigquery"

// Config holds the settings of one adapter.bigquery entry.
type Config struct {
	// ProjectID is the billing project and the default project of unqualified tables.
	ProjectID string `yaml:"project_id"`
	// Location is the job location (e.g., "US", "southamerica-east1").
	Location string `yaml:"location" default:"US"`
	// CredentialsFile is a service account key file. Empty means application default credentials.
	CredentialsFile string `yaml:"credentials_file"`
}

// RowIterator yields query result rows. *bigquery.RowIterator satisfies it.
type RowIterator interface {
	// Next loads the next row into dst and returns iterator.Done after the last one.
	Next(dst interface{}) error
}

// Querier runs read queries.
type Querier interface {
	Query(ctx context.Context, sql string) (RowIterator, error)
}

// LoadRequest describes one load job into dataset.table.
type LoadRequest struct {
	Dataset string
	Table   string
	Schema  bq.Schema
	// Data is newline-delimited JSON.
	Data io.Reader
}

// Loader runs load jobs that replace the destination table.
type Loader interface {
	Load(ctx context.Context, req LoadRequest) error
}

// Connection is a named BigQuery connection.
type Connection interface {
	coreAdapter.ResourceConnection
	Querier
	Loader
	Config() Config
}

// LookupConfig decodes adapter.bigquery.<name>.
func LookupConfig(cfg *coreConfig.Config, name string) (Config, error) {
	var c Config
	raw, ok := cfg.BigQueryAdapterConfigs()[name]
	if !ok {
		return c, fmt.Errorf("bigquery configuration '%s' not found in adapter.bigquery configs", name)
	}
	if err := coreConfig.DecodeSection(raw, &c); err != nil {
		return c, fmt.Errorf("failed to decode bigquery config for '%s': %w", name, err)
	}
	if c.ProjectID == "" {
		return c, fmt.Errorf("bigquery configuration '%s' requires project_id", name)
	}
	return c, nil
}
