package bigquery

import (
	"context"
	"fmt"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

type clientConnection struct {
	client *bq.Client
	cfg    Config
	name   string
}

// NewConnection opens a BigQuery client for cfg.
func NewConnection(ctx context.Context, cfg Config, name string, opts ...option.ClientOption) (Connection, error) {
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bq.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client for '%s': %w", name, err)
	}
	client.Location = cfg.Location
	logger.Infof("BigQuery connection '%s' opened (project: %s, location: %s).", name, cfg.ProjectID, cfg.Location)
	return &clientConnection{client: client, cfg: cfg, name: name}, nil
}

func (c *clientConnection) Close() error { return c.client.Close() }

func (c *clientConnection) Type() string { return ProviderType }

func (c *clientConnection) Name() string { return c.name }

func (c *clientConnection) Config() Config { return c.cfg }

// Query runs sql as a standard SQL query job and returns its row iterator.
func (c *clientConnection) Query(ctx context.Context, sql string) (RowIterator, error) {
	it, err := c.client.Query(sql).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery query failed: %w", err)
	}
	return it, nil
}

// Load runs a WRITE_TRUNCATE load job and waits for it. BigQuery swaps the table contents
// only when the job succeeds.
func (c *clientConnection) Load(ctx context.Context, req LoadRequest) error {
	source := bq.NewReaderSource(req.Data)
	source.SourceFormat = bq.JSON
	source.Schema = req.Schema

	loader := c.client.Dataset(req.Dataset).Table(req.Table).LoaderFrom(source)
	loader.WriteDisposition = bq.WriteTruncate
	loader.CreateDisposition = bq.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to start load job for %s.%s: %w", req.Dataset, req.Table, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("load job %s for %s.%s failed: %w", job.ID(), req.Dataset, req.Table, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load job %s for %s.%s completed with error: %w", job.ID(), req.Dataset, req.Table, err)
	}
	logger.Infof("BigQuery load job %s replaced %s.%s.", job.ID(), req.Dataset, req.Table)
	return nil
}
