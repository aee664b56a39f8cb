// Package app wires the SIH/RD pipeline into an fx application: configuration, the
// database, storage and BigQuery adapters, metrics, the warehouse and the flow job.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	appconfig "github.com/datasus/sihrd/internal/config"
	"github.com/datasus/sihrd/internal/job"
	"github.com/datasus/sihrd/internal/migrations"
	"github.com/datasus/sihrd/internal/sihrd"
	"github.com/datasus/sihrd/internal/warehouse"
	"github.com/datasus/sihrd/pkg/batch/adapter/bigquery"
	"github.com/datasus/sihrd/pkg/batch/adapter/database"
	gormadapter "github.com/datasus/sihrd/pkg/batch/adapter/database/gorm"
	"github.com/datasus/sihrd/pkg/batch/adapter/database/gorm/mysql"
	"github.com/datasus/sihrd/pkg/batch/adapter/database/gorm/postgres"
	"github.com/datasus/sihrd/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/datasus/sihrd/pkg/batch/adapter/storage"
	"github.com/datasus/sihrd/pkg/batch/adapter/storage/gcs"
	"github.com/datasus/sihrd/pkg/batch/adapter/storage/local"
	coreConfig "github.com/datasus/sihrd/pkg/batch/core/config"
	"github.com/datasus/sihrd/pkg/batch/core/job/runner"
	"github.com/datasus/sihrd/pkg/batch/core/metrics"
	infraMetrics "github.com/datasus/sihrd/pkg/batch/infrastructure/metrics"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// Options are the inputs of one application run.
type Options struct {
	// EnvFilePath is the .env file loaded before the configuration. Empty means ./.env.
	EnvFilePath string
	// Config is the application.yaml content.
	Config coreConfig.EmbeddedConfig
	// Steps selects the steps to run. Empty runs trusted and refined plus every optional
	// step enabled in configuration.
	Steps []string
	// ProcessingDate overrides application.sihrd.processing_date (YYYY-MM-DD).
	ProcessingDate string
	// LogLevel overrides surfin.system.logging.level.
	LogLevel string
}

// New returns the fx options of an application that runs the selected steps once and
// then shuts itself down. The exit code of the shutdown signal is 0 when the job
// completed and 1 otherwise.
func New(appCtx context.Context, opts Options) []fx.Option {
	return []fx.Option{
		fx.Supply(
			opts,
			opts.Config,
			coreConfig.EnvFilePath(opts.EnvFilePath),
			fx.Annotate(appCtx, fx.As(new(context.Context)), fx.ResultTags(`name:"appCtx"`)),
		),
		logger.Module,
		coreConfig.Module,
		infraMetrics.Module,
		gormadapter.Module,
		sqlite.Module,
		postgres.Module,
		mysql.Module,
		storage.Module,
		local.Module,
		gcs.Module,
		bigquery.Module,
		Module,
	}
}

// Module provides the pipeline components on top of the framework modules.
var Module = fx.Options(
	fx.Invoke(applyLogLevel),
	fx.Provide(
		NewSettings,
		NewLocation,
		NewClock,
		NewSelection,
		NewWarehouse,
		NewJob,
		NewResult,
	),
	fx.Invoke(fx.Annotate(startJob, fx.ParamTags("", "", "", "", `name:"appCtx"`))),
)

func applyLogLevel(cfg *coreConfig.Config, opts Options) {
	if opts.LogLevel != "" {
		logger.SetLogLevel(opts.LogLevel)
		logger.Debugf("Log level overridden to %s.", opts.LogLevel)
	}
}

// NewSettings loads application.sihrd and applies the processing date override.
func NewSettings(cfg *coreConfig.Config, opts Options) (*appconfig.Settings, error) {
	s, err := appconfig.Load(cfg)
	if err != nil {
		return nil, err
	}
	if opts.ProcessingDate != "" {
		s.ProcessingDate = opts.ProcessingDate
	}
	return s, nil
}

// NewLocation loads the reference timezone.
func NewLocation(s *appconfig.Settings) (*time.Location, error) {
	return sihrd.LoadReferenceLocation(s.Timezone)
}

// NewClock returns a clock fixed at the configured processing date, or the system clock.
func NewClock(s *appconfig.Settings, loc *time.Location) (sihrd.Clock, error) {
	if s.ProcessingDate == "" {
		return sihrd.SystemClock{}, nil
	}
	at, err := sihrd.ParseProcessingDate(s.ProcessingDate, loc)
	if err != nil {
		return nil, err
	}
	return sihrd.FixedClock{At: at}, nil
}

// NewSelection returns the steps named in opts, or the full run of s.
func NewSelection(s *appconfig.Settings, opts Options) job.Selection {
	if len(opts.Steps) == 0 {
		return job.FullRun(s)
	}
	return job.Select(opts.Steps...)
}

// WarehouseParams defines the dependencies of NewWarehouse.
type WarehouseParams struct {
	fx.In
	Ctx       context.Context `name:"appCtx"`
	Cfg       *coreConfig.Config
	Settings  *appconfig.Settings
	DB        database.DBConnectionResolver
	TxFactory database.TransactionManagerFactory
	BigQuery  *bigquery.Provider
}

// NewWarehouse resolves the connection of the configured warehouse kind.
func NewWarehouse(p WarehouseParams) (warehouse.Warehouse, error) {
	switch p.Settings.Warehouse {
	case appconfig.WarehouseSQL:
		conn, err := p.DB.ResolveDBConnection(p.Ctx, p.Settings.DBRef)
		if err != nil {
			return nil, err
		}
		logger.Infof("Warehouse: sql connection '%s' (%s).", p.Settings.DBRef, conn.Type())
		return warehouse.NewSQL(conn, p.Settings.Tables, p.Cfg.Surfin.Batch.WriteBatchSize, p.TxFactory.NewTransactionManager(conn)), nil
	case appconfig.WarehouseBigQuery:
		conn, err := p.BigQuery.GetConnection(p.Ctx, p.Settings.BigQueryRef)
		if err != nil {
			return nil, err
		}
		logger.Infof("Warehouse: bigquery connection '%s' (project %s).", p.Settings.BigQueryRef, conn.Config().ProjectID)
		return warehouse.NewBigQuery(conn, p.Settings.Tables)
	}
	return nil, fmt.Errorf("unsupported warehouse '%s'", p.Settings.Warehouse)
}

// JobParams defines the dependencies of NewJob.
type JobParams struct {
	fx.In
	Ctx       context.Context `name:"appCtx"`
	Cfg       *coreConfig.Config
	Settings  *appconfig.Settings
	Selection job.Selection
	Warehouse warehouse.Warehouse
	Storage   storage.StorageConnectionResolver
	DB        *gormadapter.GormDBConnectionResolver
	Clock     sihrd.Clock
	Location  *time.Location
	Recorder  metrics.MetricRecorder
	Tracer    metrics.Tracer
}

// NewJob builds the flow job of the selected steps.
func NewJob(p JobParams) (*runner.FlowJob, error) {
	return job.Build(p.Ctx, job.Params{
		JobName:      p.Cfg.Surfin.Batch.JobName,
		Settings:     p.Settings,
		Warehouse:    p.Warehouse,
		Storage:      p.Storage,
		Migrator:     p.DB,
		MigrationsFS: migrations.FS,
		Clock:        p.Clock,
		Location:     p.Location,
		Recorder:     p.Recorder,
		Tracer:       p.Tracer,
	}, p.Selection)
}
