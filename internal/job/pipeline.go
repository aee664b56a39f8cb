// Package job assembles the SIH/RD flow job from the configured steps.
package job

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"time"

	appconfig "github.com/datasus/sihrd/internal/config"
	"github.com/datasus/sihrd/internal/files"
	"github.com/datasus/sihrd/internal/sihrd"
	"github.com/datasus/sihrd/internal/warehouse"
	"github.com/datasus/sihrd/pkg/batch/adapter/storage"
	"github.com/datasus/sihrd/pkg/batch/component/item"
	"github.com/datasus/sihrd/pkg/batch/component/tasklet/migration"
	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/job/runner"
	"github.com/datasus/sihrd/pkg/batch/core/metrics"
	"github.com/datasus/sihrd/pkg/batch/core/tx"
	chunkstep "github.com/datasus/sihrd/pkg/batch/engine/step/item"
	taskletstep "github.com/datasus/sihrd/pkg/batch/engine/step/tasklet"
	"github.com/datasus/sihrd/pkg/batch/listener/logging"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// Step names.
const (
	StepMigrate          = "migrate"
	StepLoadMunicipality = "load-lookups.municipality"
	StepLoadProcedure    = "load-lookups.procedure"
	StepLoadRaw          = "load-raw"
	StepTrusted          = "trusted"
	StepRefined          = "refined"
	StepExport           = "export"
)

// dependencies lists, per step, the steps it runs after when both are part of the job.
var dependencies = map[string][]string{
	StepMigrate:          nil,
	StepLoadMunicipality: {StepMigrate},
	StepLoadProcedure:    {StepMigrate},
	StepLoadRaw:          {StepMigrate},
	StepTrusted:          {StepMigrate, StepLoadRaw},
	StepRefined:          {StepTrusted, StepLoadMunicipality, StepLoadProcedure},
	StepExport:           {StepRefined},
}

// registration order; every step comes after all of its possible dependencies.
var stepOrder = []string{StepMigrate, StepLoadMunicipality, StepLoadProcedure, StepLoadRaw, StepTrusted, StepRefined, StepExport}

// Selection is the set of steps a job runs.
type Selection map[string]bool

// Select returns a Selection of names.
func Select(names ...string) Selection {
	sel := make(Selection, len(names))
	for _, n := range names {
		sel[n] = true
	}
	return sel
}

// Names returns the selected step names in sorted order.
func (s Selection) Names() []string {
	names := make([]string, 0, len(s))
	for n, ok := range s {
		if ok {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// FullRun selects trusted and refined plus every optional step enabled in settings.
func FullRun(s *appconfig.Settings) Selection {
	sel := Select(StepTrusted, StepRefined)
	if s.Migrate.Enabled {
		sel[StepMigrate] = true
	}
	if s.Lookups.Enabled {
		sel[StepLoadMunicipality] = true
		sel[StepLoadProcedure] = true
	}
	if s.RawIngest.Enabled {
		sel[StepLoadRaw] = true
	}
	if s.Export.Enabled {
		sel[StepExport] = true
	}
	return sel
}

// Params carries what the steps are built from.
type Params struct {
	// JobName defaults to DefaultJobName.
	JobName   string
	Settings  *appconfig.Settings
	Warehouse warehouse.Warehouse
	// Storage resolves the storage connections of the lookup, raw and export steps.
	Storage storage.StorageConnectionResolver
	// Migrator opens the dedicated connection of the migrate step.
	Migrator     migration.DedicatedOpener
	MigrationsFS fs.FS
	Clock        sihrd.Clock
	Location     *time.Location
	Recorder     metrics.MetricRecorder
	Tracer       metrics.Tracer
}

// Build creates the flow job running the selected steps. Dependencies between selected
// steps become edges; a dependency that is not selected is assumed to be satisfied.
func Build(ctx context.Context, p Params, sel Selection) (*runner.FlowJob, error) {
	if len(sel.Names()) == 0 {
		return nil, fmt.Errorf("no steps selected")
	}
	for name := range sel {
		if _, ok := dependencies[name]; !ok {
			return nil, fmt.Errorf("unknown step '%s'", name)
		}
	}

	job := runner.NewFlowJob(jobName(p.JobName), []port.JobExecutionListener{logging.NewLoggingJobListener()}, p.Recorder, p.Tracer)
	b := &builder{ctx: ctx, p: p}
	for _, name := range stepOrder {
		if !sel[name] {
			continue
		}
		step, err := b.step(name)
		if err != nil {
			return nil, fmt.Errorf("step '%s': %w", name, err)
		}
		var deps []string
		for _, dep := range dependencies[name] {
			if sel[dep] {
				deps = append(deps, dep)
			}
		}
		if err := job.AddStep(step, deps...); err != nil {
			return nil, err
		}
	}
	order, err := job.Order()
	if err != nil {
		return nil, err
	}
	logger.Infof("Job '%s' runs steps %v on the %s warehouse '%s'.", job.JobName(), order, p.Warehouse.Kind(), p.Warehouse.Ref())
	return job, nil
}

// DefaultJobName names the job when surfin.batch.job_name is unset.
const DefaultJobName = "sihrd"

func jobName(name string) string {
	if name == "" {
		return DefaultJobName
	}
	return name
}

type builder struct {
	ctx context.Context
	p   Params
}

func (b *builder) step(name string) (port.Step, error) {
	s := b.p.Settings
	wh := b.p.Warehouse
	switch name {
	case StepMigrate:
		if wh.Kind() != appconfig.WarehouseSQL {
			return nil, fmt.Errorf("migrations need the sql warehouse")
		}
		tasklet, err := migration.NewMigrationTasklet(b.p.Migrator, b.p.MigrationsFS, migration.Options{DBRef: s.DBRef, Dir: s.Migrate.Dir})
		if err != nil {
			return nil, err
		}
		return taskletstep.NewTaskletStep(StepMigrate, tasklet, logging.NewLoggingStepListener()), nil

	case StepLoadMunicipality:
		conn, err := b.storage(s.Lookups.StorageRef)
		if err != nil {
			return nil, err
		}
		return chunk(name, files.MunicipalityCSVReader(conn, s.Lookups), item.NewPassThroughItemProcessor[sihrd.MunicipalityLookup](), wh.MunicipalityWriter(), s.ChunkSize, wh.TransactionManager()), nil

	case StepLoadProcedure:
		conn, err := b.storage(s.Lookups.StorageRef)
		if err != nil {
			return nil, err
		}
		return chunk(name, files.ProcedureCSVReader(conn, s.Lookups), item.NewPassThroughItemProcessor[sihrd.ProcedureLookup](), wh.ProcedureWriter(), s.ChunkSize, wh.TransactionManager()), nil

	case StepLoadRaw:
		conn, err := b.storage(s.RawIngest.StorageRef)
		if err != nil {
			return nil, err
		}
		return chunk(name, files.RawParquetReader(conn, s.RawIngest), item.NewPassThroughItemProcessor[sihrd.RawRecord](), wh.RawWriter(), s.ChunkSize, wh.TransactionManager()), nil

	case StepTrusted:
		return chunk[sihrd.RawRecord, sihrd.TrustedRecord](name, wh.RawReader(), sihrd.NewNormalizer(b.p.Clock, b.p.Location), wh.TrustedWriter(), s.ChunkSize, wh.TransactionManager()), nil

	case StepRefined:
		enricher := sihrd.NewEnricher(wh.MunicipalityReader(), wh.ProcedureReader())
		return chunk[sihrd.TrustedRecord, sihrd.RefinedRecord](name, wh.TrustedReader(), enricher, wh.RefinedWriter(), s.ChunkSize, wh.TransactionManager()), nil

	case StepExport:
		conn, err := b.storage(s.Export.StorageRef)
		if err != nil {
			return nil, err
		}
		w, err := files.RefinedExportWriter(conn, s.Export)
		if err != nil {
			return nil, err
		}
		return chunk[sihrd.RefinedRecord, sihrd.RefinedParquetRow](name, wh.RefinedReader(), sihrd.Exporter{}, w, s.ChunkSize, tx.NewNoOpTransactionManager()), nil
	}
	return nil, fmt.Errorf("unknown step '%s'", name)
}

func (b *builder) storage(ref string) (storage.StorageConnection, error) {
	if b.p.Storage == nil {
		return nil, fmt.Errorf("no storage resolver for connection '%s'", ref)
	}
	return b.p.Storage.ResolveStorageConnection(b.ctx, ref)
}

func chunk[I, O any](name string, r port.ItemReader[I], p port.ItemProcessor[I, O], w port.ItemWriter[O], size int, txm tx.TransactionManager) port.Step {
	return chunkstep.NewChunkStep[I, O](name, r, p, w, size, txm,
		chunkstep.WithStepExecutionListeners(logging.NewLoggingStepListener()),
		chunkstep.WithChunkListeners(logging.NewLoggingChunkListener()),
	)
}
