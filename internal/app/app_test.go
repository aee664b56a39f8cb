package app_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pwriter "github.com/xitongsys/parquet-go/writer"
	"go.uber.org/fx"

	"github.com/datasus/sihrd/internal/app"
	appconfig "github.com/datasus/sihrd/internal/config"
	"github.com/datasus/sihrd/internal/job"
	"github.com/datasus/sihrd/internal/sihrd"
	"github.com/datasus/sihrd/internal/warehouse"
	gormadapter "github.com/datasus/sihrd/pkg/batch/adapter/database/gorm"
	"github.com/datasus/sihrd/pkg/batch/adapter/database/gorm/sqlite"
	storageAdapter "github.com/datasus/sihrd/pkg/batch/adapter/storage"
	storageConfig "github.com/datasus/sihrd/pkg/batch/adapter/storage/config"
	"github.com/datasus/sihrd/pkg/batch/adapter/storage/local"
	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	coreConfig "github.com/datasus/sihrd/pkg/batch/core/config"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
)

const configTemplate = `
surfin:
  batch:
    chunk_size: 2
    write_batch_size: 2
  system:
    logging:
      level: WARN
  metrics:
    backend: none
  adapter:
    database:
      warehouse:
        type: sqlite
        database: %[1]s/warehouse.db
    storage:
      lake:
        type: local
        base_dir: %[1]s/lake
        bucket_name: datasus
application:
  sihrd:
    migrate:
      enabled: true
    lookups:
      enabled: true
      storage_ref: lake
      municipality_object: lookups/lookup_municipality.csv
      procedure_object: lookups/lookup_procedure.csv
    raw_ingest:
      enabled: true
      storage_ref: lake
      prefix: raw/sih_rd/
    export:
      enabled: true
      storage_ref: lake
      output_base_dir: refined/sih_rd
`

type pipeline struct {
	t    *testing.T
	dir  string
	yaml []byte
	lake storageAdapter.StorageConnection
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	dir := filepath.ToSlash(t.TempDir())
	lake, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: dir + "/lake", BucketName: "datasus"}, "seed")
	require.NoError(t, err)
	return &pipeline{t: t, dir: dir, yaml: []byte(fmt.Sprintf(configTemplate, dir)), lake: lake}
}

func (p *pipeline) upload(object, content string) {
	require.NoError(p.t, p.lake.Upload(context.Background(), "", object, strings.NewReader(content), ""))
}

func (p *pipeline) uploadRaw(object string, rows []sihrd.RawRecord) {
	buf := new(bytes.Buffer)
	pw, err := pwriter.NewParquetWriterFromWriter(buf, new(sihrd.RawRecord), 1)
	require.NoError(p.t, err)
	for _, row := range rows {
		require.NoError(p.t, pw.Write(row))
	}
	require.NoError(p.t, pw.WriteStop())
	require.NoError(p.t, p.lake.Upload(context.Background(), "", object, buf, "application/octet-stream"))
}

func (p *pipeline) seed() {
	p.upload("lookups/lookup_municipality.csv", "COD,NOME\n330455,Rio de Janeiro\n330490,São Gonçalo\n355030,São Paulo\n")
	p.upload("lookups/lookup_procedure.csv", "COD,PROCEDIMENTO\n303010037,TRATAMENTO DE OUTRAS DOENÇAS BACTERIANAS\n")
	p.uploadRaw("raw/sih_rd/RDRJ2003.parquet", []sihrd.RawRecord{
		{
			UFZI: s("330455"), AnoCmpt: s("2020"), MesCmpt: s("03"), Espec: s("03"), NAIH: s("3320100000001"),
			Ident: s("1"), MunicRes: s("330490"), Sexo: s("3"), MarcaUTI: s("00"), QtDiarias: s("4"),
			ProcRea: s("0303010037"), ValTot: s("352.97"), Morte: s("0"), RacaCor: s("03"), Nasc: s("19850710"),
		},
		{UFZI: s("330455"), AnoCmpt: s("2020"), MesCmpt: s("13"), QtDiarias: s(" 2 "), Nasc: s("1985-07-10")},
	})
	p.uploadRaw("raw/sih_rd/RDSP2003.parquet", []sihrd.RawRecord{
		{UFZI: s("355030"), AnoCmpt: s("2020"), MesCmpt: s("3"), Sexo: s("1"), ProcRea: s("0999999999"), ValTot: s("10")},
	})
}

// run starts the application, waits for the job to end and stops it.
func (p *pipeline) run(steps ...string) *app.Result {
	p.t.Helper()
	var result *app.Result
	application := fx.New(append(app.New(context.Background(), app.Options{
		Config:         p.yaml,
		EnvFilePath:    filepath.Join(p.dir, "missing.env"),
		Steps:          steps,
		ProcessingDate: "2024-03-15",
	}), fx.Populate(&result))...)
	require.NoError(p.t, application.Err())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(p.t, application.Start(ctx))
	signal := <-application.Wait()
	require.NoError(p.t, application.Stop(ctx))
	assert.Equal(p.t, result.ExitCode(), signal.ExitCode)
	return result
}

func (p *pipeline) warehouse() (*warehouse.SQL, func()) {
	p.t.Helper()
	cfg, err := coreConfig.LoadConfig(filepath.Join(p.dir, "missing.env"), p.yaml)
	require.NoError(p.t, err)
	settings, err := appconfig.Load(cfg)
	require.NoError(p.t, err)
	resolver := gormadapter.NewResolver(cfg, sqlite.NewProvider(cfg))
	conn, err := resolver.ResolveDBConnection(context.Background(), settings.DBRef)
	require.NoError(p.t, err)
	wh := warehouse.NewSQL(conn, settings.Tables, 2, gormadapter.NewGormTransactionManager(resolver, settings.DBRef))
	return wh, func() { _ = resolver.CloseAll() }
}

func (p *pipeline) exported() []string {
	var objects []string
	require.NoError(p.t, p.lake.ListObjects(context.Background(), "", "refined/sih_rd/", func(name string) error {
		objects = append(objects, name)
		return nil
	}))
	return objects
}

func s(v string) *string { return &v }

func drain[T any](t *testing.T, r port.ItemReader[T]) []T {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	defer func() { require.NoError(t, r.Close(ctx)) }()
	var out []T
	for {
		item, err := r.Read(ctx)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, item)
	}
}

func stepStatus(t *testing.T, result *app.Result, name string) model.JobStatus {
	t.Helper()
	require.NotNil(t, result.Execution())
	se, ok := result.Execution().StepExecutionByName(name)
	require.True(t, ok, name)
	return se.Status
}

func TestPipeline_FullRun(t *testing.T) {
	p := newPipeline(t)
	p.seed()

	result := p.run()
	require.NoError(t, result.Err())
	assert.Equal(t, 0, result.ExitCode())
	assert.Equal(t, model.BatchStatusCompleted, result.Execution().Status)
	assert.Len(t, result.Execution().StepExecutions, 7)

	wh, closeWarehouse := p.warehouse()
	defer closeWarehouse()

	trusted := drain(t, wh.TrustedReader())
	require.Len(t, trusted, 3)
	assert.Equal(t, "2020-03-01", trusted[0].Date.String())
	assert.Equal(t, sihrd.Int64(38), trusted[0].Age)
	assert.Nil(t, trusted[1].Date)
	assert.Nil(t, trusted[1].BirthDate)
	assert.Equal(t, sihrd.Int64(2), trusted[1].DaysHospitalized)

	refined := drain(t, wh.RefinedReader())
	require.Len(t, refined, 3)
	assert.Equal(t, s("Rio de Janeiro"), refined[0].Municipality)
	assert.Equal(t, s("São Gonçalo"), refined[0].PatientMunicipality)
	assert.Equal(t, s("TRATAMENTO DE OUTRAS DOENÇAS BACTERIANAS"), refined[0].Procedure)
	assert.Equal(t, s("Feminino"), refined[0].Gender)
	assert.Equal(t, s("Parda"), refined[0].RaceColor)
	assert.Equal(t, s("São Paulo"), refined[2].Municipality)
	assert.Nil(t, refined[2].Procedure)
	assert.Equal(t, s("Masculino"), refined[2].Gender)

	assert.Equal(t, []string{
		"refined/sih_rd/uf=33/year=2020/month=13/part-00000.parquet",
		"refined/sih_rd/uf=33/year=2020/month=3/part-00000.parquet",
		"refined/sih_rd/uf=35/year=2020/month=3/part-00000.parquet",
	}, p.exported())
}

func TestPipeline_RerunIsIdempotent(t *testing.T) {
	p := newPipeline(t)
	p.seed()

	require.NoError(t, p.run().Err())
	wh, closeWarehouse := p.warehouse()
	first := drain(t, wh.RefinedReader())
	closeWarehouse()
	exported := p.exported()

	require.NoError(t, p.run().Err())
	wh, closeWarehouse = p.warehouse()
	defer closeWarehouse()
	assert.Equal(t, first, drain(t, wh.RefinedReader()))
	assert.Equal(t, sihrd.Int64(38), drain(t, wh.TrustedReader())[0].Age)
	assert.Equal(t, exported, p.exported())
}

func TestPipeline_StrictFailureKeepsTrusted(t *testing.T) {
	p := newPipeline(t)
	p.seed()
	require.NoError(t, p.run().Err())

	p.uploadRaw("raw/sih_rd/RDSP2003.parquet", []sihrd.RawRecord{{UFZI: s("355030"), QtDiarias: s("quatro")}})
	result := p.run(job.StepLoadRaw, job.StepTrusted, job.StepRefined)
	require.Error(t, result.Err())
	assert.ErrorIs(t, result.Err(), sihrd.ErrStrictConversion)
	assert.Equal(t, 1, result.ExitCode())
	assert.Equal(t, model.BatchStatusCompleted, stepStatus(t, result, job.StepLoadRaw))
	assert.Equal(t, model.BatchStatusFailed, stepStatus(t, result, job.StepTrusted))
	assert.Equal(t, model.BatchStatusAbandoned, stepStatus(t, result, job.StepRefined))

	wh, closeWarehouse := p.warehouse()
	defer closeWarehouse()
	trusted := drain(t, wh.TrustedReader())
	require.Len(t, trusted, 3)
	assert.Equal(t, s("355030"), trusted[2].MunicipalityCode)
	assert.Len(t, drain(t, wh.RawReader()), 3)
}

func TestPipeline_DuplicateLookupFailsRefined(t *testing.T) {
	p := newPipeline(t)
	p.seed()
	require.NoError(t, p.run().Err())
	exported := p.exported()

	p.upload("lookups/lookup_municipality.csv", "COD,NOME\n330455,Rio de Janeiro\n330455,Rio\n")
	result := p.run(job.StepLoadMunicipality, job.StepLoadProcedure, job.StepRefined, job.StepExport)
	require.Error(t, result.Err())
	assert.ErrorIs(t, result.Err(), sihrd.ErrDuplicateLookupKey)
	assert.Equal(t, model.BatchStatusCompleted, stepStatus(t, result, job.StepLoadMunicipality))
	assert.Equal(t, model.BatchStatusFailed, stepStatus(t, result, job.StepRefined))
	assert.Equal(t, model.BatchStatusAbandoned, stepStatus(t, result, job.StepExport))
	assert.Equal(t, exported, p.exported())

	wh, closeWarehouse := p.warehouse()
	defer closeWarehouse()
	assert.Len(t, drain(t, wh.MunicipalityReader()), 2)
	assert.Equal(t, s("Rio de Janeiro"), drain(t, wh.RefinedReader())[0].Municipality)
}

func TestPipeline_UnknownStep(t *testing.T) {
	p := newPipeline(t)
	application := fx.New(app.New(context.Background(), app.Options{Config: p.yaml, Steps: []string{"curated"}})...)
	require.Error(t, application.Err())
	assert.Contains(t, application.Err().Error(), "curated")
}

func TestNewClock_ProcessingDateInTheReferenceZone(t *testing.T) {
	settings := &appconfig.Settings{Timezone: "America/Sao_Paulo", ProcessingDate: "2024-03-15"}
	loc, err := app.NewLocation(settings)
	require.NoError(t, err)
	clock, err := app.NewClock(settings, loc)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, time.March, 15, 3, 0, 0, 0, time.UTC), clock.Now().UTC())
	assert.Equal(t, "2024-03-15", sihrd.ProcessingDate(clock, loc).String())

	// 01:30 UTC is still the previous day in São Paulo.
	late := sihrd.FixedClock{At: time.Date(2024, time.March, 16, 1, 30, 0, 0, time.UTC)}
	assert.Equal(t, "2024-03-15", sihrd.ProcessingDate(late, loc).String())
	assert.Equal(t, "2024-03-16", sihrd.ProcessingDate(late, time.UTC).String())

	settings.ProcessingDate = "15/03/2024"
	_, err = app.NewClock(settings, loc)
	assert.Error(t, err)

	settings.ProcessingDate = ""
	clock, err = app.NewClock(settings, loc)
	require.NoError(t, err)
	assert.IsType(t, sihrd.SystemClock{}, clock)
}
