package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/datasus/sihrd/internal/config"
	coreConfig "github.com/datasus/sihrd/pkg/batch/core/config"
)

func newConfig(section map[string]interface{}) *coreConfig.Config {
	cfg := &coreConfig.Config{Application: map[string]interface{}{}}
	cfg.Surfin.Batch.ChunkSize = 500
	if section != nil {
		cfg.Application[appconfig.SectionName] = section
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	s, err := appconfig.Load(newConfig(nil))
	require.NoError(t, err)

	assert.Equal(t, appconfig.WarehouseSQL, s.Warehouse)
	assert.Equal(t, "warehouse", s.DBRef)
	assert.Equal(t, "America/Sao_Paulo", s.Timezone)
	assert.Equal(t, 500, s.ChunkSize)
	assert.Equal(t, "tb_sih_rd_raw", s.Tables.Raw)
	assert.Equal(t, "tb_sih_rd_trusted", s.Tables.Trusted)
	assert.Equal(t, "tb_sih_rd_refined", s.Tables.Refined)
	assert.Equal(t, "tb_lookup_municipality", s.Tables.Municipality)
	assert.Equal(t, "tb_lookup_procedure", s.Tables.Procedure)
	assert.Equal(t, "lookup_municipality.csv", s.Lookups.MunicipalityObject)
	assert.Equal(t, "lookup_procedure.csv", s.Lookups.ProcedureObject)
	assert.Equal(t, ',', s.Lookups.DelimiterRune())
	assert.Equal(t, "RD*.parquet", s.RawIngest.Pattern)
	assert.Equal(t, "refined/sih_rd", s.Export.OutputBaseDir)
	assert.Equal(t, "SNAPPY", s.Export.Compression)
	assert.False(t, s.Migrate.Enabled)
	assert.False(t, s.Lookups.Enabled)
}

func TestLoad_BigQueryTablesAndOverrides(t *testing.T) {
	s, err := appconfig.Load(newConfig(map[string]interface{}{
		"warehouse":  "BigQuery",
		"chunk_size": "50",
		"tables":     map[string]interface{}{"trusted": "staging.trusted_rd"},
		"lookups":    map[string]interface{}{"enabled": true, "delimiter": ";"},
	}))
	require.NoError(t, err)

	assert.Equal(t, appconfig.WarehouseBigQuery, s.Warehouse)
	assert.Equal(t, 50, s.ChunkSize)
	assert.Equal(t, "raw.tb_sih_rd", s.Tables.Raw)
	assert.Equal(t, "staging.trusted_rd", s.Tables.Trusted)
	assert.Equal(t, "lookup.tb_lookup_procedure", s.Tables.Procedure)
	assert.True(t, s.Lookups.Enabled)
	assert.Equal(t, ';', s.Lookups.DelimiterRune())
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"unknown warehouse":       {"warehouse": "duckdb"},
		"unqualified bq table":    {"warehouse": "bigquery", "tables": map[string]interface{}{"raw": "tb_sih_rd"}},
		"migrate on bigquery":     {"warehouse": "bigquery", "migrate": map[string]interface{}{"enabled": true}},
		"multi-char delimiter":    {"lookups": map[string]interface{}{"delimiter": ";;"}},
		"negative chunk override": {"chunk_size": -1},
	}
	for name, section := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := newConfig(section)
			if name == "negative chunk override" {
				cfg.Surfin.Batch.ChunkSize = 0
			}
			_, err := appconfig.Load(cfg)
			assert.Error(t, err)
		})
	}
}

func TestSplitTableID(t *testing.T) {
	dataset, table, err := appconfig.SplitTableID("refined.tb_sih_rd")
	require.NoError(t, err)
	assert.Equal(t, "refined", dataset)
	assert.Equal(t, "tb_sih_rd", table)

	for _, bad := range []string{"tb_sih_rd", "a.b.c", ".t", "d."} {
		_, _, err := appconfig.SplitTableID(bad)
		assert.Error(t, err, bad)
	}
}
