// Package config holds the settings of the SIH/RD pipeline, read from the
// "application.sihrd" block of application.yaml.
package config

import (
	"fmt"
	"strings"

	coreConfig "github.com/datasus/sihrd/pkg/batch/core/config"
)

// SectionName is the key of the pipeline block under "application".
const SectionName = "sihrd"

const (
	WarehouseSQL      = "sql"
	WarehouseBigQuery = "bigquery"
)

// Tables names the five tables of the pipeline. For BigQuery every name is "dataset.table".
type Tables struct {
	Raw          string `yaml:"raw"`
	Trusted      string `yaml:"trusted"`
	Refined      string `yaml:"refined"`
	Municipality string `yaml:"municipality"`
	Procedure    string `yaml:"procedure"`
}

var defaultTables = map[string]Tables{
	WarehouseSQL: {
		Raw:          "tb_sih_rd_raw",
		Trusted:      "tb_sih_rd_trusted",
		Refined:      "tb_sih_rd_refined",
		Municipality: "tb_lookup_municipality",
		Procedure:    "tb_lookup_procedure",
	},
	WarehouseBigQuery: {
		Raw:          "raw.tb_sih_rd",
		Trusted:      "trusted.tb_sih_rd",
		Refined:      "refined.tb_sih_rd",
		Municipality: "lookup.tb_lookup_municipality",
		Procedure:    "lookup.tb_lookup_procedure",
	},
}

// MigrateSettings controls the schema migration of the SQL warehouse.
type MigrateSettings struct {
	Enabled bool `yaml:"enabled"`
	// Dir overrides the migration directory, which defaults to the database type.
	Dir string `yaml:"dir"`
}

// LookupSettings locates the registry CSV files.
type LookupSettings struct {
	Enabled            bool   `yaml:"enabled"`
	StorageRef         string `yaml:"storage_ref" default:"lookups"`
	Bucket             string `yaml:"bucket"`
	MunicipalityObject string `yaml:"municipality_object" default:"lookup_municipality.csv"`
	ProcedureObject    string `yaml:"procedure_object" default:"lookup_procedure.csv"`
	Delimiter          string `yaml:"delimiter" default:","`
}

// RawIngestSettings locates the monthly RD parquet files.
type RawIngestSettings struct {
	Enabled    bool   `yaml:"enabled"`
	StorageRef string `yaml:"storage_ref" default:"raw"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix" default:"sih_rd/"`
	Pattern    string `yaml:"pattern" default:"RD*.parquet"`
}

// ExportSettings locates the partitioned parquet export of the refined table.
type ExportSettings struct {
	Enabled       bool   `yaml:"enabled"`
	StorageRef    string `yaml:"storage_ref" default:"export"`
	Bucket        string `yaml:"bucket"`
	OutputBaseDir string `yaml:"output_base_dir" default:"refined/sih_rd"`
	Compression   string `yaml:"compression" default:"SNAPPY"`
}

// Settings is the "application.sihrd" block.
type Settings struct {
	// Warehouse is "sql" or "bigquery".
	Warehouse string `yaml:"warehouse" default:"sql"`
	// DBRef names the adapter.database connection of the SQL warehouse.
	DBRef string `yaml:"db_ref" default:"warehouse"`
	// BigQueryRef names the adapter.bigquery connection of the BigQuery warehouse.
	BigQueryRef string `yaml:"bigquery_ref" default:"warehouse"`
	// ProcessingDate fixes the day ages are computed at (YYYY-MM-DD). Empty means today.
	ProcessingDate string `yaml:"processing_date"`
	// Timezone is the zone whose calendar day is the processing date.
	Timezone string `yaml:"timezone" default:"America/Sao_Paulo"`
	// ChunkSize overrides surfin.batch.chunk_size for the pipeline steps.
	ChunkSize int `yaml:"chunk_size"`

	Tables    Tables            `yaml:"tables"`
	Migrate   MigrateSettings   `yaml:"migrate"`
	Lookups   LookupSettings    `yaml:"lookups"`
	RawIngest RawIngestSettings `yaml:"raw_ingest"`
	Export    ExportSettings    `yaml:"export"`
}

// Load decodes the pipeline block of cfg, fills defaults and validates it.
// A missing block yields the defaults.
func Load(cfg *coreConfig.Config) (*Settings, error) {
	var raw interface{} = map[string]interface{}{}
	if cfg != nil && cfg.Application != nil {
		if section, ok := cfg.Application[SectionName]; ok && section != nil {
			raw = section
		}
	}
	s := &Settings{}
	if err := coreConfig.DecodeSection(raw, s); err != nil {
		return nil, fmt.Errorf("failed to decode application.%s: %w", SectionName, err)
	}
	s.Warehouse = strings.ToLower(s.Warehouse)
	if err := s.applyTableDefaults(); err != nil {
		return nil, err
	}
	if cfg != nil && s.ChunkSize <= 0 {
		s.ChunkSize = cfg.Surfin.Batch.ChunkSize
	}
	if s.ChunkSize <= 0 {
		return nil, fmt.Errorf("application.%s.chunk_size must be positive", SectionName)
	}
	if s.Migrate.Enabled && s.Warehouse != WarehouseSQL {
		return nil, fmt.Errorf("application.%s.migrate is only supported by the sql warehouse", SectionName)
	}
	if len([]rune(s.Lookups.Delimiter)) != 1 {
		return nil, fmt.Errorf("application.%s.lookups.delimiter must be a single character, got %q", SectionName, s.Lookups.Delimiter)
	}
	return s, nil
}

func (s *Settings) applyTableDefaults() error {
	defaults, ok := DefaultTables(s.Warehouse)
	if !ok {
		return fmt.Errorf("application.%s.warehouse must be %q or %q, got %q", SectionName, WarehouseSQL, WarehouseBigQuery, s.Warehouse)
	}
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&s.Tables.Raw, defaults.Raw)
	fill(&s.Tables.Trusted, defaults.Trusted)
	fill(&s.Tables.Refined, defaults.Refined)
	fill(&s.Tables.Municipality, defaults.Municipality)
	fill(&s.Tables.Procedure, defaults.Procedure)

	if s.Warehouse == WarehouseBigQuery {
		for _, name := range []string{s.Tables.Raw, s.Tables.Trusted, s.Tables.Refined, s.Tables.Municipality, s.Tables.Procedure} {
			if _, _, err := SplitTableID(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// DelimiterRune returns the lookup CSV delimiter as a rune.
func (l LookupSettings) DelimiterRune() rune {
	return []rune(l.Delimiter)[0]
}

// DefaultTables returns the table names used by the given warehouse kind when none are configured.
func DefaultTables(warehouse string) (Tables, bool) {
	t, ok := defaultTables[warehouse]
	return t, ok
}

// SplitTableID splits "dataset.table".
func SplitTableID(id string) (dataset, table string, err error) {
	parts := strings.Split(id, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("BigQuery table %q must be written as dataset.table", id)
	}
	return parts[0], parts[1], nil
}
