// Package files reads and writes the object storage side of the pipeline: the registry
// CSVs, the monthly RD parquet files and the partitioned parquet export.
package files

import (
	"fmt"

	appconfig "github.com/datasus/sihrd/internal/config"
	"github.com/datasus/sihrd/internal/sihrd"
	"github.com/datasus/sihrd/pkg/batch/adapter/storage"
	"github.com/datasus/sihrd/pkg/batch/component/step/reader"
	"github.com/datasus/sihrd/pkg/batch/component/step/writer"
	"github.com/datasus/sihrd/pkg/batch/core/application/port"
)

// MunicipalityCSVReader reads the municipality registry (COD, NOME).
func MunicipalityCSVReader(conn storage.StorageExecutor, s appconfig.LookupSettings) port.ItemReader[sihrd.MunicipalityLookup] {
	return reader.NewCSVReader(conn, "municipalityCSV", s.Bucket, s.MunicipalityObject, s.DelimiterRune(), MunicipalityFromCSV)
}

// ProcedureCSVReader reads the procedure registry (COD, PROCEDIMENTO).
func ProcedureCSVReader(conn storage.StorageExecutor, s appconfig.LookupSettings) port.ItemReader[sihrd.ProcedureLookup] {
	return reader.NewCSVReader(conn, "procedureCSV", s.Bucket, s.ProcedureObject, s.DelimiterRune(), ProcedureFromCSV)
}

// MunicipalityFromCSV maps a registry line. An empty cell is null.
func MunicipalityFromCSV(rec reader.CSVRecord) (sihrd.MunicipalityLookup, error) {
	var out sihrd.MunicipalityLookup
	var err error
	if out.COD, err = cell(rec, "COD"); err != nil {
		return out, err
	}
	out.NOME, err = cell(rec, "NOME")
	return out, err
}

// ProcedureFromCSV maps a registry line. An empty cell is null.
func ProcedureFromCSV(rec reader.CSVRecord) (sihrd.ProcedureLookup, error) {
	var out sihrd.ProcedureLookup
	var err error
	if out.COD, err = cell(rec, "COD"); err != nil {
		return out, err
	}
	out.PROCEDIMENTO, err = cell(rec, "PROCEDIMENTO")
	return out, err
}

func cell(rec reader.CSVRecord, column string) (*string, error) {
	v, ok := rec[column]
	if !ok {
		return nil, fmt.Errorf("column %s missing from header", column)
	}
	if v == "" {
		return nil, nil
	}
	return &v, nil
}

// RawParquetReader reads every RD parquet object under the configured prefix. Columns
// other than the sixteen raw ones are ignored.
func RawParquetReader(conn storage.StorageExecutor, s appconfig.RawIngestSettings) port.ItemReader[sihrd.RawRecord] {
	return reader.NewParquetReader[sihrd.RawRecord](conn, "rawParquet", s.Bucket, s.Prefix, s.Pattern)
}

// RefinedExportWriter writes refined rows as uf/year/month partitioned parquet objects.
func RefinedExportWriter(conn storage.StorageExecutor, s appconfig.ExportSettings) (port.ItemWriter[sihrd.RefinedParquetRow], error) {
	w, err := writer.NewParquetWriter[sihrd.RefinedParquetRow]("refinedExport", writer.ParquetWriterConfig{
		StorageRef:      s.StorageRef,
		Bucket:          s.Bucket,
		OutputBaseDir:   s.OutputBaseDir,
		CompressionType: s.Compression,
	}, conn, sihrd.PartitionKey)
	if err != nil {
		return nil, err
	}
	return w, nil
}
