package warehouse

import (
	"fmt"
	"strings"

	bq "cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	appconfig "github.com/datasus/sihrd/internal/config"
	"github.com/datasus/sihrd/internal/sihrd"
	"github.com/datasus/sihrd/pkg/batch/adapter/bigquery"
	"github.com/datasus/sihrd/pkg/batch/component/step/reader"
	"github.com/datasus/sihrd/pkg/batch/component/step/writer"
	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/tx"
)

// BigQuery is a Warehouse on a BigQuery connection. Table names are "dataset.table" in
// the project of the connection.
type BigQuery struct {
	conn      bigquery.Connection
	tables    appconfig.Tables
	txManager tx.TransactionManager
}

// NewBigQuery creates a BigQuery warehouse.
func NewBigQuery(conn bigquery.Connection, tables appconfig.Tables) (*BigQuery, error) {
	for _, id := range []string{tables.Raw, tables.Trusted, tables.Refined, tables.Municipality, tables.Procedure} {
		if _, _, err := appconfig.SplitTableID(id); err != nil {
			return nil, err
		}
	}
	return &BigQuery{conn: conn, tables: tables, txManager: tx.NewNoOpTransactionManager()}, nil
}

var _ Warehouse = (*BigQuery)(nil)

func (w *BigQuery) Kind() string { return appconfig.WarehouseBigQuery }
func (w *BigQuery) Ref() string  { return w.conn.Name() }

// TransactionManager returns a no-op manager. Load jobs publish on Complete.
func (w *BigQuery) TransactionManager() tx.TransactionManager { return w.txManager }

func (w *BigQuery) RawReader() port.ItemReader[sihrd.RawRecord] {
	return newBigQueryTableReader(w, "rawReader", w.tables.Raw, RawColumns, rawFields)
}

func (w *BigQuery) TrustedReader() port.ItemReader[sihrd.TrustedRecord] {
	return newBigQueryTableReader(w, "trustedReader", w.tables.Trusted, TrustedColumns, trustedFields)
}

func (w *BigQuery) RefinedReader() port.ItemReader[sihrd.RefinedRecord] {
	return newBigQueryTableReader(w, "refinedReader", w.tables.Refined, RefinedColumns, refinedFields)
}

func (w *BigQuery) MunicipalityReader() port.ItemReader[sihrd.MunicipalityLookup] {
	return newBigQueryTableReader(w, "municipalityReader", w.tables.Municipality, MunicipalityColumns, municipalityFields)
}

func (w *BigQuery) ProcedureReader() port.ItemReader[sihrd.ProcedureLookup] {
	return newBigQueryTableReader(w, "procedureReader", w.tables.Procedure, ProcedureColumns, procedureFields)
}

func (w *BigQuery) RawWriter() port.ItemWriter[sihrd.RawRecord] {
	return newBigQueryTableWriter(w, "rawWriter", w.tables.Raw, RawColumns, rawFields)
}

func (w *BigQuery) TrustedWriter() port.ItemWriter[sihrd.TrustedRecord] {
	return newBigQueryTableWriter(w, "trustedWriter", w.tables.Trusted, TrustedColumns, trustedFields)
}

func (w *BigQuery) RefinedWriter() port.ItemWriter[sihrd.RefinedRecord] {
	return newBigQueryTableWriter(w, "refinedWriter", w.tables.Refined, RefinedColumns, refinedFields)
}

func (w *BigQuery) MunicipalityWriter() port.ItemWriter[sihrd.MunicipalityLookup] {
	return newBigQueryTableWriter(w, "municipalityWriter", w.tables.Municipality, MunicipalityColumns, municipalityFields)
}

func (w *BigQuery) ProcedureWriter() port.ItemWriter[sihrd.ProcedureLookup] {
	return newBigQueryTableWriter(w, "procedureWriter", w.tables.Procedure, ProcedureColumns, procedureFields)
}

// Query returns the statement reading columns of table in full.
func (w *BigQuery) Query(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = "`" + c + "`"
	}
	return fmt.Sprintf("SELECT %s FROM `%s.%s`", strings.Join(quoted, ", "), w.conn.Config().ProjectID, table)
}

func newBigQueryTableReader[T any](w *BigQuery, name, table string, columns []string, fields func(*T) []interface{}) *reader.BigQueryReader[T] {
	return reader.NewBigQueryReader[T](w.conn, name, w.Query(table, columns), RowMapper(columns, fields))
}

func newBigQueryTableWriter[T any](w *BigQuery, name, table string, columns []string, fields func(*T) []interface{}) *writer.BigQueryLoadWriter[T] {
	dataset, tbl, _ := appconfig.SplitTableID(table)
	return writer.NewBigQueryLoadWriter[T](name, w.conn.Name(), dataset, tbl, Schema(columns, fields), w.conn)
}

// RowMapper converts a result row into a T. A column absent from the row is an error.
func RowMapper[T any](columns []string, fields func(*T) []interface{}) func(reader.BigQueryRow) (T, error) {
	return func(row reader.BigQueryRow) (T, error) {
		var item T
		dests := fields(&item)
		for i, c := range columns {
			v, ok := row[c]
			if !ok {
				return item, fmt.Errorf("column %s missing from BigQuery row", c)
			}
			if err := assign(dests[i], v); err != nil {
				return item, fmt.Errorf("column %s: %w", c, err)
			}
		}
		return item, nil
	}
}

// Schema describes the load job columns. Every column is NULLABLE.
func Schema[T any](columns []string, fields func(*T) []interface{}) bq.Schema {
	var zero T
	dests := fields(&zero)
	schema := make(bq.Schema, len(columns))
	for i, c := range columns {
		schema[i] = &bq.FieldSchema{Name: c, Type: fieldType(dests[i])}
	}
	return schema
}

func fieldType(dest interface{}) bq.FieldType {
	switch dest.(type) {
	case **int64:
		return bq.IntegerFieldType
	case **float64:
		return bq.FloatFieldType
	case **sihrd.Date:
		return bq.DateFieldType
	default:
		return bq.StringFieldType
	}
}

func assign(dest interface{}, v bq.Value) error {
	switch d := dest.(type) {
	case **string:
		*d = nil
		switch x := v.(type) {
		case nil:
		case string:
			*d = &x
		default:
			// Raw tables loaded by other tools may carry typed columns.
			s := fmt.Sprint(x)
			*d = &s
		}
	case **int64:
		*d = nil
		switch x := v.(type) {
		case nil:
		case int64:
			*d = &x
		default:
			return fmt.Errorf("cannot use %T as INTEGER", v)
		}
	case **float64:
		*d = nil
		switch x := v.(type) {
		case nil:
		case float64:
			*d = &x
		case int64:
			f := float64(x)
			*d = &f
		default:
			return fmt.Errorf("cannot use %T as FLOAT", v)
		}
	case **sihrd.Date:
		*d = nil
		switch x := v.(type) {
		case nil:
		case civil.Date:
			*d = &sihrd.Date{Date: x}
		case string:
			var date sihrd.Date
			if err := date.Scan(x); err != nil {
				return err
			}
			*d = &date
		default:
			return fmt.Errorf("cannot use %T as DATE", v)
		}
	default:
		return fmt.Errorf("unsupported destination %T", dest)
	}
	return nil
}
