package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/gorm/clause"

	appconfig "github.com/datasus/sihrd/internal/config"
	"github.com/datasus/sihrd/internal/sihrd"
	"github.com/datasus/sihrd/pkg/batch/adapter/database"
	"github.com/datasus/sihrd/pkg/batch/component/step/reader"
	"github.com/datasus/sihrd/pkg/batch/component/step/writer"
	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
	"github.com/datasus/sihrd/pkg/batch/core/tx"
	"github.com/datasus/sihrd/pkg/batch/support/util/exception"
)

// SQL is a Warehouse on a GORM connection.
type SQL struct {
	conn      database.DBConnection
	tables    appconfig.Tables
	bulkSize  int
	txManager tx.TransactionManager
}

// NewSQL creates a SQL warehouse. txManager must begin transactions on conn.
func NewSQL(conn database.DBConnection, tables appconfig.Tables, bulkSize int, txManager tx.TransactionManager) *SQL {
	return &SQL{conn: conn, tables: tables, bulkSize: bulkSize, txManager: txManager}
}

var _ Warehouse = (*SQL)(nil)

func (w *SQL) Kind() string                              { return appconfig.WarehouseSQL }
func (w *SQL) Ref() string                               { return w.conn.Name() }
func (w *SQL) TransactionManager() tx.TransactionManager { return w.txManager }

func (w *SQL) RawReader() port.ItemReader[sihrd.RawRecord] {
	return newSQLTableReader(w.conn, "rawReader", w.tables.Raw, RawColumns, rawFields)
}

func (w *SQL) TrustedReader() port.ItemReader[sihrd.TrustedRecord] {
	return newSQLTableReader(w.conn, "trustedReader", w.tables.Trusted, TrustedColumns, trustedFields)
}

func (w *SQL) RefinedReader() port.ItemReader[sihrd.RefinedRecord] {
	return newSQLTableReader(w.conn, "refinedReader", w.tables.Refined, RefinedColumns, refinedFields)
}

func (w *SQL) MunicipalityReader() port.ItemReader[sihrd.MunicipalityLookup] {
	return newSQLTableReader(w.conn, "municipalityReader", w.tables.Municipality, MunicipalityColumns, municipalityFields)
}

func (w *SQL) ProcedureReader() port.ItemReader[sihrd.ProcedureLookup] {
	return newSQLTableReader(w.conn, "procedureReader", w.tables.Procedure, ProcedureColumns, procedureFields)
}

func (w *SQL) RawWriter() port.ItemWriter[sihrd.RawRecord] {
	return writer.NewSqlTableWriter[sihrd.RawRecord]("rawWriter", w.conn.Name(), w.tables.Raw, w.bulkSize, w.conn, w.txManager)
}

func (w *SQL) TrustedWriter() port.ItemWriter[sihrd.TrustedRecord] {
	return writer.NewSqlTableWriter[sihrd.TrustedRecord]("trustedWriter", w.conn.Name(), w.tables.Trusted, w.bulkSize, w.conn, w.txManager)
}

func (w *SQL) RefinedWriter() port.ItemWriter[sihrd.RefinedRecord] {
	return writer.NewSqlTableWriter[sihrd.RefinedRecord]("refinedWriter", w.conn.Name(), w.tables.Refined, w.bulkSize, w.conn, w.txManager)
}

func (w *SQL) MunicipalityWriter() port.ItemWriter[sihrd.MunicipalityLookup] {
	return writer.NewSqlTableWriter[sihrd.MunicipalityLookup]("municipalityWriter", w.conn.Name(), w.tables.Municipality, w.bulkSize, w.conn, w.txManager)
}

func (w *SQL) ProcedureWriter() port.ItemWriter[sihrd.ProcedureLookup] {
	return writer.NewSqlTableWriter[sihrd.ProcedureLookup]("procedureWriter", w.conn.Name(), w.tables.Procedure, w.bulkSize, w.conn, w.txManager)
}

// sqlTableReader streams a whole table in insertion order. A missing table is reported
// with its name and connection.
type sqlTableReader[T any] struct {
	*reader.SqlCursorReader[T]
	conn  database.DBConnection
	table string
}

func newSQLTableReader[T any](conn database.DBConnection, name, table string, columns []string, fields func(*T) []interface{}) *sqlTableReader[T] {
	query, args := selectAll(table, columns)
	return &sqlTableReader[T]{
		SqlCursorReader: reader.NewSqlCursorReader[T](conn, name, query, args, columnMapper(fields)),
		conn:            conn,
		table:           table,
	}
}

func (r *sqlTableReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	err := r.SqlCursorReader.Open(ctx, ec)
	if err != nil && r.conn.IsTableNotExistError(err) {
		return exception.NewBatchError("warehouse", fmt.Sprintf("table '%s' does not exist on connection '%s'", r.table, r.conn.Name()), err)
	}
	return err
}

// selectAll builds a SELECT with every identifier left to the dialect to quote.
func selectAll(table string, columns []string) (string, []interface{}) {
	placeholders := make([]string, len(columns))
	args := make([]interface{}, 0, len(columns)+1)
	for i, c := range columns {
		placeholders[i] = "?"
		args = append(args, clause.Column{Name: c})
	}
	args = append(args, clause.Table{Name: table})
	return "SELECT " + strings.Join(placeholders, ", ") + " FROM ?", args
}

// columnMapper scans a row into the fields of a fresh T. Every field is a pointer, so a
// NULL column leaves it nil.
func columnMapper[T any](fields func(*T) []interface{}) func(*sql.Rows) (T, error) {
	return func(rows *sql.Rows) (T, error) {
		var item T
		err := rows.Scan(fields(&item)...)
		return item, err
	}
}
