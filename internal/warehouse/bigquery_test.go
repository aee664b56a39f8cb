package warehouse_test

import (
	"context"
	"encoding/json"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	bq "cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"

	appconfig "github.com/datasus/sihrd/internal/config"
	"github.com/datasus/sihrd/internal/sihrd"
	"github.com/datasus/sihrd/internal/warehouse"
	"github.com/datasus/sihrd/pkg/batch/adapter/bigquery"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
)

type fakeIterator struct {
	rows []map[string]bq.Value
}

func (f *fakeIterator) Next(dst interface{}) error {
	if len(f.rows) == 0 {
		return iterator.Done
	}
	*dst.(*map[string]bq.Value) = f.rows[0]
	f.rows = f.rows[1:]
	return nil
}

type fakeConnection struct {
	rows    []map[string]bq.Value
	queries []string
	loads   []bigquery.LoadRequest
	bodies  []string
}

func (f *fakeConnection) Close() error { return nil }
func (f *fakeConnection) Type() string { return bigquery.ProviderType }
func (f *fakeConnection) Name() string { return "warehouse" }
func (f *fakeConnection) Config() bigquery.Config {
	return bigquery.Config{ProjectID: "datasus-analytics", Location: "US"}
}

func (f *fakeConnection) Query(ctx context.Context, sql string) (bigquery.RowIterator, error) {
	f.queries = append(f.queries, sql)
	return &fakeIterator{rows: f.rows}, nil
}

func (f *fakeConnection) Load(ctx context.Context, req bigquery.LoadRequest) error {
	data, err := io.ReadAll(req.Data)
	if err != nil {
		return err
	}
	f.loads = append(f.loads, req)
	f.bodies = append(f.bodies, string(data))
	return nil
}

func newBigQueryWarehouse(t *testing.T, conn *fakeConnection) *warehouse.BigQuery {
	t.Helper()
	tables, _ := appconfig.DefaultTables(appconfig.WarehouseBigQuery)
	wh, err := warehouse.NewBigQuery(conn, tables)
	require.NoError(t, err)
	return wh
}

func TestBigQuery_RejectsUnqualifiedTables(t *testing.T) {
	tables, _ := appconfig.DefaultTables(appconfig.WarehouseBigQuery)
	tables.Refined = "tb_sih_rd"
	_, err := warehouse.NewBigQuery(&fakeConnection{}, tables)
	assert.Error(t, err)
}

func TestBigQuery_ReadsTrustedRows(t *testing.T) {
	conn := &fakeConnection{rows: []map[string]bq.Value{
		{
			"municipality_code": "330455", "date": civil.Date{Year: 2020, Month: time.March, Day: 1},
			"year": int64(2020), "month": int64(3), "specialty_bed": "03", "type_aih": "1",
			"patient_municipality": "330490", "gender": "3", "type_uti": "00",
			"days_hospitalized": int64(4), "procedure": "0303010037", "total_value": float64(352.97),
			"death": "0", "risk_pregnant": nil, "race_color": "03",
			"birth_date": civil.Date{Year: 1985, Month: time.July, Day: 10}, "age": int64(38),
		},
	}}
	wh := newBigQueryWarehouse(t, conn)

	got := drain(t, wh.TrustedReader())
	require.Len(t, got, 1)
	assert.Equal(t, s("330455"), got[0].MunicipalityCode)
	assert.Equal(t, "2020-03-01", got[0].Date.String())
	assert.Equal(t, sihrd.Int64(4), got[0].DaysHospitalized)
	assert.Equal(t, sihrd.Float64(352.97), got[0].TotalValue)
	assert.Nil(t, got[0].RiskPregnant)
	assert.Equal(t, "1985-07-10", got[0].BirthDate.String())

	require.Len(t, conn.queries, 1)
	assert.True(t, strings.HasPrefix(conn.queries[0], "SELECT `municipality_code`, `date`, "))
	assert.True(t, strings.HasSuffix(conn.queries[0], " FROM `datasus-analytics.trusted.tb_sih_rd`"))
}

func TestBigQuery_RawRowsStringifyTypedColumns(t *testing.T) {
	row := map[string]bq.Value{}
	for _, c := range warehouse.RawColumns {
		row[c] = nil
	}
	row["UF_ZI"] = "330455"
	row["QT_DIARIAS"] = int64(4)
	row["VAL_TOT"] = float64(12.5)
	wh := newBigQueryWarehouse(t, &fakeConnection{rows: []map[string]bq.Value{row}})

	got := drain(t, wh.RawReader())
	require.Len(t, got, 1)
	assert.Equal(t, s("330455"), got[0].UFZI)
	assert.Equal(t, s("4"), got[0].QtDiarias)
	assert.Equal(t, s("12.5"), got[0].ValTot)
	assert.Nil(t, got[0].Nasc)
}

func TestRowMapper_Errors(t *testing.T) {
	mapper := warehouse.RowMapper[sihrd.ProcedureLookup](warehouse.ProcedureColumns, func(r *sihrd.ProcedureLookup) []interface{} {
		return []interface{}{&r.COD, &r.PROCEDIMENTO}
	})
	_, err := mapper(map[string]bq.Value{"COD": "303010037"})
	assert.ErrorContains(t, err, "PROCEDIMENTO")

	trusted := warehouse.RowMapper[sihrd.TrustedRecord]([]string{"year"}, func(r *sihrd.TrustedRecord) []interface{} {
		return []interface{}{&r.Year}
	})
	_, err = trusted(map[string]bq.Value{"year": "2020"})
	assert.ErrorContains(t, err, "INTEGER")
}

func TestBigQuery_WritersLoadWithTheTableSchema(t *testing.T) {
	conn := &fakeConnection{}
	wh := newBigQueryWarehouse(t, conn)
	publish[sihrd.RefinedRecord](t, wh, wh.RefinedWriter(), []sihrd.RefinedRecord{
		{MunicipalityCode: s("330455"), Date: sihrd.NewDate(2020, time.March, 1).Ptr(), Age: sihrd.Int64(38)},
	})

	require.Len(t, conn.loads, 1)
	req := conn.loads[0]
	assert.Equal(t, "refined", req.Dataset)
	assert.Equal(t, "tb_sih_rd", req.Table)
	require.Len(t, req.Schema, len(warehouse.RefinedColumns))
	types := map[string]bq.FieldType{}
	for _, f := range req.Schema {
		types[f.Name] = f.Type
	}
	assert.Equal(t, bq.DateFieldType, types["date"])
	assert.Equal(t, bq.DateFieldType, types["birth_date"])
	assert.Equal(t, bq.IntegerFieldType, types["age"])
	assert.Equal(t, bq.FloatFieldType, types["total_value"])
	assert.Equal(t, bq.StringFieldType, types["procedure_code"])

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(conn.bodies[0]), &decoded))
	assert.Equal(t, "2020-03-01", decoded["date"])
	assert.Equal(t, "330455", decoded["municipality_code"])
	assert.Nil(t, decoded["birth_date"])
}

// The load writer encodes rows with their json tags, so the tags must spell the columns.
func TestColumnsMatchJSONTags(t *testing.T) {
	cases := []struct {
		typ     reflect.Type
		columns []string
	}{
		{reflect.TypeOf(sihrd.RawRecord{}), warehouse.RawColumns},
		{reflect.TypeOf(sihrd.TrustedRecord{}), warehouse.TrustedColumns},
		{reflect.TypeOf(sihrd.RefinedRecord{}), warehouse.RefinedColumns},
		{reflect.TypeOf(sihrd.MunicipalityLookup{}), warehouse.MunicipalityColumns},
		{reflect.TypeOf(sihrd.ProcedureLookup{}), warehouse.ProcedureColumns},
	}
	for _, tc := range cases {
		tags := make([]string, tc.typ.NumField())
		for i := range tags {
			tags[i] = tc.typ.Field(i).Tag.Get("json")
		}
		assert.Equal(t, tc.columns, tags, tc.typ.Name())
	}
}

func TestBigQuery_NoOpTransactions(t *testing.T) {
	wh := newBigQueryWarehouse(t, &fakeConnection{})
	ctx := context.Background()
	chunk, err := wh.TransactionManager().Begin(ctx)
	require.NoError(t, err)
	assert.NoError(t, wh.TransactionManager().Commit(chunk))
	assert.Equal(t, appconfig.WarehouseBigQuery, wh.Kind())
	assert.Equal(t, "trusted.tb_sih_rd", wh.TrustedWriter().GetTableName())

	r := wh.MunicipalityReader()
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	_, err = r.Read(ctx)
	assert.Equal(t, io.EOF, err)
}
