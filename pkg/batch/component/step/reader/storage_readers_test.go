package reader_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go/writer"

	storageAdapter "github.com/datasus/sihrd/pkg/batch/adapter/storage"
	storageConfig "github.com/datasus/sihrd/pkg/batch/adapter/storage/config"
	"github.com/datasus/sihrd/pkg/batch/adapter/storage/local"
	"github.com/datasus/sihrd/pkg/batch/component/step/reader"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
)

func newLocalStorage(t *testing.T) storageAdapter.StorageConnection {
	t.Helper()
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir()}, "test")
	require.NoError(t, err)
	return conn
}

type codeName struct {
	Code string
	Name *string
}

func mapCodeName(rec reader.CSVRecord) (codeName, error) {
	out := codeName{Code: rec["COD"]}
	if v := rec["NOME"]; v != "" {
		out.Name = &v
	}
	return out, nil
}

func drain[T any](t *testing.T, r interface {
	Read(context.Context) (T, error)
}) []T {
	t.Helper()
	var out []T
	for {
		item, err := r.Read(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, item)
	}
}

func TestCSVReader_HeaderBOMAndEmptyCells(t *testing.T) {
	ctx := context.Background()
	conn := newLocalStorage(t)
	content := "\xEF\xBB\xBFCOD,NOME\n355030,São Paulo\n330455,\n"
	require.NoError(t, conn.Upload(ctx, "", "lookup_municipality.csv", strings.NewReader(content), "text/csv"))

	r := reader.NewCSVReader(conn, "municipality", "", "lookup_municipality.csv", 0, mapCodeName)
	ec := model.NewExecutionContext()
	require.NoError(t, r.Open(ctx, ec))
	rows := drain[codeName](t, r)
	require.NoError(t, r.Close(ctx))

	require.Len(t, rows, 2)
	assert.Equal(t, "355030", rows[0].Code)
	assert.Equal(t, "São Paulo", *rows[0].Name)
	assert.Nil(t, rows[1].Name)
	n, _ := ec.GetInt("municipality.readCount")
	assert.Equal(t, 2, n)
}

func TestCSVReader_SemicolonDelimiter(t *testing.T) {
	ctx := context.Background()
	conn := newLocalStorage(t)
	require.NoError(t, conn.Upload(ctx, "", "p.csv", strings.NewReader("COD;NOME\n303010026;TRATAMENTO\n"), ""))

	r := reader.NewCSVReader(conn, "procedure", "", "p.csv", ';', mapCodeName)
	require.NoError(t, r.Open(ctx, nil))
	rows := drain[codeName](t, r)
	require.Len(t, rows, 1)
	assert.Equal(t, "TRATAMENTO", *rows[0].Name)
}

func TestCSVReader_EmptyObjectFails(t *testing.T) {
	ctx := context.Background()
	conn := newLocalStorage(t)
	require.NoError(t, conn.Upload(ctx, "", "empty.csv", strings.NewReader(""), ""))

	r := reader.NewCSVReader(conn, "empty", "", "empty.csv", 0, mapCodeName)
	assert.Error(t, r.Open(ctx, nil))
	assert.NoError(t, r.Close(ctx))
}

type rawRow struct {
	UF   *string `parquet:"name=UF_ZI, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Nasc *string `parquet:"name=NASC, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

func uploadParquet(t *testing.T, conn storageAdapter.StorageConnection, name string, rows []rawRow) {
	t.Helper()
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(rawRow), 1)
	require.NoError(t, err)
	for _, row := range rows {
		require.NoError(t, pw.Write(row))
	}
	require.NoError(t, pw.WriteStop())
	require.NoError(t, conn.Upload(context.Background(), "", name, buf, "application/octet-stream"))
}

func TestParquetReader_ReadsMatchingObjectsInOrder(t *testing.T) {
	ctx := context.Background()
	conn := newLocalStorage(t)
	sp, rj, nasc := "35", "33", "19800115"
	uploadParquet(t, conn, "sih/RDSP2001.parquet", []rawRow{{UF: &sp, Nasc: &nasc}, {UF: &sp}})
	uploadParquet(t, conn, "sih/RDRJ2001.parquet", []rawRow{{UF: &rj}})
	require.NoError(t, conn.Upload(ctx, "", "sih/README.txt", strings.NewReader("not parquet"), ""))

	r := reader.NewParquetReader[rawRow](conn, "raw", "", "sih/", "RD*.parquet")
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	rows := drain[rawRow](t, r)
	require.NoError(t, r.Close(ctx))

	require.Len(t, rows, 3)
	assert.Equal(t, "33", *rows[0].UF)
	assert.Equal(t, "35", *rows[1].UF)
	assert.Equal(t, "19800115", *rows[1].Nasc)
	assert.Nil(t, rows[2].Nasc)
}

func TestParquetReader_NoMatchingObjects(t *testing.T) {
	conn := newLocalStorage(t)
	r := reader.NewParquetReader[rawRow](conn, "raw", "", "sih/", "")
	assert.Error(t, r.Open(context.Background(), nil))
}

type wideRawRow struct {
	UF      *string `parquet:"name=UF_ZI, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	CGCHosp *string `parquet:"name=CGC_HOSP, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	CEP     *string `parquet:"name=CEP, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Nasc    *string `parquet:"name=NASC, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

func TestParquetReader_IgnoresExtraColumns(t *testing.T) {
	ctx := context.Background()
	conn := newLocalStorage(t)
	uf, cgc, cep, nasc := "330455", "12345678000199", "20000000", "19851231"

	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(wideRawRow), 1)
	require.NoError(t, err)
	require.NoError(t, pw.Write(wideRawRow{UF: &uf, CGCHosp: &cgc, CEP: &cep, Nasc: &nasc}))
	require.NoError(t, pw.Write(wideRawRow{UF: &uf}))
	require.NoError(t, pw.WriteStop())
	require.NoError(t, conn.Upload(ctx, "", "sih/RDRJ2403.parquet", buf, "application/octet-stream"))

	r := reader.NewParquetReader[rawRow](conn, "raw", "", "sih/", "RD*.parquet")
	ec := model.NewExecutionContext()
	require.NoError(t, r.Open(ctx, ec))
	rows := drain[rawRow](t, r)
	require.NoError(t, r.Close(ctx))

	require.Len(t, rows, 2)
	assert.Equal(t, "330455", *rows[0].UF)
	assert.Equal(t, "19851231", *rows[0].Nasc)
	assert.Nil(t, rows[1].Nasc)
	count, ok := ec.GetInt("raw.readCount")
	require.True(t, ok)
	assert.Equal(t, 2, count)
}
