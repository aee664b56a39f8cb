package writer_test

import (
	"context"
	"errors"
	"io"
	"testing"

	bq "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasus/sihrd/pkg/batch/adapter/bigquery"
	"github.com/datasus/sihrd/pkg/batch/component/step/writer"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
)

type lookupRow struct {
	Cod  *string `json:"COD"`
	Nome *string `json:"NOME"`
}

type fakeLoader struct {
	requests []bigquery.LoadRequest
	body     string
	err      error
}

func (f *fakeLoader) Load(ctx context.Context, req bigquery.LoadRequest) error {
	data, err := io.ReadAll(req.Data)
	if err != nil {
		return err
	}
	f.body = string(data)
	f.requests = append(f.requests, req)
	return f.err
}

var lookupSchema = bq.Schema{
	{Name: "COD", Type: bq.StringFieldType},
	{Name: "NOME", Type: bq.StringFieldType},
}

func TestBigQueryLoadWriter_LoadsSpooledRows(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{}
	w := writer.NewBigQueryLoadWriter[lookupRow]("lookups", "bq", "lookup", "tb_lookup_municipality", lookupSchema, loader)
	ec := model.NewExecutionContext()
	require.NoError(t, w.Open(ctx, ec))
	require.NoError(t, w.Write(ctx, nil, []lookupRow{{Cod: str("355030"), Nome: str("São Paulo")}}))
	require.NoError(t, w.Write(ctx, nil, []lookupRow{{Cod: str("330455")}}))
	require.NoError(t, w.Complete(ctx))
	require.NoError(t, w.Close(ctx))

	require.Len(t, loader.requests, 1)
	assert.Equal(t, "lookup", loader.requests[0].Dataset)
	assert.Equal(t, "tb_lookup_municipality", loader.requests[0].Table)
	assert.Equal(t, "{\"COD\":\"355030\",\"NOME\":\"São Paulo\"}\n{\"COD\":\"330455\",\"NOME\":null}\n", loader.body)
	n, _ := ec.GetInt("lookups.published")
	assert.Equal(t, 2, n)
	assert.Equal(t, "lookup.tb_lookup_municipality", w.GetTableName())
}

func TestBigQueryLoadWriter_LoadFailure(t *testing.T) {
	ctx := context.Background()
	w := writer.NewBigQueryLoadWriter[lookupRow]("lookups", "bq", "lookup", "t", lookupSchema, &fakeLoader{err: errors.New("quota exceeded")})
	require.NoError(t, w.Open(ctx, nil))
	require.NoError(t, w.Write(ctx, nil, []lookupRow{{}}))
	assert.ErrorContains(t, w.Complete(ctx), "quota exceeded")
	assert.NoError(t, w.Close(ctx))
	assert.NoError(t, w.Close(ctx))
}
