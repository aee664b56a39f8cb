package reader_test

import (
	"context"
	"errors"
	"io"
	"testing"

	bq "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"

	"github.com/datasus/sihrd/pkg/batch/adapter/bigquery"
	"github.com/datasus/sihrd/pkg/batch/component/step/reader"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
)

type fakeIterator struct {
	rows []map[string]bq.Value
	err  error
}

func (f *fakeIterator) Next(dst interface{}) error {
	if len(f.rows) == 0 {
		if f.err != nil {
			return f.err
		}
		return iterator.Done
	}
	*dst.(*map[string]bq.Value) = f.rows[0]
	f.rows = f.rows[1:]
	return nil
}

type fakeQuerier struct {
	it      *fakeIterator
	err     error
	queries []string
}

func (f *fakeQuerier) Query(ctx context.Context, sql string) (bigquery.RowIterator, error) {
	f.queries = append(f.queries, sql)
	if f.err != nil {
		return nil, f.err
	}
	return f.it, nil
}

func codeOf(row reader.BigQueryRow) (string, error) {
	v, ok := row["COD"].(string)
	if !ok {
		return "", errors.New("COD is not a string")
	}
	return v, nil
}

func TestBigQueryReader_ReadsUntilDone(t *testing.T) {
	q := &fakeQuerier{it: &fakeIterator{rows: []map[string]bq.Value{{"COD": "355030"}, {"COD": "330455"}}}}
	r := reader.NewBigQueryReader[string](q, "lookups", "SELECT COD FROM lookup.tb_lookup_municipality", codeOf)
	ec := model.NewExecutionContext()
	require.NoError(t, r.Open(context.Background(), ec))

	var got []string
	for {
		v, err := r.Read(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []string{"355030", "330455"}, got)
	assert.Equal(t, []string{"SELECT COD FROM lookup.tb_lookup_municipality"}, q.queries)
	n, _ := ec.GetInt("lookups.readCount")
	assert.Equal(t, 2, n)
	require.NoError(t, r.Close(context.Background()))

	_, err := r.Read(context.Background())
	assert.Error(t, err)
}

func TestBigQueryReader_Errors(t *testing.T) {
	r := reader.NewBigQueryReader[string](&fakeQuerier{err: errors.New("access denied")}, "x", "SELECT 1", codeOf)
	assert.ErrorContains(t, r.Open(context.Background(), nil), "access denied")

	q := &fakeQuerier{it: &fakeIterator{rows: []map[string]bq.Value{{"COD": int64(1)}}}}
	r = reader.NewBigQueryReader[string](q, "x", "SELECT 1", codeOf)
	require.NoError(t, r.Open(context.Background(), nil))
	_, err := r.Read(context.Background())
	assert.ErrorContains(t, err, "failed to map row 1")

	q = &fakeQuerier{it: &fakeIterator{err: errors.New("stream reset")}}
	r = reader.NewBigQueryReader[string](q, "x", "SELECT 1", codeOf)
	require.NoError(t, r.Open(context.Background(), nil))
	_, err = r.Read(context.Background())
	assert.ErrorContains(t, err, "stream reset")
}
