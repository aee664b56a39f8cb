package bigquery_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasus/sihrd/pkg/batch/adapter/bigquery"
	coreConfig "github.com/datasus/sihrd/pkg/batch/core/config"
)

type fakeConn struct {
	bigquery.Connection
	name   string
	closed int
}

func (f *fakeConn) Close() error { f.closed++; return nil }

func testConfig() *coreConfig.Config {
	return &coreConfig.Config{Surfin: coreConfig.SurfinConfig{AdapterConfigs: map[string]interface{}{
		"bigquery": map[string]interface{}{
			"warehouse": map[string]interface{}{"project_id": "datasus-dev"},
			"broken":    map[string]interface{}{"location": "EU"},
		},
	}}}
}

func TestLookupConfig(t *testing.T) {
	c, err := bigquery.LookupConfig(testConfig(), "warehouse")
	require.NoError(t, err)
	assert.Equal(t, "datasus-dev", c.ProjectID)
	assert.Equal(t, "US", c.Location)

	_, err = bigquery.LookupConfig(testConfig(), "broken")
	assert.ErrorContains(t, err, "project_id")
	_, err = bigquery.LookupConfig(testConfig(), "missing")
	assert.Error(t, err)
}

func TestProvider_CachesAndCloses(t *testing.T) {
	opened := 0
	var last *fakeConn
	p := bigquery.NewProviderWith(testConfig(), func(ctx context.Context, c bigquery.Config, name string) (bigquery.Connection, error) {
		opened++
		last = &fakeConn{name: name}
		return last, nil
	})

	first, err := p.GetConnection(context.Background(), "warehouse")
	require.NoError(t, err)
	second, err := p.GetConnection(context.Background(), "warehouse")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, opened)

	require.NoError(t, p.CloseAll())
	assert.Equal(t, 1, last.closed)
}

func TestProvider_ConnectError(t *testing.T) {
	p := bigquery.NewProviderWith(testConfig(), func(ctx context.Context, c bigquery.Config, name string) (bigquery.Connection, error) {
		return nil, errors.New("no credentials")
	})
	_, err := p.GetConnection(context.Background(), "warehouse")
	assert.ErrorContains(t, err, "no credentials")
}
