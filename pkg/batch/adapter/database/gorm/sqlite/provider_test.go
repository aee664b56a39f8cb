package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/datasus/sihrd/pkg/batch/adapter/database/config"
	"github.com/datasus/sihrd/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/datasus/sihrd/pkg/batch/core/config"
)

func providerFor(database string) *config.Config {
	return &config.Config{
		Surfin: config.SurfinConfig{
			AdapterConfigs: map[string]interface{}{
				"database": map[string]interface{}{
					"warehouse": map[string]interface{}{
						"type":     sqlite.DBType,
						"database": database,
					},
				},
			},
		},
	}
}

func TestIsInMemory(t *testing.T) {
	for _, dsn := range []string{":memory:", "file::memory:?cache=shared", "file:warehouse?mode=memory&cache=shared"} {
		assert.True(t, sqlite.IsInMemory(dsn), dsn)
	}
	for _, dsn := range []string{"./data/warehouse.db", "/tmp/memory.db", "warehouse.db?_journal_mode=WAL"} {
		assert.False(t, sqlite.IsInMemory(dsn), dsn)
	}
}

func TestProvider_RejectsInMemoryDatabase(t *testing.T) {
	for _, dsn := range []string{":memory:", "file::memory:?cache=shared"} {
		cfg := providerFor(dsn)
		conn, err := sqlite.NewProvider(cfg).GetConnection("warehouse")
		require.Error(t, err, dsn)
		assert.Nil(t, conn)
		assert.Contains(t, err.Error(), "in-memory")
	}
}

func TestProvider_OpensFileDatabase(t *testing.T) {
	cfg := providerFor(filepath.Join(t.TempDir(), "warehouse.db"))
	provider := sqlite.NewProvider(cfg)
	conn, err := provider.GetConnection("warehouse")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	assert.Equal(t, sqlite.DBType, conn.Type())
}

func TestConnectionString(t *testing.T) {
	assert.Equal(t, "w.db?_journal_mode=WAL&_busy_timeout=5000",
		sqlite.ConnectionString(dbconfig.DatabaseConfig{Database: "w.db", BusyTimeoutMillis: 5000}))
	assert.Equal(t, "w.db?_foreign_keys=on",
		sqlite.ConnectionString(dbconfig.DatabaseConfig{Database: "w.db?_foreign_keys=on"}))
}
