// Package sqlite registers the SQLite dialector and DBProvider.
package sqlite

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/datasus/sihrd/pkg/batch/adapter/database"
	dbconfig "github.com/datasus/sihrd/pkg/batch/adapter/database/config"
	gormadapter "github.com/datasus/sihrd/pkg/batch/adapter/database/gorm"
	"github.com/datasus/sihrd/pkg/batch/core/config"
)

// DBType is the adapter.database type handled by this package.
const DBType = "sqlite"

func init() {
	gormadapter.RegisterDialector(DBType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		if IsInMemory(cfg.Database) {
			return nil, fmt.Errorf("SQLite in-memory database '%s' is not supported: every pooled connection would see its own empty database; use a file path", cfg.Database)
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// IsInMemory reports whether database names an in-memory SQLite database.
// Steps keep a read cursor open while chunk transactions write, which needs
// at least two connections onto the same database.
func IsInMemory(database string) bool {
	return database == ":memory:" ||
		strings.HasPrefix(database, "file::memory:") ||
		strings.Contains(database, "mode=memory")
}

// ConnectionString returns the DSN for a SQLite file. File databases are opened in WAL
// mode so that a cursor and a chunk transaction can be open at the same time.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	if strings.Contains(c.Database, "?") {
		return c.Database
	}
	return fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", c.Database, c.BusyTimeoutMillis)
}

// NewProvider creates the SQLite DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, DBType)
}
