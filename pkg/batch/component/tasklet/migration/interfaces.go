package migration

import (
	"context"
	"io/fs"

	"github.com/datasus/sihrd/pkg/batch/adapter/database"
)

// MigrationsTable is the table golang-migrate records applied versions in.
const MigrationsTable = "sihrd_schema_migrations"

// Migrator applies or reverts the migrations found under path in migrationFS.
type Migrator interface {
	Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Close releases the migrator and the connection it was built on.
	Close() error
}

// DedicatedOpener opens connections that are not shared with the rest of the job.
// The gorm DBConnectionResolver satisfies it.
type DedicatedOpener interface {
	OpenDedicated(name string) (database.DBConnection, error)
}
