// Package migration provides a tasklet that applies embedded golang-migrate migrations
// to a named database connection.
package migration

import (
	"context"
	"io/fs"

	"github.com/datasus/sihrd/pkg/batch/core/application/port"
	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
	"github.com/datasus/sihrd/pkg/batch/support/util/exception"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

const taskletName = "migration_tasklet"

// MigrationTasklet runs one migration command against a dedicated connection.
type MigrationTasklet struct {
	opener DedicatedOpener

	dbName       string
	migrationFS  fs.FS
	migrationDir string
	command      string
}

// Options configure a MigrationTasklet.
type Options struct {
	// DBRef is the adapter.database connection to migrate.
	DBRef string
	// Dir is the directory of migrationFS holding the scripts. Empty means the database type.
	Dir string
	// Command is "up" (default) or "down".
	Command string
}

// NewMigrationTasklet creates a MigrationTasklet.
func NewMigrationTasklet(opener DedicatedOpener, migrationFS fs.FS, opts Options) (*MigrationTasklet, error) {
	if opts.DBRef == "" {
		return nil, exception.NewBatchErrorf(taskletName, "option 'DBRef' is required for MigrationTasklet")
	}
	if migrationFS == nil {
		return nil, exception.NewBatchErrorf(taskletName, "a migration filesystem is required for MigrationTasklet")
	}
	command := opts.Command
	if command == "" {
		command = "up"
	}
	if command != "up" && command != "down" {
		return nil, exception.NewBatchErrorf(taskletName, "unknown migration command: %s", command)
	}
	return &MigrationTasklet{
		opener:       opener,
		dbName:       opts.DBRef,
		migrationFS:  migrationFS,
		migrationDir: opts.Dir,
		command:      command,
	}, nil
}

var _ port.Tasklet = (*MigrationTasklet)(nil)

// Execute opens a dedicated connection, applies the command and closes the connection.
// Connections already resolved by other steps are unaffected.
func (t *MigrationTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	dbConn, err := t.opener.OpenDedicated(t.dbName)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(taskletName, "failed to open a migration connection for '"+t.dbName+"'", err)
	}
	migrator := NewMigrator(dbConn)
	defer func() {
		// The migrate instance already closed the pool; a second close is a no-op.
		_ = migrator.Close()
	}()

	dir := t.migrationDir
	if dir == "" {
		dir = dbConn.Type()
	}
	logger.Infof("Starting database migration '%s' for connection '%s' (dir: %s).", t.command, t.dbName, dir)

	if t.command == "down" {
		err = migrator.Down(ctx, t.migrationFS, dir, MigrationsTable)
	} else {
		err = migrator.Up(ctx, t.migrationFS, dir, MigrationsTable)
	}
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(taskletName, "migration '"+t.command+"' failed", err)
	}
	if stepExecution != nil && stepExecution.ExecutionContext != nil {
		stepExecution.ExecutionContext.Put("migration.command", t.command)
		stepExecution.ExecutionContext.Put("migration.dir", dir)
	}
	return model.ExitStatusCompleted, nil
}

// Close implements port.Tasklet.
func (t *MigrationTasklet) Close(ctx context.Context) error {
	return nil
}
