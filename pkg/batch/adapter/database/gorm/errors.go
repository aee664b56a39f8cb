package gorm

import (
	"errors"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/datasus/sihrd/pkg/batch/support/util/exception"
)

const (
	pgUndefinedTable        = "42P01"
	mysqlErrNoSuchTable     = 1146
	sqliteNoSuchTablePrefix = "no such table"
)

// IsTableNotExistError reports whether err is a driver's "table does not exist" error.
// The typed driver errors are checked first; the message fallback covers errors
// that were flattened to strings on the way up.
func IsTableNotExistError(dbType string, err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUndefinedTable
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrNoSuchTable
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return strings.Contains(liteErr.Error(), sqliteNoSuchTablePrefix)
	}

	switch dbType {
	case "postgres":
		return exception.IsErrorOfType(err, "does not exist") && exception.IsErrorOfType(err, "relation")
	case "mysql":
		return exception.IsErrorOfType(err, "Error 1146")
	case "sqlite":
		return exception.IsErrorOfType(err, sqliteNoSuchTablePrefix)
	default:
		return exception.IsErrorOfType(err, sqliteNoSuchTablePrefix) ||
			exception.IsErrorOfType(err, "Error 1146") ||
			(exception.IsErrorOfType(err, "relation") && exception.IsErrorOfType(err, "does not exist"))
	}
}
