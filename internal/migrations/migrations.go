// Package migrations embeds the schema of the tables the pipeline reads but does not
// produce: the raw table and the two registries. Trusted and refined are created by
// their writers.
package migrations

import "embed"

// FS holds one directory per database type.
//
//go:embed sqlite/*.sql postgres/*.sql mysql/*.sql
var FS embed.FS
