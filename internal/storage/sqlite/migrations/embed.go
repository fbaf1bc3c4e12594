// Package migrations embeds the SQLite schema migrations.
package migrations

import "embed"

// FS holds every NNN_name.up.sql file.
//
//go:embed *.sql
var FS embed.FS
