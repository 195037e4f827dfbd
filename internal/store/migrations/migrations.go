// Package migrations embeds the versioned SQLite schema of the entry store.
package migrations

import "embed"

// FS holds the goose migration files.
//
//go:embed *.sql
var FS embed.FS
