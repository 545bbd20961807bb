package migrations

import "embed"

// FS contains embedded SQLite migrations for the session registry.
//
//go:embed *.sql
var FS embed.FS
