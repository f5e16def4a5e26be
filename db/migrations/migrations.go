// Package migrations embeds the Postgres goose migration files so the
// binary carries its own schema and never depends on a checkout path
// at runtime.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
