package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations.
// Used by the migrate runner behind `storectl migrate`.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
