// Package migrations embeds the global goose migrations (tenant registry).
// Per-tenant DDL is not managed here; see repomanager.CreatePartitionSchema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
