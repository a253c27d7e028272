// Package repomanager vends repository implementations bound to a database
// handle and a tenant schema, and owns schema management: global migrations
// for the tenant registry plus per-partition DDL applied by the tenant
// router at bootstrap.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dkravets/assetvault/internal/dbx"
	"github.com/dkravets/assetvault/internal/server/repositories/assets"
	"github.com/dkravets/assetvault/internal/server/repositories/labels"
	"github.com/dkravets/assetvault/internal/server/repositories/owners"
	"github.com/dkravets/assetvault/internal/server/repositories/uploads"
)

// RepositoryManager vends repositories bound to the provided DBTX and tenant
// schema. Passing a *sql.Tx yields transactional repositories; passing the
// *sql.DB yields plain ones.
type RepositoryManager interface {
	Assets(db dbx.DBTX, schema string) assets.Repository
	Labels(db dbx.DBTX, schema string) labels.Repository
	Owners(db dbx.DBTX, schema string) owners.Repository
	Uploads(db dbx.DBTX, schema string) uploads.Repository

	// RunMigrations applies the global (non-tenant) schema migrations.
	RunMigrations(ctx context.Context, db *sql.DB) error

	// CreatePartitionSchema creates the tenant schema and its tables.
	// Idempotent; safe to re-run for an existing partition.
	CreatePartitionSchema(ctx context.Context, db dbx.DBTX, schema string) error
	// CreatePartitionIndexes builds the partition's secondary indexes. Split
	// from CreatePartitionSchema so the tenant router can run it
	// asynchronously without blocking the first request.
	CreatePartitionIndexes(ctx context.Context, db dbx.DBTX, schema string) error
	// DropPartitionSchema irreversibly removes the schema and everything in it.
	DropPartitionSchema(ctx context.Context, db dbx.DBTX, schema string) error
}
