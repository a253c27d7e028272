package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dkravets/assetvault/internal/dbx"
	"github.com/dkravets/assetvault/internal/server/migrations"
	"github.com/dkravets/assetvault/internal/server/repositories/assets"
	"github.com/dkravets/assetvault/internal/server/repositories/labels"
	"github.com/dkravets/assetvault/internal/server/repositories/owners"
	"github.com/dkravets/assetvault/internal/server/repositories/uploads"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository
// implementations and exposes schema management hooks.
type PostgresRepositoryManager struct{}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

// Assets returns an assets.Repository bound to the provided DBTX and schema.
func (m *PostgresRepositoryManager) Assets(db dbx.DBTX, schema string) assets.Repository {
	return assets.NewPostgresRepository(db, schema)
}

// Labels returns a labels.Repository bound to the provided DBTX and schema.
func (m *PostgresRepositoryManager) Labels(db dbx.DBTX, schema string) labels.Repository {
	return labels.NewPostgresRepository(db, schema)
}

// Owners returns an owners.Repository bound to the provided DBTX and schema.
func (m *PostgresRepositoryManager) Owners(db dbx.DBTX, schema string) owners.Repository {
	return owners.NewPostgresRepository(db, schema)
}

// Uploads returns an uploads.Repository bound to the provided DBTX and schema.
func (m *PostgresRepositoryManager) Uploads(db dbx.DBTX, schema string) uploads.Repository {
	return uploads.NewPostgresRepository(db, schema)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection. Only the global tenant registry
// lives here; per-tenant DDL is applied by CreatePartitionSchema because
// goose tracks versions in a single global table.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}
