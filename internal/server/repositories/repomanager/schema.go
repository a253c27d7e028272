package repomanager

import (
	"context"
	"fmt"

	"github.com/dkravets/assetvault/internal/dbx"
)

// partitionTables is the per-tenant DDL applied synchronously at partition
// bootstrap. Statements are idempotent so a racing second bootstrap is
// harmless. The schema placeholder is filled with a name validated by the
// tenant router (lowercase identifier characters only).
var partitionTables = []string{
	`CREATE SCHEMA IF NOT EXISTS %[1]s;`,
	`CREATE TABLE IF NOT EXISTS %[1]s.owners (
		id uuid PRIMARY KEY,
		asset_count bigint NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS %[1]s.assets (
		id uuid PRIMARY KEY,
		owner_id uuid NOT NULL,
		uploader_id uuid NOT NULL,
		title text NOT NULL DEFAULT '',
		description text NOT NULL DEFAULT '',
		filename text NOT NULL,
		mime_type text NOT NULL,
		size_bytes bigint NOT NULL,
		storage_key text NOT NULL,
		uploaded_at timestamptz NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS %[1]s.labels (
		id uuid PRIMARY KEY,
		name text NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS %[1]s.asset_labels (
		asset_id uuid NOT NULL REFERENCES %[1]s.assets(id) ON DELETE CASCADE,
		label_id uuid NOT NULL REFERENCES %[1]s.labels(id),
		PRIMARY KEY (asset_id, label_id)
	);`,
	`CREATE TABLE IF NOT EXISTS %[1]s.upload_sessions (
		id uuid PRIMARY KEY,
		owner_id uuid NOT NULL,
		uploader_id uuid NOT NULL,
		filename text NOT NULL,
		mime_type text NOT NULL,
		total_size bigint NOT NULL,
		status text NOT NULL DEFAULT 'pending',
		created_at timestamptz NOT NULL DEFAULT now(),
		expires_at timestamptz NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS %[1]s.upload_chunks (
		session_id uuid NOT NULL REFERENCES %[1]s.upload_sessions(id) ON DELETE CASCADE,
		chunk_index int NOT NULL,
		size_bytes int NOT NULL,
		data bytea NOT NULL,
		PRIMARY KEY (session_id, chunk_index)
	);`,
}

// partitionIndexes is secondary-index DDL the router builds asynchronously:
// queries work without them, so index failures are logged rather than
// failing the request that triggered the bootstrap.
var partitionIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_assets_owner ON %[1]s.assets (owner_id);`,
	`CREATE INDEX IF NOT EXISTS idx_asset_labels_label ON %[1]s.asset_labels (label_id);`,
	`CREATE INDEX IF NOT EXISTS idx_upload_sessions_expires ON %[1]s.upload_sessions (expires_at);`,
}

func (m *PostgresRepositoryManager) CreatePartitionSchema(ctx context.Context, db dbx.DBTX, schema string) error {
	for _, stmt := range partitionTables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(stmt, schema)); err != nil {
			return fmt.Errorf("partition ddl error: %w", err)
		}
	}
	return nil
}

func (m *PostgresRepositoryManager) CreatePartitionIndexes(ctx context.Context, db dbx.DBTX, schema string) error {
	for _, stmt := range partitionIndexes {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(stmt, schema)); err != nil {
			return fmt.Errorf("partition index error: %w", err)
		}
	}
	return nil
}

// DropPartitionSchema removes the tenant schema and every object in it. The
// CASCADE drop is a single transactional statement in Postgres, so no reader
// observes a partially dropped partition.
func (m *PostgresRepositoryManager) DropPartitionSchema(ctx context.Context, db dbx.DBTX, schema string) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE;`, schema)); err != nil {
		return fmt.Errorf("partition drop error: %w", err)
	}
	return nil
}
