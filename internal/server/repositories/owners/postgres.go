package owners

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dkravets/assetvault/internal/dbx"
)

// PostgresRepository implements the owner counter over a dbx.DBTX, scoped to
// one tenant schema.
type PostgresRepository struct {
	db     dbx.DBTX
	schema string
}

func NewPostgresRepository(db dbx.DBTX, schema string) *PostgresRepository {
	return &PostgresRepository{db: db, schema: schema}
}

// IncrementAssetCount upserts the owner row and applies the delta in a
// single statement, so concurrent creates never lose updates. There is no
// read-modify-write anywhere on this path.
func (r *PostgresRepository) IncrementAssetCount(ctx context.Context, ownerID uuid.UUID, delta int64) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.owners (id, asset_count) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET asset_count = owners.asset_count + EXCLUDED.asset_count;
	`, r.schema)
	res, err := r.db.ExecContext(ctx, query, ownerID, delta)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

func (r *PostgresRepository) AssetCount(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	query := fmt.Sprintf(`SELECT asset_count FROM %s.owners WHERE id=$1`, r.schema)
	var count int64
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to select counter: %w", err)
	}
	return count, nil
}
