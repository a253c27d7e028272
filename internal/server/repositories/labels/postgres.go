package labels

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dkravets/assetvault/internal/common"
	"github.com/dkravets/assetvault/internal/dbx"
	"github.com/dkravets/assetvault/internal/server/models"
)

// PostgresRepository implements label storage over a dbx.DBTX, scoped to one
// tenant schema.
type PostgresRepository struct {
	db     dbx.DBTX
	schema string
}

func NewPostgresRepository(db dbx.DBTX, schema string) *PostgresRepository {
	return &PostgresRepository{db: db, schema: schema}
}

func (r *PostgresRepository) Create(ctx context.Context, label *models.Label) error {
	query := fmt.Sprintf(`INSERT INTO %s.labels (id, name) VALUES ($1, $2)`, r.schema)
	if _, err := r.db.ExecContext(ctx, query, label.ID, label.Name); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Label, error) {
	query := fmt.Sprintf(`SELECT id, name FROM %s.labels WHERE id=$1`, r.schema)
	result := &models.Label{}
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&result.ID, &result.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select label: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Label, error) {
	query := fmt.Sprintf(`SELECT id, name FROM %s.labels ORDER BY name`, r.schema)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select labels: %w", err)
	}
	defer rows.Close()

	var result []*models.Label
	for rows.Next() {
		var item models.Label
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes the label record only. The service layer groups it with the
// bulk detach from assets so the two cannot diverge.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s.labels WHERE id=$1`, r.schema)
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
