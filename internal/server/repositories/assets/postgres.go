package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dkravets/assetvault/internal/common"
	"github.com/dkravets/assetvault/internal/dbx"
	"github.com/dkravets/assetvault/internal/server/models"
)

// PostgresRepository implements asset metadata storage over a dbx.DBTX
// (*sql.DB or *sql.Tx), scoped to one tenant schema.
type PostgresRepository struct {
	db     dbx.DBTX
	schema string
}

// NewPostgresRepository constructs a repository bound to the given DBTX and
// tenant schema. The schema name is validated by the tenant router before it
// reaches this layer.
func NewPostgresRepository(db dbx.DBTX, schema string) *PostgresRepository {
	return &PostgresRepository{db: db, schema: schema}
}

// Create inserts a new asset record. The caller groups it with the owner
// counter increment inside one transaction.
func (r *PostgresRepository) Create(ctx context.Context, asset *models.Asset) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.assets (id, owner_id, uploader_id, title, description, filename, mime_type, size_bytes, storage_key, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`, r.schema)
	res, err := r.db.ExecContext(ctx, query,
		asset.ID, asset.OwnerID, asset.UploaderID, asset.Title, asset.Description,
		asset.Filename, asset.MimeType, asset.Size, asset.StorageKey, asset.UploadedAt)
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

// GetByID returns one asset with its label set loaded.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	query := fmt.Sprintf(`
		SELECT id, owner_id, uploader_id, title, description, filename, mime_type, size_bytes, storage_key, uploaded_at
		FROM %s.assets WHERE id=$1
	`, r.schema)

	result := &models.Asset{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&result.ID, &result.OwnerID, &result.UploaderID, &result.Title, &result.Description,
		&result.Filename, &result.MimeType, &result.Size, &result.StorageKey, &result.UploadedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select asset: %w", err)
	}

	labels, err := r.labelsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	result.LabelIDs = labels
	return result, nil
}

func (r *PostgresRepository) labelsFor(ctx context.Context, assetID uuid.UUID) ([]uuid.UUID, error) {
	query := fmt.Sprintf(`SELECT label_id FROM %s.asset_labels WHERE asset_id=$1 ORDER BY label_id`, r.schema)
	rows, err := r.db.QueryContext(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to select labels: %w", err)
	}
	defer rows.Close()

	var result []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateDescriptive changes title and description only; all other fields are
// immutable after creation.
func (r *PostgresRepository) UpdateDescriptive(ctx context.Context, id uuid.UUID, title, description string) error {
	query := fmt.Sprintf(`UPDATE %s.assets SET title=$2, description=$3 WHERE id=$1`, r.schema)
	res, err := r.db.ExecContext(ctx, query, id, title, description)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
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

// Delete removes the asset record. Label links go with it via cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s.assets WHERE id=$1`, r.schema)
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
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

// ListByOwner returns all assets attached to the owner, labels included,
// newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Asset, error) {
	query := fmt.Sprintf(`
		SELECT a.id, a.owner_id, a.uploader_id, a.title, a.description, a.filename, a.mime_type, a.size_bytes, a.storage_key, a.uploaded_at, al.label_id
		FROM %s.assets a
		LEFT JOIN %s.asset_labels al ON al.asset_id = a.id
		WHERE a.owner_id=$1
		ORDER BY a.uploaded_at DESC, a.id, al.label_id
	`, r.schema, r.schema)
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select assets: %w", err)
	}
	defer rows.Close()
	return collectAssetRows(rows)
}

// ListByAnyLabel returns assets labeled with at least one of labelIDs
// ("contains any of X" set semantics).
func (r *PostgresRepository) ListByAnyLabel(ctx context.Context, labelIDs []uuid.UUID) ([]*models.Asset, error) {
	if len(labelIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(labelIDs))
	args := make([]any, len(labelIDs))
	for i, id := range labelIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT a.id, a.owner_id, a.uploader_id, a.title, a.description, a.filename, a.mime_type, a.size_bytes, a.storage_key, a.uploaded_at, al.label_id
		FROM %s.assets a
		LEFT JOIN %s.asset_labels al ON al.asset_id = a.id
		WHERE a.id IN (
			SELECT asset_id FROM %s.asset_labels WHERE label_id IN (%s)
		)
		ORDER BY a.uploaded_at DESC, a.id, al.label_id
	`, r.schema, r.schema, r.schema, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select assets: %w", err)
	}
	defer rows.Close()
	return collectAssetRows(rows)
}

// collectAssetRows folds a joined asset/label result set into assets with
// label slices. Rows for one asset are adjacent because of the ORDER BY.
func collectAssetRows(rows *sql.Rows) ([]*models.Asset, error) {
	var result []*models.Asset
	var current *models.Asset
	for rows.Next() {
		var item models.Asset
		var labelID uuid.NullUUID
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.UploaderID, &item.Title, &item.Description,
			&item.Filename, &item.MimeType, &item.Size, &item.StorageKey, &item.UploadedAt, &labelID); err != nil {
			return nil, err
		}
		if current == nil || current.ID != item.ID {
			current = &item
			result = append(result, current)
		}
		if labelID.Valid {
			current.LabelIDs = append(current.LabelIDs, labelID.UUID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ReplaceLabels rewrites the asset's label set. Runs inside the caller's
// transaction together with the asset mutation it accompanies.
func (r *PostgresRepository) ReplaceLabels(ctx context.Context, assetID uuid.UUID, labelIDs []uuid.UUID) error {
	del := fmt.Sprintf(`DELETE FROM %s.asset_labels WHERE asset_id=$1`, r.schema)
	if _, err := r.db.ExecContext(ctx, del, assetID); err != nil {
		return fmt.Errorf("failed to clear labels: %w", err)
	}
	ins := fmt.Sprintf(`INSERT INTO %s.asset_labels (asset_id, label_id) VALUES ($1, $2)`, r.schema)
	for _, labelID := range labelIDs {
		if _, err := r.db.ExecContext(ctx, ins, assetID, labelID); err != nil {
			return fmt.Errorf("failed to attach label: %w", err)
		}
	}
	return nil
}

// DetachLabel strips the label from every asset referencing it and returns
// how many links were removed. Grouped with the label record deletion in one
// transaction by the service layer.
func (r *PostgresRepository) DetachLabel(ctx context.Context, labelID uuid.UUID) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s.asset_labels WHERE label_id=$1`, r.schema)
	res, err := r.db.ExecContext(ctx, query, labelID)
	if err != nil {
		return 0, fmt.Errorf("failed to detach label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
