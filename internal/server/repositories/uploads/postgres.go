package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dkravets/assetvault/internal/common"
	"github.com/dkravets/assetvault/internal/dbx"
	"github.com/dkravets/assetvault/internal/server/models"
)

// Postgres error code for foreign key violations: a chunk insert referencing
// a session deleted by a concurrent discard or sweep.
const pgFKViolation = "23503"

// PostgresRepository implements upload session storage over a dbx.DBTX,
// scoped to one tenant schema.
type PostgresRepository struct {
	db     dbx.DBTX
	schema string
}

func NewPostgresRepository(db dbx.DBTX, schema string) *PostgresRepository {
	return &PostgresRepository{db: db, schema: schema}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, session *models.UploadSession) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.upload_sessions (id, owner_id, uploader_id, filename, mime_type, total_size, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`, r.schema)
	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.OwnerID, session.UploaderID, session.Filename, session.MimeType,
		session.TotalSize, session.Status, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.UploadSession, error) {
	query := fmt.Sprintf(`
		SELECT id, owner_id, uploader_id, filename, mime_type, total_size, status, created_at, expires_at
		FROM %s.upload_sessions WHERE id=$1
	`, r.schema)

	result := &models.UploadSession{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&result.ID, &result.OwnerID, &result.UploaderID, &result.Filename, &result.MimeType,
		&result.TotalSize, &result.Status, &result.CreatedAt, &result.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to select session: %w", err)
	}
	return result, nil
}

// UpsertChunk is idempotent per (session, index): resubmitting overwrites the
// stored bytes instead of duplicating them.
func (r *PostgresRepository) UpsertChunk(ctx context.Context, chunk *models.UploadChunk) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.upload_chunks (session_id, chunk_index, size_bytes, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, chunk_index)
		DO UPDATE SET size_bytes = EXCLUDED.size_bytes, data = EXCLUDED.data;
	`, r.schema)
	_, err := r.db.ExecContext(ctx, query, chunk.SessionID, chunk.Index, chunk.Size, chunk.Data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgFKViolation {
			return common.ErrSessionNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ReceivedIndexes(ctx context.Context, sessionID uuid.UUID) ([]int, error) {
	query := fmt.Sprintf(`SELECT chunk_index FROM %s.upload_chunks WHERE session_id=$1 ORDER BY chunk_index`, r.schema)
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunk indexes: %w", err)
	}
	defer rows.Close()

	var result []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		result = append(result, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListChunks(ctx context.Context, sessionID uuid.UUID) ([]*models.UploadChunk, error) {
	query := fmt.Sprintf(`SELECT session_id, chunk_index, size_bytes, data FROM %s.upload_chunks WHERE session_id=$1 ORDER BY chunk_index`, r.schema)
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunks: %w", err)
	}
	defer rows.Close()

	var result []*models.UploadChunk
	for rows.Next() {
		var item models.UploadChunk
		if err := rows.Scan(&item.SessionID, &item.Index, &item.Size, &item.Data); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ClaimSession is the single-use finalize guard: only one caller can move a
// session out of pending, every later attempt sees ErrSessionNotFound.
func (r *PostgresRepository) ClaimSession(ctx context.Context, id uuid.UUID) (*models.UploadSession, error) {
	query := fmt.Sprintf(`
		UPDATE %s.upload_sessions SET status=$2 WHERE id=$1 AND status=$3
		RETURNING id, owner_id, uploader_id, filename, mime_type, total_size, status, created_at, expires_at;
	`, r.schema)

	result := &models.UploadSession{}
	err := r.db.QueryRowContext(ctx, query, id, models.SessionStatusCompleted, models.SessionStatusPending).Scan(
		&result.ID, &result.OwnerID, &result.UploaderID, &result.Filename, &result.MimeType,
		&result.TotalSize, &result.Status, &result.CreatedAt, &result.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) ReleaseSession(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`UPDATE %s.upload_sessions SET status=$2 WHERE id=$1 AND status=$3`, r.schema)
	res, err := r.db.ExecContext(ctx, query, id, models.SessionStatusPending, models.SessionStatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to release session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes the session row; chunks cascade with it.
func (r *PostgresRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s.upload_sessions WHERE id=$1`, r.schema)
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrSessionNotFound
	}
	return nil
}

func (r *PostgresRepository) ExpiredSessionIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := fmt.Sprintf(`
		SELECT id FROM %s.upload_sessions WHERE status=$1 AND expires_at < $2 ORDER BY expires_at LIMIT $3
	`, r.schema)
	rows, err := r.db.QueryContext(ctx, query, models.SessionStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired sessions: %w", err)
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
