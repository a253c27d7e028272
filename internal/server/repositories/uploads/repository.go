// Package uploads persists resumable upload sessions and their buffered
// chunks inside one tenant partition. Chunks exist only while the parent
// session is pending and are deleted en masse with it.
package uploads

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dkravets/assetvault/internal/server/models"
)

type Repository interface {
	CreateSession(ctx context.Context, session *models.UploadSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.UploadSession, error)

	// UpsertChunk stores a chunk, overwriting any previous bytes at the same
	// index (last write wins). Client retries are therefore safe.
	UpsertChunk(ctx context.Context, chunk *models.UploadChunk) error
	// ReceivedIndexes returns the distinct chunk indices received so far,
	// ascending. It is the only progress signal exposed to callers.
	ReceivedIndexes(ctx context.Context, sessionID uuid.UUID) ([]int, error)
	// ListChunks returns all chunks sorted by index; finalize-time only.
	ListChunks(ctx context.Context, sessionID uuid.UUID) ([]*models.UploadChunk, error)

	// ClaimSession flips a pending session to completed and returns it.
	// The conditional update makes finalization single-use: a second claim
	// reports ErrSessionNotFound.
	ClaimSession(ctx context.Context, id uuid.UUID) (*models.UploadSession, error)
	// ReleaseSession reverts a claimed session to pending so the client can
	// repair a rejected finalize (missing chunks) and retry.
	ReleaseSession(ctx context.Context, id uuid.UUID) error

	// DeleteSession removes the session and all its chunks.
	DeleteSession(ctx context.Context, id uuid.UUID) error
	// ExpiredSessionIDs returns pending sessions whose expiry has passed.
	ExpiredSessionIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}
