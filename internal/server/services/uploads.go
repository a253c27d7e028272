package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dkravets/assetvault/internal/common"
	"github.com/dkravets/assetvault/internal/logging"
	sc "github.com/dkravets/assetvault/internal/server/config"
	"github.com/dkravets/assetvault/internal/server/models"
	"github.com/dkravets/assetvault/internal/server/repositories/repomanager"
	"github.com/dkravets/assetvault/internal/server/tenants"
)

// sweepBatchSize bounds how many expired sessions one sweep pass discards
// per tenant.
const sweepBatchSize = 100

// PartitionSource is the slice of the tenant registry the session manager
// needs: resolving partitions and enumerating tenants for the sweep.
type PartitionSource interface {
	TenantIDs(ctx context.Context) ([]string, error)
	Partition(ctx context.Context, tenantID string) (*tenants.Partition, error)
}

// UploadService tracks in-progress resumable uploads: session lifecycle,
// chunk buffering and the expiry sweep. Chunk ordering is not enforced at
// submission time; the received-index set is the only progress signal and
// the finalize path decides completeness.
type UploadService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	parts  PartitionSource
	logger logging.Logger
	config *sc.Config

	// now is a seam for expiry tests.
	now func() time.Time
}

func NewUploadService(db *sql.DB, rm repomanager.RepositoryManager, parts PartitionSource, logger logging.Logger, config *sc.Config) *UploadService {
	return &UploadService{
		db:     db,
		rm:     rm,
		parts:  parts,
		logger: logger.With("module", "upload_sessions"),
		config: config,
		now:    time.Now,
	}
}

// Init opens a new resumable upload session. The declared total size is
// fixed for the session's lifetime and validated here once.
func (s *UploadService) Init(ctx context.Context, p *tenants.Partition, ownerID, uploaderID uuid.UUID, filename, mimeType string, totalSize int64) (uuid.UUID, error) {
	if totalSize <= 0 {
		return uuid.Nil, fmt.Errorf("%w: total size must be positive, got %d", common.ErrInvalidInput, totalSize)
	}
	if filename == "" {
		return uuid.Nil, fmt.Errorf("%w: empty filename", common.ErrInvalidInput)
	}

	now := s.now()
	session := &models.UploadSession{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		UploaderID: uploaderID,
		Filename:   filename,
		MimeType:   mimeType,
		TotalSize:  totalSize,
		Status:     models.SessionStatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.config.SessionTTL),
	}

	if err := s.rm.Uploads(s.db, p.Schema()).CreateSession(ctx, session); err != nil {
		return uuid.Nil, asStorageFailure(err)
	}

	s.logger.Info(ctx, "upload session created",
		"tenant", p.TenantID(), "session", session.ID, "total_size", totalSize)
	return session.ID, nil
}

// SubmitChunk buffers one chunk and returns the set of indices received so
// far. Resubmitting an index overwrites the stored bytes, so retries after
// network failures are safe. A session past its expiry refuses the chunk and
// is discarded on the spot rather than waiting for the next sweep.
func (s *UploadService) SubmitChunk(ctx context.Context, p *tenants.Partition, sessionID uuid.UUID, index int, data []byte) ([]int, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: negative chunk index %d", common.ErrInvalidInput, index)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty chunk", common.ErrInvalidInput)
	}

	repo := s.rm.Uploads(s.db, p.Schema())

	session, err := repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, asStorageFailure(err)
	}
	if session.Status != models.SessionStatusPending {
		return nil, common.ErrSessionNotFound
	}
	if s.now().After(session.ExpiresAt) {
		if err := repo.DeleteSession(ctx, sessionID); err != nil {
			s.logger.Warn(ctx, "failed to discard expired session",
				"tenant", p.TenantID(), "session", sessionID, "error", err.Error())
		}
		return nil, common.ErrSessionNotFound
	}

	chunk := &models.UploadChunk{
		SessionID: sessionID,
		Index:     index,
		Size:      len(data),
		Data:      data,
	}
	if err := repo.UpsertChunk(ctx, chunk); err != nil {
		return nil, asStorageFailure(err)
	}

	received, err := repo.ReceivedIndexes(ctx, sessionID)
	if err != nil {
		return nil, asStorageFailure(err)
	}
	return received, nil
}

// Chunks returns the session's buffered chunks in index order. Used only by
// the lifecycle coordinator at finalize time.
func (s *UploadService) Chunks(ctx context.Context, p *tenants.Partition, sessionID uuid.UUID) ([]*models.UploadChunk, error) {
	chunks, err := s.rm.Uploads(s.db, p.Schema()).ListChunks(ctx, sessionID)
	if err != nil {
		return nil, asStorageFailure(err)
	}
	return chunks, nil
}

// Discard deletes the session and all its chunks. Serves both explicit
// abandonment and the expiry sweep.
func (s *UploadService) Discard(ctx context.Context, p *tenants.Partition, sessionID uuid.UUID) error {
	if err := s.rm.Uploads(s.db, p.Schema()).DeleteSession(ctx, sessionID); err != nil {
		return asStorageFailure(err)
	}
	return nil
}

// SweepExpired makes one pass over every registered tenant and discards
// pending sessions whose expiry has passed, chunks included.
func (s *UploadService) SweepExpired(ctx context.Context) {
	ids, err := s.parts.TenantIDs(ctx)
	if err != nil {
		s.logger.Error(ctx, "sweep: listing tenants failed", "error", err.Error())
		return
	}

	total := 0
	for _, tenantID := range ids {
		p, err := s.parts.Partition(ctx, tenantID)
		if err != nil {
			s.logger.Error(ctx, "sweep: partition unavailable", "tenant", tenantID, "error", err.Error())
			continue
		}
		repo := s.rm.Uploads(s.db, p.Schema())

		expired, err := repo.ExpiredSessionIDs(ctx, s.now(), sweepBatchSize)
		if err != nil {
			s.logger.Error(ctx, "sweep: listing expired sessions failed", "tenant", tenantID, "error", err.Error())
			continue
		}
		for _, sessionID := range expired {
			if err := repo.DeleteSession(ctx, sessionID); err != nil {
				s.logger.Warn(ctx, "sweep: discard failed", "tenant", tenantID, "session", sessionID, "error", err.Error())
				continue
			}
			total++
		}
	}

	if total > 0 {
		s.logger.Info(ctx, "expired upload sessions swept", "count", total)
	} else {
		s.logger.Debug(ctx, "sweep pass found nothing to discard")
	}
}

// RunSweeper runs the periodic expiry sweep until ctx is cancelled. Owned by
// the application lifecycle, one instance per process.
func (s *UploadService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	s.logger.Info(ctx, "session sweeper started", "interval", s.config.SweepInterval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "session sweeper stopped")
			return
		case <-ticker.C:
			s.SweepExpired(ctx)
		}
	}
}
