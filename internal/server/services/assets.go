package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/dkravets/assetvault/internal/common"
	"github.com/dkravets/assetvault/internal/dbx"
	"github.com/dkravets/assetvault/internal/logging"
	"github.com/dkravets/assetvault/internal/server/blob"
	"github.com/dkravets/assetvault/internal/server/models"
	"github.com/dkravets/assetvault/internal/server/repositories/repomanager"
	"github.com/dkravets/assetvault/internal/server/tenants"
)

// Compensation retry policy for best-effort object cleanup after a failed
// metadata commit.
const (
	cleanupRetries = 3
	cleanupBackoff = 100 * time.Millisecond
)

// UploadFile carries one payload and its descriptive fields into a create.
type UploadFile struct {
	Filename    string
	MimeType    string
	Title       string
	Description string
	LabelIDs    []uuid.UUID
	Data        []byte
}

// AssetService is the asset lifecycle coordinator. It orchestrates create
// and delete across the object store and the metadata store as a two-step
// saga: on create the object is written first and the metadata transaction
// second, with a compensating object delete if the commit fails; on delete
// the metadata transaction commits first and the object goes last. A crash
// therefore leaves, at worst, an unreferenced object — never a metadata
// record pointing at a missing one.
type AssetService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	blobs  blob.Store
	logger logging.Logger

	now func() time.Time
}

func NewAssetService(db *sql.DB, rm repomanager.RepositoryManager, blobs blob.Store, logger logging.Logger) *AssetService {
	return &AssetService{
		db:     db,
		rm:     rm,
		blobs:  blobs,
		logger: logger.With("module", "asset_lifecycle"),
		now:    time.Now,
	}
}

// Upload stores one asset directly from a fully buffered payload: object
// write first, then one transaction inserting the record and bumping the
// owner counter.
func (s *AssetService) Upload(ctx context.Context, p *tenants.Partition, ownerID, uploaderID uuid.UUID, file UploadFile) (*models.Asset, error) {
	assets, err := s.createAssets(ctx, p, ownerID, uploaderID, []UploadFile{file})
	if err != nil {
		return nil, err
	}
	return assets[0], nil
}

// UploadBatch stores several assets for one owner. Every object is written
// before the single grouped transaction that inserts all records and
// increments the counter by the batch size; on failure every object written
// so far is cleaned up.
func (s *AssetService) UploadBatch(ctx context.Context, p *tenants.Partition, ownerID, uploaderID uuid.UUID, files []UploadFile) ([]*models.Asset, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: empty batch", common.ErrInvalidInput)
	}
	return s.createAssets(ctx, p, ownerID, uploaderID, files)
}

// createAssets is the shared object-first create path for single and batch
// uploads.
func (s *AssetService) createAssets(ctx context.Context, p *tenants.Partition, ownerID, uploaderID uuid.UUID, files []UploadFile) ([]*models.Asset, error) {
	for i := range files {
		if len(files[i].Data) == 0 {
			return nil, fmt.Errorf("%w: empty payload %q", common.ErrInvalidInput, files[i].Filename)
		}
	}

	created := make([]*models.Asset, 0, len(files))
	written := make([]string, 0, len(files))
	for _, file := range files {
		key := blob.NewObjectKey(p.ObjectPrefix())
		size := int64(len(file.Data))
		if err := s.blobs.Put(ctx, key, bytes.NewReader(file.Data), size, file.MimeType); err != nil {
			// No metadata has been touched yet; just unwind earlier objects.
			s.cleanupObjects(ctx, p.TenantID(), written)
			return nil, fmt.Errorf("%w: writing object: %v", common.ErrStorageFailure, err)
		}
		written = append(written, key)

		created = append(created, &models.Asset{
			ID:          uuid.New(),
			OwnerID:     ownerID,
			UploaderID:  uploaderID,
			Title:       file.Title,
			Description: file.Description,
			Filename:    file.Filename,
			MimeType:    file.MimeType,
			Size:        size,
			LabelIDs:    file.LabelIDs,
			StorageKey:  key,
			UploadedAt:  s.now(),
		})
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		assetRepo := s.rm.Assets(tx, p.Schema())
		for _, asset := range created {
			if err := assetRepo.Create(ctx, asset); err != nil {
				return err
			}
			if len(asset.LabelIDs) > 0 {
				if err := assetRepo.ReplaceLabels(ctx, asset.ID, asset.LabelIDs); err != nil {
					return err
				}
			}
		}
		return s.rm.Owners(tx, p.Schema()).IncrementAssetCount(ctx, ownerID, int64(len(created)))
	})
	if err != nil {
		s.cleanupObjects(ctx, p.TenantID(), written)
		return nil, fmt.Errorf("%w: %v", common.ErrTransactionFailure, err)
	}

	return created, nil
}

// FinalizeResumable assembles a session's chunks into one payload and runs
// the direct-create path with it. The claim is single-use; a finalize
// rejected for missing chunks releases the session back to pending so the
// client can fill the gap and retry. Once the object is durably written the
// session and its chunks are discarded regardless of how the metadata
// transaction ends.
func (s *AssetService) FinalizeResumable(ctx context.Context, p *tenants.Partition, sessionID uuid.UUID, title, description string, labelIDs []uuid.UUID) (*models.Asset, error) {
	repo := s.rm.Uploads(s.db, p.Schema())

	session, err := repo.ClaimSession(ctx, sessionID)
	if err != nil {
		return nil, asStorageFailure(err)
	}
	if s.now().After(session.ExpiresAt) {
		s.discardSession(ctx, p, sessionID)
		return nil, common.ErrSessionNotFound
	}

	chunks, err := repo.ListChunks(ctx, sessionID)
	if err != nil {
		s.releaseSession(ctx, p, sessionID)
		return nil, asStorageFailure(err)
	}

	data, err := assembleChunks(chunks, session.TotalSize)
	if err != nil {
		// Likely a client gap; hand the session back for repair instead of
		// producing a silently truncated asset.
		s.releaseSession(ctx, p, sessionID)
		return nil, err
	}

	file := UploadFile{
		Filename:    session.Filename,
		MimeType:    session.MimeType,
		Title:       title,
		Description: description,
		LabelIDs:    labelIDs,
		Data:        data,
	}

	asset, err := s.Upload(ctx, p, session.OwnerID, session.UploaderID, file)
	if errors.Is(err, common.ErrStorageFailure) {
		// The object never landed; the session is still intact and retryable.
		s.releaseSession(ctx, p, sessionID)
		return nil, err
	}

	// Past this point the object has been durably written (even if the
	// metadata transaction failed and was compensated), so the session and
	// its chunks are spent either way.
	s.discardSession(ctx, p, sessionID)

	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "resumable upload finalized",
		"tenant", p.TenantID(), "session", sessionID, "asset", asset.ID, "size", asset.Size)
	return asset, nil
}

// assembleChunks concatenates chunks in index order and verifies the result
// against the declared total. Gaps and size mismatches are client faults and
// hard-fail; a truncated asset must never be created silently.
func assembleChunks(chunks []*models.UploadChunk, totalSize int64) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: session has no chunks", common.ErrInvalidInput)
	}
	for i, chunk := range chunks {
		if chunk.Index != i {
			return nil, fmt.Errorf("%w: missing chunk %d", common.ErrInvalidInput, i)
		}
	}

	var buf bytes.Buffer
	buf.Grow(int(totalSize))
	for _, chunk := range chunks {
		buf.Write(chunk.Data)
	}
	if int64(buf.Len()) != totalSize {
		return nil, fmt.Errorf("%w: assembled size %d does not match declared %d", common.ErrInvalidInput, buf.Len(), totalSize)
	}
	return buf.Bytes(), nil
}

// Delete verifies ownership, removes the record and decrements the counter
// in one transaction, and deletes the object only after the commit. A
// failed object delete leaves an orphan, which is logged and tolerated.
func (s *AssetService) Delete(ctx context.Context, p *tenants.Partition, ownerID, assetID uuid.UUID) error {
	asset, err := s.rm.Assets(s.db, p.Schema()).GetByID(ctx, assetID)
	if err != nil {
		return asStorageFailure(err)
	}
	if asset.OwnerID != ownerID {
		return common.ErrForbidden
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.rm.Assets(tx, p.Schema()).Delete(ctx, assetID); err != nil {
			return err
		}
		return s.rm.Owners(tx, p.Schema()).IncrementAssetCount(ctx, ownerID, -1)
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Lost a race with a concurrent delete; the counter was already
			// decremented exactly once by the winner.
			return common.ErrNotFound
		}
		return fmt.Errorf("%w: %v", common.ErrTransactionFailure, err)
	}

	if err := s.blobs.Delete(ctx, asset.StorageKey); err != nil {
		s.logger.Error(ctx, "object delete failed after metadata commit, orphan left behind",
			"tenant", p.TenantID(), "key", asset.StorageKey, "error", err.Error())
	}
	return nil
}

// GetMetadata returns the asset record; the payload itself never rides along.
func (s *AssetService) GetMetadata(ctx context.Context, p *tenants.Partition, assetID uuid.UUID) (*models.Asset, error) {
	asset, err := s.rm.Assets(s.db, p.Schema()).GetByID(ctx, assetID)
	if err != nil {
		return nil, asStorageFailure(err)
	}
	return asset, nil
}

// GetBinary streams the asset payload. Size and MIME type come from the
// metadata record, which is authoritative by the create ordering.
func (s *AssetService) GetBinary(ctx context.Context, p *tenants.Partition, assetID uuid.UUID) (io.ReadCloser, string, int64, error) {
	asset, err := s.rm.Assets(s.db, p.Schema()).GetByID(ctx, assetID)
	if err != nil {
		return nil, "", 0, asStorageFailure(err)
	}

	rc, _, _, err := s.blobs.Get(ctx, asset.StorageKey)
	if err != nil {
		return nil, "", 0, asStorageFailure(err)
	}
	return rc, asset.MimeType, asset.Size, nil
}

// UpdateMetadata edits the mutable descriptive fields: title, description
// and the label set. Everything else is immutable after creation.
func (s *AssetService) UpdateMetadata(ctx context.Context, p *tenants.Partition, ownerID, assetID uuid.UUID, title, description string, labelIDs []uuid.UUID) (*models.Asset, error) {
	asset, err := s.rm.Assets(s.db, p.Schema()).GetByID(ctx, assetID)
	if err != nil {
		return nil, asStorageFailure(err)
	}
	if asset.OwnerID != ownerID {
		return nil, common.ErrForbidden
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Assets(tx, p.Schema())
		if err := repo.UpdateDescriptive(ctx, assetID, title, description); err != nil {
			return err
		}
		return repo.ReplaceLabels(ctx, assetID, labelIDs)
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrTransactionFailure, err)
	}

	asset.Title = title
	asset.Description = description
	asset.LabelIDs = labelIDs
	return asset, nil
}

// CreateLabel adds a label to the tenant's label collection.
func (s *AssetService) CreateLabel(ctx context.Context, p *tenants.Partition, name string) (*models.Label, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty label name", common.ErrInvalidInput)
	}
	label := &models.Label{ID: uuid.New(), Name: name}
	if err := s.rm.Labels(s.db, p.Schema()).Create(ctx, label); err != nil {
		return nil, asStorageFailure(err)
	}
	return label, nil
}

// DeleteLabel removes the label record and strips the label id from every
// asset's label set in one transaction, so neither side can be observed
// without the other.
func (s *AssetService) DeleteLabel(ctx context.Context, p *tenants.Partition, labelID uuid.UUID) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.rm.Assets(tx, p.Schema()).DetachLabel(ctx, labelID); err != nil {
			return err
		}
		return s.rm.Labels(tx, p.Schema()).Delete(ctx, labelID)
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return fmt.Errorf("%w: %v", common.ErrTransactionFailure, err)
	}
	return nil
}

// Labels lists the tenant's label collection sorted by name.
func (s *AssetService) Labels(ctx context.Context, p *tenants.Partition) ([]*models.Label, error) {
	result, err := s.rm.Labels(s.db, p.Schema()).List(ctx)
	if err != nil {
		return nil, asStorageFailure(err)
	}
	return result, nil
}

// ListByOwner returns all assets attached to the owner.
func (s *AssetService) ListByOwner(ctx context.Context, p *tenants.Partition, ownerID uuid.UUID) ([]*models.Asset, error) {
	result, err := s.rm.Assets(s.db, p.Schema()).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, asStorageFailure(err)
	}
	return result, nil
}

// ListByAnyLabel returns assets carrying at least one of the given labels.
func (s *AssetService) ListByAnyLabel(ctx context.Context, p *tenants.Partition, labelIDs []uuid.UUID) ([]*models.Asset, error) {
	result, err := s.rm.Assets(s.db, p.Schema()).ListByAnyLabel(ctx, labelIDs)
	if err != nil {
		return nil, asStorageFailure(err)
	}
	return result, nil
}

// OwnerAssetCount reports the denormalized counter for one owner.
func (s *AssetService) OwnerAssetCount(ctx context.Context, p *tenants.Partition, ownerID uuid.UUID) (int64, error) {
	count, err := s.rm.Owners(s.db, p.Schema()).AssetCount(ctx, ownerID)
	if err != nil {
		return 0, asStorageFailure(err)
	}
	return count, nil
}

// cleanupObjects is the saga's compensating action: best-effort deletes with
// backoff for objects whose metadata never committed. A final failure is
// logged as an orphan and never masks the original error.
func (s *AssetService) cleanupObjects(ctx context.Context, tenantID string, keys []string) {
	for _, key := range keys {
		backoff := retry.WithMaxRetries(cleanupRetries, retry.NewFibonacci(cleanupBackoff))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := s.blobs.Delete(ctx, key); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			s.logger.Error(ctx, "compensating object delete failed, orphan left behind",
				"tenant", tenantID, "key", key, "error", err.Error())
			continue
		}
		s.logger.Debug(ctx, "compensating object delete succeeded", "tenant", tenantID, "key", key)
	}
}

func (s *AssetService) releaseSession(ctx context.Context, p *tenants.Partition, sessionID uuid.UUID) {
	if err := s.rm.Uploads(s.db, p.Schema()).ReleaseSession(ctx, sessionID); err != nil {
		s.logger.Warn(ctx, "failed to release claimed session",
			"tenant", p.TenantID(), "session", sessionID, "error", err.Error())
	}
}

func (s *AssetService) discardSession(ctx context.Context, p *tenants.Partition, sessionID uuid.UUID) {
	if err := s.rm.Uploads(s.db, p.Schema()).DeleteSession(ctx, sessionID); err != nil {
		s.logger.Warn(ctx, "failed to discard finalized session",
			"tenant", p.TenantID(), "session", sessionID, "error", err.Error())
	}
}
