package assets

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/dkravets/assetvault/internal/common"
	"github.com/dkravets/assetvault/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db, "tenant_acme"), mock, db
}

func sampleAsset() *models.Asset {
	return &models.Asset{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		UploaderID:  uuid.New(),
		Title:       "Q2 report",
		Description: "quarterly numbers",
		Filename:    "report.pdf",
		MimeType:    "application/pdf",
		Size:        1024,
		StorageKey:  "tenants/acme/assets/2025/06/01/abc",
		UploadedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	a := sampleAsset()

	q := regexp.MustCompile(`INSERT INTO tenant_acme\.assets .*VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10\);`)
	mock.ExpectExec(q.String()).
		WithArgs(a.ID, a.OwnerID, a.UploaderID, a.Title, a.Description, a.Filename, a.MimeType, a.Size, a.StorageKey, a.UploadedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	a := sampleAsset()

	mock.ExpectExec(`INSERT INTO tenant_acme\.assets`).
		WithArgs(a.ID, a.OwnerID, a.UploaderID, a.Title, a.Description, a.Filename, a.MimeType, a.Size, a.StorageKey, a.UploadedAt).
		WillReturnError(errors.New("db is down"))

	err := repo.Create(context.Background(), a)
	if err == nil || !regexp.MustCompile(`db error: .*db is down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByID_SuccessWithLabels(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	a := sampleAsset()
	l1, l2 := uuid.New(), uuid.New()

	assetRows := sqlmock.NewRows([]string{
		"id", "owner_id", "uploader_id", "title", "description", "filename", "mime_type", "size_bytes", "storage_key", "uploaded_at",
	}).AddRow(a.ID, a.OwnerID, a.UploaderID, a.Title, a.Description, a.Filename, a.MimeType, a.Size, a.StorageKey, a.UploadedAt)

	mock.ExpectQuery(`SELECT id, owner_id, uploader_id, .* FROM tenant_acme\.assets WHERE id=\$1`).
		WithArgs(a.ID).
		WillReturnRows(assetRows)

	labelRows := sqlmock.NewRows([]string{"label_id"}).AddRow(l1).AddRow(l2)
	mock.ExpectQuery(`SELECT label_id FROM tenant_acme\.asset_labels WHERE asset_id=\$1 ORDER BY label_id`).
		WithArgs(a.ID).
		WillReturnRows(labelRows)

	got, err := repo.GetByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != a.ID || got.Size != 1024 || got.StorageKey != a.StorageKey {
		t.Fatalf("unexpected asset: %+v", got)
	}
	if len(got.LabelIDs) != 2 || got.LabelIDs[0] != l1 || got.LabelIDs[1] != l2 {
		t.Fatalf("unexpected labels: %v", got.LabelIDs)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()

	mock.ExpectQuery(`SELECT id, owner_id, uploader_id, .* FROM tenant_acme\.assets WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdateDescriptive_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()

	mock.ExpectExec(`UPDATE tenant_acme\.assets SET title=\$2, description=\$3 WHERE id=\$1`).
		WithArgs(id, "t", "d").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateDescriptive(context.Background(), id, "t", "d")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDelete_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()

	mock.ExpectExec(`DELETE FROM tenant_acme\.assets WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDelete_AlreadyGone(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()

	mock.ExpectExec(`DELETE FROM tenant_acme\.assets WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), id)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListByOwner_FoldsJoinedLabelRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ownerID := uuid.New()
	a1, a2 := sampleAsset(), sampleAsset()
	a1.OwnerID, a2.OwnerID = ownerID, ownerID
	l1, l2 := uuid.New(), uuid.New()

	cols := []string{
		"id", "owner_id", "uploader_id", "title", "description", "filename", "mime_type", "size_bytes", "storage_key", "uploaded_at", "label_id",
	}
	rows := sqlmock.NewRows(cols).
		AddRow(a1.ID, a1.OwnerID, a1.UploaderID, a1.Title, a1.Description, a1.Filename, a1.MimeType, a1.Size, a1.StorageKey, a1.UploadedAt, l1).
		AddRow(a1.ID, a1.OwnerID, a1.UploaderID, a1.Title, a1.Description, a1.Filename, a1.MimeType, a1.Size, a1.StorageKey, a1.UploadedAt, l2).
		AddRow(a2.ID, a2.OwnerID, a2.UploaderID, a2.Title, a2.Description, a2.Filename, a2.MimeType, a2.Size, a2.StorageKey, a2.UploadedAt, nil)

	mock.ExpectQuery(`SELECT a\.id, .* FROM tenant_acme\.assets a\s+LEFT JOIN tenant_acme\.asset_labels al ON al\.asset_id = a\.id\s+WHERE a\.owner_id=\$1`).
		WithArgs(ownerID).
		WillReturnRows(rows)

	got, err := repo.ListByOwner(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 assets, got %d", len(got))
	}
	if len(got[0].LabelIDs) != 2 {
		t.Fatalf("want 2 labels on first asset, got %v", got[0].LabelIDs)
	}
	if len(got[1].LabelIDs) != 0 {
		t.Fatalf("want no labels on second asset, got %v", got[1].LabelIDs)
	}
}

func TestListByAnyLabel_EmptyInput(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	got, err := repo.ListByAnyLabel(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil result, got %v", got)
	}
}

func TestListByAnyLabel_BuildsPlaceholderList(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	a := sampleAsset()
	l1, l2 := uuid.New(), uuid.New()

	cols := []string{
		"id", "owner_id", "uploader_id", "title", "description", "filename", "mime_type", "size_bytes", "storage_key", "uploaded_at", "label_id",
	}
	rows := sqlmock.NewRows(cols).
		AddRow(a.ID, a.OwnerID, a.UploaderID, a.Title, a.Description, a.Filename, a.MimeType, a.Size, a.StorageKey, a.UploadedAt, l1)

	mock.ExpectQuery(`WHERE label_id IN \(\$1, \$2\)`).
		WithArgs(l1, l2).
		WillReturnRows(rows)

	got, err := repo.ListByAnyLabel(context.Background(), []uuid.UUID{l1, l2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestReplaceLabels_ClearsThenInserts(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	assetID := uuid.New()
	l1, l2 := uuid.New(), uuid.New()

	mock.ExpectExec(`DELETE FROM tenant_acme\.asset_labels WHERE asset_id=\$1`).
		WithArgs(assetID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO tenant_acme\.asset_labels \(asset_id, label_id\) VALUES \(\$1, \$2\)`).
		WithArgs(assetID, l1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO tenant_acme\.asset_labels \(asset_id, label_id\) VALUES \(\$1, \$2\)`).
		WithArgs(assetID, l2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.ReplaceLabels(context.Background(), assetID, []uuid.UUID{l1, l2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDetachLabel_ReturnsLinkCount(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	labelID := uuid.New()

	mock.ExpectExec(`DELETE FROM tenant_acme\.asset_labels WHERE label_id=\$1`).
		WithArgs(labelID).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DetachLabel(context.Background(), labelID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 detached links, got %d", n)
	}
}
