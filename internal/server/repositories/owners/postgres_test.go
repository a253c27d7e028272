package owners

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db, "tenant_acme"), mock, db
}

func TestIncrementAssetCount_Increment(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ownerID := uuid.New()

	q := regexp.MustCompile(`INSERT INTO tenant_acme\.owners \(id, asset_count\) VALUES \(\$1, \$2\)\s+ON CONFLICT \(id\) DO UPDATE SET asset_count = owners\.asset_count \+ EXCLUDED\.asset_count;`)
	mock.ExpectExec(q.String()).
		WithArgs(ownerID, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.IncrementAssetCount(context.Background(), ownerID, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIncrementAssetCount_Decrement(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ownerID := uuid.New()

	mock.ExpectExec(`INSERT INTO tenant_acme\.owners`).
		WithArgs(ownerID, int64(-1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.IncrementAssetCount(context.Background(), ownerID, -1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIncrementAssetCount_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ownerID := uuid.New()

	mock.ExpectExec(`INSERT INTO tenant_acme\.owners`).
		WithArgs(ownerID, int64(5)).
		WillReturnError(errors.New("db is down"))

	err := repo.IncrementAssetCount(context.Background(), ownerID, 5)
	if err == nil || !regexp.MustCompile(`db error: .*db is down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestAssetCount_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ownerID := uuid.New()

	rows := sqlmock.NewRows([]string{"asset_count"}).AddRow(int64(7))
	mock.ExpectQuery(`SELECT asset_count FROM tenant_acme\.owners WHERE id=\$1`).
		WithArgs(ownerID).
		WillReturnRows(rows)

	got, err := repo.AssetCount(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Fatalf("want 7, got %d", got)
	}
}

func TestAssetCount_UnknownOwnerIsZero(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ownerID := uuid.New()

	mock.ExpectQuery(`SELECT asset_count FROM tenant_acme\.owners WHERE id=\$1`).
		WithArgs(ownerID).
		WillReturnError(sql.ErrNoRows)

	got, err := repo.AssetCount(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Fatalf("want 0 for unknown owner, got %d", got)
	}
}
