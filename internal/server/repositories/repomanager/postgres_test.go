package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"

	"github.com/dkravets/assetvault/internal/server/repositories/assets"
	"github.com/dkravets/assetvault/internal/server/repositories/labels"
	"github.com/dkravets/assetvault/internal/server/repositories/owners"
	"github.com/dkravets/assetvault/internal/server/repositories/uploads"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestNewPostgresRepositoryManager_ReturnsInterface(t *testing.T) {
	m := NewPostgresRepositoryManager()
	var _ RepositoryManager = m
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := &PostgresRepositoryManager{}

	if a := m.Assets(db, "tenant_acme"); a == nil {
		t.Fatal("Assets() nil")
	}
	if l := m.Labels(db, "tenant_acme"); l == nil {
		t.Fatal("Labels() nil")
	}
	if o := m.Owners(db, "tenant_acme"); o == nil {
		t.Fatal("Owners() nil")
	}
	if u := m.Uploads(db, "tenant_acme"); u == nil {
		t.Fatal("Uploads() nil")
	}

	var _ assets.Repository = m.Assets(db, "tenant_acme")
	var _ labels.Repository = m.Labels(db, "tenant_acme")
	var _ owners.Repository = m.Owners(db, "tenant_acme")
	var _ uploads.Repository = m.Uploads(db, "tenant_acme")
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestCreatePartitionSchema_RunsEveryStatement(t *testing.T) {
	db, mock := newDB(t)
	defer db.Close()

	for range partitionTables {
		mock.ExpectExec(`tenant_acme`).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	m := &PostgresRepositoryManager{}
	if err := m.CreatePartitionSchema(context.Background(), db, "tenant_acme"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreatePartitionSchema_StopsOnError(t *testing.T) {
	db, mock := newDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS tenant_acme;`).
		WillReturnError(errors.New("ddl failed"))

	m := &PostgresRepositoryManager{}
	err := m.CreatePartitionSchema(context.Background(), db, "tenant_acme")
	if err == nil {
		t.Fatalf("expected ddl error")
	}
}

func TestCreatePartitionIndexes_RunsEveryStatement(t *testing.T) {
	db, mock := newDB(t)
	defer db.Close()

	for range partitionIndexes {
		mock.ExpectExec(`CREATE INDEX IF NOT EXISTS .* ON tenant_acme\.`).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	m := &PostgresRepositoryManager{}
	if err := m.CreatePartitionIndexes(context.Background(), db, "tenant_acme"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDropPartitionSchema_Cascade(t *testing.T) {
	db, mock := newDB(t)
	defer db.Close()

	mock.ExpectExec(`DROP SCHEMA IF EXISTS tenant_acme CASCADE;`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	m := &PostgresRepositoryManager{}
	if err := m.DropPartitionSchema(context.Background(), db, "tenant_acme"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
