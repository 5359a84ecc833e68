package repositories

import (
	"context"
	"testing"
	"time"

	"videopipe/internal/apierrors"
	"videopipe/internal/database"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newTestAssetRepo(t *testing.T) (*AssetRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewAssetRepository(&database.DB{DB: sqlxDB}, nil), mock
}

func assetColumnsRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "owner_id", "display_name", "object_name", "size_bytes", "media_type",
		"probe_metadata", "is_deleted", "created_at",
	})
}

func TestAssetRepositoryGetReturnsNilWhenAbsent(t *testing.T) {
	repo, mock := newTestAssetRepo(t)
	mock.ExpectQuery(`SELECT .* FROM assets WHERE id`).WillReturnRows(assetColumnsRows())

	asset, err := repo.Get(context.Background(), 99)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if asset != nil {
		t.Errorf("Get(missing) = %+v, want nil", asset)
	}
}

func TestAssetRepositoryGetReturnsRow(t *testing.T) {
	repo, mock := newTestAssetRepo(t)
	now := time.Now()
	rows := assetColumnsRows().AddRow(1, 10, "movie.mp4", "assets/10/movie.mp4", 1024, "video/mp4", nil, false, now)
	mock.ExpectQuery(`SELECT .* FROM assets WHERE id`).WillReturnRows(rows)

	asset, err := repo.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if asset == nil || asset.DisplayName != "movie.mp4" {
		t.Errorf("Get = %+v", asset)
	}
}

func TestAssetLookupAdapterTranslatesMissingToNotFound(t *testing.T) {
	repo, mock := newTestAssetRepo(t)
	mock.ExpectQuery(`SELECT .* FROM assets WHERE id`).WillReturnRows(assetColumnsRows())

	_, err := repo.AsLookup().Get(context.Background(), 42)
	if err == nil {
		t.Fatal("expected not-found error")
	}
	var notFound *apierrors.NotFoundError
	if ne, ok := err.(*apierrors.NotFoundError); !ok {
		t.Errorf("error type = %T, want *apierrors.NotFoundError", err)
	} else {
		notFound = ne
		if notFound.Kind != "asset" {
			t.Errorf("NotFoundError.Kind = %q, want asset", notFound.Kind)
		}
	}
}

func TestAssetRepositoryStorageUsageSumsNonDeleted(t *testing.T) {
	repo, mock := newTestAssetRepo(t)
	mock.ExpectQuery(`SELECT SUM\(size_bytes\)`).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(2048))

	total, err := repo.StorageUsage(context.Background(), 10)
	if err != nil {
		t.Fatalf("StorageUsage: %v", err)
	}
	if total != 2048 {
		t.Errorf("StorageUsage = %d, want 2048", total)
	}
}
