package maintenance

import (
	"context"
	"io"
	"testing"
	"time"

	"videopipe/internal/database"
	"videopipe/internal/objectstore"
	"videopipe/internal/repositories"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

// fakeStore is a minimal objectstore.Store fake tracking deletions, enough
// to assert the sweeps only remove what they should.
type fakeStore struct {
	listed  []objectstore.ObjectInfo
	deleted []string
}

func (s *fakeStore) PutStream(ctx context.Context, name string, r io.Reader, size int64, mediaType string) error {
	return nil
}
func (s *fakeStore) GetStream(ctx context.Context, name string) (io.ReadCloser, error) {
	return nil, nil
}
func (s *fakeStore) GetRange(ctx context.Context, name string, start, endInclusive int64) ([]byte, error) {
	return nil, nil
}
func (s *fakeStore) Delete(ctx context.Context, name string) error {
	s.deleted = append(s.deleted, name)
	return nil
}
func (s *fakeStore) Exists(ctx context.Context, name string) (bool, error) { return true, nil }
func (s *fakeStore) Stat(ctx context.Context, name string) (objectstore.ObjectInfo, error) {
	return objectstore.ObjectInfo{}, nil
}
func (s *fakeStore) List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error) {
	return s.listed, nil
}
func (s *fakeStore) PresignedGet(ctx context.Context, name string, ttl time.Duration) (string, error) {
	return "", nil
}

func newTestDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &database.DB{DB: sqlx.NewDb(db, "postgres")}, mock
}

func TestRecordRunUpsertsMaintenanceState(t *testing.T) {
	db, mock := newTestDB(t)
	assets := repositories.NewAssetRepository(db, nil)
	jobs := repositories.NewJobRepository(db)
	s := New(db, assets, jobs, &fakeStore{}, 30, 90*24*time.Hour)

	mock.ExpectExec(`INSERT INTO maintenance_state`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s.recordRun(context.Background(), "retention_sweep", 5, 2)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTempOrphanSweepOnlyRemovesStaleObjects(t *testing.T) {
	db, mock := newTestDB(t)
	assets := repositories.NewAssetRepository(db, nil)
	jobs := repositories.NewJobRepository(db)

	store := &fakeStore{listed: []objectstore.ObjectInfo{
		{Name: "temp/chunks/old_0", LastModified: time.Now().Add(-48 * time.Hour)},
		{Name: "temp/chunks/fresh_0", LastModified: time.Now()},
	}}
	s := New(db, assets, jobs, store, 30, 90*24*time.Hour)

	mock.ExpectExec(`INSERT INTO maintenance_state`).WillReturnResult(sqlmock.NewResult(1, 1))

	s.tempOrphanSweep(context.Background())

	if len(store.deleted) != 1 || store.deleted[0] != "temp/chunks/old_0" {
		t.Errorf("deleted = %v, want only the stale object removed", store.deleted)
	}
}
