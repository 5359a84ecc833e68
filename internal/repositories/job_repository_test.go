package repositories

import (
	"context"
	"testing"
	"time"

	"videopipe/internal/database"
	"videopipe/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newTestJobRepo(t *testing.T) (*JobRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewJobRepository(&database.DB{DB: sqlxDB}), mock
}

func TestJobRepositoryCreateDefaultsPriority(t *testing.T) {
	repo, mock := newTestJobRepo(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now)
	mock.ExpectQuery(`INSERT INTO jobs`).WillReturnRows(rows)

	job, err := repo.Create(context.Background(), 10, models.JoinConfig{FileIDs: []int64{1, 2}}, []int64{1, 2}, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Priority != models.DefaultPriority {
		t.Errorf("Priority = %d, want default %d", job.Priority, models.DefaultPriority)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("Status = %s, want PENDING", job.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestJobRepositoryCASStatusRejectsIllegalTransition(t *testing.T) {
	repo, _ := newTestJobRepo(t)
	ok, err := repo.CASStatus(context.Background(), 1, models.JobStatusCompleted, models.JobStatusProcessing)
	if err == nil {
		t.Fatal("expected validation error for illegal transition")
	}
	if ok {
		t.Error("CASStatus should report false on a rejected transition")
	}
}

func TestJobRepositoryCASStatusLostRace(t *testing.T) {
	repo, mock := newTestJobRepo(t)
	mock.ExpectExec(`UPDATE jobs SET status`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.CASStatus(context.Background(), 1, models.JobStatusPending, models.JobStatusProcessing)
	if err != nil {
		t.Fatalf("CASStatus: %v", err)
	}
	if ok {
		t.Error("CASStatus should report false when no row matched the expected prior status")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestJobRepositoryCASStatusSucceeds(t *testing.T) {
	repo, mock := newTestJobRepo(t)
	mock.ExpectExec(`UPDATE jobs SET status`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.CASStatus(context.Background(), 1, models.JobStatusPending, models.JobStatusProcessing)
	if err != nil {
		t.Fatalf("CASStatus: %v", err)
	}
	if !ok {
		t.Error("CASStatus should report true when the CAS matched")
	}
}

func TestJobRepositoryIncrementRetryReturnsNewCount(t *testing.T) {
	repo, mock := newTestJobRepo(t)
	mock.ExpectQuery(`UPDATE jobs SET retry_count`).
		WillReturnRows(sqlmock.NewRows([]string{"retry_count"}).AddRow(2))

	n, err := repo.IncrementRetry(context.Background(), 1)
	if err != nil {
		t.Fatalf("IncrementRetry: %v", err)
	}
	if n != 2 {
		t.Errorf("IncrementRetry = %d, want 2", n)
	}
}
