package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"videopipe/internal/apierrors"
	"videopipe/internal/database"
	"videopipe/internal/models"
)

// JobRepository implements C6: job record persistence, status transitions,
// progress, retry count, and statistics.
type JobRepository struct {
	db *database.DB
}

// NewJobRepository constructs a JobRepository.
func NewJobRepository(db *database.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new PENDING job.
func (r *JobRepository) Create(ctx context.Context, ownerID int64, cfg models.JobConfig, inputIDs []int64, priority int) (*models.Job, error) {
	configRaw, err := models.EncodeJobConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("repositories: encode config: %w", err)
	}
	if priority == 0 {
		priority = models.DefaultPriority
	}

	job := &models.Job{
		Type:          cfg.Type(),
		Status:        models.JobStatusPending,
		OwnerID:       ownerID,
		InputAssetIDs: inputIDs,
		ConfigRaw:     configRaw,
		Priority:      priority,
	}

	query := `
		INSERT INTO jobs (
			type, status, owner_id, input_asset_ids, output_asset_ids, config,
			progress, retry_count, priority, created_at, updated_at
		) VALUES ($1, $2, $3, $4, '[]', $5, 0, 0, $6, now(), now())
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRowxContext(ctx, query,
		job.Type, job.Status, job.OwnerID, models.Int64Slice(inputIDs), job.ConfigRaw, job.Priority,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("repositories: create job: %w", err)
	}
	return job, nil
}

const jobColumns = `id, type, status, owner_id, input_asset_ids, output_asset_ids, config,
	error_message, progress, result, retry_count, priority, created_at, updated_at, completed_at`

// Get retrieves a job by id, nil if absent.
func (r *JobRepository) Get(ctx context.Context, id int64) (*models.Job, error) {
	var job models.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	err := r.db.GetContext(ctx, &job, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: get job %d: %w", id, err)
	}
	return &job, nil
}

// ListFilters narrows List to a status and/or type.
type ListFilters struct {
	Status models.JobStatus
	Type   models.JobType
}

// List returns jobs owned by ownerID matching filters, paginated.
func (r *JobRepository) List(ctx context.Context, ownerID int64, filters ListFilters, offset, limit int) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = $1`
	args := []any{ownerID}
	if filters.Status != "" {
		args = append(args, filters.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.Type != "" {
		args = append(args, filters.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	args = append(args, limit, offset)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var jobs []models.Job
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("repositories: list jobs: %w", err)
	}
	return jobs, nil
}

// CASStatus performs the optimistic compare-and-swap transition dispatch
// relies on to avoid lost transitions under concurrent cancellation.
// Returns false (no error) if the job wasn't in fromStatus.
func (r *JobRepository) CASStatus(ctx context.Context, id int64, from, to models.JobStatus) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, apierrors.NewValidation("invalid job transition %s -> %s", from, to)
	}
	query := `UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, apierrors.NewTransient(err, "cas job %d status", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repositories: rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateStatus force-sets status (used for terminal transitions that don't
// need a CAS guard because the caller already holds the PROCESSING lease),
// stamping completed_at when status becomes terminal and recording errMsg
// if non-empty.
func (r *JobRepository) UpdateStatus(ctx context.Context, id int64, status models.JobStatus, errMsg string) error {
	query := `UPDATE jobs SET status = $1, error_message = NULLIF($2, ''), updated_at = now(),
		completed_at = CASE WHEN $3 THEN now() ELSE completed_at END WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, status, errMsg, status.Terminal(), id)
	if err != nil {
		return fmt.Errorf("repositories: update status for job %d: %w", id, err)
	}
	return nil
}

// UpdateProgress sets the job's progress, throttled at the call site to at
// most once per ~500ms.
func (r *JobRepository) UpdateProgress(ctx context.Context, id int64, progress float64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE jobs SET progress = $1, updated_at = now() WHERE id = $2`, progress, id)
	if err != nil {
		return apierrors.NewTransient(err, "update progress for job %d", id)
	}
	return nil
}

// UpdateResult records a completed job's result payload and output asset
// ids.
func (r *JobRepository) UpdateResult(ctx context.Context, id int64, result models.JobResult, outputIDs []int64) error {
	query := `UPDATE jobs SET result = $1, output_asset_ids = $2, progress = 100, updated_at = now() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, result, models.Int64Slice(outputIDs), id)
	if err != nil {
		return fmt.Errorf("repositories: update result for job %d: %w", id, err)
	}
	return nil
}

// IncrementRetry bumps retry_count, resets progress to 0 for the new
// attempt, and returns the new count.
func (r *JobRepository) IncrementRetry(ctx context.Context, id int64) (int, error) {
	var newCount int
	query := `UPDATE jobs SET retry_count = retry_count + 1, progress = 0, updated_at = now()
		WHERE id = $1 RETURNING retry_count`
	if err := r.db.QueryRowxContext(ctx, query, id).Scan(&newCount); err != nil {
		return 0, fmt.Errorf("repositories: increment retry for job %d: %w", id, err)
	}
	return newCount, nil
}

// Statistics summarizes job counts by status for an owner.
type Statistics struct {
	Total      int64
	Completed  int64
	Failed     int64
	Processing int64
	Pending    int64
	Cancelled  int64
}

// Statistics computes per-status job counts for ownerID.
func (r *JobRepository) Statistics(ctx context.Context, ownerID int64) (Statistics, error) {
	var stats Statistics
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed,
			COUNT(*) FILTER (WHERE status = 'PROCESSING') AS processing,
			COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
			COUNT(*) FILTER (WHERE status = 'CANCELLED') AS cancelled
		FROM jobs WHERE owner_id = $1`
	row := r.db.QueryRowxContext(ctx, query, ownerID)
	if err := row.Scan(&stats.Total, &stats.Completed, &stats.Failed, &stats.Processing, &stats.Pending, &stats.Cancelled); err != nil {
		return Statistics{}, fmt.Errorf("repositories: statistics for owner %d: %w", ownerID, err)
	}
	return stats, nil
}

// DeleteOlderThan removes job records created before cutoff, the basis for
// the job-prune sweep. Returns the number of rows removed.
func (r *JobRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("repositories: delete jobs older than %s: %w", cutoff, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repositories: rows affected: %w", err)
	}
	return n, nil
}
