// Package maintenance runs the three periodic sweeps (C10): asset
// retention, temp-namespace orphan cleanup, and job pruning, each logging
// {scanned, removed} and continuing past individual item failures.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"videopipe/internal/database"
	"videopipe/internal/objectstore"
	"videopipe/internal/repositories"

	"github.com/robfig/cron/v3"
)

// Sweeper owns the three cron-scheduled maintenance tasks.
type Sweeper struct {
	db            *database.DB
	assets        *repositories.AssetRepository
	jobs          *repositories.JobRepository
	store         objectstore.Store
	retentionDays int
	jobRetention  time.Duration

	cron *cron.Cron
}

// New constructs a Sweeper. retentionDays is RETENTION_DAYS from §6.5;
// jobRetention bounds how long job records of any status are kept, measured
// from created_at.
func New(db *database.DB, assets *repositories.AssetRepository, jobs *repositories.JobRepository, store objectstore.Store, retentionDays int, jobRetention time.Duration) *Sweeper {
	return &Sweeper{
		db:            db,
		assets:        assets,
		jobs:          jobs,
		store:         store,
		retentionDays: retentionDays,
		jobRetention:  jobRetention,
		cron:          cron.New(),
	}
}

// recordRun upserts the last-run bookkeeping row for a named sweep task.
func (s *Sweeper) recordRun(ctx context.Context, taskName string, scanned, removed int) {
	query := `
		INSERT INTO maintenance_state (task_name, last_run_at, last_scanned, last_removed)
		VALUES ($1, now(), $2, $3)
		ON CONFLICT (task_name) DO UPDATE SET
			last_run_at = now(), last_scanned = $2, last_removed = $3`
	if _, err := s.db.ExecContext(ctx, query, taskName, scanned, removed); err != nil {
		slog.Default().Warn("maintenance: failed to record sweep state", "task", taskName, "error", err)
	}
}

// Start schedules all three sweeps and begins running them in the
// background. Call Stop to end it gracefully.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@every 6h", func() { s.retentionSweep(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 1h", func() { s.tempOrphanSweep(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 2 * * *", func() { s.jobPruneSweep(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop waits for any running sweep to finish and halts future runs.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// retentionSweep finds non-deleted assets older than RETENTION_DAYS,
// physically removes their stored bytes and soft-deletes the record,
// skipping assets still referenced by a non-terminal job.
func (s *Sweeper) retentionSweep(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	assets, err := s.assets.OlderThan(ctx, cutoff)
	if err != nil {
		slog.Default().Error("retention sweep: list failed", "error", err)
		return
	}

	removed := 0
	for _, asset := range assets {
		referenced, err := s.assets.ReferencedByNonTerminalJob(ctx, asset.ID)
		if err != nil {
			slog.Default().Warn("retention sweep: reference check failed", "asset_id", asset.ID, "error", err)
			continue
		}
		if referenced {
			continue
		}
		if err := s.store.Delete(ctx, asset.ObjectName); err != nil {
			slog.Default().Warn("retention sweep: delete object failed", "asset_id", asset.ID, "error", err)
			continue
		}
		if err := s.assets.SoftDelete(ctx, asset.ID); err != nil {
			slog.Default().Warn("retention sweep: soft delete failed", "asset_id", asset.ID, "error", err)
			continue
		}
		removed++
	}
	slog.Default().Info("retention sweep complete", "scanned", len(assets), "removed", removed)
	s.recordRun(ctx, "retention_sweep", len(assets), removed)
}

// tempOrphanSweep removes objects under temp/ older than 24h: abandoned
// upload chunks and worker scratch files left behind by a crashed attempt.
func (s *Sweeper) tempOrphanSweep(ctx context.Context) {
	objects, err := s.store.List(ctx, "temp/")
	if err != nil {
		slog.Default().Error("temp orphan sweep: list failed", "error", err)
		return
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	removed := 0
	for _, obj := range objects {
		if obj.LastModified.After(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, obj.Name); err != nil {
			slog.Default().Warn("temp orphan sweep: delete failed", "object", obj.Name, "error", err)
			continue
		}
		removed++
	}
	slog.Default().Info("temp orphan sweep complete", "scanned", len(objects), "removed", removed)
	s.recordRun(ctx, "temp_orphan_sweep", len(objects), removed)
}

// jobPruneSweep deletes job records older than the configured retention
// window, daily at 02:00 local.
func (s *Sweeper) jobPruneSweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.jobRetention)
	removed, err := s.jobs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Default().Error("job prune sweep failed", "error", err)
		return
	}
	slog.Default().Info("job prune sweep complete", "removed", removed)
	s.recordRun(ctx, "job_prune_sweep", int(removed), int(removed))
}
