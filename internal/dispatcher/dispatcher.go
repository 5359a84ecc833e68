// Package dispatcher runs the worker pool (C8): each worker repeats the
// nine-step dequeue/validate/run/finalize loop against the durable queue,
// the job repository, and the result cache, retrying transient failures
// with exponential backoff and honoring cooperative cancellation.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"videopipe/internal/apierrors"
	"videopipe/internal/cache"
	"videopipe/internal/models"
	"videopipe/internal/pipeline"
	"videopipe/internal/processor"
	"videopipe/internal/processor/audiooverlay"
	"videopipe/internal/processor/join"
	"videopipe/internal/processor/subtitles"
	"videopipe/internal/processor/textoverlay"
	"videopipe/internal/processor/videooverlay"
	"videopipe/internal/queue"
	"videopipe/internal/repositories"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "videopipe_jobs_processed_total",
		Help: "Jobs that reached a terminal outcome, by result.",
	}, []string{"result"})
	jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "videopipe_jobs_in_flight",
		Help: "Jobs currently being processed by a worker.",
	})
	jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "videopipe_job_duration_seconds",
		Help:    "Wall-clock duration of a single job attempt.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})
)

func init() {
	prometheus.MustRegister(jobsProcessed, jobsInFlight, jobDuration)
}

// Pool runs N workers, each executing the loop described in spec.md §4.8.
type Pool struct {
	jobs       *repositories.JobRepository
	assets     *repositories.AssetRepository
	q          *queue.Queue
	results    *cache.ResultCache
	deps       processor.Deps
	workerCount int
	jobTimeout time.Duration
	tempRoot   string

	mu        sync.Mutex
	cancelled map[int64]context.CancelFunc
}

// New constructs a worker Pool.
func New(
	jobs *repositories.JobRepository,
	assets *repositories.AssetRepository,
	q *queue.Queue,
	results *cache.ResultCache,
	deps processor.Deps,
	workerCount int,
	jobTimeout time.Duration,
	tempRoot string,
) *Pool {
	return &Pool{
		jobs:        jobs,
		assets:      assets,
		q:           q,
		results:     results,
		deps:        deps,
		workerCount: workerCount,
		jobTimeout:  jobTimeout,
		tempRoot:    tempRoot,
		cancelled:   make(map[int64]context.CancelFunc),
	}
}

// Run starts workerCount goroutines and blocks until ctx is cancelled, then
// waits for in-flight attempts to observe cancellation and exit.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		workerID := i
		go func() {
			defer wg.Done()
			p.workerLoop(ctx, workerID)
		}()
	}
	wg.Wait()
}

// Cancel signals the worker (if any) currently running jobID to stop.
func (p *Pool) Cancel(jobID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.cancelled[jobID]; ok {
		cancel()
	}
}

func (p *Pool) workerLoop(ctx context.Context, workerID int) {
	log := slog.Default().With("worker", workerID)
	idle := time.NewTicker(200 * time.Millisecond)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entry, ok, err := p.q.Dequeue(ctx)
		if err != nil {
			log.Error("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-idle.C:
			}
			continue
		}
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-idle.C:
			}
			continue
		}

		p.handle(ctx, log, entry)
	}
}

// handle runs the nine-step loop for one dequeued entry.
func (p *Pool) handle(ctx context.Context, log *slog.Logger, entry queue.Entry) {
	started := time.Now()
	log = log.With("job_id", entry.JobID, "attempt", entry.Attempt)

	// Step 2: load the job, skip if already cancelled.
	job, err := p.jobs.Get(ctx, entry.JobID)
	if err != nil || job == nil {
		log.Error("job lookup failed on dequeue", "error", err)
		_ = p.q.Ack(ctx, entry.JobID)
		return
	}
	if job.Status == models.JobStatusCancelled {
		_ = p.q.Ack(ctx, entry.JobID)
		return
	}

	// Step 3: CAS PENDING -> PROCESSING.
	ok, err := p.jobs.CASStatus(ctx, job.ID, models.JobStatusPending, models.JobStatusProcessing)
	if err != nil {
		log.Error("cas to processing failed", "error", err)
		_ = p.q.Requeue(ctx, entry, job.Priority, 5*time.Second)
		return
	}
	if !ok {
		// Another worker already claimed it, or it was cancelled in the
		// PENDING->PROCESSING race; either way this entry is stale.
		_ = p.q.Ack(ctx, entry.JobID)
		return
	}

	jobsInFlight.Inc()
	defer jobsInFlight.Dec()
	defer func() { jobDuration.Observe(time.Since(started).Seconds()) }()

	runCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	p.mu.Lock()
	p.cancelled[job.ID] = cancel
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		delete(p.cancelled, job.ID)
		p.mu.Unlock()
	}()

	cfg, err := job.Config()
	if err != nil {
		p.fail(ctx, job, entry, fmt.Sprintf("decode config: %v", err))
		return
	}

	sortedInputs := append([]int64(nil), job.InputAssetIDs...)
	configJSON := string(job.ConfigRaw)

	// Step 4: result cache shortcut.
	if cached, err := p.results.Get(runCtx, job.Type, sortedInputs, configJSON); err == nil {
		_ = p.jobs.UpdateProgress(ctx, job.ID, 100)
		_ = p.jobs.UpdateResult(ctx, job.ID, cached.Result, cached.OutputAssetIDs)
		_ = p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusCompleted, "")
		_ = p.q.Ack(ctx, entry.JobID)
		jobsProcessed.WithLabelValues("cache_hit").Inc()
		return
	}

	// Step 5+6: validate and run.
	workDir := filepath.Join(p.tempRoot, fmt.Sprintf("job_%d_attempt_%d_%s", job.ID, entry.Attempt, uuid.NewString()))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		p.fail(ctx, job, entry, fmt.Sprintf("create work dir: %v", err))
		return
	}
	defer os.RemoveAll(workDir)

	lastProgress := -1.0
	lastReport := time.Now().Add(-time.Second)
	progressSink := func(pct float64) {
		if pct < lastProgress {
			pct = lastProgress
		}
		if time.Since(lastReport) < 500*time.Millisecond && pct < 100 {
			return
		}
		lastProgress = pct
		lastReport = time.Now()
		_ = p.jobs.UpdateProgress(ctx, job.ID, pct)
	}

	outputPath, result, runErr := p.execute(runCtx, job, cfg, workDir, progressSink)

	if runErr != nil {
		if _, isCancelled := runErr.(*apierrors.CancelledError); isCancelled || runCtx.Err() == context.Canceled {
			_ = p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusCancelled, "cancelled")
			_ = p.q.Ack(ctx, entry.JobID)
			jobsProcessed.WithLabelValues("cancelled").Inc()
			return
		}
		if runCtx.Err() == context.DeadlineExceeded {
			p.fail(ctx, job, entry, "timed out")
			return
		}
		if apierrors.Retryable(runErr) && entry.Attempt < models.MaxAutoRetries {
			p.retry(ctx, job, entry, runErr)
			return
		}
		p.fail(ctx, job, entry, runErr.Error())
		return
	}

	// Step 7: success path — upload the result and record it.
	assetID, err := p.uploadResult(ctx, job, outputPath)
	if err != nil {
		if apierrors.Retryable(err) && entry.Attempt < models.MaxAutoRetries {
			p.retry(ctx, job, entry, err)
			return
		}
		p.fail(ctx, job, entry, err.Error())
		return
	}

	_ = p.results.Set(ctx, job.Type, sortedInputs, configJSON, cache.CachedResult{
		OutputAssetIDs: []int64{assetID},
		Result:         result,
	})
	_ = p.jobs.UpdateResult(ctx, job.ID, result, []int64{assetID})
	_ = p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusCompleted, "")
	_ = p.q.Ack(ctx, entry.JobID)
	jobsProcessed.WithLabelValues("completed").Inc()
}

// execute instantiates the right processor (or the pipeline runner for
// COMBINED) and runs it after validation.
func (p *Pool) execute(ctx context.Context, job *models.Job, cfg models.JobConfig, workDir string, progress func(float64)) (string, models.JobResult, error) {
	if job.Type == models.JobTypeCombined {
		combined := cfg.(models.CombinedConfig)
		runner := pipeline.New(p.deps)
		res, err := runner.Run(ctx, combined, workDir, progress)
		if err != nil {
			return "", models.JobResult{}, err
		}
		return res.FinalPath, res.Result, nil
	}

	var proc processor.Processor
	switch job.Type {
	case models.JobTypeJoin:
		proc = join.New(p.deps)
	case models.JobTypeAudioOverlay:
		proc = audiooverlay.New(p.deps)
	case models.JobTypeTextOverlay:
		proc = textoverlay.New(p.deps)
	case models.JobTypeSubtitles:
		proc = subtitles.New(p.deps)
	case models.JobTypeVideoOverlay:
		proc = videooverlay.New(p.deps)
	default:
		return "", models.JobResult{}, apierrors.NewValidation("dispatcher: unknown job type %s", job.Type)
	}
	defer proc.Cleanup()

	if err := proc.Validate(ctx, cfg); err != nil {
		return "", models.JobResult{}, err
	}

	seedID := job.InputAssetIDs[0]
	seedPath, err := processor.FetchToFile(ctx, p.deps, seedID, workDir)
	if err != nil {
		return "", models.JobResult{}, err
	}

	out, err := proc.Run(ctx, cfg, processor.ProcessorInput{PrimaryPath: seedPath, WorkDir: workDir}, progress)
	if err != nil {
		return "", models.JobResult{}, err
	}
	return out.OutputPath, out.Result, nil
}

func (p *Pool) uploadResult(ctx context.Context, job *models.Job, localPath string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, apierrors.NewTransient(err, "open pipeline output")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, apierrors.NewTransient(err, "stat pipeline output")
	}

	objectName := fmt.Sprintf("outputs/%d/%s%s", job.OwnerID, uuid.NewString(), filepath.Ext(localPath))
	if err := p.deps.Store.PutStream(ctx, objectName, f, info.Size(), "video/mp4"); err != nil {
		return 0, err
	}

	// Probe the local output before uploading completes the file handle's
	// usefulness; lets the result asset stand in as a later combined job's
	// input without a fresh upload re-probing it.
	var probed *models.ProbeResult
	if p.deps.Tool != nil {
		if result, err := p.deps.Tool.Probe(ctx, localPath); err == nil {
			probed = &result
		}
	}

	asset := &models.Asset{
		OwnerID:       job.OwnerID,
		DisplayName:   fmt.Sprintf("%s_result%s", job.Type, filepath.Ext(localPath)),
		ObjectName:    objectName,
		SizeBytes:     info.Size(),
		MediaType:     "video/mp4",
		ProbeMetadata: probed,
		CreatedAt:     time.Now(),
	}
	if err := p.assets.Create(ctx, asset); err != nil {
		return 0, fmt.Errorf("dispatcher: create output asset: %w", err)
	}
	if probed != nil && p.deps.ProbeCache != nil {
		_ = p.deps.ProbeCache.Set(ctx, asset.ID, objectName, *probed)
	}
	return asset.ID, nil
}

// retry implements step 8: exponential backoff, base 60s, cap 300s,
// multiplier 2^retry, +/-20% jitter. Requeue drops the prior lease and then
// enqueues the next attempt with that delay, as two separate queue calls.
func (p *Pool) retry(ctx context.Context, job *models.Job, entry queue.Entry, cause error) {
	newCount, err := p.jobs.IncrementRetry(ctx, job.ID)
	if err != nil {
		slog.Default().Error("increment retry failed", "job_id", job.ID, "error", err)
	}
	delay := backoffDelay(newCount)
	nextEntry := queue.Entry{JobID: job.ID, Attempt: entry.Attempt + 1}
	if err := p.q.Requeue(ctx, nextEntry, job.Priority, delay); err != nil {
		slog.Default().Error("requeue failed", "job_id", job.ID, "error", err)
	}
	slog.Default().Warn("job retrying", "job_id", job.ID, "retry_count", newCount, "delay", delay, "cause", cause)
}

// backoffDelay computes the retry delay for retryCount (1-indexed): base
// 60s, multiplier 2^retry, capped at 300s, +/-20% jitter.
func backoffDelay(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 60 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 300 * time.Second
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.InitialInterval
	for i := 0; i < retryCount; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// fail implements step 9: terminal failure, scrubbed error message.
func (p *Pool) fail(ctx context.Context, job *models.Job, entry queue.Entry, message string) {
	_ = p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusFailed, scrub(message))
	_ = p.q.Ack(ctx, entry.JobID)
	jobsProcessed.WithLabelValues("failed").Inc()
}

// scrub trims an error message to the last N KB, the taxonomy's bound on
// how much of the external tool's stderr may reach a user-visible field.
func scrub(message string) string {
	const maxLen = 4096
	if len(message) <= maxLen {
		return message
	}
	return message[len(message)-maxLen:]
}

