// Package queue implements the durable priority queue (C8's dequeue side):
// a Redis sorted set scored so that strict priority order dominates and
// FIFO ordering holds within a priority class, plus a processing hash that
// implements the visibility-timeout contract between dequeue and ack.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"videopipe/internal/apierrors"

	"github.com/redis/go-redis/v9"
)

const (
	pendingKey    = "videopipe:queue:pending"
	processingKey = "videopipe:queue:processing"
)

// Entry is the queue-entry format from §6.1: the dispatcher resolves
// everything else through the job repository.
type Entry struct {
	JobID   int64 `json:"job_id"`
	Attempt int   `json:"attempt"`
}

// Queue is the durable priority queue workers dequeue from.
type Queue struct {
	rdb                *redis.Client
	visibilityTimeout  time.Duration
}

// New constructs a Queue over an existing redis client. visibilityTimeout
// must exceed the per-job wall-clock timeout so a worker still holding an
// entry is never outraced by another worker reclaiming it.
func New(rdb *redis.Client, visibilityTimeout time.Duration) *Queue {
	return &Queue{rdb: rdb, visibilityTimeout: visibilityTimeout}
}

// score combines priority and enqueue time so that ZRANGEBYSCORE ascending
// order yields strict highest-priority-first, FIFO-within-priority dispatch:
// higher priority must sort first (lower score), and within one priority
// class an earlier enqueue time must sort first.
func score(priority int, enqueuedAt time.Time) float64 {
	return float64(10-priority)*1e15 + float64(enqueuedAt.UnixNano())/1e6
}

// Enqueue adds entry to the pending set at the given priority, scored for
// dispatch order.
func (q *Queue) Enqueue(ctx context.Context, entry Entry, priority int, enqueuedAt time.Time) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("queue: marshal entry: %w", err)
	}
	err = q.rdb.ZAdd(ctx, pendingKey, redis.Z{Score: score(priority, enqueuedAt), Member: b}).Err()
	if err != nil {
		return apierrors.NewTransient(err, "queue enqueue job %d", entry.JobID)
	}
	return nil
}

// EnqueueDelayed schedules entry for dispatch only after delay has elapsed,
// by pushing its effective enqueue time into the future — used for the
// retry backoff path.
func (q *Queue) EnqueueDelayed(ctx context.Context, entry Entry, priority int, delay time.Duration) error {
	return q.Enqueue(ctx, entry, priority, time.Now().Add(delay))
}

// leased is the processing-hash record tracking an entry between dequeue
// and Ack/Requeue.
type leased struct {
	Entry      Entry     `json:"entry"`
	Priority   int       `json:"priority"`
	LeasedAt   time.Time `json:"leased_at"`
}

// Dequeue pops the highest-priority, earliest-enqueued entry whose score is
// already due, moving it into the processing hash with a lease stamp.
// Returns (Entry{}, false, nil) when nothing is ready.
func (q *Queue) Dequeue(ctx context.Context) (Entry, bool, error) {
	now := float64(time.Now().UnixNano()) / 1e6
	// Candidates come back in score order; a delayed retry's time component
	// may still be in the future, so such entries are passed over.
	results, err := q.rdb.ZRangeWithScores(ctx, pendingKey, 0, -1).Result()
	if err != nil {
		return Entry{}, false, apierrors.NewTransient(err, "queue dequeue")
	}

	// Guard against dispatching a delayed retry before its time: decode the
	// score's time component back out. Scores below 1e15 encode priority 10
	// (time component only); above that, subtract the priority term.
	idx := 0
	for idx < len(results) && results[idx].Score-float64(int64(results[idx].Score/1e15))*1e15 > now {
		idx++
	}
	if idx == len(results) {
		return Entry{}, false, nil
	}
	member := results[idx].Member.(string)
	s := results[idx].Score
	priorityTerm := float64(int64(s/1e15)) * 1e15

	removed, err := q.rdb.ZRem(ctx, pendingKey, member).Result()
	if err != nil {
		return Entry{}, false, apierrors.NewTransient(err, "queue pop")
	}
	if removed == 0 {
		// Raced with another worker's ZRem; caller should just try again.
		return Entry{}, false, nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(member), &entry); err != nil {
		return Entry{}, false, fmt.Errorf("queue: unmarshal entry: %w", err)
	}

	lease := leased{Entry: entry, Priority: 10 - int(priorityTerm/1e15), LeasedAt: time.Now()}
	leaseBytes, err := json.Marshal(lease)
	if err != nil {
		return Entry{}, false, fmt.Errorf("queue: marshal lease: %w", err)
	}
	field := fmt.Sprintf("%d", entry.JobID)
	if err := q.rdb.HSet(ctx, processingKey, field, leaseBytes).Err(); err != nil {
		return Entry{}, false, apierrors.NewTransient(err, "queue lease job %d", entry.JobID)
	}
	return entry, true, nil
}

// Ack removes jobID's lease, confirming its processing attempt is over
// (success or terminal failure).
func (q *Queue) Ack(ctx context.Context, jobID int64) error {
	field := fmt.Sprintf("%d", jobID)
	if err := q.rdb.HDel(ctx, processingKey, field).Err(); err != nil {
		return apierrors.NewTransient(err, "queue ack job %d", jobID)
	}
	return nil
}

// Requeue removes jobID's lease and re-enqueues it with the given delay and
// priority — the retry path, after incrementing retry_count.
func (q *Queue) Requeue(ctx context.Context, entry Entry, priority int, delay time.Duration) error {
	if err := q.Ack(ctx, entry.JobID); err != nil {
		return err
	}
	return q.EnqueueDelayed(ctx, entry, priority, delay)
}

// ReclaimExpired scans the processing hash for leases held past
// visibilityTimeout and moves them back to pending, the backstop against a
// worker crashing mid-job without acknowledging.
func (q *Queue) ReclaimExpired(ctx context.Context) (int, error) {
	all, err := q.rdb.HGetAll(ctx, processingKey).Result()
	if err != nil {
		return 0, apierrors.NewTransient(err, "queue reclaim scan")
	}
	reclaimed := 0
	for field, raw := range all {
		var lease leased
		if err := json.Unmarshal([]byte(raw), &lease); err != nil {
			continue
		}
		if time.Since(lease.LeasedAt) < q.visibilityTimeout {
			continue
		}
		if err := q.rdb.HDel(ctx, processingKey, field).Err(); err != nil {
			continue
		}
		if err := q.Enqueue(ctx, lease.Entry, lease.Priority, time.Now()); err != nil {
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}

// Len reports the number of entries currently pending dispatch.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.ZCard(ctx, pendingKey).Result()
	if err != nil {
		return 0, apierrors.NewTransient(err, "queue len")
	}
	return n, nil
}
