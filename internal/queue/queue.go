/**
 * @description
 * This file implements the Redis-backed job queue that drives the donation
 * pipeline's asynchronous work. Each job type gets its own Redis list
 * (`queue:<type>`); jobs are LPUSHed on enqueue and RPOPed by the worker
 * drain, giving FIFO ordering per type.
 *
 * Retry semantics:
 *   - A failed job is re-enqueued with an exponential not-before delay of
 *     min(1s * 2^attempts, 60s). Permanent failures (validation, missing
 *     entity) skip the retries and go straight to the dead letter list.
 *   - After MaxAttempts failures the job moves to `dlq:<type>` together with
 *     the final error and failure timestamp, and is never retried again.
 *   - A dequeued job whose not-before time has not arrived is pushed back
 *     and the drain moves on.
 *
 * Unique jobs carry their entity key; the dedup marker is cleared the moment
 * the job is picked up so the handler's own re-enqueue for the same entity
 * is never mistaken for a duplicate. The marker TTL is only a backstop for
 * jobs lost in transit.
 *
 * When no Redis client is configured the queue degrades to synchronous
 * execution: Enqueue runs the job inline through the injected runner, so a
 * single-instance deployment keeps working without Redis.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client for list and SETNX operations.
 * - github.com/google/uuid: Job identifiers.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/resgateprime/donation-service/internal/apperr"
)

const (
	// DefaultMaxAttempts is the retry ceiling applied when Options does not
	// override it.
	DefaultMaxAttempts = 3

	maxBackoff = 60 * time.Second

	// uniqueMarkerSlack extends the dedup marker past the job's delay. The
	// marker is normally cleared on pickup; the TTL only covers jobs that
	// never get dequeued.
	uniqueMarkerSlack = 2 * time.Minute
)

// Job is the unit of work carried on a Redis list. Entity is set only for
// unique jobs and names the dedup marker to clear on pickup.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	Type         string          `json:"type"`
	Entity       string          `json:"entity,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"maxAttempts"`
	CreatedAt    time.Time       `json:"createdAt"`
	ScheduledFor *time.Time      `json:"scheduledFor,omitempty"`
}

// DeadLetter wraps a job that exhausted its retries.
type DeadLetter struct {
	Job      Job       `json:"job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failedAt"`
}

// Options tunes a single enqueue call.
type Options struct {
	// Delay delays the first execution of the job.
	Delay time.Duration
	// MaxAttempts overrides DefaultMaxAttempts when positive.
	MaxAttempts int
}

// redisClient is the slice of go-redis the queue actually uses, kept narrow
// so tests can stub it.
type redisClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	RPop(ctx context.Context, key string) *redis.StringCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// SyncRunner executes a job inline when the queue is running without Redis.
type SyncRunner func(ctx context.Context, job *Job) error

// Queue is a minimal at-least-once job queue over Redis lists.
type Queue struct {
	client redisClient
	runner SyncRunner
	logger *slog.Logger
}

// New creates a Queue. client may be nil, in which case every Enqueue runs
// the job synchronously through runner.
func New(client redisClient, runner SyncRunner, logger *slog.Logger) *Queue {
	return &Queue{client: client, runner: runner, logger: logger}
}

// NewWithRedis creates a Queue over a real *redis.Client.
func NewWithRedis(client *redis.Client, runner SyncRunner, logger *slog.Logger) *Queue {
	if client == nil {
		return New(nil, runner, logger)
	}
	return New(client, runner, logger)
}

func queueKey(jobType string) string { return "queue:" + jobType }
func dlqKey(jobType string) string   { return "dlq:" + jobType }
func uniqueKey(jobType, entity string) string {
	return "queue:unique:" + jobType + ":" + entity
}

// backoffDelay returns the not-before delay applied after a failed attempt.
func backoffDelay(attempts int) time.Duration {
	d := time.Second
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func (q *Queue) buildJob(jobType string, payload any, opts Options) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	job := &Job{
		ID:          uuid.New(),
		Type:        jobType,
		Payload:     raw,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now().UTC(),
	}
	if opts.Delay > 0 {
		at := job.CreatedAt.Add(opts.Delay)
		job.ScheduledFor = &at
	}
	return job, nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("push job to %s: %w", key, err)
	}
	return nil
}

// Enqueue adds a job to the list for jobType. Without Redis the job runs
// inline and Enqueue returns the runner's error.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any, opts Options) (uuid.UUID, error) {
	job, err := q.buildJob(jobType, payload, opts)
	if err != nil {
		return uuid.Nil, err
	}
	if q.client == nil {
		return job.ID, q.runInline(ctx, job)
	}
	if err := q.push(ctx, queueKey(jobType), job); err != nil {
		return uuid.Nil, err
	}
	return job.ID, nil
}

// EnqueueUnique behaves like Enqueue but drops the job when another job with
// the same entity key is already waiting. The marker is cleared when the job
// is dequeued, so a handler can immediately re-enqueue a check for the same
// entity; the TTL only covers jobs lost before pickup. The second return
// value reports whether the job was actually enqueued.
func (q *Queue) EnqueueUnique(ctx context.Context, jobType, entity string, payload any, opts Options) (uuid.UUID, bool, error) {
	if q.client == nil {
		id, err := q.Enqueue(ctx, jobType, payload, opts)
		return id, err == nil, err
	}
	ttl := opts.Delay + uniqueMarkerSlack
	ok, err := q.client.SetNX(ctx, uniqueKey(jobType, entity), 1, ttl).Result()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("set dedup marker: %w", err)
	}
	if !ok {
		return uuid.Nil, false, nil
	}
	job, err := q.buildJob(jobType, payload, opts)
	if err != nil {
		return uuid.Nil, false, err
	}
	job.Entity = entity
	if err := q.push(ctx, queueKey(jobType), job); err != nil {
		return uuid.Nil, false, err
	}
	return job.ID, true, nil
}

func (q *Queue) runInline(ctx context.Context, job *Job) error {
	if q.runner == nil {
		return fmt.Errorf("queue has no redis client and no synchronous runner")
	}
	if job.ScheduledFor != nil {
		// Inline mode cannot wait; delayed jobs run immediately.
		q.logger.Warn("running delayed job inline", "jobType", job.Type, "jobId", job.ID)
	}
	return q.runner(ctx, job)
}

// Dequeue pops the next job for jobType. It returns (nil, nil) when the list
// is empty or when the popped job is not due yet, in which case the job is
// pushed back.
func (q *Queue) Dequeue(ctx context.Context, jobType string) (*Job, error) {
	if q.client == nil {
		return nil, nil
	}
	raw, err := q.client.RPop(ctx, queueKey(jobType)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop job from %s: %w", queueKey(jobType), err)
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode job from %s: %w", queueKey(jobType), err)
	}
	if job.ScheduledFor != nil && job.ScheduledFor.After(time.Now()) {
		if err := q.push(ctx, queueKey(jobType), &job); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if job.Entity != "" {
		// Clear the dedup marker now so the handler can schedule the next
		// check for this entity. A failed delete falls back to the TTL.
		if err := q.client.Del(ctx, uniqueKey(job.Type, job.Entity)).Err(); err != nil {
			q.logger.Warn("failed to clear dedup marker",
				"jobType", job.Type, "entity", job.Entity, "error", err)
		}
	}
	return &job, nil
}

// ReportFailure records a failed attempt. The job is either re-enqueued with
// exponential backoff or moved to the dead letter list, immediately for
// permanent failures and otherwise once MaxAttempts is reached. The boolean
// reports whether the job was dead-lettered.
func (q *Queue) ReportFailure(ctx context.Context, job *Job, jobErr error) (bool, error) {
	job.Attempts++
	dead := job.Attempts >= job.MaxAttempts || !apperr.IsRetryable(jobErr)
	if q.client == nil {
		return dead, nil
	}
	if dead {
		letter := DeadLetter{Job: *job, Error: jobErr.Error(), FailedAt: time.Now().UTC()}
		raw, err := json.Marshal(letter)
		if err != nil {
			return true, fmt.Errorf("marshal dead letter: %w", err)
		}
		if err := q.client.LPush(ctx, dlqKey(job.Type), raw).Err(); err != nil {
			return true, fmt.Errorf("push dead letter: %w", err)
		}
		q.logger.Error("job exhausted retries",
			"jobType", job.Type, "jobId", job.ID, "attempts", job.Attempts, "error", jobErr)
		return true, nil
	}
	delay := backoffDelay(job.Attempts)
	at := time.Now().UTC().Add(delay)
	job.ScheduledFor = &at
	if job.Entity != "" {
		// Re-arm the marker so a sweep cannot stack a second check while
		// this one waits out its backoff.
		if err := q.client.SetNX(ctx, uniqueKey(job.Type, job.Entity), 1, delay+uniqueMarkerSlack).Err(); err != nil {
			q.logger.Warn("failed to re-arm dedup marker",
				"jobType", job.Type, "entity", job.Entity, "error", err)
		}
	}
	if err := q.push(ctx, queueKey(job.Type), job); err != nil {
		return false, err
	}
	q.logger.Warn("job failed, retrying",
		"jobType", job.Type, "jobId", job.ID, "attempts", job.Attempts,
		"nextAttemptIn", delay.String(), "error", jobErr)
	return false, nil
}

// Depth reports the number of pending jobs for jobType.
func (q *Queue) Depth(ctx context.Context, jobType string) (int64, error) {
	if q.client == nil {
		return 0, nil
	}
	return q.client.LLen(ctx, queueKey(jobType)).Result()
}

// DeadLetters returns up to limit entries from the dead letter list for
// jobType, newest first.
func (q *Queue) DeadLetters(ctx context.Context, jobType string, limit int64) ([]DeadLetter, error) {
	if q.client == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	raws, err := q.client.LRange(ctx, dlqKey(jobType), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters for %s: %w", jobType, err)
	}
	letters := make([]DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var letter DeadLetter
		if err := json.Unmarshal([]byte(raw), &letter); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		letters = append(letters, letter)
	}
	return letters, nil
}
