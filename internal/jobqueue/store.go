package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the contract the pollers run against. Acquire is the only
// cross-process mutual-exclusion point in the system.
type Store interface {
	Enqueue(ctx context.Context, n NewJob) (*Job, error)
	Acquire(ctx context.Context, queue Queue, workerID string) (*Job, error)
	Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) (*Job, error)
	Fail(ctx context.Context, id uuid.UUID, errMsg string, permanent bool) (*Job, error)
	Release(ctx context.Context, id uuid.UUID) (*Job, error)
}

const jobColumns = `id, asset_id, job_type, queue, priority, payload, status,
	attempts, max_attempts, worker_id, last_error, result, trace_id,
	created_at, next_retry_at, started_at, completed_at`

var _ Store = (*PGStore)(nil)

// PGStore is the durable Postgres-backed job queue.
type PGStore struct {
	pool   *pgxpool.Pool
	policy RetryPolicy
}

func NewPGStore(pool *pgxpool.Pool, policy RetryPolicy) *PGStore {
	return &PGStore{pool: pool, policy: policy}
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.AssetID, &j.Type, &j.Queue, &j.Priority, &j.Payload, &j.Status,
		&j.Attempts, &j.MaxAttempts, &j.WorkerID, &j.LastError, &j.Result, &j.TraceID,
		&j.CreatedAt, &j.NextRetryAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

func (s *PGStore) Enqueue(ctx context.Context, n NewJob) (*Job, error) {
	if n.Queue == "" {
		return nil, ErrQueueRequired
	}
	maxAttempts := n.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	var traceID *string
	if n.TraceID != "" {
		traceID = &n.TraceID
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO processing_jobs (asset_id, job_type, queue, priority, payload, max_attempts, trace_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+jobColumns,
		n.AssetID, n.Type, n.Queue, n.Priority, n.Payload, maxAttempts, traceID)
	return scanJob(row)
}

// Acquire atomically claims the highest-priority eligible pending row for the
// queue. FOR UPDATE SKIP LOCKED lets concurrent acquirers pass over rows
// another transaction is claiming instead of blocking on them, so exactly one
// caller wins any given row. Returns ErrNotFound when the queue is drained.
func (s *PGStore) Acquire(ctx context.Context, queue Queue, workerID string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM processing_jobs
			WHERE queue = $1
			  AND status = 'pending'
			  AND (next_retry_at IS NULL OR next_retry_at <= now())
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE processing_jobs j SET
			status = 'processing',
			attempts = j.attempts + 1,
			worker_id = $2,
			started_at = now()
		FROM next
		WHERE j.id = next.id
		RETURNING `+jobColumnsQualified("j"),
		queue, workerID)
	return scanJob(row)
}

func (s *PGStore) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE processing_jobs SET
			status = 'completed',
			result = $2,
			worker_id = NULL,
			completed_at = now()
		WHERE id = $1 AND status = 'processing'
		RETURNING `+jobColumns,
		id, result)
	return scanJob(row)
}

// Fail records the error and either reschedules the job with exponential
// backoff or, when attempts are exhausted (or the error is permanent),
// terminalizes it.
func (s *PGStore) Fail(ctx context.Context, id uuid.UUID, errMsg string, permanent bool) (*Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin fail tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var attempts, maxAttempts int32
	err = tx.QueryRow(ctx,
		`SELECT attempts, max_attempts FROM processing_jobs WHERE id = $1 FOR UPDATE`, id).
		Scan(&attempts, &maxAttempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read job for fail: %w", err)
	}

	var job *Job
	if permanent || attempts >= maxAttempts {
		job, err = scanJob(tx.QueryRow(ctx, `
			UPDATE processing_jobs SET
				status = 'failed',
				last_error = $2,
				worker_id = NULL,
				next_retry_at = NULL,
				completed_at = now()
			WHERE id = $1
			RETURNING `+jobColumns,
			id, errMsg))
	} else {
		delay := s.policy.Backoff(attempts)
		job, err = scanJob(tx.QueryRow(ctx, `
			UPDATE processing_jobs SET
				status = 'pending',
				last_error = $2,
				worker_id = NULL,
				next_retry_at = now() + $3
			WHERE id = $1
			RETURNING `+jobColumns,
			id, errMsg, delay))
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit fail tx: %w", err)
	}
	return job, nil
}

// Release forces a processing job back to pending, immediately eligible, with
// attempts and last_error untouched. Used only for shutdown draining.
func (s *PGStore) Release(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE processing_jobs SET
			status = 'pending',
			worker_id = NULL,
			next_retry_at = now()
		WHERE id = $1 AND status = 'processing'
		RETURNING `+jobColumns,
		id)
	return scanJob(row)
}

func (s *PGStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (s *PGStore) ListJobs(ctx context.Context, f ListFilter) ([]*Job, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs
		WHERE ($1 = '' OR queue = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR job_type = $3)
		  AND ($4::uuid IS NULL OR asset_id = $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6`,
		string(f.Queue), string(f.Status), string(f.Type), nilUUID(f.AssetID), limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// RetryJob requeues a failed job from scratch: attempts reset, error and
// schedule cleared.
func (s *PGStore) RetryJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE processing_jobs SET
			status = 'pending',
			attempts = 0,
			last_error = NULL,
			next_retry_at = NULL,
			started_at = NULL,
			completed_at = NULL
		WHERE id = $1 AND status = 'failed'
		RETURNING `+jobColumns,
		id)
	job, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidState
	}
	return job, err
}

// RetryFailed requeues every failed job on a queue and reports how many rows
// it touched.
func (s *PGStore) RetryFailed(ctx context.Context, queue Queue) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE processing_jobs SET
			status = 'pending',
			attempts = 0,
			last_error = NULL,
			next_retry_at = NULL,
			started_at = NULL,
			completed_at = NULL
		WHERE status = 'failed' AND ($1 = '' OR queue = $1)`,
		string(queue))
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) CancelJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE processing_jobs SET
			status = 'cancelled',
			completed_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+jobColumns,
		id)
	job, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidState
	}
	return job, err
}

func (s *PGStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM processing_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetStuckJobs requeues rows left in processing longer than olderThan.
// Backstop for workers that crashed without releasing their claim; the
// attempt those rows consumed on acquire stands.
func (s *PGStore) ResetStuckJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE processing_jobs SET
			status = 'pending',
			worker_id = NULL,
			next_retry_at = now()
		WHERE status = 'processing' AND started_at < now() - $1`,
		olderThan)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// QueueDepths returns the number of eligible pending jobs per queue.
func (s *PGStore) QueueDepths(ctx context.Context) (map[Queue]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT queue, count(*) FROM processing_jobs
		WHERE status = 'pending'
		GROUP BY queue`)
	if err != nil {
		return nil, fmt.Errorf("queue depths: %w", err)
	}
	defer rows.Close()

	depths := make(map[Queue]int64)
	for rows.Next() {
		var q Queue
		var n int64
		if err := rows.Scan(&q, &n); err != nil {
			return nil, fmt.Errorf("scan queue depth: %w", err)
		}
		depths[q] = n
	}
	return depths, rows.Err()
}

func jobColumnsQualified(alias string) string {
	return alias + `.id, ` + alias + `.asset_id, ` + alias + `.job_type, ` + alias + `.queue, ` +
		alias + `.priority, ` + alias + `.payload, ` + alias + `.status, ` + alias + `.attempts, ` +
		alias + `.max_attempts, ` + alias + `.worker_id, ` + alias + `.last_error, ` + alias + `.result, ` +
		alias + `.trace_id, ` + alias + `.created_at, ` + alias + `.next_retry_at, ` +
		alias + `.started_at, ` + alias + `.completed_at`
}

func nilUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
