package jobqueue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a complete in-process Store used by the test suite and local
// development. It honors the same state machine and eligibility rules as
// PGStore, with a mutex standing in for row locks.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*Job
	policy RetryPolicy

	// Now is overridable so tests can pin the clock.
	Now func() time.Time
}

func NewMemoryStore(policy RetryPolicy) *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[uuid.UUID]*Job),
		policy: policy,
		Now:    time.Now,
	}
}

func (s *MemoryStore) Enqueue(ctx context.Context, n NewJob) (*Job, error) {
	if n.Queue == "" {
		return nil, ErrQueueRequired
	}
	maxAttempts := n.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	job := &Job{
		ID:          uuid.New(),
		AssetID:     n.AssetID,
		Type:        n.Type,
		Queue:       n.Queue,
		Priority:    n.Priority,
		Payload:     n.Payload,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   s.Now(),
	}
	if n.TraceID != "" {
		t := n.TraceID
		job.TraceID = &t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return copyJob(job), nil
}

func (s *MemoryStore) Acquire(ctx context.Context, queue Queue, workerID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	var eligible []*Job
	for _, j := range s.jobs {
		if j.Queue != queue || j.Status != StatusPending {
			continue
		}
		if j.NextRetryAt != nil && j.NextRetryAt.After(now) {
			continue
		}
		eligible = append(eligible, j)
	}
	if len(eligible) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(eligible, func(i, k int) bool {
		if eligible[i].Priority != eligible[k].Priority {
			return eligible[i].Priority > eligible[k].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[k].CreatedAt)
	})

	j := eligible[0]
	j.Status = StatusProcessing
	j.Attempts++
	j.WorkerID = &workerID
	started := now
	j.StartedAt = &started
	return copyJob(j), nil
}

func (s *MemoryStore) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status != StatusProcessing {
		return nil, ErrNotFound
	}
	j.Status = StatusCompleted
	j.Result = result
	j.WorkerID = nil
	done := s.Now()
	j.CompletedAt = &done
	return copyJob(j), nil
}

func (s *MemoryStore) Fail(ctx context.Context, id uuid.UUID, errMsg string, permanent bool) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	msg := errMsg
	j.LastError = &msg
	j.WorkerID = nil

	if permanent || j.Attempts >= j.MaxAttempts {
		j.Status = StatusFailed
		j.NextRetryAt = nil
		done := s.Now()
		j.CompletedAt = &done
	} else {
		j.Status = StatusPending
		retryAt := s.Now().Add(s.policy.Backoff(j.Attempts))
		j.NextRetryAt = &retryAt
	}
	return copyJob(j), nil
}

func (s *MemoryStore) Release(ctx context.Context, id uuid.UUID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status != StatusProcessing {
		return nil, ErrNotFound
	}
	j.Status = StatusPending
	j.WorkerID = nil
	now := s.Now()
	j.NextRetryAt = &now
	return copyJob(j), nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(j), nil
}

func (s *MemoryStore) ListJobs(ctx context.Context, f ListFilter) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*Job
	for _, j := range s.jobs {
		if f.Queue != "" && j.Queue != f.Queue {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		if f.AssetID != uuid.Nil && j.AssetID != f.AssetID {
			continue
		}
		jobs = append(jobs, copyJob(j))
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})

	// Same paging rules as the Postgres store.
	limit := int(f.Limit)
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := int(f.Offset)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(jobs) {
		return nil, nil
	}
	jobs = jobs[offset:]
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *MemoryStore) ResetStuckJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	var n int64
	for _, j := range s.jobs {
		if j.Status != StatusProcessing || j.StartedAt == nil {
			continue
		}
		if now.Sub(*j.StartedAt) <= olderThan {
			continue
		}
		j.Status = StatusPending
		j.WorkerID = nil
		retryAt := now
		j.NextRetryAt = &retryAt
		n++
	}
	return n, nil
}

func (s *MemoryStore) QueueDepths(ctx context.Context) (map[Queue]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	depths := make(map[Queue]int64)
	for _, j := range s.jobs {
		if j.Status == StatusPending {
			depths[j.Queue]++
		}
	}
	return depths, nil
}

func copyJob(j *Job) *Job {
	c := *j
	if j.WorkerID != nil {
		w := *j.WorkerID
		c.WorkerID = &w
	}
	if j.LastError != nil {
		e := *j.LastError
		c.LastError = &e
	}
	if j.TraceID != nil {
		t := *j.TraceID
		c.TraceID = &t
	}
	if j.NextRetryAt != nil {
		t := *j.NextRetryAt
		c.NextRetryAt = &t
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
