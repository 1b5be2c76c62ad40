package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/framekeep/framekeep/internal/jobqueue"
	"github.com/framekeep/framekeep/internal/logger"
	"github.com/framekeep/framekeep/internal/metrics"
	"github.com/framekeep/framekeep/internal/tracing"
)

const (
	defaultConcurrency  = 4
	defaultPollInterval = time.Second
	defaultJobTimeout   = 5 * time.Minute
	reportTimeout       = 10 * time.Second
)

// PollerConfig is the per-queue execution policy.
type PollerConfig struct {
	Queue        jobqueue.Queue
	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// Poller drains one queue: it claims eligible jobs up to its concurrency
// limit, routes each to its handler, and reports the outcome. While the queue
// has backlog it re-acquires immediately after launching an execution; it only
// sleeps the poll interval when an acquire comes back empty.
type Poller struct {
	cfg      PollerConfig
	store    jobqueue.Store
	router   *Router
	workerID string
	log      zerolog.Logger

	slots    chan struct{}
	paused   atomic.Bool
	quit     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	active map[uuid.UUID]*ExecContext
	wg     sync.WaitGroup
}

func NewPoller(store jobqueue.Store, router *Router, workerID string, cfg PollerConfig, log zerolog.Logger) *Poller {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	return &Poller{
		cfg:      cfg,
		store:    store,
		router:   router,
		workerID: workerID,
		log:      log.With().Str("queue", string(cfg.Queue)).Logger(),
		slots:    make(chan struct{}, cfg.Concurrency),
		quit:     make(chan struct{}),
		active:   make(map[uuid.UUID]*ExecContext),
	}
}

// Run blocks polling the queue until Stop is called or ctx is cancelled.
// In-flight executions are not waited on here; the orchestrator drains them
// via WaitForCompletion.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info().
		Int("concurrency", p.cfg.Concurrency).
		Dur("poll_interval", p.cfg.PollInterval).
		Dur("job_timeout", p.cfg.JobTimeout).
		Msg("poller started")
	metrics.SetQueueConcurrency(string(p.cfg.Queue), p.cfg.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.quit:
			return nil
		default:
		}

		if p.paused.Load() {
			p.sleep(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.quit:
			return nil
		case p.slots <- struct{}{}:
		}

		job, err := p.store.Acquire(ctx, p.cfg.Queue, p.workerID)
		if err != nil {
			<-p.slots
			if !errors.Is(err, jobqueue.ErrNotFound) && ctx.Err() == nil {
				p.log.Error().Err(err).Msg("acquire failed")
			}
			p.sleep(ctx)
			continue
		}

		p.wg.Add(1)
		go p.execute(ctx, job)
	}
}

func (p *Poller) execute(ctx context.Context, job *jobqueue.Job) {
	defer func() {
		<-p.slots
		p.wg.Done()
	}()

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	log := logger.Default().With(
		"job_id", job.ID.String(),
		"job_type", string(job.Type),
		"queue", string(job.Queue),
		"attempt", job.Attempts,
	)
	jobCtx = logger.WithLogger(jobCtx, log)
	jobCtx = logger.WithJobID(jobCtx, job.ID.String())

	if job.TraceID != nil {
		jobCtx = tracing.ExtractTraceParent(jobCtx, *job.TraceID)
	}
	jobCtx, span := tracing.StartJobSpan(jobCtx, string(job.Queue), string(job.Type), job.ID.String())
	defer span.End()

	ec := newExecContext(jobCtx, cancel, job)
	p.track(ec)
	defer p.untrack(ec)

	metrics.JobsActive.WithLabelValues(string(p.cfg.Queue)).Inc()
	defer metrics.JobsActive.WithLabelValues(string(p.cfg.Queue)).Dec()

	log.Info("job started")
	result, err := p.router.Route(ec)
	elapsed := ec.Elapsed()
	metrics.JobDuration.WithLabelValues(string(p.cfg.Queue), string(job.Type)).Observe(elapsed.Seconds())

	if ec.wasReleased() {
		log.Warn("job aborted and released", "duration_ms", elapsed.Milliseconds())
		metrics.JobsProcessedTotal.WithLabelValues(string(p.cfg.Queue), string(job.Type), "released").Inc()
		return
	}

	// Outcome writes use a fresh context: the job context may already be
	// past its deadline, and the outcome still has to reach the store.
	reportCtx, reportCancel := context.WithTimeout(context.Background(), reportTimeout)
	defer reportCancel()

	if err != nil {
		tracing.RecordError(jobCtx, err)
		p.reportFailure(reportCtx, job, err, log)
		return
	}

	if _, err := p.store.Complete(reportCtx, job.ID, result); err != nil {
		log.Error("failed to record completion", "error", err)
		return
	}
	metrics.JobsProcessedTotal.WithLabelValues(string(p.cfg.Queue), string(job.Type), "completed").Inc()
	log.Info("job completed", "duration_ms", elapsed.Milliseconds())
}

func (p *Poller) reportFailure(ctx context.Context, job *jobqueue.Job, jobErr error, log *slog.Logger) {
	permanent := jobqueue.IsPermanent(jobErr)
	updated, err := p.store.Fail(ctx, job.ID, jobErr.Error(), permanent)
	if err != nil {
		log.Error("failed to record failure", "error", err, "job_error", jobErr.Error())
		return
	}
	switch updated.Status {
	case jobqueue.StatusPending:
		metrics.JobsRetriedTotal.WithLabelValues(string(p.cfg.Queue), string(job.Type)).Inc()
		log.Warn("job failed, retry scheduled",
			"error", jobErr.Error(),
			"attempt", updated.Attempts,
			"max_attempts", updated.MaxAttempts,
			"next_retry_at", updated.NextRetryAt)
	default:
		metrics.JobsProcessedTotal.WithLabelValues(string(p.cfg.Queue), string(job.Type), "failed").Inc()
		log.Error("job failed permanently",
			"error", jobErr.Error(),
			"permanent", permanent,
			"attempt", updated.Attempts)
	}
}

// Pause stops claiming new jobs. In-flight executions keep running.
func (p *Poller) Pause() {
	if p.paused.CompareAndSwap(false, true) {
		p.log.Info().Msg("poller paused")
	}
}

// Resume re-enables claiming after Pause.
func (p *Poller) Resume() {
	if p.paused.CompareAndSwap(true, false) {
		p.log.Info().Msg("poller resumed")
	}
}

// Stop ends the Run loop. Idempotent.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		p.log.Info().Msg("poller stopping")
	})
}

// ActiveJobCount returns the number of executions currently in flight.
func (p *Poller) ActiveJobCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// WaitForCompletion blocks until every in-flight execution finishes or the
// timeout passes, and reports whether the poller drained. Call Stop first so
// no new executions start underneath the wait.
func (p *Poller) WaitForCompletion(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// AbortActiveJobs cancels every in-flight execution and releases its row back
// to pending, immediately eligible for another worker. Aborted executions do
// not additionally report failure. Returns the number of released jobs.
func (p *Poller) AbortActiveJobs(ctx context.Context) int {
	p.mu.Lock()
	snapshot := make([]*ExecContext, 0, len(p.active))
	for _, ec := range p.active {
		snapshot = append(snapshot, ec)
	}
	p.mu.Unlock()

	released := 0
	for _, ec := range snapshot {
		ec.abort()
		if _, err := p.store.Release(ctx, ec.Job.ID); err != nil {
			if !errors.Is(err, jobqueue.ErrNotFound) {
				p.log.Error().Err(err).Str("job_id", ec.Job.ID.String()).Msg("release failed")
			}
			continue
		}
		released++
	}
	if released > 0 {
		p.log.Warn().Int("released", released).Msg("active jobs aborted")
	}
	return released
}

func (p *Poller) track(ec *ExecContext) {
	p.mu.Lock()
	p.active[ec.Job.ID] = ec
	p.mu.Unlock()
}

func (p *Poller) untrack(ec *ExecContext) {
	p.mu.Lock()
	delete(p.active, ec.Job.ID)
	p.mu.Unlock()
}

func (p *Poller) sleep(ctx context.Context) {
	timer := time.NewTimer(p.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-p.quit:
	case <-timer.C:
	}
}
