package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/framekeep/framekeep/internal/health"
	"github.com/framekeep/framekeep/internal/jobqueue"
	"github.com/framekeep/framekeep/internal/metrics"
)

var (
	ErrAlreadyRunning = errors.New("worker: orchestrator already running")
	ErrNotRunning     = errors.New("worker: orchestrator not running")
)

const (
	defaultShutdownTimeout = 30 * time.Second
	defaultStuckWindow     = 15 * time.Minute
	janitorInterval        = time.Minute
	depthReportInterval    = 15 * time.Second
)

// maintenanceStore adds the background upkeep operations the orchestrator
// runs alongside the pollers.
type maintenanceStore interface {
	jobqueue.Store
	ResetStuckJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	QueueDepths(ctx context.Context) (map[jobqueue.Queue]int64, error)
}

type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateStopping State = "stopping"
)

// QueueStatus is one queue's slice of the orchestrator snapshot.
type QueueStatus struct {
	Queue       jobqueue.Queue `json:"queue"`
	Concurrency int            `json:"concurrency"`
	ActiveJobs  int            `json:"active_jobs"`
}

// Status is a point-in-time snapshot of the orchestrator.
type Status struct {
	State        State         `json:"state"`
	ShuttingDown bool          `json:"shutting_down"`
	WorkerID     string        `json:"worker_id"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	Queues       []QueueStatus `json:"queues"`
}

// OrchestratorConfig wires queue policies and shutdown behavior.
type OrchestratorConfig struct {
	WorkerID        string
	Queues          []PollerConfig
	ShutdownTimeout time.Duration
	StuckJobWindow  time.Duration
}

// Orchestrator owns the per-queue pollers plus the maintenance loops: the
// stuck-job janitor and the queue-depth gauge reporter.
type Orchestrator struct {
	cfg     OrchestratorConfig
	store   maintenanceStore
	router  *Router
	checker *health.Checker
	log     zerolog.Logger

	mu        sync.Mutex
	state     State
	startedAt *time.Time
	pollers   []*Poller
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewOrchestrator(store maintenanceStore, router *Router, checker *health.Checker, cfg OrchestratorConfig, log zerolog.Logger) *Orchestrator {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.StuckJobWindow <= 0 {
		cfg.StuckJobWindow = defaultStuckWindow
	}
	return &Orchestrator{
		cfg:     cfg,
		store:   store,
		router:  router,
		checker: checker,
		log:     log,
		state:   StateStopped,
	}
}

// Start probes dependencies, then launches one poller per configured queue
// plus the maintenance loops. Fails fast when any dependency is unhealthy.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateStopped {
		return ErrAlreadyRunning
	}

	if o.checker != nil {
		results := o.checker.Check(ctx)
		for _, r := range results {
			if r.Status != health.StatusHealthy {
				return fmt.Errorf("dependency %s unhealthy: %s", r.Name, r.Error)
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.pollers = o.pollers[:0]

	for _, qc := range o.cfg.Queues {
		p := NewPoller(o.store, o.router, o.cfg.WorkerID, qc, o.log)
		o.pollers = append(o.pollers, p)
		o.wg.Add(1)
		go func(p *Poller) {
			defer o.wg.Done()
			if err := p.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				o.log.Error().Err(err).Str("queue", string(p.cfg.Queue)).Msg("poller exited")
			}
		}(p)
	}

	o.wg.Add(2)
	go o.janitorLoop(runCtx)
	go o.depthLoop(runCtx)

	now := time.Now()
	o.startedAt = &now
	o.state = StateRunning
	o.log.Info().
		Str("worker_id", o.cfg.WorkerID).
		Int("queues", len(o.pollers)).
		Msg("orchestrator started")
	return nil
}

// Stop drains the pollers: new acquisition stops immediately, in-flight jobs
// get the remainder of the shutdown budget to finish, and whatever is still
// running after that is aborted and released for other workers.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateRunning && o.state != StatePaused {
		o.mu.Unlock()
		return ErrNotRunning
	}
	o.state = StateStopping
	pollers := o.pollers
	cancel := o.cancel
	o.mu.Unlock()

	o.log.Info().Dur("timeout", o.cfg.ShutdownTimeout).Msg("orchestrator stopping")
	deadline := time.Now().Add(o.cfg.ShutdownTimeout)

	for _, p := range pollers {
		p.Stop()
	}

	drained := true
	for _, p := range pollers {
		remaining := time.Until(deadline)
		if remaining <= 0 || !p.WaitForCompletion(remaining) {
			drained = false
		}
	}

	if !drained {
		released := 0
		for _, p := range pollers {
			released += p.AbortActiveJobs(ctx)
		}
		o.log.Warn().Int("released", released).Msg("shutdown deadline passed, remaining jobs released")
	}

	cancel()
	o.wg.Wait()

	o.mu.Lock()
	o.state = StateStopped
	o.startedAt = nil
	o.mu.Unlock()

	o.log.Info().Bool("drained", drained).Msg("orchestrator stopped")
	return nil
}

// Pause suspends acquisition on every queue. In-flight jobs keep running.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning {
		return
	}
	for _, p := range o.pollers {
		p.Pause()
	}
	o.state = StatePaused
	o.log.Info().Msg("orchestrator paused")
}

// Resume re-enables acquisition after Pause.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StatePaused {
		return
	}
	for _, p := range o.pollers {
		p.Resume()
	}
	o.state = StateRunning
	o.log.Info().Msg("orchestrator resumed")
}

// CheckHealth probes every registered dependency in parallel.
func (o *Orchestrator) CheckHealth(ctx context.Context) []health.ComponentHealth {
	if o.checker == nil {
		return nil
	}
	return o.checker.Check(ctx)
}

// GetStatus returns a snapshot of orchestrator and per-queue state.
func (o *Orchestrator) GetStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		State:        o.state,
		ShuttingDown: o.state == StateStopping,
		WorkerID:     o.cfg.WorkerID,
		StartedAt:    o.startedAt,
		Queues:       make([]QueueStatus, 0, len(o.pollers)),
	}
	for _, p := range o.pollers {
		st.Queues = append(st.Queues, QueueStatus{
			Queue:       p.cfg.Queue,
			Concurrency: p.cfg.Concurrency,
			ActiveJobs:  p.ActiveJobCount(),
		})
	}
	return st
}

// ActiveJobCount sums in-flight executions across every queue.
func (o *Orchestrator) ActiveJobCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := 0
	for _, p := range o.pollers {
		total += p.ActiveJobCount()
	}
	return total
}

// janitorLoop periodically requeues jobs abandoned by crashed workers.
func (o *Orchestrator) janitorLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := o.store.ResetStuckJobs(ctx, o.cfg.StuckJobWindow)
			if err != nil {
				if ctx.Err() == nil {
					o.log.Error().Err(err).Msg("stuck job reset failed")
				}
				continue
			}
			if n > 0 {
				metrics.StuckJobsResetTotal.Add(float64(n))
				o.log.Warn().Int64("count", n).Msg("stuck jobs requeued")
			}
		}
	}
}

// depthLoop keeps the per-queue pending-depth gauges current.
func (o *Orchestrator) depthLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(depthReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depths, err := o.store.QueueDepths(ctx)
			if err != nil {
				continue
			}
			for _, qc := range o.cfg.Queues {
				metrics.QueueDepth.WithLabelValues(string(qc.Queue)).Set(float64(depths[qc.Queue]))
			}
		}
	}
}
