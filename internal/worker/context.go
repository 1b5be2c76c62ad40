package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/framekeep/framekeep/internal/jobqueue"
)

// ExecContext is the per-execution context handed to handlers. It embeds the
// job-scoped context.Context (deadline applied, logger and trace attached) so
// handlers pass it straight into blocking calls.
type ExecContext struct {
	context.Context
	Job *jobqueue.Job

	cancel   context.CancelFunc
	started  time.Time
	released atomic.Bool
}

func newExecContext(ctx context.Context, cancel context.CancelFunc, j *jobqueue.Job) *ExecContext {
	return &ExecContext{
		Context: ctx,
		Job:     j,
		cancel:  cancel,
		started: time.Now(),
	}
}

// Elapsed returns how long the execution has been running.
func (ec *ExecContext) Elapsed() time.Duration {
	return time.Since(ec.started)
}

// abort cancels the execution and marks its row as released, so the finishing
// goroutine does not also report an outcome for it.
func (ec *ExecContext) abort() {
	ec.released.Store(true)
	ec.cancel()
}

func (ec *ExecContext) wasReleased() bool {
	return ec.released.Load()
}
