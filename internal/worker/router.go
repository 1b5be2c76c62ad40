package worker

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/framekeep/framekeep/internal/jobqueue"
)

// Handler executes one job type. The returned payload is stored as the job
// result on completion.
type Handler func(ec *ExecContext) (json.RawMessage, error)

// Router maps job types to handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[jobqueue.JobType]Handler
	log      zerolog.Logger
}

func NewRouter(log zerolog.Logger) *Router {
	return &Router{
		handlers: make(map[jobqueue.JobType]Handler),
		log:      log,
	}
}

// Register binds a handler to a job type. Re-registering replaces the previous
// handler with a warning.
func (r *Router) Register(t jobqueue.JobType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		r.log.Warn().Str("job_type", string(t)).Msg("handler overwritten")
	}
	r.handlers[t] = h
}

// Route dispatches the execution to its handler. An unregistered type is a
// permanent failure; retrying cannot make a handler appear.
func (r *Router) Route(ec *ExecContext) (json.RawMessage, error) {
	r.mu.RLock()
	h, ok := r.handlers[ec.Job.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, jobqueue.Permanent(fmt.Errorf("no handler registered for job type %q", ec.Job.Type))
	}

	log := r.log.With().
		Str("job_id", ec.Job.ID.String()).
		Str("job_type", string(ec.Job.Type)).
		Logger()
	log.Debug().Msg("dispatching handler")
	result, err := h(ec)
	if err != nil {
		log.Debug().Err(err).Msg("handler returned error")
		return nil, err
	}
	log.Debug().Msg("handler done")
	return result, nil
}

func (r *Router) Has(t jobqueue.JobType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[t]
	return ok
}

func (r *Router) Types() []jobqueue.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]jobqueue.JobType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
