package health

import (
	"context"
	"sync"
	"time"
)

// Probe checks one dependency. Implementations must respect ctx.
type Probe func(ctx context.Context) error

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// ComponentHealth is the outcome of a single dependency probe.
type ComponentHealth struct {
	Name    string        `json:"name"`
	Status  string        `json:"status"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// Checker probes a fixed set of dependencies in parallel.
type Checker struct {
	mu      sync.Mutex
	probes  map[string]Probe
	timeout time.Duration
}

func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		probes:  make(map[string]Probe),
		timeout: timeout,
	}
}

func (c *Checker) Register(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
}

// Check runs every probe concurrently and returns one result per component.
func (c *Checker) Check(ctx context.Context) []ComponentHealth {
	c.mu.Lock()
	probes := make(map[string]Probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	c.mu.Unlock()

	results := make([]ComponentHealth, 0, len(probes))
	var wg sync.WaitGroup
	var resMu sync.Mutex

	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe Probe) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := time.Now()
			err := probe(probeCtx)
			ch := ComponentHealth{
				Name:    name,
				Status:  StatusHealthy,
				Latency: time.Since(start),
			}
			if err != nil {
				ch.Status = StatusUnhealthy
				ch.Error = err.Error()
			}

			resMu.Lock()
			results = append(results, ch)
			resMu.Unlock()
		}(name, probe)
	}
	wg.Wait()
	return results
}

// Healthy reports whether every component in results is healthy.
func Healthy(results []ComponentHealth) bool {
	for _, r := range results {
		if r.Status != StatusHealthy {
			return false
		}
	}
	return true
}
