package processor

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps processor names to implementations and answers which
// processors accept a given content type. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	named map[string]Processor
}

func NewRegistry() *Registry {
	return &Registry{named: make(map[string]Processor)}
}

// Register adds a processor under name, replacing any previous entry.
func (r *Registry) Register(name string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.named[name] = p
}

func (r *Registry) Get(name string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.named[name]
	return p, ok
}

// GetOrError returns a processor by name, or an error if not found.
func (r *Registry) GetOrError(name string) (Processor, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("processor not registered: %s", name)
	}
	return p, nil
}

// GetForContentType returns every registered processor that supports the
// given content type, in name order.
func (r *Registry) GetForContentType(contentType string) []Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.named))
	for name, p := range r.named {
		for _, ct := range p.SupportedTypes() {
			if ct == contentType {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)

	out := make([]Processor, 0, len(names))
	for _, name := range names {
		out = append(out, r.named[name])
	}
	return out
}

// List returns the registered processor names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.named))
	for name := range r.named {
		names = append(names, name)
	}
	return names
}
