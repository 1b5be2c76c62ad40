package processor

import (
	"context"
	"io"
	"sync"
	"testing"
)

// mockProcessor is a test implementation of Processor.
type mockProcessor struct {
	name           string
	supportedTypes []string
}

func newMockProcessor(name string, types ...string) *mockProcessor {
	return &mockProcessor{
		name:           name,
		supportedTypes: types,
	}
}

func (m *mockProcessor) Name() string             { return m.name }
func (m *mockProcessor) SupportedTypes() []string { return m.supportedTypes }
func (m *mockProcessor) Process(ctx context.Context, opts *Options, input io.Reader) (*Result, error) {
	return &Result{}, nil
}

// TestRegistry_Register tests processor registration.
func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name       string
		processors []*mockProcessor
		wantCount  int
	}{
		{
			name: "register single processor",
			processors: []*mockProcessor{
				newMockProcessor("thumbnail", "image/jpeg"),
			},
			wantCount: 1,
		},
		{
			name: "register multiple processors",
			processors: []*mockProcessor{
				newMockProcessor("thumbnail", "image/jpeg"),
				newMockProcessor("preview", "image/jpeg", "image/png"),
			},
			wantCount: 2,
		},
		{
			name: "register overwrites existing",
			processors: []*mockProcessor{
				newMockProcessor("thumbnail", "image/jpeg"),
				newMockProcessor("thumbnail", "image/png"),
			},
			wantCount: 1,
		},
		{
			name:       "empty registry",
			processors: []*mockProcessor{},
			wantCount:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()

			for _, p := range tt.processors {
				r.Register(p.name, p)
			}

			if got := len(r.List()); got != tt.wantCount {
				t.Errorf("List() returned %d processors, want %d", got, tt.wantCount)
			}
		})
	}
}

// TestRegistry_Get tests processor retrieval by name.
func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register("thumbnail", newMockProcessor("thumbnail", "image/jpeg"))

	p, ok := r.Get("thumbnail")
	if !ok {
		t.Fatal("Get() = false for registered processor")
	}
	if p.Name() != "thumbnail" {
		t.Errorf("Get() returned %q, want %q", p.Name(), "thumbnail")
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Get() = true for unregistered processor")
	}
}

// TestRegistry_GetOrError tests the error-returning lookup.
func TestRegistry_GetOrError(t *testing.T) {
	r := NewRegistry()
	r.Register("metadata", newMockProcessor("metadata", "image/jpeg"))

	if _, err := r.GetOrError("metadata"); err != nil {
		t.Errorf("GetOrError() error = %v for registered processor", err)
	}
	if _, err := r.GetOrError("missing"); err == nil {
		t.Error("GetOrError() error = nil for unregistered processor")
	}
}

// TestRegistry_GetForContentType tests lookup by supported content type.
func TestRegistry_GetForContentType(t *testing.T) {
	r := NewRegistry()
	r.Register("thumbnail", newMockProcessor("thumbnail", "image/jpeg", "image/png"))
	r.Register("preview", newMockProcessor("preview", "image/jpeg"))

	if got := len(r.GetForContentType("image/jpeg")); got != 2 {
		t.Errorf("GetForContentType(image/jpeg) returned %d processors, want 2", got)
	}
	if got := len(r.GetForContentType("image/png")); got != 1 {
		t.Errorf("GetForContentType(image/png) returned %d processors, want 1", got)
	}
	if got := len(r.GetForContentType("video/mp4")); got != 0 {
		t.Errorf("GetForContentType(video/mp4) returned %d processors, want 0", got)
	}
}

// TestRegistry_Concurrent tests that concurrent access does not race.
func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("thumbnail", newMockProcessor("thumbnail", "image/jpeg"))
		}()
		go func() {
			defer wg.Done()
			r.Get("thumbnail")
			r.List()
			r.GetForContentType("image/jpeg")
		}()
	}
	wg.Wait()
}
