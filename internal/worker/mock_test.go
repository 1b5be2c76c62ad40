package worker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/framekeep/framekeep/internal/asset"
	"github.com/framekeep/framekeep/internal/jobqueue"
	"github.com/framekeep/framekeep/internal/processor"
	imageproc "github.com/framekeep/framekeep/internal/processor/image"
	"github.com/framekeep/framekeep/internal/search"
	"github.com/framekeep/framekeep/internal/storage"
)

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(255 * x / width), G: uint8(255 * y / height), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}))
	return buf.Bytes()
}

type mockGeocoder struct {
	mu    sync.Mutex
	place string
	err   error
	calls int
}

func (m *mockGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.place, m.err
}

type mockVision struct {
	mu     sync.Mutex
	faces  int
	labels []string
	err    error
}

func (m *mockVision) DetectFaces(ctx context.Context, img io.Reader, contentType string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.faces, m.err
}

func (m *mockVision) DetectObjects(ctx context.Context, img io.Reader, contentType string, minConfidence float64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.labels, m.err
}

type mockIndexer struct {
	mu   sync.Mutex
	docs []search.Document
	err  error
}

func (m *mockIndexer) Index(ctx context.Context, doc search.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.docs = append(m.docs, doc)
	return nil
}

type mockFrameExtractor struct {
	t        *testing.T
	duration float64
	probeOK  bool

	mu          sync.Mutex
	extractedAt []float64
}

func (m *mockFrameExtractor) IsAvailable() bool { return true }

func (m *mockFrameExtractor) WriteSource(input io.Reader) (string, func(), error) {
	m.t.Helper()
	f, err := os.CreateTemp(m.t.TempDir(), "src-*")
	require.NoError(m.t, err)
	_, err = io.Copy(f, input)
	require.NoError(m.t, err)
	require.NoError(m.t, f.Close())
	return f.Name(), func() { _ = os.Remove(f.Name()) }, nil
}

func (m *mockFrameExtractor) GetDuration(ctx context.Context, path string) (float64, bool) {
	return m.duration, m.probeOK
}

func (m *mockFrameExtractor) ExtractFrame(ctx context.Context, path string, timestamp float64) (string, error) {
	m.mu.Lock()
	m.extractedAt = append(m.extractedAt, timestamp)
	m.mu.Unlock()

	frame := filepath.Join(m.t.TempDir(), "frame.jpg")
	if err := os.WriteFile(frame, testJPEG(m.t, 64, 64), 0o644); err != nil {
		return "", err
	}
	return frame, nil
}

type mockGuard struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newMockGuard() *mockGuard {
	return &mockGuard{claimed: make(map[string]bool)}
}

func (g *mockGuard) TryClaim(ctx context.Context, assetID uuid.UUID, jobType jobqueue.JobType) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := assetID.String() + ":" + string(jobType)
	if g.claimed[key] {
		return false
	}
	g.claimed[key] = true
	return true
}

type testEnv struct {
	deps    *Dependencies
	assets  *asset.MemoryRepo
	blobs   *storage.MemoryStorage
	geo     *mockGeocoder
	vision  *mockVision
	indexer *mockIndexer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	registry := processor.NewRegistry()
	cfg := processor.DefaultConfig()
	registry.Register("thumbnail", imageproc.NewThumbnailProcessor(cfg))
	registry.Register("preview", imageproc.NewPreviewProcessor(cfg))
	registry.Register("metadata", imageproc.NewMetadataProcessor(cfg))

	env := &testEnv{
		assets:  asset.NewMemoryRepo(),
		blobs:   storage.NewMemoryStorage(),
		geo:     &mockGeocoder{place: "Amsterdam, Netherlands"},
		vision:  &mockVision{faces: 2, labels: []string{"dog", "beach"}},
		indexer: &mockIndexer{},
	}
	env.deps = &Dependencies{
		Assets:           env.assets,
		Storage:          env.blobs,
		Registry:         registry,
		Geocoder:         env.geo,
		Vision:           env.vision,
		Indexer:          env.indexer,
		DerivativeBucket: "derivatives",
		MinConfidence:    0.5,
	}
	return env
}

// seedImageAsset uploads a gradient JPEG and registers the matching asset row.
func (env *testEnv) seedImageAsset(t *testing.T, width, height int, status asset.Status) *asset.Asset {
	t.Helper()
	data := testJPEG(t, width, height)
	require.NoError(t, env.blobs.PutObject(context.Background(),
		"media", "originals/a.jpg", bytes.NewReader(data), "image/jpeg", int64(len(data))))

	a := &asset.Asset{
		ID:            uuid.New(),
		StorageBucket: "media",
		StorageKey:    "originals/a.jpg",
		ContentType:   "image/jpeg",
		SizeBytes:     int64(len(data)),
		Status:        status,
	}
	env.assets.Put(a)
	return a
}

func testExecContext(j *jobqueue.Job) *ExecContext {
	ctx, cancel := context.WithCancel(context.Background())
	return newExecContext(ctx, cancel, j)
}

func jobFor(a *asset.Asset, t jobqueue.JobType, payload []byte) *jobqueue.Job {
	return &jobqueue.Job{
		ID:      uuid.New(),
		AssetID: a.ID,
		Type:    t,
		Queue:   jobqueue.QueueDefault,
		Payload: payload,
	}
}

func testRouter() *Router {
	return NewRouter(zerolog.Nop())
}
