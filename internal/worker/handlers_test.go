package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framekeep/framekeep/internal/asset"
	"github.com/framekeep/framekeep/internal/jobqueue"
)

func TestExtractMetadataHandler(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedImageAsset(t, 640, 480, asset.StatusUploaded)

	handler := ExtractMetadataHandler(env.deps)
	result, err := handler(testExecContext(jobFor(a, jobqueue.JobTypeExtractMetadata, nil)))
	require.NoError(t, err)

	var meta struct {
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Format string `json:"format"`
	}
	require.NoError(t, json.Unmarshal(result, &meta))
	assert.Equal(t, 640, meta.Width)
	assert.Equal(t, 480, meta.Height)
	assert.Equal(t, "jpeg", meta.Format)

	updated, err := env.assets.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusMetadataExtracted, updated.Status)
	require.NotNil(t, updated.Width)
	assert.EqualValues(t, 640, *updated.Width)
	require.NotNil(t, updated.Height)
	assert.EqualValues(t, 480, *updated.Height)
}

func TestExtractMetadataMissingAssetIsPermanent(t *testing.T) {
	env := newTestEnv(t)
	job := &jobqueue.Job{ID: uuid.New(), AssetID: uuid.New(), Type: jobqueue.JobTypeExtractMetadata}

	_, err := ExtractMetadataHandler(env.deps)(testExecContext(job))
	require.Error(t, err)
	assert.True(t, jobqueue.IsPermanent(err), "missing assets never appear on retry")
}

func TestExtractMetadataCorruptSourceIsPermanent(t *testing.T) {
	env := newTestEnv(t)
	garbage := []byte("not an image at all")
	require.NoError(t, env.blobs.PutObject(context.Background(),
		"media", "originals/bad.bin", bytes.NewReader(garbage), "image/jpeg", int64(len(garbage))))
	a := &asset.Asset{
		ID:            uuid.New(),
		StorageBucket: "media",
		StorageKey:    "originals/bad.bin",
		ContentType:   "image/jpeg",
		Status:        asset.StatusUploaded,
	}
	env.assets.Put(a)

	_, err := ExtractMetadataHandler(env.deps)(testExecContext(jobFor(a, jobqueue.JobTypeExtractMetadata, nil)))
	require.Error(t, err)
	assert.True(t, jobqueue.IsPermanent(err))
}

func TestThumbnailAndPreviewCoordinateStatus(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedImageAsset(t, 1200, 800, asset.StatusMetadataExtracted)

	thumbResult, err := GenerateThumbnailHandler(env.deps)(
		testExecContext(jobFor(a, jobqueue.JobTypeGenerateThumbnail, []byte(`{}`))))
	require.NoError(t, err)

	var thumb DerivativeResult
	require.NoError(t, json.Unmarshal(thumbResult, &thumb))
	assert.Equal(t, "derivatives/"+a.ID.String()+"/thumb.jpg", thumb.StorageKey)
	assert.Equal(t, thumb.Width, thumb.Height, "thumbnail is square")

	data, ok := env.blobs.ObjectBytes("derivatives", thumb.StorageKey)
	require.True(t, ok, "derivative must be uploaded")
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 320, cfg.Height)

	// Only one derivative so far: the asset must not advance yet.
	mid, err := env.assets.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusMetadataExtracted, mid.Status)
	require.NotNil(t, mid.ThumbnailKey)

	previewResult, err := GeneratePreviewHandler(env.deps)(
		testExecContext(jobFor(a, jobqueue.JobTypeGeneratePreview, []byte(`{}`))))
	require.NoError(t, err)

	var preview DerivativeResult
	require.NoError(t, json.Unmarshal(previewResult, &preview))
	assert.LessOrEqual(t, preview.Width, 1600)
	assert.LessOrEqual(t, preview.Height, 1600)

	final, err := env.assets.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusDerivativesReady, final.Status, "second derivative advances the asset")
	require.NotNil(t, final.PreviewKey)
}

func TestVideoFrameSeekTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		probeOK  bool
		want     float64
	}{
		{"long video capped at one second", 20, true, 1},
		{"ten minute video capped at one second", 600, true, 1},
		{"short video seeks ten percent in", 5, true, 0.5},
		{"sub-second video seeks ten percent in", 0.5, true, 0.05},
		{"unknown duration falls back to start", 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			extractor := &mockFrameExtractor{t: t, duration: tt.duration, probeOK: tt.probeOK}
			env.deps.Video = extractor

			a := env.seedImageAsset(t, 64, 64, asset.StatusMetadataExtracted)
			ec := testExecContext(jobFor(a, jobqueue.JobTypeGenerateThumbnail, nil))

			frame, release, err := videoFrame(ec, env.deps, bytes.NewReader([]byte("container bytes")))
			require.NoError(t, err)
			defer release()
			require.NotNil(t, frame)

			require.Len(t, extractor.extractedAt, 1)
			assert.InDelta(t, tt.want, extractor.extractedAt[0], 1e-9)
		})
	}
}

func TestReverseGeocodeHandler(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedImageAsset(t, 100, 100, asset.StatusDerivativesReady)
	lat, lng := 52.37, 4.89
	require.NoError(t, env.assets.ApplyMetadata(context.Background(), a.ID,
		asset.MetadataUpdate{Latitude: &lat, Longitude: &lng}))

	result, err := ReverseGeocodeHandler(env.deps)(
		testExecContext(jobFor(a, jobqueue.JobTypeReverseGeocode, nil)))
	require.NoError(t, err)

	var geo GeocodeResult
	require.NoError(t, json.Unmarshal(result, &geo))
	assert.Equal(t, "Amsterdam, Netherlands", geo.Place)
	assert.Equal(t, 1, env.geo.calls)

	updated, err := env.assets.Get(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.Place)
	assert.Equal(t, "Amsterdam, Netherlands", *updated.Place)
}

func TestReverseGeocodeWithoutCoordinatesIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedImageAsset(t, 100, 100, asset.StatusDerivativesReady)

	result, err := ReverseGeocodeHandler(env.deps)(
		testExecContext(jobFor(a, jobqueue.JobTypeReverseGeocode, nil)))
	require.NoError(t, err)

	var geo GeocodeResult
	require.NoError(t, json.Unmarshal(result, &geo))
	assert.True(t, geo.Skipped)
	assert.Zero(t, env.geo.calls)
}

func TestEnrichmentHandlersAdvanceWhenComplete(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedImageAsset(t, 100, 100, asset.StatusDerivativesReady)
	// No GPS: geocode is not required for the enriched transition.

	_, err := DetectFacesHandler(env.deps)(
		testExecContext(jobFor(a, jobqueue.JobTypeDetectFaces, nil)))
	require.NoError(t, err)

	mid, err := env.assets.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusDerivativesReady, mid.Status, "faces alone do not complete enrichment")
	require.NotNil(t, mid.FaceCount)
	assert.EqualValues(t, 2, *mid.FaceCount)

	result, err := DetectObjectsHandler(env.deps)(
		testExecContext(jobFor(a, jobqueue.JobTypeDetectObjects, []byte(`{}`))))
	require.NoError(t, err)

	var objects ObjectsResult
	require.NoError(t, json.Unmarshal(result, &objects))
	assert.Equal(t, []string{"dog", "beach"}, objects.Labels)

	final, err := env.assets.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusEnriched, final.Status)
	assert.Equal(t, []string{"dog", "beach"}, final.Labels)
}

func TestIndexSearchHandler(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedImageAsset(t, 100, 100, asset.StatusEnriched)
	place := "Lisbon, Portugal"
	count := int32(1)
	require.NoError(t, env.assets.SetPlace(context.Background(), a.ID, place))
	require.NoError(t, env.assets.SetFaceCount(context.Background(), a.ID, count))
	require.NoError(t, env.assets.SetLabels(context.Background(), a.ID, []string{"tram"}))

	result, err := IndexSearchHandler(env.deps)(
		testExecContext(jobFor(a, jobqueue.JobTypeIndexSearch, nil)))
	require.NoError(t, err)

	var idx IndexResult
	require.NoError(t, json.Unmarshal(result, &idx))
	assert.Equal(t, 3, idx.Terms, "lisbon, portugal, tram")

	require.Len(t, env.indexer.docs, 1)
	doc := env.indexer.docs[0]
	assert.Equal(t, a.ID.String(), doc.AssetID)
	assert.Equal(t, place, doc.Place)

	final, err := env.assets.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusReady, final.Status)
}

func TestPlannerChainsFollowUps(t *testing.T) {
	env := newTestEnv(t)
	store := fastStore()
	guard := newMockGuard()
	env.deps.Planner = NewPlanner(store, guard)

	a := env.seedImageAsset(t, 640, 480, asset.StatusUploaded)
	_, err := ExtractMetadataHandler(env.deps)(
		testExecContext(jobFor(a, jobqueue.JobTypeExtractMetadata, nil)))
	require.NoError(t, err)

	jobs, err := store.ListJobs(context.Background(), jobqueue.ListFilter{AssetID: a.ID})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	types := map[jobqueue.JobType]bool{}
	for _, j := range jobs {
		types[j.Type] = true
		assert.Equal(t, jobqueue.QueueDefault, j.Queue)
	}
	assert.True(t, types[jobqueue.JobTypeGenerateThumbnail])
	assert.True(t, types[jobqueue.JobTypeGeneratePreview])

	// A second completion of the same stage must not double-enqueue.
	_, err = ExtractMetadataHandler(env.deps)(
		testExecContext(jobFor(a, jobqueue.JobTypeExtractMetadata, nil)))
	require.NoError(t, err)
	jobs, err = store.ListJobs(context.Background(), jobqueue.ListFilter{AssetID: a.ID})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}
