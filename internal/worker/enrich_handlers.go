package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/framekeep/framekeep/internal/asset"
	"github.com/framekeep/framekeep/internal/enrich"
	"github.com/framekeep/framekeep/internal/jobqueue"
	"github.com/framekeep/framekeep/internal/logger"
	"github.com/framekeep/framekeep/internal/search"
)

// ReverseGeocodeHandler resolves the asset's GPS coordinates to a place name.
// Assets without coordinates complete as a no-op.
func ReverseGeocodeHandler(deps *Dependencies) Handler {
	return func(ec *ExecContext) (json.RawMessage, error) {
		log := logger.FromContext(ec)
		a, err := loadAsset(ec, deps)
		if err != nil {
			return nil, err
		}

		if a.Latitude == nil || a.Longitude == nil {
			log.Info("asset has no coordinates, skipping geocode")
			if err := maybeAdvanceEnriched(ec, deps, a.ID); err != nil {
				return nil, err
			}
			return marshalResult(GeocodeResult{Skipped: true})
		}

		place, err := deps.Geocoder.ReverseGeocode(ec, *a.Latitude, *a.Longitude)
		if err != nil && !errors.Is(err, enrich.ErrNoResult) {
			return nil, fmt.Errorf("reverse geocode: %w", err)
		}

		// ErrNoResult still records an empty place so the enrichment stage
		// can complete; coordinates over open water resolve to nothing.
		if err := deps.Assets.SetPlace(ec, a.ID, place); err != nil {
			return nil, fmt.Errorf("record place: %w", err)
		}
		if err := maybeAdvanceEnriched(ec, deps, a.ID); err != nil {
			return nil, err
		}
		return marshalResult(GeocodeResult{Place: place})
	}
}

// DetectFacesHandler counts faces in the asset's thumbnail-sized derivative
// and records the count.
func DetectFacesHandler(deps *Dependencies) Handler {
	return func(ec *ExecContext) (json.RawMessage, error) {
		log := logger.FromContext(ec)
		a, err := loadAsset(ec, deps)
		if err != nil {
			return nil, err
		}

		reader, key, err := openInferenceSource(ec, deps, a)
		if err != nil {
			return nil, err
		}
		defer closeSafely(log, reader, "inference source")

		count, err := deps.Vision.DetectFaces(ec, reader, "image/jpeg")
		if err != nil {
			return nil, fmt.Errorf("detect faces on %s: %w", key, err)
		}

		if err := deps.Assets.SetFaceCount(ec, a.ID, int32(count)); err != nil {
			return nil, fmt.Errorf("record face count: %w", err)
		}
		if err := maybeAdvanceEnriched(ec, deps, a.ID); err != nil {
			return nil, err
		}
		return marshalResult(FacesResult{FaceCount: count})
	}
}

// DetectObjectsHandler labels the asset's content and records the labels.
func DetectObjectsHandler(deps *Dependencies) Handler {
	return func(ec *ExecContext) (json.RawMessage, error) {
		log := logger.FromContext(ec)
		var payload DetectObjectsPayload
		if err := ec.Job.UnmarshalPayload(&payload); err != nil {
			return nil, jobqueue.Permanent(fmt.Errorf("invalid payload: %w", err))
		}
		minConfidence := payload.MinConfidence
		if minConfidence <= 0 {
			minConfidence = deps.MinConfidence
		}

		a, err := loadAsset(ec, deps)
		if err != nil {
			return nil, err
		}

		reader, key, err := openInferenceSource(ec, deps, a)
		if err != nil {
			return nil, err
		}
		defer closeSafely(log, reader, "inference source")

		labels, err := deps.Vision.DetectObjects(ec, reader, "image/jpeg", minConfidence)
		if err != nil {
			return nil, fmt.Errorf("detect objects on %s: %w", key, err)
		}
		if labels == nil {
			labels = []string{}
		}

		if err := deps.Assets.SetLabels(ec, a.ID, labels); err != nil {
			return nil, fmt.Errorf("record labels: %w", err)
		}
		if err := maybeAdvanceEnriched(ec, deps, a.ID); err != nil {
			return nil, err
		}
		return marshalResult(ObjectsResult{Labels: labels})
	}
}

// IndexSearchHandler writes the asset's search document and moves it to its
// terminal ready state.
func IndexSearchHandler(deps *Dependencies) Handler {
	return func(ec *ExecContext) (json.RawMessage, error) {
		a, err := loadAsset(ec, deps)
		if err != nil {
			return nil, err
		}

		doc := search.BuildDocument(a)
		if err := deps.Indexer.Index(ec, doc); err != nil {
			return nil, fmt.Errorf("index asset: %w", err)
		}

		if err := deps.Assets.AdvanceStatus(ec, a.ID, asset.StatusEnriched, asset.StatusIndexed); err != nil {
			return nil, fmt.Errorf("advance to indexed: %w", err)
		}
		if err := deps.Assets.AdvanceStatus(ec, a.ID, asset.StatusIndexed, asset.StatusReady); err != nil {
			return nil, fmt.Errorf("advance to ready: %w", err)
		}

		terms := search.Tokenize(doc.Place)
		for _, l := range doc.Labels {
			terms = append(terms, search.Tokenize(l)...)
		}
		return marshalResult(IndexResult{Terms: len(terms)})
	}
}

// openInferenceSource prefers the preview derivative over the original:
// inference services cap payload sizes and a bounded JPEG is always valid
// input, videos included.
func openInferenceSource(ec *ExecContext, deps *Dependencies, a *asset.Asset) (io.ReadCloser, string, error) {
	if a.PreviewKey != nil {
		r, err := deps.Storage.GetObject(ec, deps.DerivativeBucket, *a.PreviewKey)
		if err != nil {
			return nil, "", fmt.Errorf("download preview %s: %w", *a.PreviewKey, err)
		}
		return r, *a.PreviewKey, nil
	}
	r, err := deps.Storage.GetObject(ec, a.StorageBucket, a.StorageKey)
	if err != nil {
		return nil, "", fmt.Errorf("download original %s: %w", a.StorageKey, err)
	}
	return r, a.StorageKey, nil
}

// maybeAdvanceEnriched moves the asset forward once all enrichment outputs
// are present; whichever enrichment job lands last performs the transition.
func maybeAdvanceEnriched(ec *ExecContext, deps *Dependencies, id uuid.UUID) error {
	current, err := deps.Assets.Get(ec, id)
	if err != nil {
		return fmt.Errorf("reload asset: %w", err)
	}
	if !current.HasEnrichments() {
		return nil
	}
	if err := deps.Assets.AdvanceStatus(ec, id, asset.StatusDerivativesReady, asset.StatusEnriched); err != nil {
		return fmt.Errorf("advance to enriched: %w", err)
	}
	if deps.Planner != nil {
		deps.Planner.PlanAfter(ec, current, ec.Job.Type)
	}
	return nil
}
