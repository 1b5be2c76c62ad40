package asset

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("asset: not found")
	ErrRegression = errors.New("asset: pipeline status cannot move backwards")
)

// Status is the forward-only pipeline ladder an asset climbs as its
// derivatives and enrichments land. StatusError is a terminal side exit.
type Status string

const (
	StatusUploaded          Status = "uploaded"
	StatusMetadataExtracted Status = "metadata_extracted"
	StatusDerivativesReady  Status = "derivatives_ready"
	StatusEnriched          Status = "enriched"
	StatusIndexed           Status = "indexed"
	StatusReady             Status = "ready"
	StatusError             Status = "error"
)

var statusRank = map[Status]int{
	StatusUploaded:          0,
	StatusMetadataExtracted: 1,
	StatusDerivativesReady:  2,
	StatusEnriched:          3,
	StatusIndexed:           4,
	StatusReady:             5,
}

// CanAdvance reports whether moving from -> to goes strictly forward on the
// ladder. StatusError is reachable from anywhere and never left.
func CanAdvance(from, to Status) bool {
	if from == StatusError {
		return false
	}
	if to == StatusError {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Asset is the media record the handlers read and mutate. The worker never
// creates or deletes assets; that belongs to the upload pipeline.
type Asset struct {
	ID            uuid.UUID
	StorageBucket string
	StorageKey    string
	ContentType   string
	SizeBytes     int64

	Width    *int32
	Height   *int32
	Duration *float64
	Frames   *int32
	TakenAt  *time.Time

	Latitude  *float64
	Longitude *float64
	Place     *string
	FaceCount *int32
	Labels    []string

	ThumbnailKey *string
	PreviewKey   *string

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasDerivatives reports whether both derivative kinds the thumbnail/preview
// stage coordinates are present.
func (a *Asset) HasDerivatives() bool {
	return a.ThumbnailKey != nil && a.PreviewKey != nil
}

// HasEnrichments reports whether every enrichment output is present. Assets
// without GPS coordinates do not wait on a place name.
func (a *Asset) HasEnrichments() bool {
	if a.FaceCount == nil || a.Labels == nil {
		return false
	}
	if a.Latitude != nil && a.Longitude != nil && a.Place == nil {
		return false
	}
	return true
}

// MetadataUpdate carries the extract_metadata results onto the asset row.
// Nil fields are left untouched.
type MetadataUpdate struct {
	Width     *int32
	Height    *int32
	Duration  *float64
	Frames    *int32
	TakenAt   *time.Time
	Latitude  *float64
	Longitude *float64
}
