package worker

// ThumbnailPayload selects the square size and JPEG quality of the thumbnail
// derivative. Zero values fall back to processor defaults.
type ThumbnailPayload struct {
	Size    int `json:"size"`
	Quality int `json:"quality"`
}

// PreviewPayload bounds the preview derivative. Zero values fall back to
// processor defaults.
type PreviewPayload struct {
	MaxDimension int `json:"max_dimension"`
	Quality      int `json:"quality"`
}

// DetectObjectsPayload tunes label filtering for one job.
type DetectObjectsPayload struct {
	MinConfidence float64 `json:"min_confidence"`
}

// DerivativeResult is the stored outcome of thumbnail and preview jobs.
type DerivativeResult struct {
	StorageKey string `json:"storage_key"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SizeBytes  int64  `json:"size_bytes"`
}

// GeocodeResult is the stored outcome of reverse_geocode jobs.
type GeocodeResult struct {
	Place   string `json:"place,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// FacesResult is the stored outcome of detect_faces jobs.
type FacesResult struct {
	FaceCount int `json:"face_count"`
}

// ObjectsResult is the stored outcome of detect_objects jobs.
type ObjectsResult struct {
	Labels []string `json:"labels"`
}

// IndexResult is the stored outcome of index_search jobs.
type IndexResult struct {
	Terms int `json:"terms"`
}
