package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/framekeep/framekeep/internal/metrics"
)

// VisionClient calls the inference service for face detection and object
// labeling. Requests carry the raw image; the service is stateless.
type VisionClient struct {
	baseURL string
	client  *http.Client
}

func NewVisionClient(baseURL string, timeout time.Duration) *VisionClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VisionClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type facesResponse struct {
	Count int `json:"count"`
}

// Label is one detected object with the model's confidence.
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type labelsResponse struct {
	Labels []Label `json:"labels"`
}

// DetectFaces returns the number of faces found in the image.
func (c *VisionClient) DetectFaces(ctx context.Context, image io.Reader, contentType string) (int, error) {
	var body facesResponse
	if err := c.post(ctx, "/v1/faces", image, contentType, &body); err != nil {
		metrics.EnrichmentCallsTotal.WithLabelValues("faces", "error").Inc()
		return 0, err
	}
	metrics.EnrichmentCallsTotal.WithLabelValues("faces", "success").Inc()
	return body.Count, nil
}

// DetectObjects returns labels at or above minConfidence, best first.
func (c *VisionClient) DetectObjects(ctx context.Context, image io.Reader, contentType string, minConfidence float64) ([]string, error) {
	var body labelsResponse
	if err := c.post(ctx, "/v1/objects", image, contentType, &body); err != nil {
		metrics.EnrichmentCallsTotal.WithLabelValues("objects", "error").Inc()
		return nil, err
	}
	metrics.EnrichmentCallsTotal.WithLabelValues("objects", "success").Inc()

	names := make([]string, 0, len(body.Labels))
	for _, l := range body.Labels {
		if l.Confidence >= minConfidence {
			names = append(names, l.Name)
		}
	}
	return names, nil
}

func (c *VisionClient) post(ctx context.Context, path string, image io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, image)
	if err != nil {
		return fmt.Errorf("build vision request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("vision call %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("vision call %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode vision response: %w", err)
	}
	return nil
}
