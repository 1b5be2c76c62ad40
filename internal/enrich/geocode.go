package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/framekeep/framekeep/internal/metrics"
)

var ErrNoResult = errors.New("enrich: no result")

// GeocodeClient resolves GPS coordinates to a human-readable place name
// against a Nominatim-compatible reverse geocoding endpoint.
type GeocodeClient struct {
	baseURL string
	client  *http.Client
}

func NewGeocodeClient(baseURL string, timeout time.Duration) *GeocodeClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GeocodeClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type geocodeResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

// ReverseGeocode returns a compact place name for the coordinates.
func (c *GeocodeClient) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	q.Set("format", "jsonv2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.EnrichmentCallsTotal.WithLabelValues("geocode", "error").Inc()
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.EnrichmentCallsTotal.WithLabelValues("geocode", "error").Inc()
		return "", fmt.Errorf("reverse geocode: unexpected status %d", resp.StatusCode)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.EnrichmentCallsTotal.WithLabelValues("geocode", "error").Inc()
		return "", fmt.Errorf("decode geocode response: %w", err)
	}
	metrics.EnrichmentCallsTotal.WithLabelValues("geocode", "success").Inc()

	place := compactPlace(body)
	if place == "" {
		return "", ErrNoResult
	}
	return place, nil
}

func compactPlace(r geocodeResponse) string {
	locality := r.Address.City
	if locality == "" {
		locality = r.Address.Town
	}
	if locality == "" {
		locality = r.Address.Village
	}
	switch {
	case locality != "" && r.Address.Country != "":
		return locality + ", " + r.Address.Country
	case r.Address.State != "" && r.Address.Country != "":
		return r.Address.State + ", " + r.Address.Country
	case r.Address.Country != "":
		return r.Address.Country
	default:
		return r.DisplayName
	}
}
