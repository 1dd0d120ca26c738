// Package nws reads active weather alerts from the National Weather Service.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
	"github.com/couchcryptid/hazard-advisory-service/internal/observability"
)

// Client implements pipeline.HazardSource over the NWS active-alerts endpoint.
type Client struct {
	userAgent  string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an NWS alerts client. The API rejects requests without a
// User-Agent identifying the caller.
func NewClient(baseURL, userAgent string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchHazards returns the alerts active at the point, in feed order. Any
// failure is logged and yields no hazards.
func (c *Client) FetchHazards(ctx context.Context, lat, lon float64) []domain.Hazard {
	start := time.Now()
	hazards, err := c.fetch(ctx, lat, lon)
	c.metrics.HazardFetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.HazardFetches.WithLabelValues("error").Inc()
		c.logger.Warn("hazard fetch failed, assuming no hazards",
			"lat", lat,
			"lon", lon,
			"error", err,
		)
		return []domain.Hazard{}
	}

	c.metrics.HazardFetches.WithLabelValues("success").Inc()
	c.logger.Debug("hazards fetched", "lat", lat, "lon", lon, "count", len(hazards))
	return hazards
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) ([]domain.Hazard, error) {
	u := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", c.baseURL, lat, lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alerts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("nws API error: status %d: %s", resp.StatusCode, body)
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	hazards := make([]domain.Hazard, 0, len(fc.Features))
	for _, f := range fc.Features {
		hazards = append(hazards, domain.NormalizeAlert(f.Properties))
	}
	return hazards, nil
}

// NWS GeoJSON response types.

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties domain.AlertProperties `json:"properties"`
}
