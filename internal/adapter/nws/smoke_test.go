//go:build smoke

package nws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/couchcryptid/hazard-advisory-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// These tests hit the real api.weather.gov endpoint.
// Run with: go test -tags=smoke ./internal/adapter/nws/ -v -count=1

func smokeClient() *Client {
	return &Client{
		userAgent:  "hazard-advisory-service smoke test",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    "https://api.weather.gov",
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSmoke_FetchHazards(t *testing.T) {
	c := smokeClient()

	hazards := c.FetchHazards(context.Background(), 39.7456, -97.0892)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.HazardFetches.WithLabelValues("success")),
		"the live feed should answer; any active alerts are fine")
	for _, h := range hazards {
		assert.NotEmpty(t, h.EventName)
		assert.NotEmpty(t, h.HazardType)
	}
}

func TestSmoke_PointOutsideCoverage(t *testing.T) {
	c := smokeClient()

	// Mid-Atlantic ocean: the feed rejects the point and the client degrades.
	hazards := c.FetchHazards(context.Background(), 30.0, -40.0)

	assert.Empty(t, hazards)
}
