// Package osrm requests candidate driving routes from an OSRM server.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
	"github.com/couchcryptid/hazard-advisory-service/internal/observability"
)

// Client implements pipeline.RouteSource using the OSRM route service.
type Client struct {
	profile    string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an OSRM routing client for the given travel profile.
func NewClient(baseURL, profile string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		profile: profile,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchRoutes returns the candidate routes between two locations in feed
// order. Every failure wraps domain.ErrRouteNotFound.
func (c *Client) FetchRoutes(ctx context.Context, origin, destination domain.Location) ([]domain.Route, error) {
	routes, err := c.fetch(ctx, origin, destination)
	if err != nil {
		c.metrics.RouteRequests.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrRouteNotFound, err)
	}
	c.metrics.RouteRequests.WithLabelValues("success").Inc()
	c.logger.Debug("routes fetched", "count", len(routes))
	return routes, nil
}

func (c *Client) fetch(ctx context.Context, origin, destination domain.Location) ([]domain.Route, error) {
	// OSRM uses lon,lat order.
	u := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson&alternatives=true",
		c.baseURL, c.profile,
		origin.Longitude, origin.Latitude,
		destination.Longitude, destination.Latitude,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()

	// OSRM reports NoRoute and friends with a 400 and a JSON body, so decode
	// before checking the status.
	var or response
	decodeErr := json.NewDecoder(resp.Body).Decode(&or)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && or.Message != "" {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, or.Message)
		}
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	if or.Code != "Ok" {
		if or.Message != "" {
			return nil, fmt.Errorf("%s: %s", or.Code, or.Message)
		}
		return nil, fmt.Errorf("code %q", or.Code)
	}

	routes := make([]domain.Route, 0, len(or.Routes))
	for i, r := range or.Routes {
		if len(r.Geometry.Coordinates) < 2 {
			c.logger.Warn("dropping route with degenerate geometry", "index", i, "points", len(r.Geometry.Coordinates))
			continue
		}
		routes = append(routes, domain.Route{
			ID:              fmt.Sprintf("route-%d", i),
			Geometry:        r.Geometry.Coordinates,
			DistanceMeters:  r.Distance,
			DurationSeconds: r.Duration,
			CostWeight:      r.Weight,
		})
	}
	if len(routes) == 0 {
		return nil, errors.New("no usable routes")
	}
	return routes, nil
}

// OSRM API response types.

type response struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Routes  []route `json:"routes"`
}

type route struct {
	Geometry struct {
		Coordinates []domain.Point `json:"coordinates"` // [lon, lat] pairs
	} `json:"geometry"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Weight   float64 `json:"weight"`
}
