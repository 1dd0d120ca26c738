package zippopotam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
	"github.com/couchcryptid/hazard-advisory-service/internal/observability"
)

// Client implements location.PostalGeocoder using the Zippopotam.us API.
type Client struct {
	country    string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a postal-code geocoding client for one country.
func NewClient(baseURL, country string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		country: country,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// LookupPostalCode returns the coordinates of the first place registered for code.
// Unknown codes and malformed payloads yield domain.ErrInvalidCode.
func (c *Client) LookupPostalCode(ctx context.Context, code string) (domain.Location, error) {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.country), url.PathEscape(code))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Location{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.Location{}, fmt.Errorf("postal lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.metrics.GeocodeRequests.WithLabelValues("not_found").Inc()
		return domain.Location{}, fmt.Errorf("%w: %q not found", domain.ErrInvalidCode, code)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.Location{}, fmt.Errorf("zippopotam API error: status %d: %s", resp.StatusCode, body)
	}

	var zr response
	if err := json.NewDecoder(resp.Body).Decode(&zr); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("not_found").Inc()
		return domain.Location{}, fmt.Errorf("%w: decode response: %v", domain.ErrInvalidCode, err)
	}

	loc, err := zr.location(code)
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("not_found").Inc()
		return domain.Location{}, err
	}

	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	c.logger.Debug("postal code resolved", "code", code, "place", zr.Places[0].PlaceName)
	return loc, nil
}

// Zippopotam API response types. Coordinates arrive as strings.

type response struct {
	PostCode string  `json:"post code"`
	Places   []place `json:"places"`
}

type place struct {
	PlaceName string `json:"place name"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	State     string `json:"state abbreviation"`
}

func (r response) location(code string) (domain.Location, error) {
	if len(r.Places) == 0 {
		return domain.Location{}, fmt.Errorf("%w: no places for %q", domain.ErrInvalidCode, code)
	}
	p := r.Places[0]

	lat, err := strconv.ParseFloat(p.Latitude, 64)
	if err != nil {
		return domain.Location{}, fmt.Errorf("%w: latitude %q", domain.ErrInvalidCode, p.Latitude)
	}
	lon, err := strconv.ParseFloat(p.Longitude, 64)
	if err != nil {
		return domain.Location{}, fmt.Errorf("%w: longitude %q", domain.ErrInvalidCode, p.Longitude)
	}

	postal := r.PostCode
	if postal == "" {
		postal = code
	}
	loc, err := domain.NewLocation(lat, lon, postal, false)
	if err != nil {
		return domain.Location{}, fmt.Errorf("%w: %v", domain.ErrInvalidCode, err)
	}
	return loc, nil
}
