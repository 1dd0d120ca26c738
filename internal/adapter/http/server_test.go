package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/hazard-advisory-service/internal/adapter/http"
	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
	"github.com/couchcryptid/hazard-advisory-service/internal/location"
	"github.com/couchcryptid/hazard-advisory-service/internal/observability"
	"github.com/couchcryptid/hazard-advisory-service/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stubs ---

type stubGeocoder struct{}

func (stubGeocoder) LookupPostalCode(_ context.Context, code string) (domain.Location, error) {
	switch code {
	case "78701":
		return domain.Location{Latitude: 30.2713, Longitude: -97.7426, PostalCode: code}, nil
	case "73301":
		return domain.Location{Latitude: 30.3264, Longitude: -97.7713, PostalCode: code}, nil
	}
	return domain.Location{}, fmt.Errorf("%w: %q", domain.ErrInvalidCode, code)
}

// stubHazards reports a severe winter storm north of latitude 40.
type stubHazards struct{}

func (stubHazards) FetchHazards(_ context.Context, lat, _ float64) []domain.Hazard {
	if lat > 40 {
		return []domain.Hazard{{HazardType: domain.HazardWeather, Severity: domain.SeveritySevere, EventName: "Winter Storm Warning"}}
	}
	return []domain.Hazard{}
}

type stubRoutes struct {
	err error
}

func (s stubRoutes) FetchRoutes(_ context.Context, origin, destination domain.Location) ([]domain.Route, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Route{{
		ID: "route-0",
		Geometry: []domain.Point{
			{Lon: origin.Longitude, Lat: origin.Latitude},
			{Lon: destination.Longitude, Lat: destination.Latitude},
		},
	}}, nil
}

type testEnv struct {
	server   *httpadapter.Server
	sessions *httpadapter.Sessions
	metrics  *observability.Metrics
}

func newTestEnv(t *testing.T, routes stubRoutes, maxSessions int) *testEnv {
	t.Helper()
	return newTestEnvWithLimits(t, routes, httpadapter.SessionLimits{MaxSessions: maxSessions}, clockwork.NewRealClock())
}

func newTestEnvWithLimits(t *testing.T, routes stubRoutes, limits httpadapter.SessionLimits, clock clockwork.Clock) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	factory := func(id string, mode pipeline.Mode) *pipeline.Orchestrator {
		return pipeline.New(pipeline.Stages{
			Resolver: location.NewResolver(location.ContextLocator{}, stubGeocoder{}, logger),
			Hazards:  stubHazards{},
			Routes:   routes,
			Advisor:  domain.TemplateAdvisor{},
		}, mode, pipeline.Options{SessionID: id}, logger, metrics)
	}
	sessions := httpadapter.NewSessions(factory, pipeline.ModePoint, limits, clock, metrics, logger)
	t.Cleanup(sessions.Close)

	return &testEnv{
		server:   httpadapter.NewServer(":0", sessions, logger),
		sessions: sessions,
		metrics:  metrics,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createSession(t *testing.T, mode string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/sessions", fmt.Sprintf(`{"mode": %q}`, mode))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	snap := decodeSnapshot(t, rec)
	require.NotEmpty(t, snap.SessionID)
	return snap.SessionID
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) pipeline.Snapshot {
	t.Helper()
	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap
}

type errorResponse struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Session *pipeline.Snapshot `json:"session"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// --- health ---

func TestHealthzReturns200(t *testing.T) {
	env := newTestEnv(t, stubRoutes{}, 10)

	rec := env.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "hazard-advisory-service", body["service"])
}

func TestReadyzReturns200UntilClosed(t *testing.T) {
	env := newTestEnv(t, stubRoutes{}, 10)

	env.createSession(t, "point")

	rec := env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var body readyBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, 1, body.Sessions)

	env.sessions.Close()

	rec = env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = readyBody{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, "shutting down", body.Error)
	assert.Equal(t, 0, body.Sessions)
}

type readyBody struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Error    string `json:"error"`
}

func TestRequestsAreLoggedWithRoutePattern(t *testing.T) {
	env := newTestEnv(t, stubRoutes{}, 10)
	var buf bytes.Buffer
	server := httpadapter.NewServer(":0", env.sessions, slog.New(slog.NewJSONHandler(&buf, nil)))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil)
	server.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "request served", entry["msg"])
	assert.Equal(t, "GET /v1/sessions/{id}", entry["route"])
	assert.Equal(t, "missing", entry["session_id"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, stubRoutes{}, 10)

	rec := env.do(t, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// --- sessions ---

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, stubRoutes{}, 10)

	rec := env.do(t, http.MethodPost, "/v1/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	snap := decodeSnapshot(t, rec)
	assert.Equal(t, pipeline.ModePoint, snap.Mode, "empty body uses the default mode")
	assert.Equal(t, pipeline.StateIdle, snap.State)
	assert.Equal(t, 1, env.sessions.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ActiveSessions))

	rec = env.do(t, http.MethodGet, "/v1/sessions/"+snap.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/v1/sessions/"+snap.SessionID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, env.sessions.Len())

	rec = env.do(t, http.MethodGet, "/v1/sessions/"+snap.SessionID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", decodeError(t, rec).Code)
}

func TestCreateSession_Rejections(t *testing.T) {
	env := newTestEnv(t, stubRoutes{}, 1)

	rec := env.do(t, http.MethodPost, "/v1/sessions", `{"mode": "teleport"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/v1/sessions", `{"mode": "route", "extra": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.createSession(t, "route")
	rec = env.do(t, http.MethodPost, "/v1/sessions", `{"mode": "route"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "session_limit", decodeError(t, rec).Code)
}

func TestPointSession_DemoCodeAdvisory(t *testing.T) {
	env := newTestEnv(t, stubRoutes{}, 10)
	id := env.createSession(t, "point")

	rec := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/location/code", `{"code": "00001"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snap := decodeSnapshot(t, rec)
	assert.Equal(t, pipeline.StateAdvising, snap.State)
	assert.True(t, snap.HasEvaluated)
	require.NotNil(t, snap.Advisory)
	assert.Equal(t, "Winter Storm Warning Constraint", snap.Advisory.Title)
	require.NotNil(t, snap.Advisory.Region)
	assert.InDelta(t, 50, snap.Advisory.Region.RadiusKm, 0.001)

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+id+"/evaluate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+id+"/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decodeSnapshot(t, rec)
	assert.Equal(t, pipeline.StateIdle, snap.State)
	assert.Nil(t, snap.Advisory)
	assert.Nil(t, snap.Location)
}

func TestPointSession_DeviceLocation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantState  pipeline.State
	}{
		{
			name:       "reported fix",
			body:       `{"latitude": 30.2672, "longitude": -97.7431}`,
			wantStatus: http.StatusOK,
			wantState:  pipeline.StateClear,
		},
		{
			name:       "permission denied",
			body:       `{"error": "permission_denied"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "permission_denied",
			wantState:  pipeline.StateIdle,
		},
		{
			name:       "no fix reported",
			body:       `{}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "position_unavailable",
			wantState:  pipeline.StateIdle,
		},
		{
			name:       "out of range fix",
			body:       `{"latitude": 123, "longitude": 0}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "position_unavailable",
			wantState:  pipeline.StateIdle,
		},
		{
			name:       "unknown device error",
			body:       `{"error": "gps_on_fire"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "bad_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, stubRoutes{}, 10)
			id := env.createSession(t, "point")

			rec := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/location/device", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantCode == "" {
				assert.Equal(t, tt.wantState, decodeSnapshot(t, rec).State)
				return
			}
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.wantState != "" {
				require.NotNil(t, body.Session)
				assert.Equal(t, tt.wantState, body.Session.State)
				assert.NotEmpty(t, body.Session.Error)
			}
		})
	}
}

func TestPointSession_InvalidCode(t *testing.T) {
	env := newTestEnv(t, stubRoutes{}, 10)
	id := env.createSession(t, "point")

	rec := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/location/code", `{"code": "99999"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_code", decodeError(t, rec).Code)
}

func TestRouteSession_SelectRoute(t *testing.T) {
	env := newTestEnv(t, stubRoutes{}, 10)
	id := env.createSession(t, "route")

	rec := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/routes", `{"origin": "78701", "destination": "00001"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := decodeSnapshot(t, rec)
	assert.Equal(t, pipeline.StateRoutePending, snap.State)
	require.Len(t, snap.Routes, 1)
	require.Len(t, snap.Routes[0].Geometry, 2)

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+id+"/routes/route-0/select", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap = decodeSnapshot(t, rec)

	// Austin is clear; the Buffalo endpoint carries the storm.
	assert.Equal(t, pipeline.StateAdvising, snap.State)
	assert.Equal(t, "route-0", snap.SelectedRouteID)
	require.NotNil(t, snap.HazardPoint)
	assert.InDelta(t, 42.8864, snap.HazardPoint.Lat, 1e-9)
}

func TestRouteSession_Errors(t *testing.T) {
	t.Run("route not found", func(t *testing.T) {
		env := newTestEnv(t, stubRoutes{err: fmt.Errorf("%w: NoRoute", domain.ErrRouteNotFound)}, 10)
		id := env.createSession(t, "route")

		rec := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/routes", `{"origin": "78701", "destination": "73301"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "route_not_found", decodeError(t, rec).Code)
	})

	t.Run("select before routes", func(t *testing.T) {
		env := newTestEnv(t, stubRoutes{}, 10)
		id := env.createSession(t, "route")

		rec := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/routes/route-0/select", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "invalid_state", decodeError(t, rec).Code)
	})

	t.Run("unknown route id", func(t *testing.T) {
		env := newTestEnv(t, stubRoutes{}, 10)
		id := env.createSession(t, "route")
		rec := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/routes", `{"origin": "78701", "destination": "73301"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodPost, "/v1/sessions/"+id+"/routes/route-7/select", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "unknown_route", decodeError(t, rec).Code)
	})

	t.Run("evaluate in route mode", func(t *testing.T) {
		env := newTestEnv(t, stubRoutes{}, 10)
		id := env.createSession(t, "route")

		rec := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/evaluate", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestClosedRegistryRefusesSessions(t *testing.T) {
	env := newTestEnv(t, stubRoutes{}, 10)
	id := env.createSession(t, "point")

	env.sessions.Close()

	rec := env.do(t, http.MethodGet, "/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/sessions", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "shutting_down", decodeError(t, rec).Code)
}

// --- idle eviction ---

func TestSessions_IdleSessionEvictedWhenAtCapacity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	env := newTestEnvWithLimits(t, stubRoutes{}, httpadapter.SessionLimits{MaxSessions: 1, IdleTTL: 10 * time.Minute}, clock)

	abandoned := env.createSession(t, "point")
	clock.Advance(11 * time.Minute)

	fresh := env.createSession(t, "point")
	assert.NotEqual(t, abandoned, fresh)

	rec := env.do(t, http.MethodGet, "/v1/sessions/"+abandoned, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, env.sessions.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.SessionsEvicted))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ActiveSessions))
}

func TestSessions_RecentlyUsedSessionSurvives(t *testing.T) {
	clock := clockwork.NewFakeClock()
	env := newTestEnvWithLimits(t, stubRoutes{}, httpadapter.SessionLimits{MaxSessions: 1, IdleTTL: 10 * time.Minute}, clock)

	id := env.createSession(t, "point")
	clock.Advance(6 * time.Minute)
	rec := env.do(t, http.MethodGet, "/v1/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	clock.Advance(6 * time.Minute)

	rec = env.do(t, http.MethodPost, "/v1/sessions", `{"mode": "point"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "session_limit", decodeError(t, rec).Code)

	rec = env.do(t, http.MethodGet, "/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), testutil.ToFloat64(env.metrics.SessionsEvicted))
}

func TestSessions_SweeperEvictsIdleSessions(t *testing.T) {
	clock := clockwork.NewFakeClock()
	env := newTestEnvWithLimits(t, stubRoutes{}, httpadapter.SessionLimits{MaxSessions: 10, IdleTTL: 10 * time.Minute}, clock)

	idle := env.createSession(t, "point")
	rec := env.do(t, http.MethodPost, "/v1/sessions/"+idle+"/location/code", `{"code": "00001"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1), "sweeper should be waiting on its ticker")

	clock.Advance(10 * time.Minute)

	assert.Eventually(t, func() bool { return env.sessions.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.SessionsEvicted))

	rec = env.do(t, http.MethodGet, "/v1/sessions/"+idle, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessions_CloseIsIdempotent(t *testing.T) {
	env := newTestEnvWithLimits(t, stubRoutes{}, httpadapter.SessionLimits{MaxSessions: 10, IdleTTL: time.Minute}, clockwork.NewFakeClock())
	env.createSession(t, "route")

	env.sessions.Close()
	env.sessions.Close()

	assert.Equal(t, 0, env.sessions.Len())
}
