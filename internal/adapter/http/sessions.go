package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
	"github.com/couchcryptid/hazard-advisory-service/internal/location"
	"github.com/couchcryptid/hazard-advisory-service/internal/observability"
	"github.com/couchcryptid/hazard-advisory-service/internal/pipeline"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const maxBodyBytes = 64 << 10

var (
	errSessionNotFound = errors.New("session not found")
	errSessionLimit    = errors.New("session limit reached")
	errShuttingDown    = errors.New("shutting down")
)

// OrchestratorFactory builds the orchestrator backing a new session.
type OrchestratorFactory func(sessionID string, mode pipeline.Mode) *pipeline.Orchestrator

// SessionLimits bound the registry. A zero IdleTTL keeps sessions until they
// are deleted.
type SessionLimits struct {
	MaxSessions int
	IdleTTL     time.Duration
}

type sessionEntry struct {
	orch     *pipeline.Orchestrator
	lastUsed time.Time
}

// Sessions is the in-memory registry of orchestrator sessions and serves
// their JSON API. Handlers only render orchestrator snapshots.
type Sessions struct {
	factory     OrchestratorFactory
	defaultMode pipeline.Mode
	limits      SessionLimits
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	closed   bool
	stop     chan struct{}
}

// NewSessions creates an empty registry. When limits.IdleTTL is set a
// background sweeper evicts idle sessions until Close is called.
func NewSessions(factory OrchestratorFactory, defaultMode pipeline.Mode, limits SessionLimits, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Sessions {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Sessions{
		factory:     factory,
		defaultMode: defaultMode,
		limits:      limits,
		clock:       clock,
		metrics:     metrics,
		logger:      logger,
		sessions:    make(map[string]*sessionEntry),
		stop:        make(chan struct{}),
	}
	if limits.IdleTTL > 0 {
		go s.sweep(limits.IdleTTL / 2)
	}
	return s
}

// CheckReadiness reports an error once the registry has been closed.
func (s *Sessions) CheckReadiness(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errShuttingDown
	}
	return nil
}

// Close resets and drops every session, stops the sweeper and refuses new
// sessions. It is safe to call more than once.
func (s *Sessions) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stop)
	orchs := make([]*pipeline.Orchestrator, 0, len(s.sessions))
	for id, e := range s.sessions {
		orchs = append(orchs, e.orch)
		delete(s.sessions, id)
	}
	s.metrics.ActiveSessions.Set(0)
	s.mu.Unlock()

	for _, o := range orchs {
		o.Reset()
	}
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Sessions) sweep(interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.Chan():
			s.mu.Lock()
			evicted := s.evictIdleLocked()
			s.mu.Unlock()
			s.resetEvicted(evicted)
		}
	}
}

// evictIdleLocked drops sessions unused for at least IdleTTL.
func (s *Sessions) evictIdleLocked() []*pipeline.Orchestrator {
	if s.limits.IdleTTL <= 0 {
		return nil
	}
	now := s.clock.Now()
	var evicted []*pipeline.Orchestrator
	for id, e := range s.sessions {
		if now.Sub(e.lastUsed) >= s.limits.IdleTTL {
			delete(s.sessions, id)
			evicted = append(evicted, e.orch)
		}
	}
	if len(evicted) > 0 {
		s.metrics.SessionsEvicted.Add(float64(len(evicted)))
		s.metrics.ActiveSessions.Set(float64(len(s.sessions)))
	}
	return evicted
}

// resetEvicted makes any cycle still running on an evicted session inert.
func (s *Sessions) resetEvicted(evicted []*pipeline.Orchestrator) {
	for _, o := range evicted {
		o.Reset()
	}
	if len(evicted) > 0 {
		s.logger.Info("idle sessions evicted", "count", len(evicted))
	}
}

func (s *Sessions) create(mode pipeline.Mode) (*pipeline.Orchestrator, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errShuttingDown
	}
	var evicted []*pipeline.Orchestrator
	if len(s.sessions) >= s.limits.MaxSessions {
		evicted = s.evictIdleLocked()
	}
	if len(s.sessions) >= s.limits.MaxSessions {
		s.mu.Unlock()
		s.resetEvicted(evicted)
		return nil, errSessionLimit
	}

	id := uuid.NewString()
	o := s.factory(id, mode)
	s.sessions[id] = &sessionEntry{orch: o, lastUsed: s.clock.Now()}
	s.metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	s.resetEvicted(evicted)
	return o, nil
}

// get returns the session and marks it used.
func (s *Sessions) get(id string) (*pipeline.Orchestrator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = s.clock.Now()
	return e.orch, true
}

func (s *Sessions) remove(id string) (*pipeline.Orchestrator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	delete(s.sessions, id)
	s.metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return e.orch, true
}

func (s *Sessions) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", s.handleCreate)
	mux.HandleFunc("GET /v1/sessions/{id}", s.withSession(s.handleGet))
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDelete)
	mux.HandleFunc("POST /v1/sessions/{id}/location/device", s.withSession(s.handleDeviceLocation))
	mux.HandleFunc("POST /v1/sessions/{id}/location/code", s.withSession(s.handleCodeLocation))
	mux.HandleFunc("POST /v1/sessions/{id}/evaluate", s.withSession(s.handleEvaluate))
	mux.HandleFunc("POST /v1/sessions/{id}/routes", s.withSession(s.handleFetchRoutes))
	mux.HandleFunc("POST /v1/sessions/{id}/routes/{routeID}/select", s.withSession(s.handleSelectRoute))
	mux.HandleFunc("POST /v1/sessions/{id}/reset", s.withSession(s.handleReset))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, o *pipeline.Orchestrator)

func (s *Sessions) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, ok := s.get(r.PathValue("id"))
		if !ok {
			writeError(w, errSessionNotFound, nil)
			return
		}
		h(w, r, o)
	}
}

// --- request bodies ---

type createRequest struct {
	Mode string `json:"mode"`
}

type deviceLocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	// Error carries a geolocation failure reported by the device:
	// "permission_denied" or "position_unavailable".
	Error string `json:"error"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type routesRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// --- handlers ---

func (s *Sessions) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, err, nil)
		return
	}

	mode := s.defaultMode
	if req.Mode != "" {
		m, err := pipeline.ParseMode(req.Mode)
		if err != nil {
			writeError(w, badRequest(err), nil)
			return
		}
		mode = m
	}

	o, err := s.create(mode)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	snap := o.Snapshot()
	s.logger.Info("session created", "session_id", snap.SessionID, "mode", mode)
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Sessions) handleGet(w http.ResponseWriter, _ *http.Request, o *pipeline.Orchestrator) {
	writeJSON(w, http.StatusOK, o.Snapshot())
}

func (s *Sessions) handleDelete(w http.ResponseWriter, r *http.Request) {
	o, ok := s.remove(r.PathValue("id"))
	if !ok {
		writeError(w, errSessionNotFound, nil)
		return
	}
	o.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Sessions) handleDeviceLocation(w http.ResponseWriter, r *http.Request, o *pipeline.Orchestrator) {
	var req deviceLocationRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err, nil)
		return
	}

	ctx, err := withDeviceReport(r.Context(), req)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	snap, err := o.ResolveDeviceLocation(ctx)
	respond(w, snap, err)
}

func (s *Sessions) handleCodeLocation(w http.ResponseWriter, r *http.Request, o *pipeline.Orchestrator) {
	var req codeRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err, nil)
		return
	}
	snap, err := o.ResolveLocationByCode(r.Context(), req.Code)
	respond(w, snap, err)
}

func (s *Sessions) handleEvaluate(w http.ResponseWriter, r *http.Request, o *pipeline.Orchestrator) {
	snap, err := o.EvaluateSinglePoint(r.Context())
	respond(w, snap, err)
}

func (s *Sessions) handleFetchRoutes(w http.ResponseWriter, r *http.Request, o *pipeline.Orchestrator) {
	var req routesRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err, nil)
		return
	}
	snap, err := o.FetchCandidateRoutes(r.Context(), req.Origin, req.Destination)
	respond(w, snap, err)
}

func (s *Sessions) handleSelectRoute(w http.ResponseWriter, r *http.Request, o *pipeline.Orchestrator) {
	snap, err := o.SelectRoute(r.Context(), r.PathValue("routeID"))
	respond(w, snap, err)
}

func (s *Sessions) handleReset(w http.ResponseWriter, _ *http.Request, o *pipeline.Orchestrator) {
	o.Reset()
	writeJSON(w, http.StatusOK, o.Snapshot())
}

// withDeviceReport attaches the device's reported fix or failure to ctx.
func withDeviceReport(ctx context.Context, req deviceLocationRequest) (context.Context, error) {
	switch req.Error {
	case "":
	case "permission_denied":
		return location.WithReportedError(ctx, domain.ErrPermissionDenied), nil
	case "position_unavailable":
		return location.WithReportedError(ctx, domain.ErrPositionUnavailable), nil
	default:
		return nil, badRequest(fmt.Errorf("unknown device error %q", req.Error))
	}

	if req.Latitude == nil || req.Longitude == nil {
		return ctx, nil
	}
	return location.WithReportedPosition(ctx, *req.Latitude, *req.Longitude), nil
}

// --- responses ---

type errorBody struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Session *pipeline.Snapshot `json:"session,omitempty"`
}

type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{err: err}
}

func respond(w http.ResponseWriter, snap pipeline.Snapshot, err error) {
	if err != nil {
		writeError(w, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeError(w http.ResponseWriter, err error, snap *pipeline.Snapshot) {
	status, code := classify(err)
	writeJSON(w, status, errorBody{Code: code, Message: err.Error(), Session: snap})
}

// classify maps an error to an HTTP status and a machine-readable code.
func classify(err error) (int, string) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrInvalidCode):
		return http.StatusUnprocessableEntity, "invalid_code"
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusUnprocessableEntity, "permission_denied"
	case errors.Is(err, domain.ErrPositionUnavailable):
		return http.StatusUnprocessableEntity, "position_unavailable"
	case errors.Is(err, domain.ErrUnsupportedCapability):
		return http.StatusUnprocessableEntity, "unsupported_capability"
	case errors.Is(err, domain.ErrRouteNotFound):
		return http.StatusNotFound, "route_not_found"
	case errors.Is(err, pipeline.ErrUnknownRoute):
		return http.StatusNotFound, "unknown_route"
	case errors.Is(err, errSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, pipeline.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, pipeline.ErrCycleSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, errSessionLimit):
		return http.StatusServiceUnavailable, "session_limit"
	case errors.Is(err, errShuttingDown):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusBadGateway, "upstream_error"
	}
}

// decodeBody reads a JSON request body into v. An empty body is accepted
// only when allowEmpty is set.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return badRequest(fmt.Errorf("decode request body: %w", err))
	}
	return nil
}
