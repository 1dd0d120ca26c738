// Command check runs one advisory cycle against the live feeds and prints the
// resulting session snapshot as JSON. It exits 0 when the area is clear, 2 when
// an advisory was issued, and 1 on any failure.
//
// Usage:
//
//	go run ./cmd/check -code 00002
//	go run ./cmd/check -origin 78701 -dest 00001 [-route route-1]
//
// Feed endpoints and timeouts come from the same environment variables as the
// service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/hazard-advisory-service/internal/adapter/nws"
	"github.com/couchcryptid/hazard-advisory-service/internal/adapter/osrm"
	"github.com/couchcryptid/hazard-advisory-service/internal/adapter/zippopotam"
	"github.com/couchcryptid/hazard-advisory-service/internal/config"
	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
	"github.com/couchcryptid/hazard-advisory-service/internal/location"
	"github.com/couchcryptid/hazard-advisory-service/internal/observability"
	"github.com/couchcryptid/hazard-advisory-service/internal/pipeline"
)

const (
	exitClear    = 0
	exitFailure  = 1
	exitAdvisory = 2
)

func main() {
	code := flag.String("code", "", "demo or postal code to evaluate as a single point")
	origin := flag.String("origin", "", "route origin code")
	dest := flag.String("dest", "", "route destination code")
	routeID := flag.String("route", "", "candidate route to scan (default: first candidate)")
	verbose := flag.Bool("v", false, "log feed activity to stderr")
	flag.Parse()

	if (*code == "") == (*dest == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -code or -dest is required")
		flag.Usage()
		os.Exit(exitFailure)
	}

	os.Exit(run(*code, *origin, *dest, *routeID, *verbose))
}

func run(code, origin, dest, routeID string, verbose bool) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return exitFailure
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	metrics := observability.NewMetrics()

	mode := pipeline.ModePoint
	if dest != "" {
		mode = pipeline.ModeRoute
	}

	orch := pipeline.New(pipeline.Stages{
		Resolver: location.NewResolver(nil,
			zippopotam.NewClient(cfg.GeocoderBaseURL, cfg.GeocoderCountry, cfg.FeedTimeout, metrics, logger),
			logger),
		Hazards: nws.NewClient(cfg.NWSBaseURL, cfg.NWSUserAgent, cfg.FeedTimeout, metrics, logger),
		Routes:  osrm.NewClient(cfg.OSRMBaseURL, cfg.OSRMProfile, cfg.FeedTimeout, metrics, logger),
		Advisor: domain.TemplateAdvisor{},
	}, mode, pipeline.Options{SessionID: "cli", SampleCount: cfg.RouteSampleCount}, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var snap pipeline.Snapshot
	if mode == pipeline.ModePoint {
		snap, err = orch.ResolveLocationByCode(ctx, code)
	} else {
		snap, err = checkRoute(ctx, orch, origin, dest, routeID)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return exitFailure
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: encode snapshot: %v\n", err)
		return exitFailure
	}

	if snap.State == pipeline.StateAdvising {
		return exitAdvisory
	}
	return exitClear
}

func checkRoute(ctx context.Context, orch *pipeline.Orchestrator, origin, dest, routeID string) (pipeline.Snapshot, error) {
	if origin == "" {
		return pipeline.Snapshot{}, errors.New("-origin is required with -dest")
	}

	snap, err := orch.FetchCandidateRoutes(ctx, origin, dest)
	if err != nil {
		return snap, err
	}
	if routeID == "" {
		routeID = snap.Routes[0].ID
	}
	return orch.SelectRoute(ctx, routeID)
}
