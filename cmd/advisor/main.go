package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/hazard-advisory-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hazard-advisory-service/internal/adapter/kafka"
	"github.com/couchcryptid/hazard-advisory-service/internal/adapter/nws"
	"github.com/couchcryptid/hazard-advisory-service/internal/adapter/osrm"
	"github.com/couchcryptid/hazard-advisory-service/internal/adapter/zippopotam"
	"github.com/couchcryptid/hazard-advisory-service/internal/config"
	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
	"github.com/couchcryptid/hazard-advisory-service/internal/location"
	"github.com/couchcryptid/hazard-advisory-service/internal/observability"
	"github.com/couchcryptid/hazard-advisory-service/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	defaultMode, err := pipeline.ParseMode(cfg.DefaultMode)
	if err != nil {
		logger.Error("invalid default mode", "error", err)
		os.Exit(1)
	}

	hazards := nws.NewClient(cfg.NWSBaseURL, cfg.NWSUserAgent, cfg.FeedTimeout, metrics, logger)
	routes := osrm.NewClient(cfg.OSRMBaseURL, cfg.OSRMProfile, cfg.FeedTimeout, metrics, logger)
	geocoder := zippopotam.NewCachedGeocoder(
		zippopotam.NewClient(cfg.GeocoderBaseURL, cfg.GeocoderCountry, cfg.FeedTimeout, metrics, logger),
		cfg.GeocoderCacheSize,
		metrics,
	)

	// Decision sink (feature-flagged via KAFKA_ENABLED).
	var publisher pipeline.DecisionPublisher
	var kafkaPublisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg, metrics, logger)
		publisher = kafkaPublisher
		logger.Info("kafka decision sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAdvisoryTopic)
	} else {
		logger.Info("kafka decision sink disabled")
	}

	factory := func(sessionID string, mode pipeline.Mode) *pipeline.Orchestrator {
		return pipeline.New(pipeline.Stages{
			Resolver:  location.NewResolver(location.ContextLocator{}, geocoder, logger),
			Hazards:   hazards,
			Routes:    routes,
			Advisor:   domain.TemplateAdvisor{},
			Publisher: publisher,
		}, mode, pipeline.Options{
			SessionID:   sessionID,
			SampleCount: cfg.RouteSampleCount,
		}, logger, metrics)
	}

	sessions := httpadapter.NewSessions(factory, defaultMode, httpadapter.SessionLimits{
		MaxSessions: cfg.MaxSessions,
		IdleTTL:     cfg.SessionIdleTTL,
	}, clockwork.NewRealClock(), metrics, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, sessions, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sessions.Close()
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
