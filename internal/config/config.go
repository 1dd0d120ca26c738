package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// FeedTimeout bounds every outbound feed request at the transport layer.
	FeedTimeout time.Duration

	NWSBaseURL   string
	NWSUserAgent string

	OSRMBaseURL string
	OSRMProfile string

	GeocoderBaseURL   string
	GeocoderCountry   string
	GeocoderCacheSize int

	RouteSampleCount int
	DefaultMode      string
	MaxSessions      int
	// SessionIdleTTL is how long a session may go unused before it is evicted.
	SessionIdleTTL   time.Duration

	// Kafka decision sink configuration.
	KafkaEnabled        bool
	KafkaBrokers        []string
	KafkaAdvisoryTopic  string
	KafkaBatchTimeout   time.Duration
	KafkaPublishTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	feedTimeout, err := parsePositiveDuration("FEED_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("GEOCODER_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	sampleCount, err := parsePositiveInt("ROUTE_SAMPLE_COUNT", 10)
	if err != nil {
		return nil, err
	}

	maxSessions, err := parsePositiveInt("MAX_SESSIONS", 1000)
	if err != nil {
		return nil, err
	}

	sessionIdleTTL, err := parsePositiveDuration("SESSION_IDLE_TTL", "30m")
	if err != nil {
		return nil, err
	}

	kafkaBatchTimeout, err := parsePositiveDuration("KAFKA_BATCH_TIMEOUT", "10ms")
	if err != nil {
		return nil, err
	}

	kafkaPublishTimeout, err := parsePositiveDuration("KAFKA_PUBLISH_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		FeedTimeout:     feedTimeout,

		NWSBaseURL:   envOrDefault("NWS_BASE_URL", "https://api.weather.gov"),
		NWSUserAgent: envOrDefault("NWS_USER_AGENT", "hazard-advisory-service (ops@example.com)"),

		OSRMBaseURL: envOrDefault("OSRM_BASE_URL", "https://router.project-osrm.org"),
		OSRMProfile: envOrDefault("OSRM_PROFILE", "driving"),

		GeocoderBaseURL:   envOrDefault("GEOCODER_BASE_URL", "https://api.zippopotam.us"),
		GeocoderCountry:   strings.ToLower(envOrDefault("GEOCODER_COUNTRY", "us")),
		GeocoderCacheSize: cacheSize,

		RouteSampleCount: sampleCount,
		DefaultMode:      strings.ToLower(strings.TrimSpace(envOrDefault("DEFAULT_MODE", "point"))),
		MaxSessions:      maxSessions,
		SessionIdleTTL:   sessionIdleTTL,

		KafkaEnabled:        os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:        parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAdvisoryTopic:  envOrDefault("KAFKA_ADVISORY_TOPIC", "hazard-advisory-decisions"),
		KafkaBatchTimeout:   kafkaBatchTimeout,
		KafkaPublishTimeout: kafkaPublishTimeout,
	}

	if cfg.DefaultMode != "point" && cfg.DefaultMode != "route" {
		return nil, fmt.Errorf("invalid DEFAULT_MODE %q: want point or route", cfg.DefaultMode)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaAdvisoryTopic == "" {
		return nil, errors.New("KAFKA_ADVISORY_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

// parseBrokers splits a comma-separated broker list, dropping blanks.
func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
