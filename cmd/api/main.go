// Package main provides the entrypoint for the VanRoute API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanroute/vanroute/internal/api"
	"github.com/vanroute/vanroute/internal/api/handler"
	"github.com/vanroute/vanroute/internal/api/middleware"
	"github.com/vanroute/vanroute/internal/closures"
	"github.com/vanroute/vanroute/internal/closures/vancouver"
	"github.com/vanroute/vanroute/internal/database"
	"github.com/vanroute/vanroute/internal/micromobility"
	"github.com/vanroute/vanroute/internal/micromobility/gbfs"
	"github.com/vanroute/vanroute/internal/provider/resilience"
	"github.com/vanroute/vanroute/internal/rewards"
	"github.com/vanroute/vanroute/internal/routing"
	"github.com/vanroute/vanroute/internal/routing/googlemaps"
	"github.com/vanroute/vanroute/internal/telemetry"
	"github.com/vanroute/vanroute/internal/transit"
	"github.com/vanroute/vanroute/internal/transit/translink"
	"github.com/vanroute/vanroute/internal/weather"
	"github.com/vanroute/vanroute/internal/weather/openweathermap"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "vanroute-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting VanRoute API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database. Routing itself never touches the database, so a
	// failed connection degrades closure persistence and readiness rather
	// than blocking startup.
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Warn().Err(err).Msg("database unavailable, continuing without persistence")
	} else {
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")
	}

	// Provider health registry, surfaced via /v1/ops/status
	registry := resilience.NewRegistry()

	// Load the static transit schedule
	gtfsDir := os.Getenv("GTFS_STATIC_DIR")
	if gtfsDir == "" {
		gtfsDir = "./gtfs"
	}
	staticIndex := transit.NewStaticIndex(gtfsDir, log)
	if err := staticIndex.Load(); err != nil {
		log.Warn().Err(err).Str("dir", gtfsDir).Msg("static schedule unavailable, transit enrichment degraded")
	}

	// Real-time transit feed
	feedClient := translink.NewClient(translink.ClientConfig{
		APIKey:   os.Getenv("TRANSLINK_API_KEY"),
		Registry: registry,
		Logger:   log,
	})
	feedCache := transit.NewFeedCache(transit.FeedCacheConfig{
		Provider: feedClient,
		Logger:   log,
	})
	enricher := transit.NewEnricher(transit.EnricherConfig{
		Static: staticIndex,
		Feed:   feedCache,
		Logger: log,
	})

	// Weather conditions for active-mode penalties
	owmHTTPConfig := resilience.DefaultClientConfig("openweathermap")
	owmHTTPConfig.Registry = registry
	weatherService := weather.NewService(weather.ServiceConfig{
		Provider: openweathermap.NewClient(openweathermap.ClientConfig{
			APIKey:     os.Getenv("OPENWEATHER_API_KEY"),
			HTTPClient: resilience.NewClient(owmHTTPConfig),
			Logger:     log,
		}),
		Logger: log,
	})

	// Shared scooter availability
	micromobilityService := micromobility.NewService(micromobility.ServiceConfig{
		Provider: gbfs.NewClient(gbfs.ClientConfig{
			FeedURL:  os.Getenv("GBFS_FEED_URL"),
			Registry: registry,
			Logger:   log,
		}),
		Logger: log,
	})

	// Road closures with last-known-good persistence
	var closureRepo closures.Repository = closures.NewInMemoryRepository()
	if pool != nil {
		closureRepo = closures.NewPostgresRepository(pool)
	}
	closureService := closures.NewService(closures.ServiceConfig{
		Provider: vancouver.NewClient(vancouver.ClientConfig{
			Registry: registry,
			Logger:   log,
		}),
		Repository: closureRepo,
		Logger:     log,
	})
	closureFilter := closures.NewFilter(closures.FilterConfig{
		Service: closureService,
	})

	// Directions provider behind a short-lived response cache
	directionsProvider := routing.NewCachingProvider(routing.CachingProviderConfig{
		Provider: googlemaps.NewClient(googlemaps.ClientConfig{
			APIKey:   os.Getenv("GOOGLE_MAPS_API_KEY"),
			Registry: registry,
			Logger:   log,
		}),
		Logger: log,
	})

	builder := routing.NewCandidateBuilder(routing.BuilderConfig{
		Provider:      directionsProvider,
		Weather:       weatherService,
		Micromobility: micromobilityService,
		Logger:        log,
	})

	// Reward events publisher (optional: requires Pub/Sub configuration)
	orchestratorCfg := routing.OrchestratorConfig{
		Builder:  builder,
		Enricher: enricher,
		Closures: closureFilter,
		Scoring:  routing.NewScoringEngine(),
		Logger:   log,
	}

	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	rewardsTopic := os.Getenv("REWARDS_TOPIC")
	if projectID != "" && rewardsTopic != "" {
		dispatcher, err := rewards.NewDispatcher(ctx, rewards.DispatcherConfig{
			ProjectID: projectID,
			TopicName: rewardsTopic,
			Logger:    log,
		})
		if err != nil {
			log.Warn().Err(err).Msg("rewards dispatcher unavailable, reward events disabled")
		} else {
			defer dispatcher.Close()
			orchestratorCfg.Rewards = dispatcher
			log.Info().Str("topic", rewardsTopic).Msg("rewards dispatcher initialized")
		}
	} else {
		log.Warn().Msg("Pub/Sub not configured, reward events disabled")
	}

	orchestrator := routing.NewOrchestrator(orchestratorCfg)

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		Metrics:      metrics,
		Orchestrator: orchestrator,
		Ops: handler.OpsConfig{
			Registry:       registry,
			Pool:           pool,
			StaticIndex:    staticIndex,
			FeedCache:      feedCache,
			ClosureService: closureService,
		},
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
