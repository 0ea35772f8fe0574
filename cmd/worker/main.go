// Package main provides the entrypoint for the VanRoute background worker.
// The worker consumes scheduler-driven refresh jobs and reward completion
// events from Pub/Sub, keeping provider caches warm so API requests rarely
// pay a cold upstream fetch.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanroute/vanroute/internal/closures"
	"github.com/vanroute/vanroute/internal/closures/vancouver"
	"github.com/vanroute/vanroute/internal/database"
	"github.com/vanroute/vanroute/internal/micromobility"
	"github.com/vanroute/vanroute/internal/micromobility/gbfs"
	"github.com/vanroute/vanroute/internal/provider/resilience"
	"github.com/vanroute/vanroute/internal/transit"
	"github.com/vanroute/vanroute/internal/transit/translink"
	"github.com/vanroute/vanroute/internal/weather"
	"github.com/vanroute/vanroute/internal/weather/openweathermap"
	"github.com/vanroute/vanroute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "vanroute-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting VanRoute worker")

	// Worker also exposes a health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := resilience.NewRegistry()

	// Database is optional: without it closure snapshots lose persistence
	// but refreshes still work against the in-memory layer.
	var closureRepo closures.Repository = closures.NewInMemoryRepository()
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Warn().Err(err).Msg("database unavailable, continuing without persistence")
	} else {
		defer pool.Close()
		closureRepo = closures.NewPostgresRepository(pool)
		log.Info().
			Str("host", dbConfig.Host).
			Str("database", dbConfig.Database).
			Msg("database connected")
	}

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

	closureService := closures.NewService(closures.ServiceConfig{
		Provider: vancouver.NewClient(vancouver.ClientConfig{
			Registry: registry,
			Logger:   log,
		}),
		Repository: closureRepo,
		Logger:     log,
	})

	feedCache := transit.NewFeedCache(transit.FeedCacheConfig{
		Provider: translink.NewClient(translink.ClientConfig{
			APIKey:   os.Getenv("TRANSLINK_API_KEY"),
			Registry: registry,
			Logger:   log,
		}),
		Logger: log,
	})

	micromobilityService := micromobility.NewService(micromobility.ServiceConfig{
		Provider: gbfs.NewClient(gbfs.ClientConfig{
			FeedURL:  os.Getenv("GBFS_FEED_URL"),
			Registry: registry,
			Logger:   log,
		}),
		Logger: log,
	})

	refreshJob := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:               worker.DefaultRefreshConfig(),
		Logger:               log,
		WeatherService:       weatherService,
		ClosureService:       closureService,
		FeedCache:            feedCache,
		MicromobilityService: micromobilityService,
	})

	// Health and metrics endpoints
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"version": Version,
		})
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(refreshJob.MetricsSnapshot())
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("health server error")
		}
	}()

	// Pub/Sub message loops. Without configuration the worker falls back
	// to a local refresh ticker so caches stay warm in development.
	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	refreshSub := os.Getenv("REFRESH_SUBSCRIPTION")

	if projectID != "" && refreshSub != "" {
		pubsubHandler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:           projectID,
			RefreshSubscription: refreshSub,
			RewardsSubscription: os.Getenv("REWARDS_SUBSCRIPTION"),
			RefreshJob:          refreshJob,
			Logger:              log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer pubsubHandler.Close()

		go func() {
			log.Info().
				Str("project", projectID).
				Str("refresh_subscription", refreshSub).
				Msg("worker receiving messages")
			if err := pubsubHandler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub receive stopped")
				cancel()
			}
		}()
	} else {
		log.Warn().Msg("Pub/Sub not configured, falling back to local refresh ticker")
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()

			result := refreshJob.Run(ctx)
			log.Info().
				Int("successful", result.Successful).
				Int("failed", result.Failed).
				Msg("initial refresh complete")

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					result := refreshJob.Run(ctx)
					log.Info().
						Int("successful", result.Successful).
						Int("failed", result.Failed).
						Msg("scheduled refresh complete")
				}
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
