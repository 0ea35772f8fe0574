package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanroute/vanroute/internal/closures"
	"github.com/vanroute/vanroute/internal/micromobility"
	"github.com/vanroute/vanroute/internal/transit"
	"github.com/vanroute/vanroute/internal/weather"
)

// RefreshJob handles provider cache refresh operations.
type RefreshJob struct {
	config RefreshConfig
	logger zerolog.Logger

	// Services (optional, nil if not configured)
	weatherService       *weather.Service
	closureService       *closures.Service
	feedCache            *transit.FeedCache
	micromobilityService *micromobility.Service

	// Metrics
	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRefreshes       int64
	SuccessfulRefresh    int64
	FailedRefreshes      int64
	WeatherRefresh       int64
	ClosureRefresh       int64
	TransitRefresh       int64
	MicromobilityRefresh int64

	// Reward consumption
	RewardEvents      int64
	TotalRewardPoints int64
	TotalCO2SavedKG   float64

	// Timings
	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config               RefreshConfig
	Logger               zerolog.Logger
	WeatherService       *weather.Service
	ClosureService       *closures.Service
	FeedCache            *transit.FeedCache
	MicromobilityService *micromobility.Service
}

// NewRefreshJob creates a new refresh job processor.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	config := cfg.Config
	if len(config.Targets) == 0 {
		config = DefaultRefreshConfig()
	}

	return &RefreshJob{
		config:               config,
		logger:               cfg.Logger,
		weatherService:       cfg.WeatherService,
		closureService:       cfg.ClosureService,
		feedCache:            cfg.FeedCache,
		micromobilityService: cfg.MicromobilityService,
		metrics:              &RefreshMetrics{},
	}
}

// RefreshResult contains the result of a refresh operation.
type RefreshResult struct {
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	TotalPoints int
	Successful  int
	Failed      int
	Errors      []RefreshError
}

// RefreshError represents an error during refresh.
type RefreshError struct {
	Provider string
	Point    Point
	Error    string
}

// Run executes the refresh job for all configured targets. Point-based
// providers (weather) are refreshed per point; region-wide providers
// (closures, transit, micromobility) are refreshed once.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	startTime := time.Now()
	result := &RefreshResult{
		StartTime:   startTime,
		TotalPoints: j.config.TotalPoints(),
	}

	j.logger.Info().
		Int("total_points", result.TotalPoints).
		Int("concurrency", j.config.Concurrency).
		Msg("starting provider refresh job")

	// Get all points to refresh
	points := j.config.AllPoints()

	// Create work channels
	pointsChan := make(chan Point, len(points))
	resultsChan := make(chan pointResult, len(points))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			j.refreshWorker(ctx, workerID, pointsChan, resultsChan)
		}(i)
	}

	// Send points to workers
	for _, p := range points {
		pointsChan <- p
	}
	close(pointsChan)

	// Wait for workers to complete
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Collect results
	for pr := range resultsChan {
		if pr.success {
			result.Successful++
		} else {
			result.Failed++
		}
		result.Errors = append(result.Errors, pr.errors...)
	}

	// Region-wide refreshes run once per job, not per point.
	j.refreshRegionWide(ctx, result)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	// Update metrics
	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("provider refresh job completed")

	return result
}

type pointResult struct {
	point   Point
	success bool
	errors  []RefreshError
}

func (j *RefreshJob) refreshWorker(ctx context.Context, _ int, points <-chan Point, results chan<- pointResult) {
	for point := range points {
		select {
		case <-ctx.Done():
			return
		default:
			result := j.refreshPoint(ctx, point)
			results <- result
		}
	}
}

func (j *RefreshJob) refreshPoint(ctx context.Context, point Point) pointResult {
	result := pointResult{
		point:   point,
		success: true,
	}

	// Create timeout context for this point
	pointCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	// Refresh weather
	if j.config.RefreshWeather && j.weatherService != nil {
		if err := j.refreshWeather(pointCtx, point); err != nil {
			result.errors = append(result.errors, RefreshError{
				Provider: "weather",
				Point:    point,
				Error:    err.Error(),
			})
			result.success = false
		} else {
			atomic.AddInt64(&j.metrics.WeatherRefresh, 1)
		}
	}

	return result
}

func (j *RefreshJob) refreshWeather(ctx context.Context, point Point) error {
	if _, err := j.weatherService.GetCurrentWeather(ctx, point.Lat, point.Lon); err != nil {
		return err
	}
	// Warm the forecast too; future-departure route requests read it.
	_, err := j.weatherService.GetForecast(ctx, point.Lat, point.Lon)
	return err
}

// metroVancouverBounds covers the service area for the region-wide
// weather warm between per-point refreshes.
var metroVancouverBounds = weather.BoundingBox{
	MinLat: 49.00,
	MaxLat: 49.40,
	MinLon: -123.30,
	MaxLon: -122.50,
}

// RefreshRegionalWeather warms a single region-wide observation so
// requests outside the configured hot spots still find cached weather.
func (j *RefreshJob) RefreshRegionalWeather(ctx context.Context) error {
	if !j.config.RefreshWeather || j.weatherService == nil {
		return nil
	}

	j.logger.Debug().Msg("refreshing region-wide weather")

	if _, err := j.weatherService.GetWeatherForBoundingBox(ctx, metroVancouverBounds); err != nil {
		j.logger.Error().Err(err).Msg("failed to refresh region-wide weather")
		return err
	}

	atomic.AddInt64(&j.metrics.WeatherRefresh, 1)
	return nil
}

func (j *RefreshJob) refreshRegionWide(ctx context.Context, result *RefreshResult) {
	regionCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	if err := j.RefreshRegionalWeather(regionCtx); err != nil {
		result.Errors = append(result.Errors, RefreshError{Provider: "weather", Error: err.Error()})
		result.Failed++
	} else if j.config.RefreshWeather && j.weatherService != nil {
		result.Successful++
	}

	if err := j.RefreshClosures(regionCtx); err != nil {
		result.Errors = append(result.Errors, RefreshError{Provider: "closures", Error: err.Error()})
		result.Failed++
	} else if j.config.RefreshClosures && j.closureService != nil {
		result.Successful++
	}

	if err := j.RefreshTransit(regionCtx); err != nil {
		result.Errors = append(result.Errors, RefreshError{Provider: "transit", Error: err.Error()})
		result.Failed++
	} else if j.config.RefreshTransit && j.feedCache != nil {
		result.Successful++
	}

	if err := j.RefreshMicromobility(regionCtx); err != nil {
		result.Errors = append(result.Errors, RefreshError{Provider: "micromobility", Error: err.Error()})
		result.Failed++
	} else if j.config.RefreshMicromobility && j.micromobilityService != nil {
		result.Successful++
	}
}

// RefreshClosures refreshes the road closure snapshot, persisting the
// result so the API can fall back to it after a restart.
func (j *RefreshJob) RefreshClosures(ctx context.Context) error {
	if !j.config.RefreshClosures || j.closureService == nil {
		return nil
	}

	j.logger.Debug().Msg("refreshing road closures")

	if err := j.closureService.RefreshSnapshot(ctx); err != nil {
		j.logger.Error().Err(err).Msg("failed to refresh road closures")
		return err
	}

	atomic.AddInt64(&j.metrics.ClosureRefresh, 1)
	return nil
}

// RefreshTransit warms the realtime transit feed cache.
func (j *RefreshJob) RefreshTransit(ctx context.Context) error {
	if !j.config.RefreshTransit || j.feedCache == nil {
		return nil
	}

	j.logger.Debug().Msg("refreshing transit feed")

	if _, err := j.feedCache.Snapshot(ctx); err != nil {
		j.logger.Error().Err(err).Msg("failed to refresh transit feed")
		return err
	}

	atomic.AddInt64(&j.metrics.TransitRefresh, 1)
	return nil
}

// RefreshMicromobility warms the shared-vehicle snapshot. The probe point
// is arbitrary: fetching availability anywhere refreshes the fleet cache.
func (j *RefreshJob) RefreshMicromobility(ctx context.Context) error {
	if !j.config.RefreshMicromobility || j.micromobilityService == nil {
		return nil
	}

	j.logger.Debug().Msg("refreshing shared vehicle snapshot")

	probe := Point{Lat: 49.2827, Lon: -123.1207}
	if _, err := j.micromobilityService.HasVehiclesNear(ctx, probe.Lat, probe.Lon); err != nil {
		j.logger.Error().Err(err).Msg("failed to refresh shared vehicles")
		return err
	}

	atomic.AddInt64(&j.metrics.MicromobilityRefresh, 1)
	return nil
}

// RecordReward folds a consumed route completion event into the metrics.
func (j *RefreshJob) RecordReward(points int, co2SavedKG float64) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.RewardEvents++
	j.metrics.TotalRewardPoints += int64(points)
	j.metrics.TotalCO2SavedKG += co2SavedKG
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRefreshes++
	j.metrics.SuccessfulRefresh += int64(result.Successful)
	j.metrics.FailedRefreshes += int64(result.Failed)
	j.metrics.LastRefreshAt = result.EndTime
	j.metrics.LastRefreshDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRefreshes:       j.metrics.TotalRefreshes,
		SuccessfulRefresh:    j.metrics.SuccessfulRefresh,
		FailedRefreshes:      j.metrics.FailedRefreshes,
		WeatherRefresh:       atomic.LoadInt64(&j.metrics.WeatherRefresh),
		ClosureRefresh:       atomic.LoadInt64(&j.metrics.ClosureRefresh),
		TransitRefresh:       atomic.LoadInt64(&j.metrics.TransitRefresh),
		MicromobilityRefresh: atomic.LoadInt64(&j.metrics.MicromobilityRefresh),
		RewardEvents:         j.metrics.RewardEvents,
		TotalRewardPoints:    j.metrics.TotalRewardPoints,
		TotalCO2SavedKG:      j.metrics.TotalCO2SavedKG,
		LastRefreshAt:        j.metrics.LastRefreshAt,
		LastRefreshDuration:  j.metrics.LastRefreshDuration,
		TotalDuration:        j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_refreshes":       m.TotalRefreshes,
		"successful_refreshes":  m.SuccessfulRefresh,
		"failed_refreshes":      m.FailedRefreshes,
		"weather_refreshes":     m.WeatherRefresh,
		"closure_refreshes":     m.ClosureRefresh,
		"transit_refreshes":     m.TransitRefresh,
		"vehicle_refreshes":     m.MicromobilityRefresh,
		"reward_events":         m.RewardEvents,
		"total_reward_points":   m.TotalRewardPoints,
		"total_co2_saved_kg":    m.TotalCO2SavedKG,
		"last_refresh_at":       m.LastRefreshAt,
		"last_refresh_duration": m.LastRefreshDuration.String(),
		"total_duration":        m.TotalDuration.String(),
	}
}
