package routing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CachingProviderConfig holds configuration for the caching provider wrapper.
type CachingProviderConfig struct {
	// Provider is the wrapped directions provider.
	Provider Provider

	// Logger for cache operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache raw directions responses (default: 5 minutes).
	// Only raw upstream data is cached; computed route sets never are.
	CacheTTL time.Duration

	// CacheKeyPrecision is the coordinate quantum for cache keys in degrees
	// (default: 0.0001 ~ 11m). Requests whose endpoints round to the same
	// quantum share cached data; anything coarser would hand riders a route
	// that starts blocks away from where they stand.
	CacheKeyPrecision float64

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 15 minutes).
	StaleIfErrorTTL time.Duration

	// CleanupInterval is how often to clean up expired entries (default: 5 minutes).
	CleanupInterval time.Duration
}

// CachingProvider wraps a directions provider with a short-lived cache keyed
// on quantized endpoints. It implements Provider and is safe for concurrent
// use; a fetch for a given key holds the cache lock, so concurrent identical
// requests share one upstream call.
type CachingProvider struct {
	provider        Provider
	logger          zerolog.Logger
	cacheTTL        time.Duration
	keyPrecision    float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration

	mu          sync.RWMutex
	cache       map[string]*cachedDirections
	lastCleanup time.Time
}

type cachedDirections struct {
	response  *DirectionsResponse
	fetchedAt time.Time
	expiresAt time.Time
}

// NewCachingProvider creates a caching wrapper around a directions provider.
func NewCachingProvider(cfg CachingProviderConfig) *CachingProvider {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	keyPrecision := cfg.CacheKeyPrecision
	if keyPrecision == 0 {
		keyPrecision = 0.0001 // ~11m at equator
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 15 * time.Minute
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}

	return &CachingProvider{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		keyPrecision:    keyPrecision,
		staleIfErrorTTL: staleIfErrorTTL,
		cleanupInterval: cleanupInterval,
		cache:           make(map[string]*cachedDirections),
	}
}

// Name returns the wrapped provider name.
func (s *CachingProvider) Name() string {
	return s.provider.Name()
}

// GetDirections returns directions, served from cache when fresh.
func (s *CachingProvider) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	if err := req.Origin.Validate(); err != nil {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_ORIGIN",
			Message:  "invalid origin coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}
	if err := req.Destination.Validate(); err != nil {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_DESTINATION",
			Message:  "invalid destination coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}

	cacheKey := s.cacheKey(req)

	s.mu.RLock()
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cache hit for directions")
		return cached.response, nil
	}
	s.mu.RUnlock()

	return s.fetchDirections(ctx, req, cacheKey)
}

// fetchDirections fetches directions from the provider and updates the cache.
func (s *CachingProvider) fetchDirections(ctx context.Context, req DirectionsRequest, cacheKey string) (*DirectionsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check cache (prevents thundering herd)
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cache hit after double-check")
		return cached.response, nil
	}

	s.logger.Debug().
		Str("mode", string(req.Mode)).
		Int("waypoints", len(req.Waypoints)).
		Str("provider", s.provider.Name()).
		Msg("fetching directions from provider")

	resp, err := s.provider.GetDirections(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).
			Str("mode", string(req.Mode)).
			Msg("failed to fetch directions")

		// Stale-if-error: keep serving the last good answer for a while.
		if cached, ok := s.cache[cacheKey]; ok {
			if time.Now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
				s.logger.Warn().
					Time("fetched_at", cached.fetchedAt).
					Str("cache_key", cacheKey).
					Msg("serving stale directions data due to provider error")
				return cached.response, nil
			}
		}

		return nil, err
	}

	now := time.Now()
	s.cache[cacheKey] = &cachedDirections{
		response:  resp,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}

	s.logger.Debug().
		Str("cache_key", cacheKey).
		Int("route_count", len(resp.Routes)).
		Msg("cached directions response")

	s.cleanupIfNeeded()

	return resp, nil
}

// cacheKey quantizes endpoints and waypoints to the key precision.
// Format: {mode}:{flags}[:dep{unix}]:{origin}:{dest}[:{waypoint}...].
func (s *CachingProvider) cacheKey(req DirectionsRequest) string {
	quant := func(lat, lng float64) string {
		qLat := math.Floor(lat/s.keyPrecision) * s.keyPrecision
		qLng := math.Floor(lng/s.keyPrecision) * s.keyPrecision
		return fmt.Sprintf("%.4f,%.4f", qLat, qLng)
	}

	var sb strings.Builder
	sb.WriteString(string(req.Mode))
	if req.AvoidHighways {
		sb.WriteString(":nohwy")
	}
	if req.Alternatives {
		sb.WriteString(":alt")
	}
	if req.DepartureTime != nil {
		// Transit answers differ by departure; never let times collide.
		fmt.Fprintf(&sb, ":dep%d", req.DepartureTime.Unix())
	}
	sb.WriteByte(':')
	sb.WriteString(quant(req.Origin.Lat, req.Origin.Lng))
	sb.WriteByte(':')
	sb.WriteString(quant(req.Destination.Lat, req.Destination.Lng))
	for _, wp := range req.Waypoints {
		sb.WriteByte(':')
		sb.WriteString(quant(wp.Lat, wp.Lng))
	}
	return sb.String()
}

// cleanupIfNeeded removes expired entries if the cleanup interval has passed.
func (s *CachingProvider) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}

	s.lastCleanup = now
	expired := 0

	for key, cached := range s.cache {
		// Remove entries that are past the stale-if-error window
		if now.After(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.cache, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired directions cache entries")
	}
}

// InvalidateCache clears all cached data.
func (s *CachingProvider) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedDirections)
}

// CacheStats returns cache statistics.
func (s *CachingProvider) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	fresh := 0
	stale := 0

	for _, c := range s.cache {
		if now.Before(c.expiresAt) {
			fresh++
		} else if now.Before(c.fetchedAt.Add(s.staleIfErrorTTL)) {
			stale++
		}
	}

	return CacheStats{
		TotalEntries: len(s.cache),
		FreshEntries: fresh,
		StaleEntries: stale,
		Provider:     s.provider.Name(),
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
	Provider     string
}
