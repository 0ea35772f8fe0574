package closures

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Provider defines the interface for closure data providers.
type Provider interface {
	// FetchClosures fetches the current closure and construction records.
	FetchClosures(ctx context.Context) ([]Closure, error)

	// Name returns the provider name.
	Name() string
}

// ServiceConfig holds configuration for the closure service.
type ServiceConfig struct {
	// Provider is the closure data provider.
	Provider Provider

	// Repository persists the last-known-good snapshot (optional).
	Repository Repository

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache the snapshot (default: 5 minutes).
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving stale data on provider errors
	// (default: 1 hour).
	StaleIfErrorTTL time.Duration
}

// Service provides closure data with caching and persistence. Routing
// degrades to an empty closure set when every layer fails: missing closure
// data must never block route computation.
type Service struct {
	provider        Provider
	repository      Repository
	logger          zerolog.Logger
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration

	mu          sync.RWMutex
	snapshot    *Snapshot
	cacheExpiry time.Time
}

// NewService creates a new closure service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = time.Hour
	}

	return &Service{
		provider:        cfg.Provider,
		repository:      cfg.Repository,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
	}
}

// ActiveClosures returns the closures active at the given time. Failures
// fall back, in order: stale cache, persisted snapshot, empty set.
func (s *Service) ActiveClosures(ctx context.Context, at time.Time) []Closure {
	snap, err := s.getSnapshot(ctx)
	if err != nil || snap == nil {
		return nil
	}
	return snap.Active(at)
}

// GetSnapshot returns the current closure snapshot, refreshing when stale.
func (s *Service) GetSnapshot(ctx context.Context) (*Snapshot, error) {
	return s.getSnapshot(ctx)
}

func (s *Service) getSnapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	if s.snapshot != nil && time.Now().Before(s.cacheExpiry) {
		snap := s.snapshot
		s.mu.RUnlock()
		return snap, nil
	}
	s.mu.RUnlock()

	return s.refreshSnapshot(ctx)
}

// RefreshSnapshot refreshes the snapshot when stale, persisting the result.
func (s *Service) RefreshSnapshot(ctx context.Context) error {
	_, err := s.refreshSnapshot(ctx)
	return err
}

func (s *Service) refreshSnapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if s.snapshot != nil && time.Now().Before(s.cacheExpiry) {
		return s.snapshot, nil
	}

	records, err := s.provider.FetchClosures(ctx)
	if err != nil {
		return s.fallback(ctx, err)
	}

	snap := &Snapshot{Closures: records, FetchedAt: time.Now()}
	s.snapshot = snap
	s.cacheExpiry = time.Now().Add(s.cacheTTL)

	s.logger.Debug().
		Str("provider", s.provider.Name()).
		Int("closures", len(records)).
		Msg("closure snapshot refreshed")

	if s.repository != nil {
		if err := s.repository.SaveSnapshot(ctx, snap); err != nil {
			s.logger.Warn().Err(err).Msg("persisting closure snapshot failed")
		}
	}

	return snap, nil
}

// fallback serves the best available data after a provider failure:
// the in-memory snapshot while it is within the stale window, otherwise
// the persisted last-known-good snapshot. Caller holds the lock.
func (s *Service) fallback(ctx context.Context, cause error) (*Snapshot, error) {
	if s.snapshot != nil && time.Since(s.snapshot.FetchedAt) < s.staleIfErrorTTL {
		s.logger.Warn().Err(cause).
			Time("fetched_at", s.snapshot.FetchedAt).
			Msg("closure refresh failed, serving stale snapshot")
		// Push the expiry forward so every request does not retry upstream.
		s.cacheExpiry = time.Now().Add(time.Minute)
		return s.snapshot, nil
	}

	if s.repository != nil {
		snap, err := s.repository.LatestSnapshot(ctx)
		if err == nil {
			s.logger.Warn().Err(cause).
				Time("fetched_at", snap.FetchedAt).
				Msg("closure refresh failed, serving persisted snapshot")
			s.snapshot = snap
			s.cacheExpiry = time.Now().Add(time.Minute)
			return snap, nil
		}
	}

	s.logger.Error().Err(cause).Msg("closure data unavailable from all layers")
	return nil, cause
}

// CacheStatus reports the current cache state for the ops endpoint.
func (s *Service) CacheStatus() CacheStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return CacheStatus{}
	}

	return CacheStatus{
		HasData:      true,
		FetchedAt:    s.snapshot.FetchedAt,
		ExpiresAt:    s.cacheExpiry,
		ClosureCount: len(s.snapshot.Closures),
		Provider:     s.provider.Name(),
	}
}

// CacheStatus represents the current state of the closure cache.
type CacheStatus struct {
	HasData      bool
	FetchedAt    time.Time
	ExpiresAt    time.Time
	ClosureCount int
	Provider     string
}
