package micromobility

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanroute/vanroute/pkg/geo"
)

// DefaultSearchRadiusMeters is how far from a point a vehicle still counts
// as reachable. Matches a short walk to the pickup.
const DefaultSearchRadiusMeters = 1000.0

// Provider defines the interface for vehicle availability providers.
type Provider interface {
	// FetchVehicles fetches the current fleet availability.
	FetchVehicles(ctx context.Context) ([]Vehicle, error)

	// Name returns the provider name.
	Name() string
}

// ServiceConfig holds configuration for the micromobility service.
type ServiceConfig struct {
	// Provider is the vehicle availability provider.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache the fleet snapshot (default: 1 minute).
	// Vehicle positions churn quickly, so keep this short.
	CacheTTL time.Duration

	// SearchRadiusMeters is the pickup reach radius (default: 1000).
	SearchRadiusMeters float64
}

// Service answers vehicle availability queries against a cached fleet
// snapshot.
type Service struct {
	provider     Provider
	logger       zerolog.Logger
	cacheTTL     time.Duration
	searchRadius float64

	mu          sync.RWMutex
	snapshot    *Snapshot
	cacheExpiry time.Time
}

// NewService creates a new micromobility service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = time.Minute
	}

	searchRadius := cfg.SearchRadiusMeters
	if searchRadius <= 0 {
		searchRadius = DefaultSearchRadiusMeters
	}

	return &Service{
		provider:     cfg.Provider,
		logger:       cfg.Logger,
		cacheTTL:     cacheTTL,
		searchRadius: searchRadius,
	}
}

// ProviderName returns the underlying provider's name.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// HasVehiclesNear reports whether any available vehicle sits within the
// search radius of the given point.
func (s *Service) HasVehiclesNear(ctx context.Context, lat, lng float64) (bool, error) {
	vehicles, err := s.VehiclesNear(ctx, lat, lng)
	if err != nil {
		return false, err
	}
	return len(vehicles) > 0, nil
}

// VehiclesNear returns the available vehicles within the search radius of
// the given point.
func (s *Service) VehiclesNear(ctx context.Context, lat, lng float64) ([]Vehicle, error) {
	snap, err := s.getSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	point := geo.Point{Lat: lat, Lng: lng}
	var near []Vehicle
	for i := range snap.Vehicles {
		v := &snap.Vehicles[i]
		if !v.Available() {
			continue
		}
		if point.Distance(geo.Point{Lat: v.Lat, Lng: v.Lng}) <= s.searchRadius {
			near = append(near, *v)
		}
	}
	return near, nil
}

func (s *Service) getSnapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	if s.snapshot != nil && time.Now().Before(s.cacheExpiry) {
		snap := s.snapshot
		s.mu.RUnlock()
		return snap, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil && time.Now().Before(s.cacheExpiry) {
		return s.snapshot, nil
	}

	vehicles, err := s.provider.FetchVehicles(ctx)
	if err != nil {
		if s.snapshot != nil {
			s.logger.Warn().Err(err).
				Str("provider", s.provider.Name()).
				Msg("fleet refresh failed, serving stale snapshot")
			return s.snapshot, nil
		}
		return nil, err
	}

	s.snapshot = &Snapshot{Vehicles: vehicles, FetchedAt: time.Now()}
	s.cacheExpiry = time.Now().Add(s.cacheTTL)

	s.logger.Debug().
		Str("provider", s.provider.Name()).
		Int("vehicles", len(vehicles)).
		Msg("fleet snapshot refreshed")

	return s.snapshot, nil
}
