package transit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFeedTTL is how long a decoded feed snapshot stays fresh. The
// agency republishes roughly twice a minute, so anything shorter just
// burns upstream quota.
const DefaultFeedTTL = 30 * time.Second

// FeedProvider fetches and decodes the agency's real-time feed.
type FeedProvider interface {
	FetchSnapshot(ctx context.Context) (*Snapshot, error)
	Name() string
}

// FeedCacheConfig configures a FeedCache.
type FeedCacheConfig struct {
	Provider FeedProvider
	TTL      time.Duration
	Logger   zerolog.Logger

	// Clock overrides the time source. Tests only; nil means time.Now.
	Clock func() time.Time
}

// FeedCache serves the latest feed snapshot, refreshing lazily on first
// use after the TTL expires. Concurrent callers during a refresh share a
// single upstream fetch, and a decode failure serves the previous
// snapshot rather than erroring while one exists.
type FeedCache struct {
	provider FeedProvider
	ttl      time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	snapshot *Snapshot
	cachedAt time.Time
}

// NewFeedCache creates a feed cache with the given configuration.
func NewFeedCache(cfg FeedCacheConfig) *FeedCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultFeedTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &FeedCache{
		provider: cfg.Provider,
		ttl:      cfg.TTL,
		logger:   cfg.Logger,
		now:      cfg.Clock,
	}
}

// Snapshot returns the current feed snapshot, refreshing it when stale.
func (c *FeedCache) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot != nil && c.now().Sub(c.cachedAt) < c.ttl {
		return c.snapshot, nil
	}

	snap, err := c.provider.FetchSnapshot(ctx)
	if err != nil {
		if c.snapshot != nil {
			c.logger.Warn().Err(err).
				Str("provider", c.provider.Name()).
				Time("cached_at", c.cachedAt).
				Msg("feed refresh failed, serving stale snapshot")
			return c.snapshot, nil
		}
		c.logger.Error().Err(err).
			Str("provider", c.provider.Name()).
			Msg("feed refresh failed with no cached snapshot")
		return nil, err
	}

	c.snapshot = snap
	c.cachedAt = c.now()

	c.logger.Debug().
		Str("provider", c.provider.Name()).
		Int("trip_updates", len(snap.TripUpdates)).
		Int("vehicle_positions", len(snap.VehiclePositions)).
		Int("alerts", len(snap.Alerts)).
		Msg("feed snapshot refreshed")

	return snap, nil
}

// ProviderName reports the underlying feed provider's name.
func (c *FeedCache) ProviderName() string {
	return c.provider.Name()
}

// Age reports how old the cached snapshot is, and whether one exists.
func (c *FeedCache) Age() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return 0, false
	}
	return c.now().Sub(c.cachedAt), true
}
