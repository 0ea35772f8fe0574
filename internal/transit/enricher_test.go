package transit_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanroute/vanroute/internal/routing"
	"github.com/vanroute/vanroute/internal/transit"
)

func newEnricher(t *testing.T, snap *transit.Snapshot, feedErr error) *transit.Enricher {
	t.Helper()

	provider := &mockFeedProvider{}
	if feedErr != nil {
		provider.errs = []error{feedErr}
	} else {
		provider.snapshots = []*transit.Snapshot{snap}
	}

	idx := transit.NewStaticIndex(writeStaticFixture(t), zerolog.Nop())
	require.NoError(t, idx.Load())

	return transit.NewEnricher(transit.EnricherConfig{
		Static: idx,
		Feed: transit.NewFeedCache(transit.FeedCacheConfig{
			Provider: provider,
			Logger:   zerolog.Nop(),
		}),
		Logger: zerolog.Nop(),
	})
}

func busRoute(departure time.Time) *routing.Route {
	return &routing.Route{
		ID:                   "candidate-1",
		TotalDurationSeconds: 1200,
		Steps: []routing.RouteStep{
			{
				Mode:            routing.ModeWalk,
				DurationSeconds: 300,
			},
			{
				Mode:            routing.ModeBus,
				DurationSeconds: 900,
				Transit: &routing.TransitDetails{
					RouteShortName:     "99",
					DepartureStop:      "Commercial-Broadway Station",
					ScheduledDeparture: departure,
				},
			},
		},
	}
}

func TestEnrichAppliesDelayFromMatchingBay(t *testing.T) {
	departure := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	snap := &transit.Snapshot{
		TripUpdates: []transit.TripUpdate{
			{
				TripID:  "T991",
				RouteID: "R99",
				StopTimeUpdates: []transit.StopTimeUpdate{
					{StopID: "9002", Departure: &transit.StopTimeEvent{DelaySeconds: 120}},
				},
			},
		},
	}
	route := busRoute(departure)

	sources := newEnricher(t, snap, nil).Enrich(context.Background(), route)

	assert.Equal(t, []string{"mock-feed"}, sources)
	td := route.Steps[1].Transit
	require.NotNil(t, td)
	assert.True(t, td.IsDelayed)
	assert.Equal(t, 120, td.DelaySeconds)
	assert.Equal(t, departure.Add(2*time.Minute), td.RealtimeDeparture)
	assert.Equal(t, "9002", td.DepartureStopID)
	assert.Equal(t, 900+120, route.Steps[1].DurationSeconds)
	assert.Equal(t, 120, route.MaxTransitDelay())
}

func TestEnrichKeepsRouteTotalInSyncWithSteps(t *testing.T) {
	snap := &transit.Snapshot{
		TripUpdates: []transit.TripUpdate{
			{
				RouteID: "R99",
				StopTimeUpdates: []transit.StopTimeUpdate{
					{StopID: "9002", Departure: &transit.StopTimeEvent{DelaySeconds: 120}},
				},
			},
		},
	}
	route := busRoute(time.Time{})

	newEnricher(t, snap, nil).Enrich(context.Background(), route)

	stepSum := 0
	for _, s := range route.Steps {
		stepSum += s.DurationSeconds
	}
	assert.Equal(t, 1200+120, route.TotalDurationSeconds)
	assert.Equal(t, stepSum, route.TotalDurationSeconds)
}

func TestEnrichResolvesPastOpaqueProviderStopID(t *testing.T) {
	// Directions providers fill the stop ID with their own place ID,
	// which never matches a feed bay; the name-based candidates must
	// still be tried behind it.
	snap := &transit.Snapshot{
		TripUpdates: []transit.TripUpdate{
			{
				RouteID: "R99",
				StopTimeUpdates: []transit.StopTimeUpdate{
					{StopID: "9002", Departure: &transit.StopTimeEvent{DelaySeconds: 180}},
				},
			},
		},
	}
	route := busRoute(time.Time{})
	route.Steps[1].Transit.DepartureStopID = "ChIJtwZCJEZxhlQRy7nf"

	newEnricher(t, snap, nil).Enrich(context.Background(), route)

	td := route.Steps[1].Transit
	assert.True(t, td.IsDelayed)
	assert.Equal(t, 180, td.DelaySeconds)
	assert.Equal(t, "9002", td.DepartureStopID)
}

func TestEnrichPrefersDepartureOverArrival(t *testing.T) {
	snap := &transit.Snapshot{
		TripUpdates: []transit.TripUpdate{
			{
				RouteID: "R99",
				StopTimeUpdates: []transit.StopTimeUpdate{
					{
						StopID:    "9002",
						Arrival:   &transit.StopTimeEvent{DelaySeconds: 60},
						Departure: &transit.StopTimeEvent{DelaySeconds: 90},
					},
				},
			},
		},
	}
	route := busRoute(time.Time{})

	newEnricher(t, snap, nil).Enrich(context.Background(), route)

	assert.Equal(t, 90, route.Steps[1].Transit.DelaySeconds)
}

func TestEnrichFailsOpenWhenNoBayMatches(t *testing.T) {
	// The feed mentions a bay our station does not have; the step keeps
	// its scheduled times and is never reported as "delayed by zero".
	snap := &transit.Snapshot{
		TripUpdates: []transit.TripUpdate{
			{
				RouteID: "R99",
				StopTimeUpdates: []transit.StopTimeUpdate{
					{StopID: "9999", Departure: &transit.StopTimeEvent{DelaySeconds: 300}},
				},
			},
		},
	}
	route := busRoute(time.Time{})

	sources := newEnricher(t, snap, nil).Enrich(context.Background(), route)

	assert.Equal(t, []string{"mock-feed"}, sources)
	td := route.Steps[1].Transit
	assert.False(t, td.IsDelayed)
	assert.Zero(t, td.DelaySeconds)
	assert.Equal(t, 900, route.Steps[1].DurationSeconds)
}

func TestEnrichOnTimeTripIsNotDelayed(t *testing.T) {
	snap := &transit.Snapshot{
		TripUpdates: []transit.TripUpdate{
			{
				RouteID: "R99",
				StopTimeUpdates: []transit.StopTimeUpdate{
					{StopID: "9002", Departure: &transit.StopTimeEvent{DelaySeconds: 0}},
				},
			},
		},
	}
	route := busRoute(time.Time{})

	newEnricher(t, snap, nil).Enrich(context.Background(), route)

	td := route.Steps[1].Transit
	assert.False(t, td.IsDelayed)
	assert.Equal(t, "9002", td.DepartureStopID)
}

func TestEnrichAttachesRouteAlerts(t *testing.T) {
	snap := &transit.Snapshot{
		Alerts: []transit.Alert{
			{
				Header:   "99 B-Line detour",
				Effect:   transit.AlertDetour,
				RouteIDs: []string{"R99"},
			},
			{
				Header:   "Canada Line delays",
				Effect:   transit.AlertDelay,
				RouteIDs: []string{"R980"},
			},
		},
	}
	route := busRoute(time.Time{})

	newEnricher(t, snap, nil).Enrich(context.Background(), route)

	td := route.Steps[1].Transit
	require.Len(t, td.Alerts, 1)
	assert.Equal(t, "99 B-Line detour", td.Alerts[0].Header)
	assert.Equal(t, routing.AlertEffectDetour, td.Alerts[0].Effect)
}

func TestEnrichFeedFailureServesScheduledTimes(t *testing.T) {
	route := busRoute(time.Time{})

	sources := newEnricher(t, nil, transit.ErrFeedUnavailable).Enrich(context.Background(), route)

	assert.Empty(t, sources)
	assert.False(t, route.Steps[1].Transit.IsDelayed)
}

func TestEnrichSkipsRoutesWithoutTransit(t *testing.T) {
	route := &routing.Route{
		Steps: []routing.RouteStep{{Mode: routing.ModeBike, DurationSeconds: 600}},
	}

	sources := newEnricher(t, &transit.Snapshot{}, nil).Enrich(context.Background(), route)

	assert.Empty(t, sources)
}
