package transit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanroute/vanroute/internal/routing"
)

// EnricherConfig configures an Enricher.
type EnricherConfig struct {
	Static *StaticIndex
	Feed   *FeedCache
	Logger zerolog.Logger
}

// Enricher overlays real-time trip delays and service alerts onto the
// transit steps of a route. It fails open: any gap in static or real-time
// data leaves a step at its scheduled times rather than failing the route.
type Enricher struct {
	static *StaticIndex
	feed   *FeedCache
	logger zerolog.Logger
}

// NewEnricher creates a transit step enricher.
func NewEnricher(cfg EnricherConfig) *Enricher {
	return &Enricher{static: cfg.Static, feed: cfg.Feed, logger: cfg.Logger}
}

var _ routing.StepEnricher = (*Enricher)(nil)

// Enrich applies the latest feed snapshot to every transit step of the
// route in place, returning the names of the data sources it consulted.
func (e *Enricher) Enrich(ctx context.Context, route *routing.Route) []string {
	hasTransit := false
	for i := range route.Steps {
		if route.Steps[i].Transit != nil {
			hasTransit = true
			break
		}
	}
	if !hasTransit {
		return nil
	}

	snap, err := e.feed.Snapshot(ctx)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("route_id", route.ID).
			Msg("real-time feed unavailable, serving scheduled times")
		return nil
	}
	sources := []string{e.feed.ProviderName()}

	appliedDelay := 0
	for i := range route.Steps {
		step := &route.Steps[i]
		if step.Transit == nil {
			continue
		}
		appliedDelay += e.enrichStep(step, snap)
	}
	// Keep the route total equal to the sum of its step durations.
	route.TotalDurationSeconds += appliedDelay

	return sources
}

// enrichStep returns the delay in seconds it added to the step duration.
func (e *Enricher) enrichStep(step *routing.RouteStep, snap *Snapshot) int {
	td := step.Transit

	routeID := e.static.RouteIDByShortName(td.RouteShortName)
	if routeID == "" && td.RouteLongName != "" {
		routeID = e.static.RouteIDByShortName(td.RouteLongName)
	}
	if routeID == "" {
		return 0
	}

	// Alerts attach by route regardless of which bay the rider boards at.
	for _, alert := range snap.AlertsForRoute(routeID) {
		td.Alerts = append(td.Alerts, routing.ServiceAlert{
			Header:      alert.Header,
			Description: alert.Description,
			Effect:      alertEffect(alert.Effect),
		})
	}

	candidates := e.departureCandidates(td, routeID)
	if len(candidates) == 0 {
		return 0
	}

	updates := snap.TripUpdatesForRoute(routeID)
	if len(updates) == 0 {
		return 0
	}

	// The provider names the station; the feed keys on a physical bay.
	// Try every candidate bay until one of the route's trips mentions it.
	for _, stopID := range candidates {
		event, ok := matchStopEvent(updates, stopID)
		if !ok {
			continue
		}
		if !event.Time.IsZero() {
			td.RealtimeDeparture = event.Time
		} else if !td.ScheduledDeparture.IsZero() {
			td.RealtimeDeparture = td.ScheduledDeparture.Add(
				time.Duration(event.DelaySeconds) * time.Second)
		}
		delay := 0
		if event.DelaySeconds > 0 {
			td.DelaySeconds = event.DelaySeconds
			td.IsDelayed = true
			step.DurationSeconds += event.DelaySeconds
			delay = event.DelaySeconds
		}
		td.DepartureStopID = stopID
		return delay
	}
	return 0
}

// departureCandidates resolves the step's departure stop to the bays worth
// trying against the feed. The provider's own stop ID goes first, but it
// is usually an opaque place ID the feed will never mention, so the
// resolver's candidate set follows behind it.
func (e *Enricher) departureCandidates(td *routing.TransitDetails, routeID string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	add(td.DepartureStopID)
	if td.DepartureStop != "" {
		if match, err := e.static.ResolveStop(td.DepartureStop, routeID); err == nil {
			add(match.StopID)
			for _, c := range match.Candidates {
				add(c)
			}
		}
	}
	return out
}

// matchStopEvent scans the route's trip updates for a stop, preferring the
// departure event over the arrival event.
func matchStopEvent(updates []TripUpdate, stopID string) (StopTimeEvent, bool) {
	for i := range updates {
		for _, stu := range updates[i].StopTimeUpdates {
			if stu.StopID != stopID {
				continue
			}
			if stu.Departure != nil {
				return *stu.Departure, true
			}
			if stu.Arrival != nil {
				return *stu.Arrival, true
			}
		}
	}
	return StopTimeEvent{}, false
}

func alertEffect(effect AlertEffect) routing.AlertEffect {
	switch effect {
	case AlertDelay:
		return routing.AlertEffectDelay
	case AlertDetour:
		return routing.AlertEffectDetour
	case AlertReducedService:
		return routing.AlertEffectReducedService
	default:
		return routing.AlertEffectOther
	}
}
