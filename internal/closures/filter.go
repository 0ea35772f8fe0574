package closures

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanroute/vanroute/internal/routing"
	"github.com/vanroute/vanroute/pkg/geo"
	"github.com/vanroute/vanroute/pkg/polyline"
)

const (
	// DefaultDetourOffsetMeters is how far detour waypoints sit from a
	// closure, perpendicular to the overall travel direction.
	DefaultDetourOffsetMeters = 200.0

	// DefaultMaxDetourWaypoints caps waypoint injection per detour request.
	DefaultMaxDetourWaypoints = 3
)

// FilterConfig holds configuration for the closure filter.
type FilterConfig struct {
	// Service supplies the active closure set.
	Service *Service

	// MinSeverity gates which closures block a route (default: major).
	// Minor lane and sidewalk work rarely warrants rerouting.
	MinSeverity Severity

	// ProximityMeters is the blocking distance (default: 50).
	ProximityMeters float64

	// DetourOffsetMeters is the waypoint offset distance (default: 200).
	DetourOffsetMeters float64

	// MaxDetourWaypoints caps injected waypoints (default: 3).
	MaxDetourWaypoints int

	// Logger for filter operations.
	Logger zerolog.Logger
}

// Filter screens route candidates against active closures and synthesizes
// detour candidates around them.
type Filter struct {
	service            *Service
	minSeverity        Severity
	proximityMeters    float64
	detourOffsetMeters float64
	maxDetourWaypoints int
	logger             zerolog.Logger
}

// NewFilter creates a closure filter.
func NewFilter(cfg FilterConfig) *Filter {
	minSeverity := cfg.MinSeverity
	if minSeverity == "" {
		minSeverity = SeverityMajor
	}
	proximity := cfg.ProximityMeters
	if proximity <= 0 {
		proximity = DefaultProximityMeters
	}
	offset := cfg.DetourOffsetMeters
	if offset <= 0 {
		offset = DefaultDetourOffsetMeters
	}
	maxWaypoints := cfg.MaxDetourWaypoints
	if maxWaypoints <= 0 {
		maxWaypoints = DefaultMaxDetourWaypoints
	}

	return &Filter{
		service:            cfg.Service,
		minSeverity:        minSeverity,
		proximityMeters:    proximity,
		detourOffsetMeters: offset,
		maxDetourWaypoints: maxWaypoints,
		logger:             cfg.Logger,
	}
}

var _ routing.ClosureAvoider = (*Filter)(nil)

// Avoid splits candidates into those clear of blocking closures and those
// passing through one, then re-requests detour routes around the closures
// that caused removals. Closure data being unavailable keeps every
// candidate: stale routing beats no routing.
func (f *Filter) Avoid(ctx context.Context, origin, destination geo.Point, routes []*routing.Route, requery routing.DetourFunc) routing.AvoidanceResult {
	result := routing.AvoidanceResult{}

	active := f.service.ActiveClosures(ctx, time.Now())
	blocking := make([]Closure, 0, len(active))
	for i := range active {
		if active[i].Severity.Blocks(f.minSeverity) {
			blocking = append(blocking, active[i])
		}
	}
	if status := f.service.CacheStatus(); status.HasData {
		result.DataSources = append(result.DataSources, status.Provider)
	}

	if len(blocking) == 0 {
		result.Kept = routes
		return result
	}

	hit := make(map[string]Closure)
	for _, route := range routes {
		if blockedBy, blocked := f.routeBlocked(route, blocking); blocked {
			result.Removed = append(result.Removed, route)
			for _, c := range blockedBy {
				hit[c.ID] = c
			}
			f.logger.Debug().
				Str("route_id", route.ID).
				Int("closures", len(blockedBy)).
				Msg("route candidate crosses active closure")
		} else {
			result.Kept = append(result.Kept, route)
		}
	}

	if len(result.Removed) == 0 || requery == nil {
		return result
	}

	waypoints := f.detourWaypoints(origin, destination, hit)
	if len(waypoints) == 0 {
		return result
	}

	// One detour request per mode that lost a candidate; detours that
	// still cross a closure are discarded.
	for _, mode := range removedModes(result.Removed) {
		detours, err := requery(ctx, mode, waypoints)
		if err != nil {
			f.logger.Warn().Err(err).
				Str("mode", string(mode)).
				Msg("detour request failed")
			continue
		}
		for _, detour := range detours {
			if _, blocked := f.routeBlocked(detour, blocking); blocked {
				continue
			}
			result.Detours = append(result.Detours, detour)
		}
	}

	return result
}

// routeBlocked returns the closures the route passes within the proximity
// threshold of.
func (f *Filter) routeBlocked(route *routing.Route, blocking []Closure) ([]Closure, bool) {
	var blockedBy []Closure
	for i := range blocking {
		closure := &blocking[i]
		for s := range route.Steps {
			if f.stepNearClosure(&route.Steps[s], closure) {
				blockedBy = append(blockedBy, *closure)
				break
			}
		}
	}
	return blockedBy, len(blockedBy) > 0
}

// stepNearClosure checks the step's endpoints and midpoint, then the
// decoded polyline vertices for long steps whose endpoints stay clear.
func (f *Filter) stepNearClosure(step *routing.RouteStep, closure *Closure) bool {
	if step.Start.Distance(closure.Location) < f.proximityMeters ||
		step.End.Distance(closure.Location) < f.proximityMeters ||
		step.Start.Midpoint(step.End).Distance(closure.Location) < f.proximityMeters {
		return true
	}

	if step.Polyline == "" {
		return false
	}
	// Sample at the proximity radius so a closure zone cannot fall
	// between consecutive checked points on a long step.
	for _, coord := range polyline.Sample(polyline.Decode(step.Polyline), f.proximityMeters) {
		p := geo.Point{Lat: coord.Lat, Lng: coord.Lon}
		if p.Distance(closure.Location) < f.proximityMeters {
			return true
		}
	}
	return false
}

// detourWaypoints places one waypoint per blocking closure, offset
// perpendicular to the origin-destination axis so the detour swings
// around the closure instead of through it. Closures are taken in ID
// order so identical requests always get the same waypoints.
func (f *Filter) detourWaypoints(origin, destination geo.Point, hit map[string]Closure) []geo.Point {
	ids := make([]string, 0, len(hit))
	for id := range hit {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	waypoints := make([]geo.Point, 0, f.maxDetourWaypoints)
	for _, id := range ids {
		closure := hit[id]
		if len(waypoints) >= f.maxDetourWaypoints {
			break
		}
		wp := geo.PerpendicularOffset(closure.Location, origin, destination, f.detourOffsetMeters)
		if wp.Validate() != nil {
			continue
		}
		waypoints = append(waypoints, wp)
	}
	return waypoints
}

func removedModes(removed []*routing.Route) []routing.TransportMode {
	seen := make(map[routing.TransportMode]struct{})
	var modes []routing.TransportMode
	for _, route := range removed {
		if len(route.Steps) == 0 {
			continue
		}
		mode := primaryMode(route)
		if _, ok := seen[mode]; ok {
			continue
		}
		seen[mode] = struct{}{}
		modes = append(modes, mode)
	}
	return modes
}

// primaryMode is the mode covering the most distance, which decides what
// kind of directions request can recreate the route.
func primaryMode(route *routing.Route) routing.TransportMode {
	distance := make(map[routing.TransportMode]float64)
	for i := range route.Steps {
		distance[route.Steps[i].Mode] += route.Steps[i].DistanceMeters
	}
	best := route.Steps[0].Mode
	for mode, d := range distance {
		if d > distance[best] {
			best = mode
		}
	}
	return best
}
