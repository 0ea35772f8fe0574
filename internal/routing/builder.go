package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vanroute/vanroute/internal/micromobility"
	"github.com/vanroute/vanroute/internal/weather"
	"github.com/vanroute/vanroute/pkg/geo"
)

// sustainabilityPointsPerKM awards points per kilometer traveled by mode.
var sustainabilityPointsPerKM = map[TransportMode]int{
	ModeWalk:         15,
	ModeBike:         10,
	ModeScooter:      8,
	ModeBus:          8,
	ModeRail:         8,
	ModeFerry:        8,
	ModeCommuterRail: 8,
	ModeCar:          0,
}

// travelModeFor maps a transport mode to the provider's travel mode.
// Scooter routing approximates bicycling; all transit modes share one
// provider mode and are reclassified per step from the vehicle type.
func travelModeFor(mode TransportMode) TravelMode {
	switch mode {
	case ModeWalk:
		return TravelWalking
	case ModeBike, ModeScooter:
		return TravelBicycling
	case ModeCar:
		return TravelDriving
	case ModeBus, ModeRail, ModeFerry, ModeCommuterRail:
		return TravelTransit
	default:
		return TravelDriving
	}
}

// BuilderConfig holds configuration for the candidate builder.
type BuilderConfig struct {
	// Provider is the upstream directions provider (required).
	Provider Provider

	// Weather supplies current conditions for active-mode duration
	// penalties (optional, nil disables weather adjustment).
	Weather *weather.Service

	// Micromobility gates the scooter mode on vehicle availability
	// near the origin (optional, nil skips the check).
	Micromobility *micromobility.Service

	// Logger for builder operations.
	Logger zerolog.Logger
}

// CandidateBuilder issues one directions request per transport mode and
// converts provider legs/steps into the internal route model.
type CandidateBuilder struct {
	provider      Provider
	weather       *weather.Service
	micromobility *micromobility.Service
	logger        zerolog.Logger
}

// NewCandidateBuilder creates a candidate builder.
func NewCandidateBuilder(cfg BuilderConfig) *CandidateBuilder {
	return &CandidateBuilder{
		provider:      cfg.Provider,
		weather:       cfg.Weather,
		micromobility: cfg.Micromobility,
		logger:        cfg.Logger,
	}
}

// ProviderName returns the underlying directions provider name.
func (b *CandidateBuilder) ProviderName() string {
	return b.provider.Name()
}

// Conditions is the per-request real-time context fetched once and shared
// across all per-mode conversions.
type Conditions struct {
	Weather *weather.Observation
	Sources []string
}

// FetchConditions gathers weather once per request, using the forecast
// when the departure is far enough out. Provider failure degrades to
// empty conditions, never an error.
func (b *CandidateBuilder) FetchConditions(ctx context.Context, origin geo.Point, departure *time.Time) Conditions {
	cond := Conditions{}

	if b.weather != nil {
		at := time.Time{}
		if departure != nil {
			at = *departure
		}
		obs, err := b.weather.GetConditionsAt(ctx, origin.Lat, origin.Lng, at)
		if err != nil {
			b.logger.Warn().Err(err).Msg("weather unavailable, routing without conditions")
		} else {
			cond.Weather = obs
			cond.Sources = append(cond.Sources, b.weather.ProviderName())
		}
	}

	return cond
}

// BuildForMode requests directions for one transport mode and converts every
// returned alternative. A provider error or empty result yields (nil, err)
// and must not abort the other modes.
func (b *CandidateBuilder) BuildForMode(ctx context.Context, req Request, mode TransportMode, cond Conditions) ([]*Route, error) {
	if mode == ModeScooter && b.micromobility != nil {
		available, err := b.micromobility.HasVehiclesNear(ctx, req.Origin.Lat, req.Origin.Lng)
		if err != nil {
			b.logger.Warn().Err(err).Msg("micromobility availability unknown, assuming available")
		} else if !available {
			return nil, fmt.Errorf("%w: no shared vehicles near origin", ErrNoRouteFound)
		}
	}

	dirReq := DirectionsRequest{
		Origin:        req.Origin,
		Destination:   req.Destination,
		Mode:          travelModeFor(mode),
		AvoidHighways: req.AvoidHighways,
		Alternatives:  true,
		DepartureTime: req.DepartureTime,
	}

	resp, err := b.provider.GetDirections(ctx, dirReq)
	if err != nil {
		return nil, err
	}
	if len(resp.Routes) == 0 {
		return nil, ErrNoRouteFound
	}

	return b.convertAll(req, mode, resp.Routes, cond), nil
}

// Detour re-requests directions constrained to pass near the given
// waypoints. Used by the closure avoidance filter; call volume is bounded
// by the caller.
func (b *CandidateBuilder) Detour(ctx context.Context, req Request, cond Conditions) DetourFunc {
	return func(ctx context.Context, mode TransportMode, waypoints []geo.Point) ([]*Route, error) {
		dirReq := DirectionsRequest{
			Origin:        req.Origin,
			Destination:   req.Destination,
			Mode:          travelModeFor(mode),
			Waypoints:     waypoints,
			AvoidHighways: req.AvoidHighways,
			DepartureTime: req.DepartureTime,
		}

		resp, err := b.provider.GetDirections(ctx, dirReq)
		if err != nil {
			return nil, err
		}
		return b.convertAll(req, mode, resp.Routes, cond), nil
	}
}

func (b *CandidateBuilder) convertAll(req Request, mode TransportMode, provRoutes []ProviderRoute, cond Conditions) []*Route {
	routes := make([]*Route, 0, len(provRoutes))
	for i := range provRoutes {
		route := b.convertRoute(req, mode, &provRoutes[i], cond)
		if route == nil {
			continue
		}
		if !route.Contiguous() {
			b.logger.Warn().
				Str("route_id", route.ID).
				Str("mode", string(mode)).
				Msg("provider returned non-contiguous step geometry")
		}
		if mode != ModeWalk && walkDistance(route) > req.MaxWalkingDistance {
			b.logger.Debug().
				Str("mode", string(mode)).
				Float64("walk_distance", walkDistance(route)).
				Float64("cap", req.MaxWalkingDistance).
				Msg("dropping candidate over walking-distance cap")
			continue
		}
		routes = append(routes, route)
	}
	return routes
}

// convertRoute flattens provider legs/steps into RouteSteps. Transit legs
// arrive as mixed walk+transit step sequences under one travel mode; each
// step is classified individually.
func (b *CandidateBuilder) convertRoute(req Request, mode TransportMode, pr *ProviderRoute, cond Conditions) *Route {
	var steps []RouteStep
	var totalDistance float64
	var totalDuration, totalPoints int

	for li := range pr.Legs {
		leg := &pr.Legs[li]
		for si := range leg.Steps {
			ps := &leg.Steps[si]
			stepMode := classifyStep(mode, ps)

			duration := ps.DurationSeconds
			if stepMode.IsActive() && cond.Weather != nil {
				duration = int(float64(duration) * cond.Weather.RoutingPenalty())
			}

			step := RouteStep{
				Mode:            stepMode,
				DistanceMeters:  ps.DistanceMeters,
				DurationSeconds: duration,
				Start:           ps.Start,
				End:             ps.End,
				Polyline:        ps.Polyline,
				Instruction:     ps.Instruction,
				Effort:          effortLevel(stepMode, ps.DistanceMeters, cond.Weather),
				Sustainability:  sustainabilityPoints(stepMode, ps.DistanceMeters),
			}

			if ps.Transit != nil {
				step.Transit = &TransitDetails{
					RouteShortName:     ps.Transit.RouteShortName,
					RouteLongName:      ps.Transit.RouteLongName,
					VehicleKind:        vehicleKind(ps.Transit.VehicleType, ps.Transit.VehicleKind),
					DepartureStop:      ps.Transit.DepartureStop,
					DepartureStopID:    ps.Transit.DepartureStopID,
					ArrivalStop:        ps.Transit.ArrivalStop,
					ArrivalStopID:      ps.Transit.ArrivalStopID,
					ScheduledDeparture: ps.Transit.ScheduledDeparture,
					ScheduledArrival:   ps.Transit.ScheduledArrival,
					StopCount:          ps.Transit.StopCount,
					Headsign:           ps.Transit.Headsign,
				}
			}

			steps = append(steps, step)
			totalDistance += step.DistanceMeters
			totalDuration += step.DurationSeconds
			totalPoints += step.Sustainability
		}
	}

	if len(steps) == 0 {
		return nil
	}

	preference := PrefFastest
	if len(req.Preferences) > 0 {
		preference = req.Preferences[0]
	}

	return &Route{
		ID:                   uuid.New().String(),
		Origin:               req.Origin,
		Destination:          req.Destination,
		Steps:                steps,
		TotalDistanceMeters:  totalDistance,
		TotalDurationSeconds: totalDuration,
		SustainabilityPoints: totalPoints,
		Preference:           preference,
	}
}

// classifyStep resolves the actual transport mode of a provider step. For
// transit requests the provider interleaves walking access steps with the
// transit ride; the ride's vehicle type selects the concrete transit mode.
func classifyStep(requested TransportMode, ps *ProviderStep) TransportMode {
	if ps.Transit != nil {
		return transitModeFor(ps.Transit.VehicleType)
	}

	switch ps.TravelMode {
	case TravelWalking:
		return ModeWalk
	case TravelBicycling:
		if requested == ModeScooter {
			return ModeScooter
		}
		return ModeBike
	case TravelDriving:
		return ModeCar
	case TravelTransit:
		// Transit travel mode without transit details is an access walk.
		return ModeWalk
	default:
		return requested
	}
}

// transitModeFor maps provider vehicle type codes to transit modes.
func transitModeFor(vehicleType string) TransportMode {
	switch vehicleType {
	case "SUBWAY", "METRO_RAIL", "HEAVY_RAIL", "RAIL", "TRAM":
		return ModeRail
	case "FERRY":
		return ModeFerry
	case "COMMUTER_TRAIN":
		return ModeCommuterRail
	default:
		return ModeBus
	}
}

// vehicleKind maps the provider vehicle type to the regional fleet name.
func vehicleKind(vehicleType, fallback string) string {
	switch vehicleType {
	case "SUBWAY", "METRO_RAIL", "HEAVY_RAIL", "RAIL", "TRAM":
		return "SkyTrain"
	case "FERRY":
		return "SeaBus"
	case "COMMUTER_TRAIN":
		return "West Coast Express"
	case "BUS", "TROLLEYBUS", "INTERCITY_BUS":
		return "Bus"
	}
	if fallback != "" {
		return fallback
	}
	return "Bus"
}

func sustainabilityPoints(mode TransportMode, distanceMeters float64) int {
	return int(distanceMeters / 1000 * float64(sustainabilityPointsPerKM[mode]))
}

// effortLevel grades physical effort from mode, distance, and weather.
func effortLevel(mode TransportMode, distanceMeters float64, obs *weather.Observation) EffortLevel {
	effort := EffortModerate

	switch mode {
	case ModeWalk:
		if distanceMeters > 1000 {
			effort = EffortHigh
		} else if distanceMeters < 200 {
			effort = EffortLow
		}
	case ModeBike, ModeScooter:
		if distanceMeters > 5000 {
			effort = EffortHigh
		} else if distanceMeters < 500 {
			effort = EffortLow
		}
	default:
		return EffortLow
	}

	if obs != nil && mode.IsActive() && obs.RaisesEffort() {
		effort = raiseEffort(effort)
	}

	return effort
}

func raiseEffort(e EffortLevel) EffortLevel {
	switch e {
	case EffortLow:
		return EffortModerate
	default:
		return EffortHigh
	}
}

func walkDistance(r *Route) float64 {
	var d float64
	for i := range r.Steps {
		if r.Steps[i].Mode == ModeWalk {
			d += r.Steps[i].DistanceMeters
		}
	}
	return d
}

// stepKey produces a coarse spatial identity for a step, used in the route
// similarity comparison.
func stepKey(s *RouteStep) string {
	return fmt.Sprintf("%s:%.4f,%.4f:%.4f,%.4f",
		s.Mode, s.Start.Lat, s.Start.Lng, s.End.Lat, s.End.Lng)
}
