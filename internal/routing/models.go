// Package routing computes preference-ranked multi-modal route
// recommendations. Raw route geometry comes from an upstream directions
// provider; this package converts provider output into the internal route
// model, applies real-time corrections, and scores the candidates.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/vanroute/vanroute/pkg/geo"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the directions provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("directions provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInvalidRequest indicates the route request failed validation.
	ErrInvalidRequest = errors.New("invalid route request")
)

// TransportMode is a supported mode of travel.
type TransportMode string

const (
	ModeWalk         TransportMode = "walking"
	ModeBike         TransportMode = "biking"
	ModeScooter      TransportMode = "scooter"
	ModeCar          TransportMode = "car"
	ModeBus          TransportMode = "bus"
	ModeRail         TransportMode = "rail"          // SkyTrain
	ModeFerry        TransportMode = "ferry"         // SeaBus
	ModeCommuterRail TransportMode = "commuter_rail" // West Coast Express
)

// AllModes lists every supported transport mode, in presentation order.
func AllModes() []TransportMode {
	return []TransportMode{
		ModeWalk, ModeBike, ModeScooter, ModeCar,
		ModeBus, ModeRail, ModeFerry, ModeCommuterRail,
	}
}

// Valid reports whether m is a known transport mode.
func (m TransportMode) Valid() bool {
	switch m {
	case ModeWalk, ModeBike, ModeScooter, ModeCar, ModeBus, ModeRail, ModeFerry, ModeCommuterRail:
		return true
	}
	return false
}

// IsTransit reports whether the mode is operated by the transit agency.
func (m TransportMode) IsTransit() bool {
	switch m {
	case ModeBus, ModeRail, ModeFerry, ModeCommuterRail:
		return true
	}
	return false
}

// IsActive reports whether the mode is human-powered (or near enough).
func (m TransportMode) IsActive() bool {
	return m == ModeWalk || m == ModeBike || m == ModeScooter
}

// Preference is a named optimization objective selecting a scoring weight vector.
type Preference string

const (
	PrefFastest         Preference = "fastest"
	PrefSafest          Preference = "safest"
	PrefEnergyEfficient Preference = "energy_efficient"
	PrefScenic          Preference = "scenic"
	PrefHealthy         Preference = "healthy"
	PrefCheapest        Preference = "cheapest"
)

// AllPreferences lists every supported preference, in presentation order.
func AllPreferences() []Preference {
	return []Preference{
		PrefFastest, PrefSafest, PrefEnergyEfficient,
		PrefScenic, PrefHealthy, PrefCheapest,
	}
}

// Valid reports whether p is a known preference.
func (p Preference) Valid() bool {
	switch p {
	case PrefFastest, PrefSafest, PrefEnergyEfficient, PrefScenic, PrefHealthy, PrefCheapest:
		return true
	}
	return false
}

// EffortLevel categorizes the physical effort of a step.
type EffortLevel string

const (
	EffortLow      EffortLevel = "low"
	EffortModerate EffortLevel = "moderate"
	EffortHigh     EffortLevel = "high"
)

// AlertEffect classifies a service alert.
type AlertEffect string

const (
	AlertEffectDelay          AlertEffect = "delay"
	AlertEffectDetour         AlertEffect = "detour"
	AlertEffectReducedService AlertEffect = "reduced_service"
	AlertEffectOther          AlertEffect = "other"
)

// ServiceAlert is a rider-facing advisory attached to a transit step.
type ServiceAlert struct {
	Header      string
	Description string
	Effect      AlertEffect
}

// TransitDetails carries schedule and real-time overlay data for a transit step.
type TransitDetails struct {
	RouteShortName string
	RouteLongName  string
	VehicleKind    string // e.g. "Bus", "SkyTrain", "SeaBus"

	DepartureStop   string
	DepartureStopID string
	ArrivalStop     string
	ArrivalStopID   string

	ScheduledDeparture time.Time
	ScheduledArrival   time.Time
	StopCount          int
	Headsign           string

	// Real-time overlay. Zero values mean the feed had nothing for this
	// trip: absence of data is "not delayed", never "delayed by 0".
	RealtimeDeparture time.Time
	DelaySeconds      int
	IsDelayed         bool
	Alerts            []ServiceAlert
}

// RouteStep is one contiguous segment of a route in a single mode.
type RouteStep struct {
	Mode            TransportMode
	DistanceMeters  float64
	DurationSeconds int
	Start           geo.Point
	End             geo.Point
	Polyline        string // encoded polyline, optional
	Instruction     string
	Effort          EffortLevel
	Sustainability  int // points earned for this step
	Transit         *TransitDetails
}

// ContiguityToleranceMeters is the maximum allowed gap between consecutive
// step endpoints in a well-formed route.
const ContiguityToleranceMeters = 25.0

// Route is a complete candidate from origin to destination.
type Route struct {
	ID          string
	Origin      geo.Point
	Destination geo.Point
	Steps       []RouteStep

	TotalDistanceMeters  float64
	TotalDurationSeconds int
	SustainabilityPoints int
	Preference           Preference

	// Derived attribute scores, all in [0,1], computed for every route
	// regardless of the requested preference.
	Scores AttributeScores
}

// AttributeScores are the normalized per-attribute route qualities.
type AttributeScores struct {
	Safety float64 `json:"safety"`
	Energy float64 `json:"energy"`
	Scenic float64 `json:"scenic"`
	Health float64 `json:"health"`
	Cost   float64 `json:"cost"` // 1 = free, 0 = most expensive
}

// Contiguous reports whether each step ends where the next begins,
// within ContiguityToleranceMeters.
func (r *Route) Contiguous() bool {
	for i := 0; i+1 < len(r.Steps); i++ {
		if r.Steps[i].End.Distance(r.Steps[i+1].Start) > ContiguityToleranceMeters {
			return false
		}
	}
	return true
}

// ModeSequence returns the ordered sequence of step modes, used as part of
// the route similarity key.
func (r *Route) ModeSequence() []TransportMode {
	seq := make([]TransportMode, len(r.Steps))
	for i := range r.Steps {
		seq[i] = r.Steps[i].Mode
	}
	return seq
}

// MaxTransitDelay returns the largest real-time delay across transit steps.
func (r *Route) MaxTransitDelay() int {
	max := 0
	for i := range r.Steps {
		if td := r.Steps[i].Transit; td != nil && td.DelaySeconds > max {
			max = td.DelaySeconds
		}
	}
	return max
}

// Request is the inbound route computation request.
type Request struct {
	Origin             geo.Point
	Destination        geo.Point
	Preferences        []Preference
	Modes              []TransportMode
	MaxWalkingDistance float64 // meters, must be positive
	AvoidHighways      bool
	DepartureTime      *time.Time
}

// FieldError describes a single invalid request field.
type FieldError struct {
	Field   string
	Message string
}

// Validate checks the request synchronously, before any upstream call.
// It returns the full list of field errors rather than stopping at the first.
func (req *Request) Validate() []FieldError {
	var errs []FieldError

	if err := req.Origin.Validate(); err != nil {
		errs = append(errs, FieldError{Field: "origin", Message: err.Error()})
	}
	if err := req.Destination.Validate(); err != nil {
		errs = append(errs, FieldError{Field: "destination", Message: err.Error()})
	}
	if len(req.Preferences) == 0 {
		errs = append(errs, FieldError{Field: "preferences", Message: "at least one preference is required"})
	}
	for _, p := range req.Preferences {
		if !p.Valid() {
			errs = append(errs, FieldError{Field: "preferences", Message: "unknown preference: " + string(p)})
		}
	}
	if len(req.Modes) == 0 {
		errs = append(errs, FieldError{Field: "transport_modes", Message: "at least one transport mode is required"})
	}
	for _, m := range req.Modes {
		if !m.Valid() {
			errs = append(errs, FieldError{Field: "transport_modes", Message: "unknown transport mode: " + string(m)})
		}
	}
	if req.MaxWalkingDistance <= 0 {
		errs = append(errs, FieldError{Field: "max_walking_distance", Message: "must be positive"})
	}

	return errs
}

// Response is the outbound result of a route computation.
type Response struct {
	RequestID      string
	TopRoutes      map[Preference]*Route
	Alternatives   []*Route
	ProcessingTime time.Duration
	DataSources    []string
	Warnings       []string
}

// TravelMode is the upstream provider's travel mode vocabulary.
type TravelMode string

const (
	TravelWalking   TravelMode = "walking"
	TravelBicycling TravelMode = "bicycling"
	TravelDriving   TravelMode = "driving"
	TravelTransit   TravelMode = "transit"
)

// DirectionsRequest is a single request to the upstream directions provider.
type DirectionsRequest struct {
	Origin        geo.Point
	Destination   geo.Point
	Mode          TravelMode
	Waypoints     []geo.Point // detour waypoints, optional
	AvoidHighways bool
	Alternatives  bool
	DepartureTime *time.Time
}

// DirectionsResponse is the provider's converted reply.
type DirectionsResponse struct {
	Routes    []ProviderRoute
	Provider  string
	FetchedAt time.Time
}

// ProviderRoute is one route alternative as returned by the provider.
type ProviderRoute struct {
	Summary string
	Legs    []ProviderLeg
}

// ProviderLeg is one leg of a provider route.
type ProviderLeg struct {
	DistanceMeters  float64
	DurationSeconds int
	Steps           []ProviderStep
}

// ProviderStep is one step of a provider leg.
type ProviderStep struct {
	TravelMode      TravelMode
	DistanceMeters  float64
	DurationSeconds int
	Start           geo.Point
	End             geo.Point
	Polyline        string
	Instruction     string
	Transit         *ProviderTransitDetails
}

// ProviderTransitDetails is the provider's raw transit leg metadata.
type ProviderTransitDetails struct {
	RouteShortName     string
	RouteLongName      string
	VehicleKind        string
	VehicleType        string // provider vehicle type code, e.g. "BUS", "SUBWAY", "FERRY"
	DepartureStop      string
	DepartureStopID    string
	DepartureLocation  geo.Point
	ArrivalStop        string
	ArrivalStopID      string
	ArrivalLocation    geo.Point
	ScheduledDeparture time.Time
	ScheduledArrival   time.Time
	StopCount          int
	Headsign           string
}

// Provider is the upstream multi-modal directions provider.
type Provider interface {
	// GetDirections retrieves route alternatives for a single travel mode.
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	// Name returns the provider identifier for logging and transparency lists.
	Name() string
}

// StepEnricher applies real-time transit overlays to a route in place and
// returns the names of data sources it consulted.
type StepEnricher interface {
	Enrich(ctx context.Context, route *Route) []string
}

// DetourFunc re-requests directions constrained to pass near the given
// waypoints. Implemented by the candidate builder; consumed by the closure
// avoidance filter.
type DetourFunc func(ctx context.Context, mode TransportMode, waypoints []geo.Point) ([]*Route, error)

// AvoidanceResult is the outcome of screening candidates against closures.
type AvoidanceResult struct {
	Kept        []*Route
	Removed     []*Route
	Detours     []*Route
	DataSources []string
}

// ClosureAvoider removes candidates that cross active closures and
// synthesizes detour candidates via waypoint injection.
type ClosureAvoider interface {
	Avoid(ctx context.Context, origin, destination geo.Point, routes []*Route, requery DetourFunc) AvoidanceResult
}

// RewardDispatcher receives the finalized top route after a response is
// built. Dispatch must never block or fail the route response.
type RewardDispatcher interface {
	Dispatch(ctx context.Context, requestID string, route *Route)
}

// Error provides detailed error information from the directions provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
