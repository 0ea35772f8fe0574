package models

// RouteComputeRequest is the request body for computing routes.
type RouteComputeRequest struct {
	Origin             *Point     `json:"origin"`
	Destination        *Point     `json:"destination"`
	Preferences        []string   `json:"preferences"`
	TransportModes     []string   `json:"transport_modes"`
	MaxWalkingDistance float64    `json:"max_walking_distance"`
	AvoidHighways      bool       `json:"avoid_highways,omitempty"`
	DepartureTime      *Timestamp `json:"departure_time,omitempty"`
}

// RouteComputeResponse is the response for route computation.
type RouteComputeResponse struct {
	RequestID        string                 `json:"request_id"`
	GeneratedAt      Timestamp              `json:"generated_at"`
	TopRoutes        map[string]RouteOption `json:"top_routes"`
	Alternatives     []RouteOption          `json:"alternatives,omitempty"`
	ProcessingTimeMS int64                  `json:"processing_time_ms"`
	DataSources      []string               `json:"data_sources"`
	Warnings         []string               `json:"warnings,omitempty"`
}

// RouteOption represents a single route alternative.
type RouteOption struct {
	ID                   string          `json:"id"`
	Preference           string          `json:"preference,omitempty"`
	DurationSeconds      int             `json:"duration_seconds"`
	DistanceMeters       float64         `json:"distance_meters"`
	SustainabilityPoints int             `json:"sustainability_points"`
	Scores               AttributeScores `json:"scores"`
	Steps                []RouteStep     `json:"steps"`
}

// AttributeScores are the normalized per-attribute route qualities.
type AttributeScores struct {
	Safety float64 `json:"safety"`
	Energy float64 `json:"energy"`
	Scenic float64 `json:"scenic"`
	Health float64 `json:"health"`
	Cost   float64 `json:"cost"`
}

// RouteStep represents a segment of a route in a single mode.
type RouteStep struct {
	Mode            string      `json:"mode"`
	DistanceMeters  float64     `json:"distance_meters"`
	DurationSeconds int         `json:"duration_seconds"`
	Start           Point       `json:"start"`
	End             Point       `json:"end"`
	Polyline        string      `json:"polyline,omitempty"`
	Instruction     string      `json:"instruction,omitempty"`
	Effort          string      `json:"effort,omitempty"`
	Transit         *TransitLeg `json:"transit,omitempty"`
}

// TransitLeg contains transit-specific information for a step.
type TransitLeg struct {
	RouteShortName     string         `json:"route_short_name,omitempty"`
	RouteLongName      string         `json:"route_long_name,omitempty"`
	VehicleKind        string         `json:"vehicle_kind,omitempty"`
	Headsign           string         `json:"headsign,omitempty"`
	DepartureStop      string         `json:"departure_stop,omitempty"`
	DepartureStopID    string         `json:"departure_stop_id,omitempty"`
	ArrivalStop        string         `json:"arrival_stop,omitempty"`
	StopCount          int            `json:"stop_count,omitempty"`
	ScheduledDeparture *Timestamp     `json:"scheduled_departure,omitempty"`
	ScheduledArrival   *Timestamp     `json:"scheduled_arrival,omitempty"`
	RealtimeDeparture  *Timestamp     `json:"realtime_departure,omitempty"`
	DelaySeconds       int            `json:"delay_seconds,omitempty"`
	IsDelayed          bool           `json:"is_delayed"`
	Alerts             []TransitAlert `json:"alerts,omitempty"`
}

// TransitAlert represents a service alert attached to a transit step.
type TransitAlert struct {
	Header      string `json:"header"`
	Description string `json:"description,omitempty"`
	Effect      string `json:"effect"`
}
