package googlemaps

// Wire types for the Google Maps Directions API.
// Reference: https://developers.google.com/maps/documentation/directions

type gmLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type gmTextValue struct {
	Text  string `json:"text"`
	Value int64  `json:"value"`
}

type gmPolyline struct {
	Points string `json:"points"`
}

type gmVehicle struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type gmLine struct {
	ShortName string    `json:"short_name"`
	Name      string    `json:"name"`
	Vehicle   gmVehicle `json:"vehicle"`
}

type gmStop struct {
	Name     string   `json:"name"`
	Location gmLatLng `json:"location"`
	// PlaceID is populated by some deployments; treated as an opaque stop
	// identifier hint when present.
	PlaceID string `json:"place_id,omitempty"`
}

type gmTransitDetails struct {
	Line          gmLine      `json:"line"`
	DepartureStop gmStop      `json:"departure_stop"`
	ArrivalStop   gmStop      `json:"arrival_stop"`
	DepartureTime gmTextValue `json:"departure_time"`
	ArrivalTime   gmTextValue `json:"arrival_time"`
	NumStops      int         `json:"num_stops"`
	Headsign      string      `json:"headsign"`
}

type gmStep struct {
	TravelMode       string            `json:"travel_mode"`
	Distance         gmTextValue       `json:"distance"`
	Duration         gmTextValue       `json:"duration"`
	StartLocation    gmLatLng          `json:"start_location"`
	EndLocation      gmLatLng          `json:"end_location"`
	Polyline         gmPolyline        `json:"polyline"`
	HTMLInstructions string            `json:"html_instructions"`
	TransitDetails   *gmTransitDetails `json:"transit_details,omitempty"`
}

type gmLeg struct {
	Distance gmTextValue `json:"distance"`
	Duration gmTextValue `json:"duration"`
	Steps    []gmStep    `json:"steps"`
}

type gmRoute struct {
	Summary string  `json:"summary"`
	Legs    []gmLeg `json:"legs"`
}

type gmResponse struct {
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Routes       []gmRoute `json:"routes"`
}

// Directions API status codes.
const (
	statusOK             = "OK"
	statusZeroResults    = "ZERO_RESULTS"
	statusOverQueryLimit = "OVER_QUERY_LIMIT"
	statusRequestDenied  = "REQUEST_DENIED"
	statusInvalidRequest = "INVALID_REQUEST"
	statusNotFound       = "NOT_FOUND"
)
