// Package transit fuses the regional transit agency's static schedule data
// and real-time feed into transit route steps: stop/bay resolution, trip
// delay overlays, and service alerts.
package transit

import (
	"errors"
	"time"
)

// Transit errors.
var (
	ErrFeedUnavailable = errors.New("real-time feed unavailable")
	ErrStaticNotLoaded = errors.New("static schedule data not loaded")
	ErrStopNotFound    = errors.New("stop not found")
)

// StaticStop is one row of the agency's stops table. A "station" groups
// several physical boarding positions ("bays") sharing a name.
type StaticStop struct {
	StopID        string
	StopCode      string
	Name          string
	Lat           float64
	Lng           float64
	LocationType  int // 0 = stop/bay, 1 = station
	ParentStation string
}

// IsStation reports whether the stop is a station-level entry.
func (s *StaticStop) IsStation() bool {
	return s.LocationType == 1
}

// StaticRoute is one row of the agency's routes table.
type StaticRoute struct {
	RouteID   string
	ShortName string
	LongName  string
	RouteType int // GTFS route_type: 0=tram, 1=metro, 2=rail, 3=bus, 4=ferry
}

// Confidence tags how a stop identifier was resolved, strongest first.
type Confidence string

const (
	// ConfidenceRouteVerified means the trip/stop-time index confirmed the
	// bay serves the given route. Highest confidence.
	ConfidenceRouteVerified Confidence = "route_verified"
	// ConfidenceStation means a station-level entry was preferred.
	ConfidenceStation Confidence = "station"
	// ConfidenceExact means a single stop matched the name exactly.
	ConfidenceExact Confidence = "exact"
	// ConfidenceFirstMatch means the first of several candidate bays was
	// picked as a best-effort default.
	ConfidenceFirstMatch Confidence = "first_match"
)

// StopMatch is the result of resolving a stop name to an identifier.
// Candidates retains every bay sharing the name so downstream real-time
// matching can try each in turn.
type StopMatch struct {
	StopID     string
	Confidence Confidence
	Candidates []string
}

// StopTimeEvent is a real-time arrival or departure estimate at one stop.
type StopTimeEvent struct {
	DelaySeconds int
	Time         time.Time // scheduled event time, zero if feed omitted it
}

// StopTimeUpdate is the per-stop portion of a trip update.
type StopTimeUpdate struct {
	StopID    string
	Arrival   *StopTimeEvent
	Departure *StopTimeEvent
}

// TripUpdate is one trip's real-time status.
type TripUpdate struct {
	TripID          string
	RouteID         string
	StopTimeUpdates []StopTimeUpdate
}

// VehiclePosition is one vehicle's latest reported location.
type VehiclePosition struct {
	TripID    string
	RouteID   string
	VehicleID string
	Lat       float64
	Lng       float64
	Bearing   float64
	Timestamp time.Time
}

// AlertEffect mirrors the feed's effect classification.
type AlertEffect string

const (
	AlertDelay          AlertEffect = "delay"
	AlertDetour         AlertEffect = "detour"
	AlertReducedService AlertEffect = "reduced_service"
	AlertOther          AlertEffect = "other"
)

// Alert is one service alert from the real-time feed.
type Alert struct {
	Header      string
	Description string
	Effect      AlertEffect
	RouteIDs    []string
	StopIDs     []string
}

// AffectsRoute reports whether the alert names the given route.
func (a *Alert) AffectsRoute(routeID string) bool {
	for _, r := range a.RouteIDs {
		if r == routeID {
			return true
		}
	}
	return false
}

// Snapshot is one decoded state of the real-time feed.
type Snapshot struct {
	TripUpdates      []TripUpdate
	VehiclePositions []VehiclePosition
	Alerts           []Alert
	FetchedAt        time.Time
}

// TripUpdatesForRoute returns the trip updates for a route identifier.
func (s *Snapshot) TripUpdatesForRoute(routeID string) []TripUpdate {
	var out []TripUpdate
	for i := range s.TripUpdates {
		if s.TripUpdates[i].RouteID == routeID {
			out = append(out, s.TripUpdates[i])
		}
	}
	return out
}

// AlertsForRoute returns the alerts naming a route identifier.
func (s *Snapshot) AlertsForRoute(routeID string) []Alert {
	var out []Alert
	for i := range s.Alerts {
		if s.Alerts[i].AffectsRoute(routeID) {
			out = append(out, s.Alerts[i])
		}
	}
	return out
}
