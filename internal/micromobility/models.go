// Package micromobility tracks shared bike and scooter availability so
// the route planner only proposes scooter legs where a vehicle can
// actually be picked up.
package micromobility

import (
	"errors"
	"time"
)

// Micromobility errors.
var (
	ErrProviderUnavailable = errors.New("micromobility provider unavailable")
)

// VehicleType distinguishes the shared vehicle kinds.
type VehicleType string

const (
	VehicleBike    VehicleType = "bike"
	VehicleScooter VehicleType = "scooter"
)

// Vehicle is one shared vehicle from the operator's availability feed.
type Vehicle struct {
	ID                 string
	Type               VehicleType
	Lat                float64
	Lng                float64
	IsReserved         bool
	IsDisabled         bool
	CurrentRangeMeters float64
}

// Available reports whether the vehicle can be picked up right now.
func (v *Vehicle) Available() bool {
	return !v.IsReserved && !v.IsDisabled
}

// Snapshot is one fetched state of the availability feed.
type Snapshot struct {
	Vehicles  []Vehicle
	FetchedAt time.Time
}
