// Package geo provides geographic primitives shared across routing,
// transit, and closure packages: a WGS84 point, great-circle distance,
// and small vector helpers used for detour waypoint construction.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle math.
const EarthRadiusMeters = 6371000.0

// Point is an immutable WGS84 coordinate pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that the point is within valid WGS84 ranges.
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", p.Lng)
	}
	return nil
}

// Distance returns the great-circle distance to other in meters (haversine).
func (p Point) Distance(other Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - p.Lat) * math.Pi / 180
	dLng := (other.Lng - p.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Asin(math.Min(1, math.Sqrt(a)))

	return EarthRadiusMeters * c
}

// Midpoint returns the arithmetic midpoint between p and other.
// Adequate for the short segments this service deals in.
func (p Point) Midpoint(other Point) Point {
	return Point{
		Lat: (p.Lat + other.Lat) / 2,
		Lng: (p.Lng + other.Lng) / 2,
	}
}

// OffsetMeters returns a point displaced from p by the given north and east
// distances in meters, using a local equirectangular approximation.
func (p Point) OffsetMeters(northMeters, eastMeters float64) Point {
	dLat := northMeters / EarthRadiusMeters * 180 / math.Pi
	dLng := eastMeters / (EarthRadiusMeters * math.Cos(p.Lat*math.Pi/180)) * 180 / math.Pi
	return Point{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}

// PerpendicularOffset returns a point displaced from p perpendicular to the
// bearing of the segment from→to, by offsetMeters. The sign of offsetMeters
// selects the side: positive offsets to the left of the direction of travel.
func PerpendicularOffset(p, from, to Point, offsetMeters float64) Point {
	// Direction of travel in local meters.
	northM := (to.Lat - from.Lat) * math.Pi / 180 * EarthRadiusMeters
	eastM := (to.Lng - from.Lng) * math.Pi / 180 * EarthRadiusMeters * math.Cos(from.Lat*math.Pi/180)

	length := math.Hypot(northM, eastM)
	if length == 0 {
		return p
	}

	// Rotate the unit direction vector 90 degrees counter-clockwise.
	perpNorth := eastM / length * offsetMeters
	perpEast := -northM / length * offsetMeters

	return p.OffsetMeters(perpNorth, perpEast)
}
