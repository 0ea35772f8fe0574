package weather

import (
	"errors"
	"time"
)

// Weather errors.
var (
	ErrProviderUnavailable = errors.New("weather provider unavailable")
	ErrNoDataForLocation   = errors.New("no weather data for location")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
)

// Observation represents weather data at a specific point and time.
type Observation struct {
	// Location coordinates
	Lat float64
	Lon float64

	// Temperature in Celsius
	Temperature float64

	// Humidity percentage (0-100)
	Humidity float64

	// Wind data
	WindSpeed     float64 // m/s
	WindDirection float64 // degrees (0-360, 0=N, 90=E, 180=S, 270=W)
	WindGust      float64 // m/s (optional, 0 if not available)

	// Atmospheric pressure in hPa
	Pressure float64

	// Weather condition
	Condition   Condition
	Description string

	// Cloud cover percentage (0-100)
	CloudCover float64

	// Visibility in meters
	Visibility float64

	// Timestamps
	ObservedAt time.Time
	FetchedAt  time.Time
}

// Condition represents the general weather condition.
type Condition string

const (
	ConditionClear        Condition = "CLEAR"
	ConditionClouds       Condition = "CLOUDS"
	ConditionRain         Condition = "RAIN"
	ConditionDrizzle      Condition = "DRIZZLE"
	ConditionThunderstorm Condition = "THUNDERSTORM"
	ConditionSnow         Condition = "SNOW"
	ConditionMist         Condition = "MIST"
	ConditionFog          Condition = "FOG"
	ConditionHaze         Condition = "HAZE"
	ConditionUnknown      Condition = "UNKNOWN"
)

// WindCategory categorizes wind speed for exposed-mode travel impact.
type WindCategory string

const (
	WindCalm     WindCategory = "CALM"     // < 1 m/s
	WindLight    WindCategory = "LIGHT"    // 1-3 m/s
	WindModerate WindCategory = "MODERATE" // 3-8 m/s
	WindStrong   WindCategory = "STRONG"   // > 8 m/s - slows cycling noticeably
)

// GetWindCategory returns the wind category for the observation.
func (o *Observation) GetWindCategory() WindCategory {
	switch {
	case o.WindSpeed < 1:
		return WindCalm
	case o.WindSpeed < 3:
		return WindLight
	case o.WindSpeed < 8:
		return WindModerate
	default:
		return WindStrong
	}
}

// RoutingPenalty returns the duration multiplier (>= 1.0) applied to
// walking, cycling, and scooter travel under this observation. Clear
// conditions return 1.0.
func (o *Observation) RoutingPenalty() float64 {
	penalty := 1.0

	switch o.Condition {
	case ConditionRain, ConditionDrizzle:
		penalty = 1.3
	case ConditionSnow:
		penalty = 1.5
	case ConditionMist, ConditionFog, ConditionHaze:
		penalty = 1.2
	case ConditionThunderstorm:
		penalty = 2.0
	}

	if o.GetWindCategory() == WindStrong {
		penalty *= 1.2
	}

	return penalty
}

// RaisesEffort reports whether conditions make exposed-mode travel
// noticeably harder than the distance alone suggests.
func (o *Observation) RaisesEffort() bool {
	return o.RoutingPenalty() > 1.0
}

// BoundingBox represents a geographic bounding box.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Contains checks if a point is within the bounding box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat &&
		lon >= b.MinLon && lon <= b.MaxLon
}

// Center returns the center point of the bounding box.
func (b BoundingBox) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Forecast represents weather forecast data.
type Forecast struct {
	// Location
	Lat float64
	Lon float64

	// Hourly forecasts
	Hourly []HourlyForecast

	// When the forecast was fetched
	FetchedAt time.Time
}

// HourlyForecast represents weather for a specific hour.
type HourlyForecast struct {
	Time          time.Time
	Temperature   float64
	Humidity      float64
	WindSpeed     float64
	WindDirection float64
	WindGust      float64
	Condition     Condition
	Description   string
	CloudCover    float64
	Visibility    float64
	PrecipProb    float64 // Probability of precipitation (0-1)
}

// forecastMatchWindow is how far an hourly entry may sit from a requested
// time and still describe it. OpenWeatherMap forecasts come 3-hourly.
const forecastMatchWindow = 3 * time.Hour

// ObservationAt converts the forecast entry nearest to t into an
// Observation, or returns nil when no entry falls within the match window.
func (f *Forecast) ObservationAt(t time.Time) *Observation {
	var best *HourlyForecast
	var bestGap time.Duration
	for i := range f.Hourly {
		gap := f.Hourly[i].Time.Sub(t)
		if gap < 0 {
			gap = -gap
		}
		if gap > forecastMatchWindow {
			continue
		}
		if best == nil || gap < bestGap {
			best = &f.Hourly[i]
			bestGap = gap
		}
	}
	if best == nil {
		return nil
	}
	return &Observation{
		Lat:           f.Lat,
		Lon:           f.Lon,
		Temperature:   best.Temperature,
		Humidity:      best.Humidity,
		WindSpeed:     best.WindSpeed,
		WindDirection: best.WindDirection,
		WindGust:      best.WindGust,
		Condition:     best.Condition,
		Description:   best.Description,
		CloudCover:    best.CloudCover,
		Visibility:    best.Visibility,
		ObservedAt:    best.Time,
		FetchedAt:     f.FetchedAt,
	}
}

// GetWindCategory returns the wind category for the hourly forecast.
func (h *HourlyForecast) GetWindCategory() WindCategory {
	switch {
	case h.WindSpeed < 1:
		return WindCalm
	case h.WindSpeed < 3:
		return WindLight
	case h.WindSpeed < 8:
		return WindModerate
	default:
		return WindStrong
	}
}
