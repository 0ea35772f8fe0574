// Package worker provides background cache refresh and reward processing.
package worker

import (
	"time"
)

// RefreshTarget represents a geographic region to refresh.
type RefreshTarget struct {
	// Name is the human-readable name of the target.
	Name string

	// Points are the lat/lon coordinates to refresh.
	// Typically major trip origins: town centres and transit hubs.
	Points []Point

	// Priority determines refresh order (lower = higher priority).
	Priority int
}

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// RefreshConfig holds configuration for the provider refresh job.
type RefreshConfig struct {
	// Targets are the geographic regions to refresh.
	// If empty, uses DefaultRefreshTargets.
	Targets []RefreshTarget

	// Concurrency is the number of concurrent refresh operations.
	// Default: 3
	Concurrency int

	// Timeout is the timeout for each refresh operation.
	// Default: 30 seconds
	Timeout time.Duration

	// RefreshWeather enables weather refresh.
	// Default: true
	RefreshWeather bool

	// RefreshClosures enables road closure snapshot refresh.
	// Default: true
	RefreshClosures bool

	// RefreshTransit enables warming the realtime transit feed.
	// Default: true
	RefreshTransit bool

	// RefreshMicromobility enables warming the shared-vehicle snapshot.
	// Default: true
	RefreshMicromobility bool
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Targets:              DefaultRefreshTargets(),
		Concurrency:          3,
		Timeout:              30 * time.Second,
		RefreshWeather:       true,
		RefreshClosures:      true,
		RefreshTransit:       true,
		RefreshMicromobility: true,
	}
}

// DefaultRefreshTargets returns the default refresh targets for Metro
// Vancouver. Focuses on downtown, the major SkyTrain interchanges, and the
// regional town centres.
func DefaultRefreshTargets() []RefreshTarget {
	return []RefreshTarget{
		{
			Name:     "Downtown Vancouver",
			Priority: 1,
			Points: []Point{
				{Lat: 49.2856, Lon: -123.1115}, // Waterfront Station
				{Lat: 49.2827, Lon: -123.1207}, // Vancouver City Centre
				{Lat: 49.2773, Lon: -123.1219}, // Yaletown-Roundhouse
			},
		},
		{
			Name:     "East Vancouver",
			Priority: 1,
			Points: []Point{
				{Lat: 49.2626, Lon: -123.0693}, // Commercial-Broadway
				{Lat: 49.2732, Lon: -123.1003}, // Main Street-Science World
			},
		},
		{
			Name:     "Broadway Corridor",
			Priority: 1,
			Points: []Point{
				{Lat: 49.2634, Lon: -123.1156}, // Broadway-City Hall
				{Lat: 49.2664, Lon: -123.2460}, // UBC Exchange
			},
		},
		{
			Name:     "Burnaby",
			Priority: 2,
			Points: []Point{
				{Lat: 49.2258, Lon: -123.0039}, // Metrotown
				{Lat: 49.2664, Lon: -122.9826}, // Brentwood Town Centre
			},
		},
		{
			Name:     "North Shore",
			Priority: 2,
			Points: []Point{
				{Lat: 49.3095, Lon: -123.0827}, // Lonsdale Quay
			},
		},
		{
			Name:     "Richmond",
			Priority: 2,
			Points: []Point{
				{Lat: 49.1666, Lon: -123.1336}, // Richmond-Brighouse
				{Lat: 49.1967, Lon: -123.1815}, // YVR-Airport
			},
		},
		{
			Name:     "Surrey",
			Priority: 3,
			Points: []Point{
				{Lat: 49.1895, Lon: -122.8489}, // Surrey Central
			},
		},
		{
			Name:     "New Westminster",
			Priority: 3,
			Points: []Point{
				{Lat: 49.2014, Lon: -122.9127}, // New Westminster Station
			},
		},
		{
			Name:     "Coquitlam",
			Priority: 3,
			Points: []Point{
				{Lat: 49.2781, Lon: -122.7459}, // Lafarge Lake-Douglas
			},
		},
	}
}

// AllPoints returns all points from all targets, ordered by priority.
func (c RefreshConfig) AllPoints() []Point {
	var points []Point
	for _, target := range c.Targets {
		points = append(points, target.Points...)
	}
	return points
}

// TotalPoints returns the total number of points to refresh.
func (c RefreshConfig) TotalPoints() int {
	total := 0
	for _, target := range c.Targets {
		total += len(target.Points)
	}
	return total
}
