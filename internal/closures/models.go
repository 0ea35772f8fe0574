// Package closures tracks active road closures and construction zones and
// screens route candidates against them.
package closures

import (
	"errors"
	"strings"
	"time"

	"github.com/vanroute/vanroute/pkg/geo"
)

// Closure errors.
var (
	ErrNoSnapshot          = errors.New("no closure snapshot available")
	ErrProviderUnavailable = errors.New("closure data provider unavailable")
)

// DefaultProximityMeters is how close a route point must be to a closure
// to count as passing through it.
const DefaultProximityMeters = 50.0

// Severity classifies how disruptive a closure is.
type Severity string

const (
	SeverityMajor   Severity = "major"
	SeverityMinor   Severity = "minor"
	SeverityUnknown Severity = "unknown"
)

var majorKeywords = []string{
	"full closure", "complete closure", "road closed", "bridge closed",
	"major", "full", "closed", "blocked", "no access",
}

var minorKeywords = []string{
	"partial", "lane closure", "shoulder", "minor", "construction",
	"lane", "sidewalk",
}

// ClassifySeverity infers a severity from the free-text fields of a
// closure record. Records with no recognizable keywords default to minor
// rather than unknown: anything the city publishes is at least a lane-level
// obstruction.
func ClassifySeverity(text string) Severity {
	lower := strings.ToLower(text)
	for _, kw := range majorKeywords {
		if strings.Contains(lower, kw) {
			return SeverityMajor
		}
	}
	for _, kw := range minorKeywords {
		if strings.Contains(lower, kw) {
			return SeverityMinor
		}
	}
	return SeverityMinor
}

// Blocks reports whether a closure of this severity blocks routes under
// the given minimum severity gate.
func (s Severity) Blocks(minimum Severity) bool {
	if minimum == SeverityMajor {
		return s == SeverityMajor
	}
	return true
}

// Kind distinguishes the two city datasets.
type Kind string

const (
	KindRoadClosure  Kind = "road_closure"
	KindConstruction Kind = "construction"
)

// Closure is one active road closure or construction zone.
type Closure struct {
	ID          string
	Kind        Kind
	Location    geo.Point
	Project     string
	Description string
	Severity    Severity
	StartsAt    time.Time
	EndsAt      time.Time
}

// ActiveAt reports whether the closure's window covers the given time.
// Open-ended windows (zero start or end) count as active.
func (c *Closure) ActiveAt(t time.Time) bool {
	if !c.StartsAt.IsZero() && t.Before(c.StartsAt) {
		return false
	}
	if !c.EndsAt.IsZero() && t.After(c.EndsAt) {
		return false
	}
	return true
}

// Snapshot is one fetched state of the city's closure datasets.
type Snapshot struct {
	Closures  []Closure
	FetchedAt time.Time
}

// Active returns the closures whose window covers the given time.
func (s *Snapshot) Active(t time.Time) []Closure {
	out := make([]Closure, 0, len(s.Closures))
	for i := range s.Closures {
		if s.Closures[i].ActiveAt(t) {
			out = append(out, s.Closures[i])
		}
	}
	return out
}
