package routing

import (
	"math"
	"sort"
	"strings"

	"github.com/vanroute/vanroute/pkg/geo"
)

// Per-mode policy coefficients behind the attribute scores. These are fixed
// tables, not learned values.
var (
	// modeSafety favors protected infrastructure and transit over exposed modes.
	modeSafety = map[TransportMode]float64{
		ModeWalk:         0.9,
		ModeBike:         0.75,
		ModeScooter:      0.7,
		ModeCar:          0.7,
		ModeBus:          0.85,
		ModeRail:         0.95,
		ModeFerry:        0.95,
		ModeCommuterRail: 0.95,
	}

	// modeEnergy reflects per-mode emissions/energy efficiency.
	modeEnergy = map[TransportMode]float64{
		ModeWalk:         1.0,
		ModeBike:         0.9,
		ModeScooter:      0.6,
		ModeCar:          0.3,
		ModeBus:          0.7,
		ModeRail:         0.75,
		ModeFerry:        0.65,
		ModeCommuterRail: 0.75,
	}

	// modeScenic grades how much of the surroundings a rider actually sees.
	modeScenic = map[TransportMode]float64{
		ModeWalk:         0.8,
		ModeBike:         0.8,
		ModeScooter:      0.7,
		ModeCar:          0.4,
		ModeBus:          0.6,
		ModeRail:         0.6,
		ModeFerry:        0.9,
		ModeCommuterRail: 0.6,
	}

	// modeFareCost is a relative fare/operating cost per kilometer.
	// Zero means free.
	modeFareCost = map[TransportMode]float64{
		ModeWalk:         0.0,
		ModeBike:         0.05,
		ModeScooter:      0.5,
		ModeCar:          1.0,
		ModeBus:          0.3,
		ModeRail:         0.35,
		ModeFerry:        0.35,
		ModeCommuterRail: 0.45,
	}
)

// scenicZones are designated scenic areas; routes passing through them get
// a scenic boost. Static policy table.
var scenicZones = []struct {
	Name           string
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}{
	{"Stanley Park", 49.2880, 49.3100, -123.1580, -123.1280},
	{"English Bay / Seawall", 49.2780, 49.2910, -123.1500, -123.1300},
	{"Kitsilano Beach", 49.2700, 49.2790, -123.1650, -123.1480},
	{"Spanish Banks", 49.2720, 49.2810, -123.2250, -123.1900},
	{"Burrard Inlet crossing", 49.2900, 49.3110, -123.1120, -123.0750},
}

// preferenceWeights is the closed lookup table mapping each preference to a
// fixed, named weight vector over normalized route attributes. There is no
// dynamic dispatch on preference strings at scoring time.
type weightVector struct {
	Speed  float64
	Safety float64
	Energy float64
	Scenic float64
	Health float64
	Cost   float64
}

var preferenceWeights = map[Preference]weightVector{
	PrefFastest:         {Speed: 1.0},
	PrefSafest:          {Speed: 0.2, Safety: 0.8},
	PrefEnergyEfficient: {Speed: 0.2, Energy: 0.8},
	PrefScenic:          {Speed: 0.1, Scenic: 0.9},
	PrefHealthy:         {Speed: 0.2, Health: 0.8},
	PrefCheapest:        {Speed: 0.2, Cost: 0.8},
}

// similarityOverlapThreshold is the step-overlap fraction above which two
// routes with the same mode sequence count as the same physical path.
const similarityOverlapThreshold = 0.9

// ScoringEngine computes per-preference scores and produces the final
// ranked route set. Scoring is deterministic: identical inputs always
// produce identical ordering.
type ScoringEngine struct{}

// NewScoringEngine creates a scoring engine.
func NewScoringEngine() *ScoringEngine {
	return &ScoringEngine{}
}

// ComputeAttributes fills in every derived attribute score for the route.
// All six scores are computed regardless of the requested preference so the
// response can expose them uniformly.
func (e *ScoringEngine) ComputeAttributes(route *Route) {
	if len(route.Steps) == 0 {
		return
	}

	var safety, energy, scenic, cost float64
	var activeDistance float64

	for i := range route.Steps {
		step := &route.Steps[i]
		w := step.DistanceMeters / math.Max(route.TotalDistanceMeters, 1)

		safety += w * modeSafety[step.Mode]
		energy += w * modeEnergy[step.Mode]

		sc := modeScenic[step.Mode]
		if stepInScenicZone(step) {
			sc = math.Min(1.0, sc+0.2)
		}
		scenic += w * sc

		cost += step.DistanceMeters / 1000 * modeFareCost[step.Mode]

		if step.Mode.IsActive() {
			activeDistance += step.DistanceMeters
		}
	}

	route.Scores = AttributeScores{
		Safety: clamp01(safety),
		Energy: clamp01(energy),
		Scenic: clamp01(scenic),
		Health: clamp01(activeDistance / math.Max(route.TotalDistanceMeters, 1)),
		// Normalize fare cost to [0,1] where 1 means free. A car trip
		// across the region saturates the scale.
		Cost: clamp01(1 - cost/math.Max(route.TotalDistanceMeters/1000, 1)),
	}
}

// Score computes the deterministic preference score for a route. Higher is
// better. Duration includes any applied real-time delay.
func (e *ScoringEngine) Score(route *Route, pref Preference) float64 {
	w, ok := preferenceWeights[pref]
	if !ok {
		w = preferenceWeights[PrefFastest]
	}

	// Enrichment folds real-time delays into step and route durations,
	// so the total is already the delay-adjusted one.
	speed := 1000.0 / math.Max(float64(route.TotalDurationSeconds), 1)

	return w.Speed*speed +
		w.Safety*route.Scores.Safety +
		w.Energy*route.Scores.Energy +
		w.Scenic*route.Scores.Scenic +
		w.Health*route.Scores.Health +
		w.Cost*route.Scores.Cost
}

// RankResult is the scored and deduplicated route set.
type RankResult struct {
	// Top holds the best route per requested preference.
	Top map[Preference]*Route
	// Alternatives are the remaining candidates, best first by the primary
	// preference, deduplicated against the top routes and each other.
	Alternatives []*Route
}

// Rank computes attributes for every candidate, selects the top route per
// requested preference, and returns the rest as deduplicated alternatives.
// Ties break by total duration ascending, then total distance ascending.
func (e *ScoringEngine) Rank(candidates []*Route, preferences []Preference) RankResult {
	for _, r := range candidates {
		e.ComputeAttributes(r)
	}

	result := RankResult{Top: make(map[Preference]*Route, len(preferences))}
	if len(candidates) == 0 {
		return result
	}

	for _, pref := range preferences {
		ordered := e.orderBy(candidates, pref)
		// Copy before stamping: one candidate can top several
		// preferences and each entry keeps its own label.
		top := *ordered[0]
		top.Preference = pref
		result.Top[pref] = &top
	}

	primary := PrefFastest
	if len(preferences) > 0 {
		primary = preferences[0]
	}

	var tops []*Route
	for _, r := range result.Top {
		tops = append(tops, r)
	}

	for _, r := range e.orderBy(candidates, primary) {
		if containsSimilar(tops, r) || containsSimilar(result.Alternatives, r) {
			continue
		}
		result.Alternatives = append(result.Alternatives, r)
	}

	return result
}

// orderBy returns candidates sorted best-first for the preference, without
// mutating the input slice. Sorting is stable over the deterministic
// tie-break chain so identical input always yields identical order.
func (e *ScoringEngine) orderBy(candidates []*Route, pref Preference) []*Route {
	ordered := make([]*Route, len(candidates))
	copy(ordered, candidates)

	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := e.Score(ordered[i], pref), e.Score(ordered[j], pref)
		if si != sj {
			return si > sj
		}
		if ordered[i].TotalDurationSeconds != ordered[j].TotalDurationSeconds {
			return ordered[i].TotalDurationSeconds < ordered[j].TotalDurationSeconds
		}
		if ordered[i].TotalDistanceMeters != ordered[j].TotalDistanceMeters {
			return ordered[i].TotalDistanceMeters < ordered[j].TotalDistanceMeters
		}
		return ordered[i].ID < ordered[j].ID
	})

	return ordered
}

// containsSimilar reports whether any existing route is the same physical
// path as r: identical ordered mode sequence and more than 90% step overlap.
func containsSimilar(existing []*Route, r *Route) bool {
	for _, ex := range existing {
		if ex == r || Similar(ex, r) {
			return true
		}
	}
	return false
}

// Similar compares two routes by mode sequence and step overlap.
func Similar(a, b *Route) bool {
	if len(a.Steps) != len(b.Steps) {
		return false
	}
	if modeSeqKey(a) != modeSeqKey(b) {
		return false
	}

	bKeys := make(map[string]struct{}, len(b.Steps))
	for i := range b.Steps {
		bKeys[stepKey(&b.Steps[i])] = struct{}{}
	}

	overlap := 0
	for i := range a.Steps {
		if _, ok := bKeys[stepKey(&a.Steps[i])]; ok {
			overlap++
		}
	}

	return float64(overlap)/float64(len(a.Steps)) > similarityOverlapThreshold
}

func modeSeqKey(r *Route) string {
	var sb strings.Builder
	for _, m := range r.ModeSequence() {
		sb.WriteString(string(m))
		sb.WriteByte('|')
	}
	return sb.String()
}

func stepInScenicZone(step *RouteStep) bool {
	return pointInScenicZone(step.Start) || pointInScenicZone(step.End) ||
		pointInScenicZone(step.Start.Midpoint(step.End))
}

func pointInScenicZone(p geo.Point) bool {
	for _, z := range scenicZones {
		if p.Lat >= z.MinLat && p.Lat <= z.MaxLat && p.Lng >= z.MinLng && p.Lng <= z.MaxLng {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
