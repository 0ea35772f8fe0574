package transit

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// StaticIndex loads and indexes the agency's static schedule tables
// (stops, routes, trips, stop_times). It is read-only after Load and safe
// to share across concurrent requests without locking; Reload swaps the
// entire index atomically.
type StaticIndex struct {
	dir    string
	logger zerolog.Logger

	mu   sync.RWMutex
	data *staticData
}

type staticData struct {
	stops         map[string]*StaticStop   // stop_id -> stop
	stopsByName   map[string][]*StaticStop // lowercase name -> stops
	routes        map[string]*StaticRoute  // route_id -> route
	routesByShort map[string][]*StaticRoute
	childStops    map[string][]*StaticStop // parent_station -> bays
	tripToRoute   map[string]string        // trip_id -> route_id
	routeStops    map[string]stopSet // route_id -> stops it serves
	stopCount     int
	routeCount    int
	tripCount     int
}

type stopSet map[string]struct{}

// NewStaticIndex creates an index reading from the given directory of
// delimited text tables.
func NewStaticIndex(dir string, logger zerolog.Logger) *StaticIndex {
	return &StaticIndex{dir: dir, logger: logger, data: emptyStaticData()}
}

func emptyStaticData() *staticData {
	return &staticData{
		stops:         make(map[string]*StaticStop),
		stopsByName:   make(map[string][]*StaticStop),
		routes:        make(map[string]*StaticRoute),
		routesByShort: make(map[string][]*StaticRoute),
		childStops:    make(map[string][]*StaticStop),
		tripToRoute:   make(map[string]string),
		routeStops:    make(map[string]stopSet),
	}
}

// Load reads all tables. A missing file degrades that capability (logged)
// rather than failing the whole load; a missing directory is an error.
func (x *StaticIndex) Load() error {
	if _, err := os.Stat(x.dir); err != nil {
		return fmt.Errorf("static schedule directory: %w", err)
	}

	data := emptyStaticData()

	if err := x.loadStops(data); err != nil {
		x.logger.Warn().Err(err).Msg("stops table unavailable")
	}
	if err := x.loadRoutes(data); err != nil {
		x.logger.Warn().Err(err).Msg("routes table unavailable")
	}
	if err := x.loadTrips(data); err != nil {
		x.logger.Warn().Err(err).Msg("trips table unavailable")
	}
	if err := x.loadStopTimes(data); err != nil {
		x.logger.Warn().Err(err).Msg("stop_times table unavailable, bay verification disabled")
	}

	x.mu.Lock()
	x.data = data
	x.mu.Unlock()

	x.logger.Info().
		Int("stops", data.stopCount).
		Int("routes", data.routeCount).
		Int("trips", data.tripCount).
		Int("routes_with_stop_index", len(data.routeStops)).
		Msg("static schedule data loaded")

	return nil
}

// Reload re-reads the tables, swapping the index atomically.
func (x *StaticIndex) Reload() error {
	return x.Load()
}

func (x *StaticIndex) snapshot() *staticData {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.data
}

// forEachRecord streams one table, calling fn with a column-name lookup.
func (x *StaticIndex) forEachRecord(file string, fn func(get func(col string) string)) error {
	f, err := os.Open(filepath.Join(x.dir, file))
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading %s header: %w", file, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))] = i
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Skip malformed rows, keep the rest of the table.
			continue
		}
		fn(func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		})
	}

	return nil
}

func (x *StaticIndex) loadStops(data *staticData) error {
	return x.forEachRecord("stops.txt", func(get func(string) string) {
		stop := &StaticStop{
			StopID:        get("stop_id"),
			StopCode:      get("stop_code"),
			Name:          get("stop_name"),
			ParentStation: get("parent_station"),
		}
		if stop.StopID == "" {
			return
		}
		stop.Lat, _ = strconv.ParseFloat(get("stop_lat"), 64)
		stop.Lng, _ = strconv.ParseFloat(get("stop_lon"), 64)
		stop.LocationType, _ = strconv.Atoi(get("location_type"))

		data.stops[stop.StopID] = stop
		key := strings.ToLower(stop.Name)
		data.stopsByName[key] = append(data.stopsByName[key], stop)
		if stop.ParentStation != "" {
			data.childStops[stop.ParentStation] = append(data.childStops[stop.ParentStation], stop)
		}
		data.stopCount++
	})
}

func (x *StaticIndex) loadRoutes(data *staticData) error {
	return x.forEachRecord("routes.txt", func(get func(string) string) {
		route := &StaticRoute{
			RouteID:   get("route_id"),
			ShortName: get("route_short_name"),
			LongName:  get("route_long_name"),
		}
		if route.RouteID == "" {
			return
		}
		route.RouteType, _ = strconv.Atoi(get("route_type"))

		data.routes[route.RouteID] = route
		data.routeCount++

		if route.ShortName != "" {
			key := strings.ToLower(route.ShortName)
			data.routesByShort[key] = append(data.routesByShort[key], route)
			return
		}
		// Rail and ferry lines often have no short name; index the long
		// name and its significant words so "Canada Line" resolves.
		long := strings.ToLower(route.LongName)
		if long == "" {
			return
		}
		data.routesByShort[long] = append(data.routesByShort[long], route)
		for _, word := range strings.Fields(long) {
			if len(word) > 2 {
				data.routesByShort[word] = append(data.routesByShort[word], route)
			}
		}
	})
}

func (x *StaticIndex) loadTrips(data *staticData) error {
	return x.forEachRecord("trips.txt", func(get func(string) string) {
		tripID, routeID := get("trip_id"), get("route_id")
		if tripID == "" || routeID == "" {
			return
		}
		data.tripToRoute[tripID] = routeID
		data.tripCount++
	})
}

func (x *StaticIndex) loadStopTimes(data *staticData) error {
	return x.forEachRecord("stop_times.txt", func(get func(string) string) {
		tripID, stopID := get("trip_id"), get("stop_id")
		if tripID == "" || stopID == "" {
			return
		}
		routeID, ok := data.tripToRoute[tripID]
		if !ok {
			return
		}
		set, ok := data.routeStops[routeID]
		if !ok {
			set = make(stopSet)
			data.routeStops[routeID] = set
		}
		set[stopID] = struct{}{}
	})
}

// Stop returns the stop with the given identifier.
func (x *StaticIndex) Stop(stopID string) (*StaticStop, bool) {
	s, ok := x.snapshot().stops[stopID]
	return s, ok
}

// StopsByName returns every stop whose name matches exactly
// (case-insensitive). Multiple results mean a multi-bay station.
func (x *StaticIndex) StopsByName(name string) []*StaticStop {
	return x.snapshot().stopsByName[strings.ToLower(strings.TrimSpace(name))]
}

// FuzzyStopsByName returns stops whose name starts with or contains the
// query, for upstream responses that shorten stop names
// (e.g. "UBC Exchange" for "UBC Exchange @ Bay 9").
func (x *StaticIndex) FuzzyStopsByName(name string) []*StaticStop {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return nil
	}

	data := x.snapshot()
	if exact := data.stopsByName[query]; len(exact) > 0 {
		return exact
	}

	var prefix, contains []*StaticStop
	for key, stops := range data.stopsByName {
		switch {
		case strings.HasPrefix(key, query):
			prefix = append(prefix, stops...)
		case strings.Contains(key, query):
			contains = append(contains, stops...)
		}
	}
	if len(prefix) > 0 {
		return prefix
	}
	return contains
}

// RouteIDByShortName resolves a route short name (or long-name word) to a
// route identifier. Returns "" when unknown.
func (x *StaticIndex) RouteIDByShortName(shortName string) string {
	routes := x.snapshot().routesByShort[strings.ToLower(strings.TrimSpace(shortName))]
	if len(routes) == 0 {
		return ""
	}
	return routes[0].RouteID
}

// RouteServesStop reports whether the trip/stop-time index shows routeID
// serving stopID.
func (x *StaticIndex) RouteServesStop(routeID, stopID string) bool {
	set, ok := x.snapshot().routeStops[routeID]
	if !ok {
		return false
	}
	_, ok = set[stopID]
	return ok
}

// StopsForRoute returns every stop identifier the route serves.
func (x *StaticIndex) StopsForRoute(routeID string) []string {
	set := x.snapshot().routeStops[routeID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// ResolveStop resolves a stop name (optionally scoped to a route) to a stop
// identifier, ranked: route-verified bay > station-level entry > single
// exact match > first matching bay. Candidates always carries the full
// matching set so callers can try every bay against the real-time feed.
//
// When several bays share a route the first route-verified bay wins; this
// is a known approximation pending full route/bay mapping coverage.
func (x *StaticIndex) ResolveStop(name, routeID string) (StopMatch, error) {
	matched := x.FuzzyStopsByName(name)
	if len(matched) == 0 {
		return StopMatch{}, fmt.Errorf("%w: %q", ErrStopNotFound, name)
	}

	// A matched station expands to its bays: upstream providers usually
	// return the station name while the real-time feed keys on bays.
	data := x.snapshot()
	seen := make(map[string]struct{}, len(matched))
	stops := make([]*StaticStop, 0, len(matched))
	add := func(s *StaticStop) {
		if _, ok := seen[s.StopID]; ok {
			return
		}
		seen[s.StopID] = struct{}{}
		stops = append(stops, s)
	}
	for _, s := range matched {
		add(s)
		if s.IsStation() {
			for _, child := range data.childStops[s.StopID] {
				add(child)
			}
		}
	}

	candidates := make([]string, len(stops))
	for i, s := range stops {
		candidates[i] = s.StopID
	}

	// Route-verified bay: the trip/stop-time index confirms which bay the
	// route actually serves at this station. Highest confidence.
	if routeID != "" {
		for _, s := range stops {
			if !s.IsStation() && x.RouteServesStop(routeID, s.StopID) {
				return StopMatch{StopID: s.StopID, Confidence: ConfidenceRouteVerified, Candidates: candidates}, nil
			}
		}
	}

	// Station-level entry, when no route narrows the choice.
	if routeID == "" {
		for _, s := range stops {
			if s.IsStation() {
				return StopMatch{StopID: s.StopID, Confidence: ConfidenceStation, Candidates: candidates}, nil
			}
		}
	}

	if len(stops) == 1 {
		return StopMatch{StopID: stops[0].StopID, Confidence: ConfidenceExact, Candidates: candidates}, nil
	}

	return StopMatch{StopID: stops[0].StopID, Confidence: ConfidenceFirstMatch, Candidates: candidates}, nil
}

// Stats reports index sizes for the ops endpoint.
func (x *StaticIndex) Stats() (stops, routes, trips int) {
	data := x.snapshot()
	return data.stopCount, data.routeCount, data.tripCount
}
