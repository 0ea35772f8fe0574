package transit_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanroute/vanroute/internal/transit"
)

func writeStaticFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"stops.txt": `stop_id,stop_code,stop_name,stop_lat,stop_lon,location_type,parent_station
9001,50001,Commercial-Broadway Station @ Bay A,49.2625,-123.0693,0,9000
9002,50002,Commercial-Broadway Station @ Bay B,49.2627,-123.0695,0,9000
9003,50003,Commercial-Broadway Station @ Bay C,49.2629,-123.0697,0,9000
9000,,Commercial-Broadway Station,49.2626,-123.0694,1,
7001,60001,Granville St @ W Pender St,49.2850,-123.1133,0,
`,
		"routes.txt": `route_id,route_short_name,route_long_name,route_type
R99,99,Commercial-Broadway/UBC (B-Line),3
R980,,Canada Line,1
`,
		"trips.txt": `route_id,service_id,trip_id
R99,WD,T991
R980,WD,T9801
`,
		"stop_times.txt": `trip_id,arrival_time,departure_time,stop_id,stop_sequence
T991,08:00:00,08:00:00,9002,1
T991,08:05:00,08:05:00,7001,2
T9801,08:00:00,08:00:00,9003,1
`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func loadedIndex(t *testing.T) *transit.StaticIndex {
	t.Helper()
	idx := transit.NewStaticIndex(writeStaticFixture(t), zerolog.Nop())
	require.NoError(t, idx.Load())
	return idx
}

func TestStaticIndexLoad(t *testing.T) {
	idx := loadedIndex(t)

	stops, routes, trips := idx.Stats()
	assert.Equal(t, 5, stops)
	assert.Equal(t, 2, routes)
	assert.Equal(t, 2, trips)

	stop, ok := idx.Stop("9002")
	require.True(t, ok)
	assert.Equal(t, "Commercial-Broadway Station @ Bay B", stop.Name)
	assert.False(t, stop.IsStation())

	station, ok := idx.Stop("9000")
	require.True(t, ok)
	assert.True(t, station.IsStation())
}

func TestStaticIndexLoadMissingDir(t *testing.T) {
	idx := transit.NewStaticIndex(filepath.Join(t.TempDir(), "nope"), zerolog.Nop())
	assert.Error(t, idx.Load())
}

func TestRouteIDByShortName(t *testing.T) {
	idx := loadedIndex(t)

	assert.Equal(t, "R99", idx.RouteIDByShortName("99"))
	// Long-name indexing covers rail lines without short names.
	assert.Equal(t, "R980", idx.RouteIDByShortName("Canada Line"))
	assert.Equal(t, "R980", idx.RouteIDByShortName("canada"))
	assert.Empty(t, idx.RouteIDByShortName("does-not-exist"))
}

func TestResolveStopRouteVerified(t *testing.T) {
	idx := loadedIndex(t)

	// Route 99 only serves Bay B at this station; the trip/stop-time index
	// should pick it over Bays A and C and the station entry.
	match, err := idx.ResolveStop("Commercial-Broadway Station", "R99")
	require.NoError(t, err)
	assert.Equal(t, "9002", match.StopID)
	assert.Equal(t, transit.ConfidenceRouteVerified, match.Confidence)
	assert.Len(t, match.Candidates, 4)
}

func TestResolveStopStationPreferred(t *testing.T) {
	idx := loadedIndex(t)

	// Without a route to verify against, the station-level entry wins.
	match, err := idx.ResolveStop("Commercial-Broadway Station", "")
	require.NoError(t, err)
	assert.Equal(t, "9000", match.StopID)
	assert.Equal(t, transit.ConfidenceStation, match.Confidence)
}

func TestResolveStopExact(t *testing.T) {
	idx := loadedIndex(t)

	match, err := idx.ResolveStop("Granville St @ W Pender St", "")
	require.NoError(t, err)
	assert.Equal(t, "7001", match.StopID)
	assert.Equal(t, transit.ConfidenceExact, match.Confidence)
	assert.Equal(t, []string{"7001"}, match.Candidates)
}

func TestResolveStopFirstMatchKeepsCandidates(t *testing.T) {
	idx := loadedIndex(t)

	// A route the index has no bay mapping for falls back to the first
	// match but keeps every bay so real-time matching can try them all.
	match, err := idx.ResolveStop("Commercial-Broadway Station", "R404")
	require.NoError(t, err)
	assert.Equal(t, transit.ConfidenceFirstMatch, match.Confidence)
	assert.Len(t, match.Candidates, 4)
	assert.Contains(t, match.Candidates, "9002")
}

func TestResolveStopNotFound(t *testing.T) {
	idx := loadedIndex(t)

	_, err := idx.ResolveStop("Nowhere Station", "")
	assert.ErrorIs(t, err, transit.ErrStopNotFound)
}

func TestFuzzyStopsByName(t *testing.T) {
	idx := loadedIndex(t)

	// Prefix match on the shortened station name returns every bay.
	stops := idx.FuzzyStopsByName("Commercial-Broadway")
	assert.Len(t, stops, 4)

	// Exact name short-circuits the scan.
	stops = idx.FuzzyStopsByName("Granville St @ W Pender St")
	require.Len(t, stops, 1)
	assert.Equal(t, "7001", stops[0].StopID)

	assert.Empty(t, idx.FuzzyStopsByName(""))
}

func TestRouteServesStop(t *testing.T) {
	idx := loadedIndex(t)

	assert.True(t, idx.RouteServesStop("R99", "9002"))
	assert.False(t, idx.RouteServesStop("R99", "9003"))
	assert.False(t, idx.RouteServesStop("R404", "9002"))
	assert.ElementsMatch(t, []string{"9002", "7001"}, idx.StopsForRoute("R99"))
}

func TestStaticIndexLoadStripsByteOrderMark(t *testing.T) {
	dir := writeStaticFixture(t)

	// TransLink's GTFS export prefixes each CSV header with a UTF-8 BOM.
	for _, name := range []string{"stops.txt", "routes.txt", "trips.txt", "stop_times.txt"} {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, append([]byte("\uFEFF"), content...), 0o644))
	}

	idx := transit.NewStaticIndex(dir, zerolog.Nop())
	require.NoError(t, idx.Load())

	stop, ok := idx.Stop("9002")
	require.True(t, ok)
	assert.Equal(t, "Commercial-Broadway Station @ Bay B", stop.Name)
	assert.Equal(t, "R99", idx.RouteIDByShortName("99"))
}
