package routing

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanroute/vanroute/internal/weather"
	"github.com/vanroute/vanroute/pkg/geo"
)

var (
	testOrigin      = geo.Point{Lat: 49.2827, Lng: -123.1207}
	testDestination = geo.Point{Lat: 49.2606, Lng: -123.2460}
)

// stubProvider is a canned directions provider keyed by travel mode.
type stubProvider struct {
	name      string
	responses map[TravelMode]*DirectionsResponse
	errs      map[TravelMode]error
	callCount atomic.Int32
}

func (p *stubProvider) GetDirections(_ context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	p.callCount.Add(1)
	if err, ok := p.errs[req.Mode]; ok {
		return nil, err
	}
	if resp, ok := p.responses[req.Mode]; ok {
		return resp, nil
	}
	return nil, ErrNoRouteFound
}

func (p *stubProvider) Name() string {
	if p.name == "" {
		return "stub-directions"
	}
	return p.name
}

// transitResponse is a typical transit reply: walk access, one bus ride,
// walk egress.
func transitResponse() *DirectionsResponse {
	return &DirectionsResponse{
		Provider:  "stub-directions",
		FetchedAt: time.Now(),
		Routes: []ProviderRoute{{
			Summary: "99 B-Line",
			Legs: []ProviderLeg{{
				DistanceMeters:  8700,
				DurationSeconds: 1740,
				Steps: []ProviderStep{
					{
						TravelMode:      TravelWalking,
						DistanceMeters:  400,
						DurationSeconds: 300,
						Start:           testOrigin,
						End:             geo.Point{Lat: 49.2810, Lng: -123.1250},
						Instruction:     "Walk to the stop",
					},
					{
						TravelMode:      TravelTransit,
						DistanceMeters:  8000,
						DurationSeconds: 1200,
						Start:           geo.Point{Lat: 49.2810, Lng: -123.1250},
						End:             geo.Point{Lat: 49.2630, Lng: -123.2400},
						Transit: &ProviderTransitDetails{
							RouteShortName: "99",
							VehicleType:    "BUS",
							DepartureStop:  "Commercial-Broadway Stn",
							ArrivalStop:    "UBC Exchange",
							StopCount:      8,
							Headsign:       "UBC",
						},
					},
					{
						TravelMode:      TravelWalking,
						DistanceMeters:  300,
						DurationSeconds: 240,
						Start:           geo.Point{Lat: 49.2630, Lng: -123.2400},
						End:             testDestination,
					},
				},
			}},
		}},
	}
}

func testRequest(modes ...TransportMode) Request {
	return Request{
		Origin:             testOrigin,
		Destination:        testDestination,
		Preferences:        []Preference{PrefFastest},
		Modes:              modes,
		MaxWalkingDistance: 1000,
	}
}

func TestCandidateBuilder_BuildForMode_ClassifiesTransitSteps(t *testing.T) {
	provider := &stubProvider{responses: map[TravelMode]*DirectionsResponse{
		TravelTransit: transitResponse(),
	}}
	builder := NewCandidateBuilder(BuilderConfig{Provider: provider, Logger: zerolog.Nop()})

	routes, err := builder.BuildForMode(context.Background(), testRequest(ModeBus), ModeBus, Conditions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}

	route := routes[0]
	if route.ID == "" {
		t.Error("expected a generated route ID")
	}

	wantModes := []TransportMode{ModeWalk, ModeBus, ModeWalk}
	gotModes := route.ModeSequence()
	if len(gotModes) != len(wantModes) {
		t.Fatalf("expected %d steps, got %d", len(wantModes), len(gotModes))
	}
	for i := range wantModes {
		if gotModes[i] != wantModes[i] {
			t.Errorf("step %d: expected mode %s, got %s", i, wantModes[i], gotModes[i])
		}
	}

	if route.TotalDistanceMeters != 8700 {
		t.Errorf("expected total distance 8700, got %.0f", route.TotalDistanceMeters)
	}
	if route.TotalDurationSeconds != 1740 {
		t.Errorf("expected total duration 1740, got %d", route.TotalDurationSeconds)
	}

	// walk 0.4km*15 + bus 8km*8 + walk 0.3km*15 = 6 + 64 + 4
	if route.SustainabilityPoints != 74 {
		t.Errorf("expected 74 sustainability points, got %d", route.SustainabilityPoints)
	}

	transit := route.Steps[1].Transit
	if transit == nil {
		t.Fatal("expected transit details on the bus step")
	}
	if transit.VehicleKind != "Bus" {
		t.Errorf("expected vehicle kind Bus, got %q", transit.VehicleKind)
	}
	if transit.RouteShortName != "99" {
		t.Errorf("expected route 99, got %q", transit.RouteShortName)
	}
}

func TestCandidateBuilder_BuildForMode_WalkingDistanceCap(t *testing.T) {
	provider := &stubProvider{responses: map[TravelMode]*DirectionsResponse{
		TravelTransit: transitResponse(),
	}}
	builder := NewCandidateBuilder(BuilderConfig{Provider: provider, Logger: zerolog.Nop()})

	req := testRequest(ModeBus)
	req.MaxWalkingDistance = 500 // total access walking is 700m

	routes, err := builder.BuildForMode(context.Background(), req, ModeBus, Conditions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(routes) != 0 {
		t.Errorf("expected candidate over the walking cap to be dropped, got %d routes", len(routes))
	}
}

func TestCandidateBuilder_BuildForMode_WeatherPenalty(t *testing.T) {
	provider := &stubProvider{responses: map[TravelMode]*DirectionsResponse{
		TravelTransit: transitResponse(),
	}}
	builder := NewCandidateBuilder(BuilderConfig{Provider: provider, Logger: zerolog.Nop()})

	cond := Conditions{Weather: &weather.Observation{Condition: weather.ConditionRain}}

	routes, err := builder.BuildForMode(context.Background(), testRequest(ModeBus), ModeBus, cond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}

	// Rain applies a 1.3x multiplier to walking steps only:
	// 300*1.3 + 1200 + 240*1.3 = 390 + 1200 + 312
	if got := routes[0].TotalDurationSeconds; got != 1902 {
		t.Errorf("expected rain-adjusted duration 1902, got %d", got)
	}
}

func TestCandidateBuilder_BuildForMode_ProviderError(t *testing.T) {
	provider := &stubProvider{errs: map[TravelMode]error{
		TravelWalking: ErrProviderUnavailable,
	}}
	builder := NewCandidateBuilder(BuilderConfig{Provider: provider, Logger: zerolog.Nop()})

	_, err := builder.BuildForMode(context.Background(), testRequest(ModeWalk), ModeWalk, Conditions{})
	if err == nil {
		t.Fatal("expected provider error to surface")
	}
}

func TestClassifyStep(t *testing.T) {
	tests := []struct {
		name      string
		requested TransportMode
		step      ProviderStep
		want      TransportMode
	}{
		{
			name:      "bicycling step for a scooter request",
			requested: ModeScooter,
			step:      ProviderStep{TravelMode: TravelBicycling},
			want:      ModeScooter,
		},
		{
			name:      "bicycling step for a bike request",
			requested: ModeBike,
			step:      ProviderStep{TravelMode: TravelBicycling},
			want:      ModeBike,
		},
		{
			name:      "transit step classified from vehicle type",
			requested: ModeBus,
			step:      ProviderStep{TravelMode: TravelTransit, Transit: &ProviderTransitDetails{VehicleType: "SUBWAY"}},
			want:      ModeRail,
		},
		{
			name:      "transit mode without details is an access walk",
			requested: ModeBus,
			step:      ProviderStep{TravelMode: TravelTransit},
			want:      ModeWalk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyStep(tt.requested, &tt.step); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestVehicleKind(t *testing.T) {
	tests := []struct {
		vehicleType string
		fallback    string
		want        string
	}{
		{"SUBWAY", "", "SkyTrain"},
		{"FERRY", "", "SeaBus"},
		{"COMMUTER_TRAIN", "", "West Coast Express"},
		{"BUS", "", "Bus"},
		{"UNKNOWN", "Shuttle", "Shuttle"},
		{"UNKNOWN", "", "Bus"},
	}

	for _, tt := range tests {
		if got := vehicleKind(tt.vehicleType, tt.fallback); got != tt.want {
			t.Errorf("vehicleKind(%q, %q): expected %q, got %q", tt.vehicleType, tt.fallback, tt.want, got)
		}
	}
}

func TestEffortLevel(t *testing.T) {
	rain := &weather.Observation{Condition: weather.ConditionRain}

	tests := []struct {
		name     string
		mode     TransportMode
		distance float64
		obs      *weather.Observation
		want     EffortLevel
	}{
		{"short walk", ModeWalk, 150, nil, EffortLow},
		{"long walk", ModeWalk, 1500, nil, EffortHigh},
		{"moderate bike", ModeBike, 3000, nil, EffortModerate},
		{"transit is always low", ModeBus, 20000, nil, EffortLow},
		{"rain raises a short walk", ModeWalk, 150, rain, EffortModerate},
		{"rain does not raise transit", ModeRail, 20000, rain, EffortLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := effortLevel(tt.mode, tt.distance, tt.obs); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestBuildForModeRoutesAreContiguous(t *testing.T) {
	provider := &stubProvider{responses: map[TravelMode]*DirectionsResponse{
		TravelTransit: transitResponse(),
	}}
	builder := NewCandidateBuilder(BuilderConfig{Provider: provider, Logger: zerolog.Nop()})

	routes, err := builder.BuildForMode(context.Background(), testRequest(ModeBus), ModeBus, Conditions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range routes {
		if !r.Contiguous() {
			t.Errorf("route %s has a step gap above %v meters", r.ID, ContiguityToleranceMeters)
		}
	}
}

func TestContiguousDetectsGap(t *testing.T) {
	gapped := &Route{Steps: []RouteStep{
		{Mode: ModeWalk, Start: testOrigin, End: geo.Point{Lat: 49.2810, Lng: -123.1250}},
		// Starts roughly 1 km away from where the previous step ended.
		{Mode: ModeBus, Start: geo.Point{Lat: 49.2900, Lng: -123.1250}, End: testDestination},
	}}
	if gapped.Contiguous() {
		t.Error("expected a 1 km gap to break contiguity")
	}
}
