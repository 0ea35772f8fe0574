// Package translink provides a client for the regional transit agency's
// GTFS-realtime feeds: trip updates, vehicle positions, and service alerts.
package translink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"

	"github.com/vanroute/vanroute/internal/provider/resilience"
	"github.com/vanroute/vanroute/internal/transit"
)

const (
	// ProviderName identifies this feed provider.
	ProviderName = "translink"

	// DefaultBaseURL is the GTFS-realtime API base URL.
	DefaultBaseURL = "https://gtfsapi.translink.ca"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// Feed paths under the base URL.
const (
	tripUpdatesPath      = "/v3/gtfsrealtime"
	vehiclePositionsPath = "/v3/gtfsposition"
	alertsPath           = "/v3/gtfsalerts"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the feed client.
type ClientConfig struct {
	// APIKey is the feed API key (required).
	APIKey string

	// BaseURL is the API base URL (optional).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches and decodes the agency's protobuf feeds.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new feed client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		if cfg.Registry != nil {
			clientCfg.Registry = cfg.Registry
		}
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchSnapshot fetches all three feeds and decodes them into one
// snapshot. Trip updates are required; the vehicle position and alert
// feeds degrade to empty on failure.
func (c *Client) FetchSnapshot(ctx context.Context) (*transit.Snapshot, error) {
	snap := &transit.Snapshot{FetchedAt: time.Now()}

	trips, err := c.fetchFeed(ctx, tripUpdatesPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", transit.ErrFeedUnavailable, err)
	}
	decodeTripUpdates(trips, snap)

	if positions, err := c.fetchFeed(ctx, vehiclePositionsPath); err != nil {
		c.logger.Warn().Err(err).Msg("vehicle position feed unavailable")
	} else {
		decodeVehiclePositions(positions, snap)
	}

	if alerts, err := c.fetchFeed(ctx, alertsPath); err != nil {
		c.logger.Warn().Err(err).Msg("alert feed unavailable")
	} else {
		decodeAlerts(alerts, snap)
	}

	c.logger.Debug().
		Int("trip_updates", len(snap.TripUpdates)).
		Int("vehicle_positions", len(snap.VehiclePositions)).
		Int("alerts", len(snap.Alerts)).
		Msg("feed snapshot fetched")

	return snap, nil
}

func (c *Client) fetchFeed(ctx context.Context, path string) (*gtfsrt.FeedMessage, error) {
	url := fmt.Sprintf("%s%s?apikey=%s", c.baseURL, path, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var fm gtfsrt.FeedMessage
	if err := proto.Unmarshal(body, &fm); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}
	return &fm, nil
}

func decodeTripUpdates(fm *gtfsrt.FeedMessage, snap *transit.Snapshot) {
	for _, entity := range fm.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		update := transit.TripUpdate{
			TripID:  tu.GetTrip().GetTripId(),
			RouteID: tu.GetTrip().GetRouteId(),
		}
		for _, stu := range tu.GetStopTimeUpdate() {
			if stu.GetStopId() == "" {
				continue
			}
			update.StopTimeUpdates = append(update.StopTimeUpdates, transit.StopTimeUpdate{
				StopID:    stu.GetStopId(),
				Arrival:   decodeEvent(stu.GetArrival()),
				Departure: decodeEvent(stu.GetDeparture()),
			})
		}
		snap.TripUpdates = append(snap.TripUpdates, update)
	}
}

func decodeEvent(e *gtfsrt.TripUpdate_StopTimeEvent) *transit.StopTimeEvent {
	if e == nil {
		return nil
	}
	out := &transit.StopTimeEvent{DelaySeconds: int(e.GetDelay())}
	if e.GetTime() != 0 {
		out.Time = time.Unix(e.GetTime(), 0)
	}
	return out
}

func decodeVehiclePositions(fm *gtfsrt.FeedMessage, snap *transit.Snapshot) {
	for _, entity := range fm.GetEntity() {
		vp := entity.GetVehicle()
		if vp == nil {
			continue
		}
		pos := transit.VehiclePosition{
			TripID:    vp.GetTrip().GetTripId(),
			RouteID:   vp.GetTrip().GetRouteId(),
			VehicleID: vp.GetVehicle().GetId(),
			Lat:       float64(vp.GetPosition().GetLatitude()),
			Lng:       float64(vp.GetPosition().GetLongitude()),
			Bearing:   float64(vp.GetPosition().GetBearing()),
		}
		if ts := vp.GetTimestamp(); ts != 0 {
			pos.Timestamp = time.Unix(int64(ts), 0)
		}
		snap.VehiclePositions = append(snap.VehiclePositions, pos)
	}
}

func decodeAlerts(fm *gtfsrt.FeedMessage, snap *transit.Snapshot) {
	for _, entity := range fm.GetEntity() {
		a := entity.GetAlert()
		if a == nil {
			continue
		}
		alert := transit.Alert{
			Header:      translation(a.GetHeaderText()),
			Description: translation(a.GetDescriptionText()),
			Effect:      alertEffect(a.GetEffect()),
		}
		for _, ie := range a.GetInformedEntity() {
			if routeID := ie.GetRouteId(); routeID != "" {
				alert.RouteIDs = append(alert.RouteIDs, routeID)
			}
			if stopID := ie.GetStopId(); stopID != "" {
				alert.StopIDs = append(alert.StopIDs, stopID)
			}
		}
		snap.Alerts = append(snap.Alerts, alert)
	}
}

// translation picks the first translation, the feed's English default.
func translation(ts *gtfsrt.TranslatedString) string {
	for _, t := range ts.GetTranslation() {
		if text := t.GetText(); text != "" {
			return text
		}
	}
	return ""
}

func alertEffect(effect gtfsrt.Alert_Effect) transit.AlertEffect {
	switch effect {
	case gtfsrt.Alert_SIGNIFICANT_DELAYS:
		return transit.AlertDelay
	case gtfsrt.Alert_DETOUR:
		return transit.AlertDetour
	case gtfsrt.Alert_REDUCED_SERVICE, gtfsrt.Alert_NO_SERVICE:
		return transit.AlertReducedService
	default:
		return transit.AlertOther
	}
}
