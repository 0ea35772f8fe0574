// Package googlemaps provides a client for the Google Maps Directions API,
// the upstream multi-modal directions provider.
package googlemaps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanroute/vanroute/internal/provider/resilience"
	"github.com/vanroute/vanroute/internal/routing"
	"github.com/vanroute/vanroute/pkg/geo"
)

const (
	// ProviderName identifies this directions provider.
	ProviderName = "googlemaps"

	// DefaultBaseURL is the Directions API base URL.
	DefaultBaseURL = "https://maps.googleapis.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the directions client.
type ClientConfig struct {
	// APIKey is the Directions API key (required).
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

// Client is a Google Maps Directions API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new directions client.
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

// GetDirections retrieves route alternatives for a single travel mode.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if err := req.Origin.Validate(); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_ORIGIN",
			Message:  "invalid origin coordinates",
			Err:      routing.ErrInvalidCoordinates,
		}
	}
	if err := req.Destination.Validate(); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_DESTINATION",
			Message:  "invalid destination coordinates",
			Err:      routing.ErrInvalidCoordinates,
		}
	}

	q := url.Values{}
	q.Set("origin", formatLatLng(req.Origin))
	q.Set("destination", formatLatLng(req.Destination))
	q.Set("mode", string(req.Mode))
	q.Set("units", "metric")
	q.Set("key", c.apiKey)
	if req.Alternatives {
		q.Set("alternatives", "true")
	}
	if req.AvoidHighways {
		q.Set("avoid", "highways")
	}
	if len(req.Waypoints) > 0 {
		// "via:" waypoints bias the path without adding stopovers.
		parts := make([]string, len(req.Waypoints))
		for i, wp := range req.Waypoints {
			parts[i] = "via:" + formatLatLng(wp)
		}
		q.Set("waypoints", strings.Join(parts, "|"))
	}
	if req.DepartureTime != nil {
		q.Set("departure_time", strconv.FormatInt(req.DepartureTime.Unix(), 10))
	}

	reqURL := fmt.Sprintf("%s/maps/api/directions/json?%s", c.baseURL, q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("mode", string(req.Mode)).
		Int("waypoints", len(req.Waypoints)).
		Msg("requesting directions")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach directions provider",
			Err:      routing.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  fmt.Sprintf("directions provider returned status %d", resp.StatusCode),
			Err:      routing.ErrProviderUnavailable,
		}
	}

	var gmResp gmResponse
	if err := json.Unmarshal(respBody, &gmResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if gmResp.Status != statusOK {
		return nil, c.handleStatusError(&gmResp)
	}

	result := c.toDirectionsResponse(&gmResp)

	c.logger.Debug().
		Int("route_count", len(result.Routes)).
		Msg("received directions")

	return result, nil
}

// handleStatusError maps Directions API status codes to domain errors.
func (c *Client) handleStatusError(resp *gmResponse) error {
	switch resp.Status {
	case statusZeroResults, statusNotFound:
		return &routing.Error{
			Provider: ProviderName,
			Code:     resp.Status,
			Message:  "no route found between the given points",
			Err:      routing.ErrNoRouteFound,
		}
	case statusOverQueryLimit:
		return &routing.Error{
			Provider: ProviderName,
			Code:     resp.Status,
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrRateLimitExceeded,
		}
	case statusRequestDenied:
		return &routing.Error{
			Provider: ProviderName,
			Code:     resp.Status,
			Message:  "API access denied - check API key configuration",
			Err:      routing.ErrProviderUnavailable,
		}
	case statusInvalidRequest:
		return &routing.Error{
			Provider: ProviderName,
			Code:     resp.Status,
			Message:  firstNonEmpty(resp.ErrorMessage, "invalid directions request"),
			Err:      routing.ErrInvalidCoordinates,
		}
	default:
		return &routing.Error{
			Provider: ProviderName,
			Code:     resp.Status,
			Message:  firstNonEmpty(resp.ErrorMessage, "directions provider error"),
			Err:      routing.ErrProviderUnavailable,
		}
	}
}

// toDirectionsResponse converts the wire response to the domain model.
func (c *Client) toDirectionsResponse(resp *gmResponse) *routing.DirectionsResponse {
	routes := make([]routing.ProviderRoute, 0, len(resp.Routes))

	for i := range resp.Routes {
		gr := &resp.Routes[i]
		route := routing.ProviderRoute{Summary: gr.Summary}

		for j := range gr.Legs {
			leg := &gr.Legs[j]
			pl := routing.ProviderLeg{
				DistanceMeters:  float64(leg.Distance.Value),
				DurationSeconds: int(leg.Duration.Value),
			}

			for k := range leg.Steps {
				step := &leg.Steps[k]
				ps := routing.ProviderStep{
					TravelMode:      travelMode(step.TravelMode),
					DistanceMeters:  float64(step.Distance.Value),
					DurationSeconds: int(step.Duration.Value),
					Start:           geo.Point{Lat: step.StartLocation.Lat, Lng: step.StartLocation.Lng},
					End:             geo.Point{Lat: step.EndLocation.Lat, Lng: step.EndLocation.Lng},
					Polyline:        step.Polyline.Points,
					Instruction:     stripTags(step.HTMLInstructions),
				}

				if td := step.TransitDetails; td != nil {
					ps.Transit = &routing.ProviderTransitDetails{
						RouteShortName:     td.Line.ShortName,
						RouteLongName:      td.Line.Name,
						VehicleKind:        td.Line.Vehicle.Name,
						VehicleType:        td.Line.Vehicle.Type,
						DepartureStop:      td.DepartureStop.Name,
						DepartureStopID:    td.DepartureStop.PlaceID,
						DepartureLocation:  geo.Point{Lat: td.DepartureStop.Location.Lat, Lng: td.DepartureStop.Location.Lng},
						ArrivalStop:        td.ArrivalStop.Name,
						ArrivalStopID:      td.ArrivalStop.PlaceID,
						ArrivalLocation:    geo.Point{Lat: td.ArrivalStop.Location.Lat, Lng: td.ArrivalStop.Location.Lng},
						ScheduledDeparture: unixTime(td.DepartureTime.Value),
						ScheduledArrival:   unixTime(td.ArrivalTime.Value),
						StopCount:          td.NumStops,
						Headsign:           td.Headsign,
					}
				}

				pl.Steps = append(pl.Steps, ps)
			}

			route.Legs = append(route.Legs, pl)
		}

		routes = append(routes, route)
	}

	return &routing.DirectionsResponse{
		Routes:    routes,
		Provider:  ProviderName,
		FetchedAt: time.Now(),
	}
}

func travelMode(s string) routing.TravelMode {
	switch strings.ToUpper(s) {
	case "WALKING":
		return routing.TravelWalking
	case "BICYCLING":
		return routing.TravelBicycling
	case "TRANSIT":
		return routing.TravelTransit
	default:
		return routing.TravelDriving
	}
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// stripTags removes the HTML markup the API embeds in instructions.
func stripTags(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}

func unixTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}

func formatLatLng(p geo.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
