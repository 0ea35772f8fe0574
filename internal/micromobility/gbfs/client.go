// Package gbfs provides a client for General Bikeshare Feed Specification
// vehicle availability feeds, as published by the local scooter operator.
package gbfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanroute/vanroute/internal/micromobility"
	"github.com/vanroute/vanroute/internal/provider/resilience"
)

const (
	// ProviderName identifies this availability provider.
	ProviderName = "lime-gbfs"

	// DefaultFeedURL is the operator's free vehicle feed for the region.
	DefaultFeedURL = "https://data.lime.bike/api/partners/v1/gbfs/vancouver/free_bike_status.json"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the feed client.
type ClientConfig struct {
	// FeedURL is the free vehicle feed URL (optional).
	FeedURL string

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

// Client fetches a GBFS free vehicle feed.
type Client struct {
	feedURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new feed client.
func NewClient(cfg ClientConfig) *Client {
	feedURL := cfg.FeedURL
	if feedURL == "" {
		feedURL = DefaultFeedURL
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
		feedURL:    feedURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// gbfsResponse is the feed envelope.
type gbfsResponse struct {
	LastUpdated int64 `json:"last_updated"`
	TTL         int   `json:"ttl"`
	Data        struct {
		Bikes []gbfsBike `json:"bikes"`
	} `json:"data"`
}

type gbfsBike struct {
	BikeID             string   `json:"bike_id"`
	Lat                float64  `json:"lat"`
	Lon                float64  `json:"lon"`
	IsReserved         jsonBool `json:"is_reserved"`
	IsDisabled         jsonBool `json:"is_disabled"`
	VehicleType        string   `json:"vehicle_type"`
	CurrentRangeMeters float64  `json:"current_range_meters"`
}

// jsonBool accepts both the boolean and 0/1 integer encodings operators
// use for GBFS flag fields.
type jsonBool bool

func (b *jsonBool) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true", "1":
		*b = true
	case "false", "0", "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean value %q", data)
	}
	return nil
}

// FetchVehicles fetches the current fleet availability.
func (c *Client) FetchVehicles(ctx context.Context) ([]micromobility.Vehicle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", micromobility.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: feed returned status %d",
			micromobility.ErrProviderUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var envelope gbfsResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}

	vehicles := make([]micromobility.Vehicle, 0, len(envelope.Data.Bikes))
	for _, bike := range envelope.Data.Bikes {
		if bike.BikeID == "" {
			continue
		}
		vehicles = append(vehicles, micromobility.Vehicle{
			ID:                 bike.BikeID,
			Type:               vehicleType(bike.VehicleType),
			Lat:                bike.Lat,
			Lng:                bike.Lon,
			IsReserved:         bool(bike.IsReserved),
			IsDisabled:         bool(bike.IsDisabled),
			CurrentRangeMeters: bike.CurrentRangeMeters,
		})
	}

	return vehicles, nil
}

func vehicleType(raw string) micromobility.VehicleType {
	if raw == "bike" || raw == "bicycle" {
		return micromobility.VehicleBike
	}
	// The operator's fleet here is scooters; missing type means scooter.
	return micromobility.VehicleScooter
}
