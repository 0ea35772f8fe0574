// Package vancouver provides a client for the City of Vancouver Open Data
// API road closure and construction datasets.
package vancouver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanroute/vanroute/internal/closures"
	"github.com/vanroute/vanroute/internal/provider/resilience"
	"github.com/vanroute/vanroute/pkg/geo"
)

const (
	// ProviderName identifies this closure data provider.
	ProviderName = "vancouver-opendata"

	// DefaultBaseURL is the Open Data API base URL.
	DefaultBaseURL = "https://opendata.vancouver.ca"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultRecordLimit caps how many records one dataset fetch returns.
	DefaultRecordLimit = 100
)

// Dataset identifiers in the city's catalog.
const (
	roadClosuresDataset = "road-ahead-current-road-closures"
	constructionDataset = "road-ahead-projects-under-construction"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the open data client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// RecordLimit caps records per dataset fetch (optional).
	RecordLimit int

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches the city's closure and construction datasets.
type Client struct {
	baseURL     string
	httpClient  HTTPDoer
	recordLimit int
	logger      zerolog.Logger
}

// NewClient creates a new open data client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	recordLimit := cfg.RecordLimit
	if recordLimit <= 0 {
		recordLimit = DefaultRecordLimit
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
		baseURL:     baseURL,
		httpClient:  httpClient,
		recordLimit: recordLimit,
		logger:      cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchClosures fetches both datasets and merges them into one list. A
// failure of one dataset degrades to the other; both failing is an error.
func (c *Client) FetchClosures(ctx context.Context) ([]closures.Closure, error) {
	road, roadErr := c.fetchDataset(ctx, roadClosuresDataset, closures.KindRoadClosure)
	construction, conErr := c.fetchDataset(ctx, constructionDataset, closures.KindConstruction)

	if roadErr != nil && conErr != nil {
		return nil, fmt.Errorf("%w: %s", closures.ErrProviderUnavailable, roadErr)
	}
	if roadErr != nil {
		c.logger.Warn().Err(roadErr).Msg("road closure dataset unavailable")
	}
	if conErr != nil {
		c.logger.Warn().Err(conErr).Msg("construction dataset unavailable")
	}

	return append(road, construction...), nil
}

// odsResponse is the Open Data API records envelope.
type odsResponse struct {
	TotalCount int         `json:"total_count"`
	Results    []odsRecord `json:"results"`
}

type odsRecord struct {
	RecordID string `json:"recordid"`
	Project  string `json:"project"`
	Location string `json:"location"`
	CompDate string `json:"comp_date"`
	URL      string `json:"url"`

	GeoPoint *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"geo_point_2d"`

	Geom *struct {
		Geometry struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
	} `json:"geom"`
}

func (c *Client) fetchDataset(ctx context.Context, dataset string, kind closures.Kind) ([]closures.Closure, error) {
	endpoint := fmt.Sprintf("%s/api/explore/v2.1/catalog/datasets/%s/records?limit=%d",
		c.baseURL, url.PathEscape(dataset), c.recordLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataset %s returned status %d", dataset, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var envelope odsResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	out := make([]closures.Closure, 0, len(envelope.Results))
	skipped := 0
	for i := range envelope.Results {
		closure, ok := convertRecord(&envelope.Results[i], kind)
		if !ok {
			skipped++
			continue
		}
		out = append(out, closure)
	}

	if skipped > 0 {
		c.logger.Debug().
			Str("dataset", dataset).
			Int("skipped", skipped).
			Msg("records without a usable location skipped")
	}

	return out, nil
}

func convertRecord(rec *odsRecord, kind closures.Kind) (closures.Closure, bool) {
	location, ok := recordLocation(rec)
	if !ok {
		return closures.Closure{}, false
	}

	closure := closures.Closure{
		ID:          rec.RecordID,
		Kind:        kind,
		Location:    location,
		Project:     rec.Project,
		Description: rec.Location,
		Severity:    closures.ClassifySeverity(rec.Project + " " + rec.Location),
	}
	if rec.CompDate != "" {
		if t, err := time.Parse("2006-01-02", rec.CompDate); err == nil {
			// comp_date is the expected completion; treat it as the end of
			// that day so same-day closures still count as active.
			closure.EndsAt = t.Add(24 * time.Hour)
		}
	}
	if closure.ID == "" {
		closure.ID = fmt.Sprintf("%s:%s", kind, rec.Project)
	}

	return closure, true
}

// recordLocation extracts a representative point from a record, preferring
// the precomputed centroid over the raw geometry.
func recordLocation(rec *odsRecord) (geo.Point, bool) {
	if rec.GeoPoint != nil {
		p := geo.Point{Lat: rec.GeoPoint.Lat, Lng: rec.GeoPoint.Lon}
		if p.Validate() == nil && (p.Lat != 0 || p.Lng != 0) {
			return p, true
		}
	}
	if rec.Geom != nil {
		if p, ok := geometryPoint(rec.Geom.Geometry.Type, rec.Geom.Geometry.Coordinates); ok {
			return p, true
		}
	}
	return geo.Point{}, false
}

// geometryPoint pulls the first vertex out of a GeoJSON geometry.
// Coordinates are [longitude, latitude].
func geometryPoint(geomType string, raw json.RawMessage) (geo.Point, bool) {
	switch geomType {
	case "Point":
		var coords []float64
		if json.Unmarshal(raw, &coords) == nil && len(coords) >= 2 {
			return geo.Point{Lat: coords[1], Lng: coords[0]}, true
		}
	case "LineString":
		var coords [][]float64
		if json.Unmarshal(raw, &coords) == nil && len(coords) > 0 && len(coords[0]) >= 2 {
			return geo.Point{Lat: coords[0][1], Lng: coords[0][0]}, true
		}
	case "MultiLineString":
		var coords [][][]float64
		if json.Unmarshal(raw, &coords) == nil && len(coords) > 0 &&
			len(coords[0]) > 0 && len(coords[0][0]) >= 2 {
			return geo.Point{Lat: coords[0][0][1], Lng: coords[0][0][0]}, true
		}
	}
	return geo.Point{}, false
}
