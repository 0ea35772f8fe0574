package gbfs_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanroute/vanroute/internal/micromobility"
	"github.com/vanroute/vanroute/internal/micromobility/gbfs"
)

const feedJSON = `{
	"last_updated": 1773400000,
	"ttl": 60,
	"data": {
		"bikes": [
			{
				"bike_id": "s1",
				"lat": 49.2830,
				"lon": -123.1210,
				"is_reserved": false,
				"is_disabled": false,
				"vehicle_type": "scooter",
				"current_range_meters": 12000
			},
			{
				"bike_id": "b1",
				"lat": 49.2650,
				"lon": -123.1400,
				"is_reserved": 1,
				"is_disabled": 0,
				"vehicle_type": "bike"
			},
			{
				"bike_id": "",
				"lat": 0,
				"lon": 0
			}
		]
	}
}`

func TestFetchVehicles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(feedJSON))
	}))
	defer server.Close()

	client := gbfs.NewClient(gbfs.ClientConfig{
		FeedURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})

	vehicles, err := client.FetchVehicles(context.Background())
	require.NoError(t, err)
	require.Len(t, vehicles, 2)

	assert.Equal(t, "s1", vehicles[0].ID)
	assert.Equal(t, micromobility.VehicleScooter, vehicles[0].Type)
	assert.InDelta(t, 49.2830, vehicles[0].Lat, 0.0001)
	assert.True(t, vehicles[0].Available())
	assert.InDelta(t, 12000.0, vehicles[0].CurrentRangeMeters, 0.1)

	// Integer-encoded flags decode like booleans.
	assert.Equal(t, micromobility.VehicleBike, vehicles[1].Type)
	assert.True(t, vehicles[1].IsReserved)
	assert.False(t, vehicles[1].Available())
}

func TestFetchVehiclesUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := gbfs.NewClient(gbfs.ClientConfig{
		FeedURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})

	_, err := client.FetchVehicles(context.Background())
	assert.ErrorIs(t, err, micromobility.ErrProviderUnavailable)
}
