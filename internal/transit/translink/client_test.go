package translink_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/vanroute/vanroute/internal/transit"
	"github.com/vanroute/vanroute/internal/transit/translink"
)

func encodeFeed(t *testing.T, fm *gtfsrt.FeedMessage) []byte {
	t.Helper()
	fm.Header = &gtfsrt.FeedHeader{
		GtfsRealtimeVersion: proto.String("2.0"),
		Timestamp:           proto.Uint64(uint64(time.Now().Unix())),
	}
	b, err := proto.Marshal(fm)
	require.NoError(t, err)
	return b
}

func tripUpdatesFeed(t *testing.T) []byte {
	return encodeFeed(t, &gtfsrt.FeedMessage{
		Entity: []*gtfsrt.FeedEntity{
			{
				Id: proto.String("1"),
				TripUpdate: &gtfsrt.TripUpdate{
					Trip: &gtfsrt.TripDescriptor{
						TripId:  proto.String("T991"),
						RouteId: proto.String("R99"),
					},
					StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
						{
							StopId: proto.String("9002"),
							Departure: &gtfsrt.TripUpdate_StopTimeEvent{
								Delay: proto.Int32(120),
								Time:  proto.Int64(1773400000),
							},
						},
					},
				},
			},
		},
	})
}

func vehiclePositionsFeed(t *testing.T) []byte {
	return encodeFeed(t, &gtfsrt.FeedMessage{
		Entity: []*gtfsrt.FeedEntity{
			{
				Id: proto.String("1"),
				Vehicle: &gtfsrt.VehiclePosition{
					Trip: &gtfsrt.TripDescriptor{
						TripId:  proto.String("T991"),
						RouteId: proto.String("R99"),
					},
					Vehicle: &gtfsrt.VehicleDescriptor{Id: proto.String("B1234")},
					Position: &gtfsrt.Position{
						Latitude:  proto.Float32(49.2627),
						Longitude: proto.Float32(-123.0695),
						Bearing:   proto.Float32(270),
					},
					Timestamp: proto.Uint64(1773400000),
				},
			},
		},
	})
}

func alertsFeed(t *testing.T) []byte {
	return encodeFeed(t, &gtfsrt.FeedMessage{
		Entity: []*gtfsrt.FeedEntity{
			{
				Id: proto.String("1"),
				Alert: &gtfsrt.Alert{
					Effect: gtfsrt.Alert_DETOUR.Enum(),
					HeaderText: &gtfsrt.TranslatedString{
						Translation: []*gtfsrt.TranslatedString_Translation{
							{Text: proto.String("99 B-Line detour via Broadway")},
						},
					},
					InformedEntity: []*gtfsrt.EntitySelector{
						{RouteId: proto.String("R99")},
						{StopId: proto.String("9002")},
					},
				},
			},
		},
	})
}

func feedServer(t *testing.T, fail map[string]bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case strings.Contains(r.URL.Path, "gtfsrealtime"):
			if fail["trips"] {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write(tripUpdatesFeed(t))
		case strings.Contains(r.URL.Path, "gtfsposition"):
			if fail["positions"] {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write(vehiclePositionsFeed(t))
		case strings.Contains(r.URL.Path, "gtfsalerts"):
			if fail["alerts"] {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write(alertsFeed(t))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestClient(server *httptest.Server) *translink.Client {
	return translink.NewClient(translink.ClientConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})
}

func TestFetchSnapshot(t *testing.T) {
	server := feedServer(t, nil)
	defer server.Close()

	snap, err := newTestClient(server).FetchSnapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.TripUpdates, 1)
	tu := snap.TripUpdates[0]
	assert.Equal(t, "T991", tu.TripID)
	assert.Equal(t, "R99", tu.RouteID)
	require.Len(t, tu.StopTimeUpdates, 1)
	stu := tu.StopTimeUpdates[0]
	assert.Equal(t, "9002", stu.StopID)
	require.NotNil(t, stu.Departure)
	assert.Equal(t, 120, stu.Departure.DelaySeconds)
	assert.Equal(t, time.Unix(1773400000, 0), stu.Departure.Time)
	assert.Nil(t, stu.Arrival)

	require.Len(t, snap.VehiclePositions, 1)
	vp := snap.VehiclePositions[0]
	assert.Equal(t, "B1234", vp.VehicleID)
	assert.InDelta(t, 49.2627, vp.Lat, 0.001)
	assert.InDelta(t, -123.0695, vp.Lng, 0.001)

	require.Len(t, snap.Alerts, 1)
	alert := snap.Alerts[0]
	assert.Equal(t, "99 B-Line detour via Broadway", alert.Header)
	assert.Equal(t, transit.AlertDetour, alert.Effect)
	assert.Equal(t, []string{"R99"}, alert.RouteIDs)
	assert.Equal(t, []string{"9002"}, alert.StopIDs)

	assert.False(t, snap.FetchedAt.IsZero())
}

func TestFetchSnapshotTripUpdatesRequired(t *testing.T) {
	server := feedServer(t, map[string]bool{"trips": true})
	defer server.Close()

	_, err := newTestClient(server).FetchSnapshot(context.Background())
	assert.ErrorIs(t, err, transit.ErrFeedUnavailable)
}

func TestFetchSnapshotDegradesWithoutAlerts(t *testing.T) {
	server := feedServer(t, map[string]bool{"positions": true, "alerts": true})
	defer server.Close()

	snap, err := newTestClient(server).FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.TripUpdates, 1)
	assert.Empty(t, snap.VehiclePositions)
	assert.Empty(t, snap.Alerts)
}

func TestFetchSnapshotRejectsBadKey(t *testing.T) {
	server := feedServer(t, nil)
	defer server.Close()

	client := translink.NewClient(translink.ClientConfig{
		APIKey:     "wrong-key",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})

	_, err := client.FetchSnapshot(context.Background())
	assert.ErrorIs(t, err, transit.ErrFeedUnavailable)
}
