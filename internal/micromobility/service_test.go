package micromobility_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanroute/vanroute/internal/micromobility"
)

type mockFleetProvider struct {
	vehicles []micromobility.Vehicle
	err      error
	calls    int
}

func (m *mockFleetProvider) FetchVehicles(_ context.Context) ([]micromobility.Vehicle, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.vehicles, nil
}

func (m *mockFleetProvider) Name() string { return "mock-fleet" }

func fleet() []micromobility.Vehicle {
	return []micromobility.Vehicle{
		{ID: "s1", Type: micromobility.VehicleScooter, Lat: 49.2830, Lng: -123.1210},
		{ID: "s2", Type: micromobility.VehicleScooter, Lat: 49.2830, Lng: -123.1210, IsReserved: true},
		{ID: "s3", Type: micromobility.VehicleScooter, Lat: 49.2830, Lng: -123.1210, IsDisabled: true},
		// Roughly 7 km away, outside any reasonable pickup radius.
		{ID: "s4", Type: micromobility.VehicleScooter, Lat: 49.2200, Lng: -123.1210},
	}
}

func newFleetService(provider *mockFleetProvider) *micromobility.Service {
	return micromobility.NewService(micromobility.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})
}

func TestHasVehiclesNear(t *testing.T) {
	svc := newFleetService(&mockFleetProvider{vehicles: fleet()})

	ok, err := svc.HasVehiclesNear(context.Background(), 49.2827, -123.1207)
	require.NoError(t, err)
	assert.True(t, ok)

	// Nothing within reach of the far point besides the out-of-range s4.
	ok, err = svc.HasVehiclesNear(context.Background(), 49.2000, -123.1207)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVehiclesNearExcludesUnavailable(t *testing.T) {
	svc := newFleetService(&mockFleetProvider{vehicles: fleet()})

	near, err := svc.VehiclesNear(context.Background(), 49.2827, -123.1207)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "s1", near[0].ID)
}

func TestServiceCachesFleetSnapshot(t *testing.T) {
	provider := &mockFleetProvider{vehicles: fleet()}
	svc := newFleetService(provider)

	_, err := svc.VehiclesNear(context.Background(), 49.2827, -123.1207)
	require.NoError(t, err)
	_, err = svc.VehiclesNear(context.Background(), 49.2827, -123.1207)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls)
}

func TestServiceErrorsWithoutSnapshot(t *testing.T) {
	svc := newFleetService(&mockFleetProvider{err: micromobility.ErrProviderUnavailable})

	_, err := svc.HasVehiclesNear(context.Background(), 49.2827, -123.1207)
	assert.ErrorIs(t, err, micromobility.ErrProviderUnavailable)
}

func TestServiceServesStaleOnError(t *testing.T) {
	provider := &mockFleetProvider{vehicles: fleet()}
	svc := micromobility.NewService(micromobility.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
		CacheTTL: 50 * time.Millisecond,
	})

	ok, err := svc.HasVehiclesNear(context.Background(), 49.2827, -123.1207)
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(80 * time.Millisecond)
	provider.err = micromobility.ErrProviderUnavailable

	ok, err = svc.HasVehiclesNear(context.Background(), 49.2827, -123.1207)
	require.NoError(t, err)
	assert.True(t, ok)
}
