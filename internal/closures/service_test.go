package closures_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanroute/vanroute/internal/closures"
	"github.com/vanroute/vanroute/pkg/geo"
)

type mockClosureProvider struct {
	closures []closures.Closure
	err      error
	calls    int
}

func (m *mockClosureProvider) FetchClosures(_ context.Context) ([]closures.Closure, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.closures, nil
}

func (m *mockClosureProvider) Name() string { return "mock-closures" }

func granvilleClosure() closures.Closure {
	return closures.Closure{
		ID:       "c1",
		Kind:     closures.KindRoadClosure,
		Location: geo.Point{Lat: 49.2715, Lng: -123.1350},
		Project:  "Granville Bridge full closure",
		Severity: closures.SeverityMajor,
	}
}

func TestServiceCachesSnapshot(t *testing.T) {
	provider := &mockClosureProvider{closures: []closures.Closure{granvilleClosure()}}
	svc := closures.NewService(closures.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})

	active := svc.ActiveClosures(context.Background(), time.Now())
	require.Len(t, active, 1)

	svc.ActiveClosures(context.Background(), time.Now())
	assert.Equal(t, 1, provider.calls)

	status := svc.CacheStatus()
	assert.True(t, status.HasData)
	assert.Equal(t, 1, status.ClosureCount)
	assert.Equal(t, "mock-closures", status.Provider)
}

func TestServicePersistsSnapshot(t *testing.T) {
	repo := closures.NewInMemoryRepository()
	svc := closures.NewService(closures.ServiceConfig{
		Provider:   &mockClosureProvider{closures: []closures.Closure{granvilleClosure()}},
		Repository: repo,
		Logger:     zerolog.Nop(),
	})

	_, err := svc.GetSnapshot(context.Background())
	require.NoError(t, err)

	stored, err := repo.LatestSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, stored.Closures, 1)
	assert.Equal(t, "c1", stored.Closures[0].ID)
}

func TestServiceFallsBackToPersistedSnapshot(t *testing.T) {
	repo := closures.NewInMemoryRepository()
	require.NoError(t, repo.SaveSnapshot(context.Background(), &closures.Snapshot{
		Closures:  []closures.Closure{granvilleClosure()},
		FetchedAt: time.Now().Add(-2 * time.Hour),
	}))

	svc := closures.NewService(closures.ServiceConfig{
		Provider:   &mockClosureProvider{err: closures.ErrProviderUnavailable},
		Repository: repo,
		Logger:     zerolog.Nop(),
	})

	snap, err := svc.GetSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Closures, 1)
	assert.Equal(t, "c1", snap.Closures[0].ID)
}

func TestServiceDegradesToEmptySet(t *testing.T) {
	svc := closures.NewService(closures.ServiceConfig{
		Provider: &mockClosureProvider{err: closures.ErrProviderUnavailable},
		Logger:   zerolog.Nop(),
	})

	assert.Empty(t, svc.ActiveClosures(context.Background(), time.Now()))

	_, err := svc.GetSnapshot(context.Background())
	assert.ErrorIs(t, err, closures.ErrProviderUnavailable)
}

func TestServiceRefreshForcesFetch(t *testing.T) {
	provider := &mockClosureProvider{closures: []closures.Closure{granvilleClosure()}}
	svc := closures.NewService(closures.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})

	require.NoError(t, svc.RefreshSnapshot(context.Background()))
	assert.Equal(t, 1, provider.calls)
}
