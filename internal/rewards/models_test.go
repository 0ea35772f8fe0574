package rewards_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanroute/vanroute/internal/rewards"
	"github.com/vanroute/vanroute/internal/routing"
)

func routeWithSteps(points int, steps ...routing.RouteStep) *routing.Route {
	return &routing.Route{
		ID:                   "route-1",
		Steps:                steps,
		SustainabilityPoints: points,
	}
}

func step(mode routing.TransportMode, meters float64) routing.RouteStep {
	return routing.RouteStep{Mode: mode, DistanceMeters: meters}
}

func TestComputeReward_CarFreeSingleMode(t *testing.T) {
	route := routeWithSteps(100, step(routing.ModeBike, 5000))

	reward := rewards.ComputeReward(route)

	// One sustainable mode, no car: only the car-free bonus applies.
	assert.Equal(t, 130, reward.Points)
	// 5 km by bike saves 5 * 0.12 kg versus driving.
	assert.InDelta(t, 0.6, reward.CO2SavedKG, 1e-9)
}

func TestComputeReward_MultiModalCarFree(t *testing.T) {
	route := routeWithSteps(100,
		step(routing.ModeWalk, 500),
		step(routing.ModeBus, 8000),
		step(routing.ModeWalk, 300),
	)

	reward := rewards.ComputeReward(route)

	// Walk + bus: multi-modal (1.1) and car-free (1.3) both apply.
	assert.Equal(t, 143, reward.Points)
	// Walk legs save 0.8 km * 0.12, the bus leg 8 km * (0.12 - 0.05).
	assert.InDelta(t, 0.8*0.12+8*0.07, reward.CO2SavedKG, 1e-9)
}

func TestComputeReward_CarLegDropsBonuses(t *testing.T) {
	route := routeWithSteps(40,
		step(routing.ModeCar, 10000),
		step(routing.ModeWalk, 400),
	)

	reward := rewards.ComputeReward(route)

	// A car leg forfeits the car-free bonus, and a single sustainable mode
	// does not qualify for the multi-modal bonus.
	assert.Equal(t, 40, reward.Points)
	// The car leg itself saves nothing.
	assert.InDelta(t, 0.4*0.12, reward.CO2SavedKG, 1e-9)
}

func TestComputeReward_RepeatedModeCountsOnce(t *testing.T) {
	route := routeWithSteps(80,
		step(routing.ModeBike, 2000),
		step(routing.ModeBike, 3000),
	)

	reward := rewards.ComputeReward(route)

	// Two bike legs are still one sustainable mode.
	assert.Equal(t, 104, reward.Points) // 80 * 1.3
}

type capturePublisher struct {
	mu        sync.Mutex
	published [][]byte
	err       error
	done      chan struct{}
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{done: make(chan struct{}, 4)}
}

func (p *capturePublisher) Publish(_ context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, data)
	p.done <- struct{}{}
	return p.err
}

func (p *capturePublisher) wait(t *testing.T) []byte {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published[len(p.published)-1]
}

func TestDispatcher_Dispatch(t *testing.T) {
	publisher := newCapturePublisher()
	dispatcher, err := rewards.NewDispatcher(context.Background(), rewards.DispatcherConfig{
		TopicName: "route-rewards",
		Logger:    zerolog.Nop(),
		Publisher: publisher,
	})
	require.NoError(t, err)
	defer dispatcher.Close()

	route := routeWithSteps(100, step(routing.ModeBike, 5000))
	route.TotalDistanceMeters = 5000
	route.TotalDurationSeconds = 1200

	dispatcher.Dispatch(context.Background(), "req-42", route)

	data := publisher.wait(t)
	assert.Contains(t, string(data), `"request_id":"req-42"`)
	assert.Contains(t, string(data), `"route_id":"route-1"`)
	assert.Contains(t, string(data), `"points":130`)
	assert.Contains(t, string(data), `"biking"`)
}

func TestDispatcher_PublishFailureDoesNotPanic(t *testing.T) {
	publisher := newCapturePublisher()
	publisher.err = errors.New("topic unavailable")

	dispatcher, err := rewards.NewDispatcher(context.Background(), rewards.DispatcherConfig{
		TopicName: "route-rewards",
		Logger:    zerolog.Nop(),
		Publisher: publisher,
	})
	require.NoError(t, err)
	defer dispatcher.Close()

	dispatcher.Dispatch(context.Background(), "req-43", routeWithSteps(10, step(routing.ModeWalk, 100)))

	// The failure is logged and dropped; the publish attempt still happened.
	publisher.wait(t)
}
