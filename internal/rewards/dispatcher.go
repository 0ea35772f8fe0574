package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/vanroute/vanroute/internal/routing"
)

// publishTimeout bounds how long a single reward publish may take once the
// route response has already been sent.
const publishTimeout = 10 * time.Second

// Publisher sends one serialized completion event. Implemented by Pub/Sub
// in production and by fakes in tests.
type Publisher interface {
	Publish(ctx context.Context, data []byte) error
}

// pubsubPublisher adapts a Pub/Sub topic publisher to the Publisher
// interface.
type pubsubPublisher struct {
	publisher *pubsub.Publisher
}

func (p *pubsubPublisher) Publish(ctx context.Context, data []byte) error {
	result := p.publisher.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing reward message: %w", err)
	}
	return nil
}

// DispatcherConfig holds configuration for the reward dispatcher.
type DispatcherConfig struct {
	ProjectID string
	TopicName string
	Logger    zerolog.Logger

	// Publisher overrides the Pub/Sub publisher, for tests.
	Publisher Publisher
}

// Dispatcher publishes reward events for finalized routes. Publishing is
// fire-and-forget: a failed publish is logged and dropped, never surfaced
// to the route response.
type Dispatcher struct {
	client    *pubsub.Client
	publisher Publisher
	topicName string
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher publishing to the configured topic.
func NewDispatcher(ctx context.Context, cfg DispatcherConfig) (*Dispatcher, error) {
	d := &Dispatcher{
		publisher: cfg.Publisher,
		topicName: cfg.TopicName,
		logger:    cfg.Logger,
		now:       time.Now,
	}

	if d.publisher == nil {
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("creating pubsub client: %w", err)
		}
		d.client = client
		d.publisher = &pubsubPublisher{publisher: client.Publisher(cfg.TopicName)}
	}

	return d, nil
}

// Close closes the underlying Pub/Sub client, if any.
func (d *Dispatcher) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}

var _ routing.RewardDispatcher = (*Dispatcher)(nil)

// Dispatch computes the reward for the route and publishes it in the
// background. The caller's context is only used to observe cancellation of
// the whole process, not the request.
func (d *Dispatcher) Dispatch(ctx context.Context, requestID string, route *routing.Route) {
	event := Completion{
		RequestID:       requestID,
		RouteID:         route.ID,
		Modes:           route.ModeSequence(),
		DistanceMeters:  route.TotalDistanceMeters,
		DurationSeconds: route.TotalDurationSeconds,
		Reward:          ComputeReward(route),
		CompletedAt:     d.now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		d.logger.Error().Err(err).Str("request_id", requestID).Msg("failed to encode reward event")
		return
	}

	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := d.publisher.Publish(pubCtx, data); err != nil {
			d.logger.Warn().
				Err(err).
				Str("request_id", requestID).
				Str("topic", d.topicName).
				Msg("reward publish failed")
			return
		}

		d.logger.Debug().
			Str("request_id", requestID).
			Str("route_id", route.ID).
			Int("points", event.Reward.Points).
			Msg("reward dispatched")
	}()
}
