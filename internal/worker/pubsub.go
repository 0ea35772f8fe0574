package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/vanroute/vanroute/internal/rewards"
)

// PubSubHandler handles Pub/Sub messages for the worker: scheduled refresh
// jobs on one subscription, and route completion events on another.
type PubSubHandler struct {
	client            *pubsub.Client
	refreshSubscriber *pubsub.Subscriber
	rewardsSubscriber *pubsub.Subscriber
	refreshJob        *RefreshJob
	logger            zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID string

	// RefreshSubscription receives RefreshMessage jobs from the scheduler.
	RefreshSubscription string

	// RewardsSubscription receives rewards.Completion events published by
	// the API. Optional: empty disables reward consumption.
	RewardsSubscription string

	RefreshJob *RefreshJob
	Logger     zerolog.Logger
}

// RefreshMessage represents a provider refresh job message.
type RefreshMessage struct {
	JobType    string `json:"job_type"`
	RefreshAll bool   `json:"refresh_all,omitempty"`
	CheckOnly  bool   `json:"check_only,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	refreshSubscriber := client.Subscriber(cfg.RefreshSubscription)

	// Configure receive settings.
	refreshSubscriber.ReceiveSettings.MaxOutstandingMessages = 10
	refreshSubscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	h := &PubSubHandler{
		client:            client,
		refreshSubscriber: refreshSubscriber,
		refreshJob:        cfg.RefreshJob,
		logger:            cfg.Logger,
	}

	if cfg.RewardsSubscription != "" {
		rewardsSubscriber := client.Subscriber(cfg.RewardsSubscription)
		rewardsSubscriber.ReceiveSettings.MaxOutstandingMessages = 100
		h.rewardsSubscriber = rewardsSubscriber
	}

	return h, nil
}

// Start begins processing Pub/Sub messages on all configured subscriptions.
// It blocks until the context is cancelled or a subscriber fails.
func (h *PubSubHandler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	h.logger.Info().Msg("starting refresh subscriber")
	go func() {
		errCh <- h.refreshSubscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
			h.handleRefreshMessage(ctx, msg)
		})
	}()

	if h.rewardsSubscriber != nil {
		h.logger.Info().Msg("starting rewards subscriber")
		go func() {
			errCh <- h.rewardsSubscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
				h.handleRewardMessage(ctx, msg)
			})
		}()
	}

	// The first subscriber to stop brings the handler down; cancel tears
	// down the other one.
	err := <-errCh
	cancel()
	return err
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleRefreshMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received refresh message")

	// Parse message.
	var refreshMsg RefreshMessage
	if err := json.Unmarshal(msg.Data, &refreshMsg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Nack()
		return
	}

	// Handle based on job type.
	var err error
	switch refreshMsg.JobType {
	case "provider_refresh":
		err = h.handleProviderRefresh(ctx, refreshMsg)
	case "health_check":
		err = h.handleHealthCheck(ctx)
	default:
		logger.Warn().Str("job_type", refreshMsg.JobType).Msg("unknown job type")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	}

	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
		return
	}

	duration := time.Since(startTime)
	logger.Info().
		Str("job_type", refreshMsg.JobType).
		Dur("duration", duration).
		Msg("job completed successfully")

	msg.Ack()
}

func (h *PubSubHandler) handleRewardMessage(_ context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Logger()

	var completion rewards.Completion
	if err := json.Unmarshal(msg.Data, &completion); err != nil {
		logger.Error().Err(err).Msg("failed to parse reward event")
		msg.Nack()
		return
	}

	h.refreshJob.RecordReward(completion.Reward.Points, completion.Reward.CO2SavedKG)

	logger.Info().
		Str("request_id", completion.RequestID).
		Str("route_id", completion.RouteID).
		Int("points", completion.Reward.Points).
		Float64("co2_saved_kg", completion.Reward.CO2SavedKG).
		Msg("reward recorded")

	msg.Ack()
}

func (h *PubSubHandler) handleProviderRefresh(ctx context.Context, msg RefreshMessage) error {
	h.logger.Info().
		Bool("refresh_all", msg.RefreshAll).
		Msg("starting provider refresh")

	// Run the refresh job.
	result := h.refreshJob.Run(ctx)

	// Log summary.
	h.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("total_points", result.TotalPoints).
		Msg("provider refresh completed")

	// Consider it successful if more than half succeeded.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.TotalPoints)
	}

	return nil
}

func (h *PubSubHandler) handleHealthCheck(ctx context.Context) error {
	h.logger.Debug().Msg("running health check")

	// Just refresh a single point to verify provider connectivity.
	testPoint := Point{Lat: 49.2827, Lon: -123.1207} // downtown Vancouver

	// Create a single-point config.
	singlePointConfig := RefreshConfig{
		Targets: []RefreshTarget{
			{
				Name:     "health-check",
				Priority: 1,
				Points:   []Point{testPoint},
			},
		},
		Concurrency:     1,
		Timeout:         10 * time.Second,
		RefreshWeather:  true,
		RefreshClosures: false, // Skip region-wide datasets for health check
		RefreshTransit:  false,
	}

	// Create a temporary refresh job for health check.
	healthCheckJob := NewRefreshJob(RefreshJobConfig{
		Config:         singlePointConfig,
		Logger:         h.logger,
		WeatherService: h.refreshJob.weatherService,
	})

	result := healthCheckJob.Run(ctx)

	if result.Failed > 0 {
		return fmt.Errorf("health check failed: %d errors", result.Failed)
	}

	h.logger.Debug().Msg("health check passed")
	return nil
}
