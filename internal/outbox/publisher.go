package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
)

const (
	defaultDrainInterval  = 5 * time.Second
	defaultBatchSize      = 50
	defaultMaxAttempts    = 8
	defaultPublishTimeout = 10 * time.Second
)

var (
	outboxPublished = promauto.NewCounter( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Number of outbox messages delivered to the broker.",
		},
	)

	outboxFailures = promauto.NewCounter( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Number of failed outbox publish attempts.",
		},
	)
)

// BrokerConfig implements the outbox publisher and broker config.
type BrokerConfig struct {
	// Enabled starts the publisher and the broker sink.
	Enabled bool `toml:"enabled"`

	// URL of the rabbitmq broker (amqp://...).
	URL string `toml:"url"`

	// Exchange is the topic exchange integration events are published to.
	Exchange string `toml:"exchange"`

	// PublishTimeout bounds one publish including the broker confirmation.
	PublishTimeout time.Duration `toml:"publishTimeout"`

	// DrainInterval is the pause between publisher passes.
	DrainInterval time.Duration `toml:"drainInterval"`

	// BatchSize is the maximum number of messages per pass.
	BatchSize int `toml:"batchSize"`

	// MaxAttempts parks a message as failed once reached.
	MaxAttempts int `toml:"maxAttempts"`
}

// Sink delivers one outbox message to the broker.
type Sink interface {
	Publish(ctx context.Context, msg models.OutboxMessage) error
}

// Publisher drains due outbox messages to a sink.
type Publisher struct {
	store *Store
	sink  Sink
	cfg   BrokerConfig
}

// NewPublisher creates a Publisher and applies config defaults.
func NewPublisher(store *Store, sink Sink, cfg BrokerConfig) *Publisher {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = defaultDrainInterval
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}

	return &Publisher{store: store, sink: sink, cfg: cfg}
}

// Run drains the outbox until ctx is done. Run it on its own goroutine.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.DrainOnce(ctx); err != nil {
				log.Error().Err(err).Msg("outbox drain pass failed")
			}
		}
	}
}

// DrainOnce publishes one batch of due messages in creation order.
// A failing message is rescheduled and does not stop the pass.
func (p *Publisher) DrainOnce(ctx context.Context) error {
	messages, err := p.store.Due(ctx, time.Now().UTC(), p.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if err := p.publish(ctx, msg); err != nil {
			outboxFailures.Inc()
			log.Warn().Err(err).
				Str("id", msg.ID).
				Str("event", msg.EventType).
				Int("attempts", msg.Attempts+1).
				Msg("failed to publish outbox message")

			if err := p.store.MarkFailed(ctx, msg, err, p.cfg.MaxAttempts, time.Now().UTC()); err != nil {
				return err
			}

			continue
		}

		outboxPublished.Inc()

		if err := p.store.MarkPublished(ctx, msg.ID, time.Now().UTC()); err != nil {
			return err
		}
	}

	return nil
}

// publish delivers one message within the publish timeout.
func (p *Publisher) publish(ctx context.Context, msg models.OutboxMessage) error {
	publishCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	if err := p.sink.Publish(publishCtx, msg); err != nil {
		return fmt.Errorf("sink rejected message %s: %w", msg.ID, err)
	}

	return nil
}
