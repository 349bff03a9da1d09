package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
)

var (
	// ErrBrokerRejected is returned if the broker nacks a published message.
	ErrBrokerRejected = errors.New("message rejected by broker")
)

// RabbitSink publishes outbox messages to a rabbitmq topic exchange.
// The channel runs in confirm mode, Publish waits for the broker ack.
type RabbitSink struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewRabbitSink connects to the broker and declares the durable topic exchange.
func NewRabbitSink(cfg BrokerConfig) (*RabbitSink, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("failed to enable confirm mode: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitSink{conn: conn, channel: channel, exchange: cfg.Exchange}, nil
}

// Publish implements Sink.
// The routing key is "<source>.<event type>.<tenant id>" in lower case source.
func (s *RabbitSink) Publish(ctx context.Context, msg models.OutboxMessage) error {
	routingKey := fmt.Sprintf("%s.%s.%s", strings.ToLower(msg.Source), msg.EventType, msg.TenantID)

	confirmation, err := s.channel.PublishWithDeferredConfirmWithContext(ctx,
		s.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     msg.ID,
			CorrelationId: msg.CorrelationID,
			Type:          msg.EventType,
			Timestamp:     time.Now(),
			Headers: amqp.Table{
				"tenant_id": msg.TenantID,
				"source":    msg.Source,
			},
			Body: []byte(msg.Payload),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for broker confirmation: %w", err)
	}

	if !acked {
		return ErrBrokerRejected
	}

	return nil
}

// Close closes channel and connection.
func (s *RabbitSink) Close() error {
	if s.channel != nil && !s.channel.IsClosed() {
		if err := s.channel.Close(); err != nil {
			return fmt.Errorf("failed to close rabbitmq channel: %w", err)
		}
	}

	if s.conn != nil && !s.conn.IsClosed() {
		if err := s.conn.Close(); err != nil {
			return fmt.Errorf("failed to close rabbitmq connection: %w", err)
		}
	}

	return nil
}
