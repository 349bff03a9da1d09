// Package outbox implements the transactional outbox.
//
// Integration events are appended to the outbox_messages table inside the
// same transaction as the state change that produced them. A background
// publisher drains due messages to the broker in creation order and tracks
// attempts with a growing retry delay.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
)

const (
	baseRetryDelay = time.Second
	maxRetryDelay  = 5 * time.Minute

	// maxLastErrorLen matches the column size of outbox_messages.last_error.
	maxLastErrorLen = 500
)

var (
	// ErrNilTransaction is returned if Append is called without a transaction.
	ErrNilTransaction = errors.New("outbox append requires a transaction")
)

// Event is an integration event to be appended to the outbox.
type Event struct {
	// Type is the integration event name (e.g. "UserRegistered").
	Type string

	// TenantID of the tenant the event originated in.
	TenantID string

	// Source tags the emitting subsystem (e.g. "Identity").
	Source string

	// CorrelationID ties the event to the request that produced it.
	CorrelationID string

	// Payload is marshalled to JSON.
	Payload any
}

// Store persists and updates outbox messages.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store on the given database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Append writes the event into the outbox inside the caller's transaction.
// The message becomes visible to the publisher once the transaction commits.
func (s *Store) Append(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return ErrNilTransaction
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	msg := models.OutboxMessage{
		ID:            ulid.Make().String(),
		TenantID:      event.TenantID,
		EventType:     event.Type,
		Source:        event.Source,
		Payload:       string(payload),
		CorrelationID: event.CorrelationID,
		Status:        models.OutboxStatusPending,
		NextAttemptAt: time.Now().UTC(),
	}

	if err := tx.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("failed to append outbox message: %w", err)
	}

	return nil
}

// Due returns up to limit pending messages ready for publishing, oldest first.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error) {
	var messages []models.OutboxMessage

	err := s.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.OutboxStatusPending, now).
		Order("id").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load due outbox messages: %w", err)
	}

	return messages, nil
}

// MarkPublished finalizes a delivered message.
func (s *Store) MarkPublished(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       models.OutboxStatusPublished,
			"published_at": at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark outbox message published: %w", err)
	}

	return nil
}

// MarkFailed records a failed attempt. The message is scheduled for a later
// retry until maxAttempts is reached, then it is parked as failed.
func (s *Store) MarkFailed(ctx context.Context, msg models.OutboxMessage, cause error, maxAttempts int, now time.Time) error {
	attempts := msg.Attempts + 1

	lastError := cause.Error()
	if len(lastError) > maxLastErrorLen {
		lastError = lastError[:maxLastErrorLen]
	}

	updates := map[string]any{
		"attempts":   attempts,
		"last_error": lastError,
	}

	if attempts >= maxAttempts {
		updates["status"] = models.OutboxStatusFailed
	} else {
		updates["next_attempt_at"] = now.Add(retryDelay(attempts))
	}

	err := s.db.WithContext(ctx).
		Model(&models.OutboxMessage{}).
		Where("id = ?", msg.ID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to mark outbox message failed: %w", err)
	}

	return nil
}

// retryDelay doubles per attempt, capped at maxRetryDelay.
func retryDelay(attempts int) time.Duration {
	delay := baseRetryDelay

	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}

	return delay
}
