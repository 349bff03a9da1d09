package models

import "time"

// OutboxStatus represents the delivery state of an outbox message.
type OutboxStatus string

const (
	// OutboxStatusPending indicates the message is waiting to be published.
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusPublished indicates the message was delivered to the broker.
	OutboxStatusPublished OutboxStatus = "published"
	// OutboxStatusFailed indicates publishing was abandoned after the retry budget.
	OutboxStatusFailed OutboxStatus = "failed"
)

// OutboxMessage is a durable integration event, appended in the same
// transaction as the business state change that produced it and drained
// asynchronously by the publisher. IDs are ULIDs so draining in primary-key
// order is draining in creation order.
type OutboxMessage struct {
	// ID is the unique identifier for the message (ULID, time-sortable).
	ID string `gorm:"primaryKey;size:26"`
	// TenantID is the tenant the event originated in.
	TenantID string `gorm:"size:36;not null;index"`
	// EventType is the integration event name (e.g. "UserRegistered").
	EventType string `gorm:"size:100;not null"`
	// Source tags the subsystem that emitted the event (e.g. "Identity").
	Source string `gorm:"size:50;not null"`
	// Payload is the JSON-encoded event body.
	Payload string `gorm:"type:text;not null"`
	// CorrelationID ties the event to the request that produced it (UUID).
	CorrelationID string `gorm:"size:36;not null"`
	// Status is the delivery state (pending, published, or failed).
	Status OutboxStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	// Attempts counts how many publish attempts have been made.
	Attempts int `gorm:"not null;default:0"`
	// NextAttemptAt is the earliest time the publisher may try again.
	NextAttemptAt time.Time `gorm:"index"`
	// LastError records the most recent publish failure, if any.
	LastError string `gorm:"size:500"`
	// CreatedAt is the timestamp when the message was appended (managed by GORM).
	CreatedAt time.Time
	// PublishedAt is when the message was delivered (nil until then).
	PublishedAt *time.Time
}

// TableName specifies the database table name for the OutboxMessage model.
// This overrides GORM's default pluralized table naming.
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// TenantColumn returns the qualified column holding the owning tenant id.
func (OutboxMessage) TenantColumn() string {
	return "outbox_messages.tenant_id"
}
