// Package audit records security and activity events.
//
// Events are handed to sinks on the audit job queue, callers never wait
// for or learn about sink failures.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/NeverMind-orz/identity-kit/internal/jobs"
)

// Queue is the job queue name audit events are dispatched on.
const Queue = "audit"

// Severity levels of security events.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// SecurityEvent describes a security relevant decision, for example a
// rejected status toggle.
type SecurityEvent struct {
	// Action names the guarded operation.
	Action string `json:"action"`

	// TenantID of the affected tenant.
	TenantID string `json:"tenantId"`

	// ActorID identifies who attempted the action.
	ActorID string `json:"actorId"`

	// SubjectID identifies whom the action was about.
	SubjectID string `json:"subjectId"`

	// Reason is a stable machine readable reason code.
	Reason string `json:"reason"`

	Severity string    `json:"severity"`
	Source   string    `json:"source"`
	At       time.Time `json:"at"`
}

// ActivityEvent describes a completed operation.
type ActivityEvent struct {
	// Kind names the operation.
	Kind string `json:"kind"`

	TenantID string `json:"tenantId"`
	ActorID  string `json:"actorId"`

	// Status is the result code of the operation.
	Status int `json:"status"`

	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// Sink consumes audit events.
type Sink interface {
	RecordSecurity(ctx context.Context, event SecurityEvent) error
	RecordActivity(ctx context.Context, event ActivityEvent) error
}

// Enqueuer places fire and forget work on a named queue.
type Enqueuer interface {
	Enqueue(queue string, job jobs.Job) error
}

// Client fans audit events out to its sinks.
type Client struct {
	enqueuer Enqueuer
	sinks    []Sink
}

// NewClient creates a Client.
// With a nil enqueuer events are recorded synchronously.
func NewClient(enqueuer Enqueuer, sinks ...Sink) *Client {
	return &Client{enqueuer: enqueuer, sinks: sinks}
}

// Security records a security event. It never fails the caller.
func (c *Client) Security(ctx context.Context, event SecurityEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	c.dispatch(ctx, event.Action, func(ctx context.Context, sink Sink) error {
		return sink.RecordSecurity(ctx, event)
	})
}

// Activity records an activity event. It never fails the caller.
func (c *Client) Activity(ctx context.Context, event ActivityEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	c.dispatch(ctx, event.Kind, func(ctx context.Context, sink Sink) error {
		return sink.RecordActivity(ctx, event)
	})
}

// dispatch runs record against every sink, on the audit queue if one is wired.
func (c *Client) dispatch(ctx context.Context, name string, record func(ctx context.Context, sink Sink) error) {
	run := func(ctx context.Context) error {
		for _, sink := range c.sinks {
			if err := record(ctx, sink); err != nil {
				log.Warn().Err(err).Str("event", name).Msg("audit sink failed")
			}
		}

		return nil
	}

	if c.enqueuer == nil {
		_ = run(ctx)

		return
	}

	if err := c.enqueuer.Enqueue(Queue, run); err != nil {
		log.Warn().Err(err).Str("event", name).Msg("failed to enqueue audit event")
	}
}
