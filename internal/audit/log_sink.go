package audit

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogSink writes audit events to the zerolog global logger.
type LogSink struct{}

// RecordSecurity implements Sink.
func (LogSink) RecordSecurity(_ context.Context, event SecurityEvent) error {
	level := zerolog.InfoLevel
	if event.Severity == SeverityWarning {
		level = zerolog.WarnLevel
	}

	log.WithLevel(level).
		Str("type", "audit.security").
		Str("action", event.Action).
		Str("tenant", event.TenantID).
		Str("actor", event.ActorID).
		Str("subject", event.SubjectID).
		Str("reason", event.Reason).
		Str("source", event.Source).
		Time("at", event.At).
		Msg("security event")

	return nil
}

// RecordActivity implements Sink.
func (LogSink) RecordActivity(_ context.Context, event ActivityEvent) error {
	log.Info().
		Str("type", "audit.activity").
		Str("kind", event.Kind).
		Str("tenant", event.TenantID).
		Str("actor", event.ActorID).
		Int("status", event.Status).
		Interface("payload", event.Payload).
		Time("at", event.At).
		Msg("activity event")

	return nil
}
