// Package stdlogger adapts the zerolog global logger to printf style
// logging interfaces expected by client libraries.
package stdlogger

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Adapter forwards printf style calls to the zerolog global logger.
type Adapter struct{}

// New creates a new Adapter.
func New() *Adapter {
	return &Adapter{}
}

// Debugf logs a formatted message at debug level.
func (a *Adapter) Debugf(format string, v ...any) {
	log.Debug().Msgf(format, v...)
}

// Infof logs a formatted message at info level.
func (a *Adapter) Infof(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

// Warningf logs a formatted message at warn level.
func (a *Adapter) Warningf(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

// Errorf logs a formatted message at error level.
func (a *Adapter) Errorf(format string, v ...any) {
	log.Error().Msgf(format, v...)
}

// Printf implements the logging interface of the redis client.
// The client only logs notable conditions, so entries land at warn level.
func (a *Adapter) Printf(_ context.Context, format string, v ...any) {
	log.Warn().Msgf(format, v...)
}
