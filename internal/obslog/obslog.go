// Package obslog provides the link's structured logging. The library code
// logs handshake rejection, low-priority drop and release-build refusal,
// plus warnings for failed accepts on the main and bulk listeners and for
// failed bulk body sends.
package obslog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global scoped logger, initialized to a sane default so
// callers that never call Initialize still get usable output.
var Log zerolog.Logger

func init() {
	Log = log.With().Str("component", "snaplink").Logger()
}

// Initialize configures the global logger's level and output format.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("component", "snaplink").Logger()
}

// Session returns a logger scoped to a single session.
func Session(id uint64) *zerolog.Logger {
	l := Log.With().Uint64("sessionID", id).Logger()
	return &l
}

// Server returns a logger scoped to the accept loop/server lifecycle.
func Server() *zerolog.Logger {
	l := Log.With().Str("subsystem", "server").Logger()
	return &l
}
