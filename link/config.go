package link

import (
	"time"

	"github.com/openai/snap-o-link/buffer"
	"github.com/openai/snap-o-link/session"
)

// Config bounds the server's socket, buffer, and session behavior. Every
// field mirrors a recognized option named in spec.md §6.
type Config struct {
	// SocketPrefix names the local socket; the bound address is
	// "<SocketPrefix>_<pid>".
	SocketPrefix string

	BufferWindow      time.Duration
	MaxBufferedEvents int
	MaxBufferedBytes  int64

	// AllowRelease permits startup in a release build. Refusing to start
	// otherwise is the link's only user-visible failure (spec.md §7).
	AllowRelease bool

	ResponseBodyDelayMillis    int
	ResponseBodyStaggerMillis int

	Session session.Config
}

// DefaultConfig returns spec.md §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		SocketPrefix:              "snaplink",
		BufferWindow:              5 * time.Minute,
		MaxBufferedEvents:         10_000,
		MaxBufferedBytes:          16 << 20,
		AllowRelease:              false,
		ResponseBodyDelayMillis:   200,
		ResponseBodyStaggerMillis: 25,
		Session:                   session.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SocketPrefix == "" {
		c.SocketPrefix = def.SocketPrefix
	}
	if c.BufferWindow <= 0 {
		c.BufferWindow = def.BufferWindow
	}
	if c.MaxBufferedEvents <= 0 {
		c.MaxBufferedEvents = def.MaxBufferedEvents
	}
	if c.MaxBufferedBytes <= 0 {
		c.MaxBufferedBytes = def.MaxBufferedBytes
	}
	if c.ResponseBodyDelayMillis <= 0 {
		c.ResponseBodyDelayMillis = def.ResponseBodyDelayMillis
	}
	if c.ResponseBodyStaggerMillis <= 0 {
		c.ResponseBodyStaggerMillis = def.ResponseBodyStaggerMillis
	}
	return c
}

func (c Config) bufferConfig() buffer.Config {
	return buffer.Config{
		Window:    c.BufferWindow,
		MaxEvents: c.MaxBufferedEvents,
		MaxBytes:  c.MaxBufferedBytes,
	}
}
