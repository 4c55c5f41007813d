package session

import "time"

// Config bounds a session's handshake and dual-priority writer behavior.
// Fields mirror spec.md §6's recognized configuration options.
type Config struct {
	HighPriorityIdleThreshold time.Duration
	LowPriorityRetryDelay     time.Duration
	MaxLowPriorityDefer       time.Duration
	HighPriorityQueueCapacity int
	LowPriorityQueueCapacity  int
	ClientHelloTimeout        time.Duration
	ClientHelloMaxBytes       int
}

// DefaultConfig returns spec.md §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		HighPriorityIdleThreshold: 150 * time.Millisecond,
		LowPriorityRetryDelay:     50 * time.Millisecond,
		MaxLowPriorityDefer:       2000 * time.Millisecond,
		HighPriorityQueueCapacity: 512,
		LowPriorityQueueCapacity:  256,
		ClientHelloTimeout:        1000 * time.Millisecond,
		ClientHelloMaxBytes:       4096,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HighPriorityIdleThreshold <= 0 {
		c.HighPriorityIdleThreshold = def.HighPriorityIdleThreshold
	}
	if c.LowPriorityRetryDelay <= 0 {
		c.LowPriorityRetryDelay = def.LowPriorityRetryDelay
	}
	if c.MaxLowPriorityDefer <= 0 {
		c.MaxLowPriorityDefer = def.MaxLowPriorityDefer
	}
	if c.HighPriorityQueueCapacity <= 0 {
		c.HighPriorityQueueCapacity = def.HighPriorityQueueCapacity
	}
	if c.LowPriorityQueueCapacity <= 0 {
		c.LowPriorityQueueCapacity = def.LowPriorityQueueCapacity
	}
	if c.ClientHelloTimeout <= 0 {
		c.ClientHelloTimeout = def.ClientHelloTimeout
	}
	if c.ClientHelloMaxBytes <= 0 {
		c.ClientHelloMaxBytes = def.ClientHelloMaxBytes
	}
	return c
}
