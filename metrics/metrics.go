// Package metrics defines the observer interfaces the link reports runtime
// events to. A Noop implementation is the default; callers may swap in a
// real observer (e.g. metrics/prom) at runtime.
package metrics

import (
	"sync"
	"sync/atomic"
)

// HandshakeResult classifies a completed handshake attempt.
type HandshakeResult string

const (
	HandshakeOK       HandshakeResult = "ok"
	HandshakeTimeout  HandshakeResult = "timeout"
	HandshakeOversize HandshakeResult = "oversize"
	HandshakeBadToken HandshakeResult = "bad_token"
	HandshakeIOError  HandshakeResult = "io_error"
)

// SessionObserver receives session-lifecycle and queue metric events.
type SessionObserver interface {
	SessionOpened()
	SessionClosed()
	Handshake(result HandshakeResult)
	HighPriorityEnqueued()
	LowPriorityEnqueued()
	LowPriorityDropped(totalDropped uint64)
}

// BufferObserver receives event-buffer size metric events.
type BufferObserver interface {
	BufferSize(events int, approxBytes int64)
}

type noopSessionObserver struct{}

func (noopSessionObserver) SessionOpened()                        {}
func (noopSessionObserver) SessionClosed()                        {}
func (noopSessionObserver) Handshake(HandshakeResult)             {}
func (noopSessionObserver) HighPriorityEnqueued()                 {}
func (noopSessionObserver) LowPriorityEnqueued()                  {}
func (noopSessionObserver) LowPriorityDropped(uint64)             {}

type noopBufferObserver struct{}

func (noopBufferObserver) BufferSize(int, int64) {}

// NoopSessionObserver is a zero-cost observer used when metrics are disabled.
var NoopSessionObserver SessionObserver = noopSessionObserver{}

// NoopBufferObserver is a zero-cost observer used when metrics are disabled.
var NoopBufferObserver BufferObserver = noopBufferObserver{}

// AtomicSessionObserver swaps its delegate at runtime.
type AtomicSessionObserver struct {
	once sync.Once
	v    atomic.Value
}

type sessionObserverHolder struct{ obs SessionObserver }

// NewAtomicSessionObserver returns an initialized atomic observer.
func NewAtomicSessionObserver() *AtomicSessionObserver {
	a := &AtomicSessionObserver{}
	a.once.Do(func() { a.v.Store(&sessionObserverHolder{obs: NoopSessionObserver}) })
	return a
}

// Set replaces the delegate, falling back to the no-op observer on nil.
func (a *AtomicSessionObserver) Set(obs SessionObserver) {
	if obs == nil {
		obs = NoopSessionObserver
	}
	a.once.Do(func() { a.v.Store(&sessionObserverHolder{obs: NoopSessionObserver}) })
	a.v.Store(&sessionObserverHolder{obs: obs})
}

func (a *AtomicSessionObserver) load() SessionObserver {
	a.once.Do(func() { a.v.Store(&sessionObserverHolder{obs: NoopSessionObserver}) })
	return a.v.Load().(*sessionObserverHolder).obs
}

func (a *AtomicSessionObserver) SessionOpened() { a.load().SessionOpened() }
func (a *AtomicSessionObserver) SessionClosed() { a.load().SessionClosed() }
func (a *AtomicSessionObserver) Handshake(result HandshakeResult) {
	a.load().Handshake(result)
}
func (a *AtomicSessionObserver) HighPriorityEnqueued() { a.load().HighPriorityEnqueued() }
func (a *AtomicSessionObserver) LowPriorityEnqueued()  { a.load().LowPriorityEnqueued() }
func (a *AtomicSessionObserver) LowPriorityDropped(total uint64) {
	a.load().LowPriorityDropped(total)
}

// AtomicBufferObserver swaps its delegate at runtime.
type AtomicBufferObserver struct {
	once sync.Once
	v    atomic.Value
}

type bufferObserverHolder struct{ obs BufferObserver }

// NewAtomicBufferObserver returns an initialized atomic observer.
func NewAtomicBufferObserver() *AtomicBufferObserver {
	a := &AtomicBufferObserver{}
	a.once.Do(func() { a.v.Store(&bufferObserverHolder{obs: NoopBufferObserver}) })
	return a
}

// Set replaces the delegate, falling back to the no-op observer on nil.
func (a *AtomicBufferObserver) Set(obs BufferObserver) {
	if obs == nil {
		obs = NoopBufferObserver
	}
	a.once.Do(func() { a.v.Store(&bufferObserverHolder{obs: NoopBufferObserver}) })
	a.v.Store(&bufferObserverHolder{obs: obs})
}

func (a *AtomicBufferObserver) load() BufferObserver {
	a.once.Do(func() { a.v.Store(&bufferObserverHolder{obs: NoopBufferObserver}) })
	return a.v.Load().(*bufferObserverHolder).obs
}

func (a *AtomicBufferObserver) BufferSize(events int, approxBytes int64) {
	a.load().BufferSize(events, approxBytes)
}
