// Package feature defines the process-wide feature registry and the sink
// abstraction features use to publish records to connected clients.
package feature

import (
	"sync"

	"github.com/openai/snap-o-link/record"
)

// Priority selects which of a session's two queues a record is enqueued on.
type Priority int

const (
	// High is for small control/event records that must be delivered with
	// minimal latency.
	High Priority = iota
	// Low is for bulky payloads (typically response bodies) that may be
	// deferred behind high-priority traffic.
	Low
)

// ClientTarget selects which sessions a Sink.Send call reaches.
type ClientTarget struct {
	all bool
	id  uint64
}

// All targets every session that has opened the feature.
func All() ClientTarget { return ClientTarget{all: true} }

// Specific targets exactly one session by id.
func Specific(sessionID uint64) ClientTarget { return ClientTarget{id: sessionID} }

// IsAll reports whether the target is the broadcast target.
func (t ClientTarget) IsAll() bool { return t.all }

// SessionID returns the targeted session id; only meaningful when !IsAll().
func (t ClientTarget) SessionID() uint64 { return t.id }

// Sink is how a Feature pushes records to connected clients. It is bound to
// a single featureId and survives session churn.
type Sink interface {
	Send(payload record.RawJSON, target ClientTarget, priority Priority) error
}

// Feature is a named subsystem that publishes its own envelope-wrapped
// records and handles host commands.
type Feature interface {
	FeatureID() string
	OnLinkAvailable(sink Sink)
	OnFeatureOpened(sessionID uint64)
	OnFeatureCommand(sessionID uint64, payload record.RawJSON)
	OnClientDisconnected(sessionID uint64)
}

// SinkFactory builds a Sink bound to a given featureId; the server supplies
// this once it knows its own session table.
type SinkFactory func(featureID string) Sink

// Registry is the process-wide, initialize-once store of features. A
// feature id binds exactly once for the registry's lifetime — matching
// spec.md §9's resolved "bind-once per feature per server lifetime".
type Registry struct {
	mu       sync.Mutex
	features map[string]Feature
	order    []string

	started     bool
	sinkFactory SinkFactory
}

// NewRegistry returns an empty, unstarted registry.
func NewRegistry() *Registry {
	return &Registry{features: make(map[string]Feature)}
}

// Register adds f under f.FeatureID() if no feature is already registered
// under that id (first registration wins). If the registry has already
// started, f.OnLinkAvailable is invoked immediately with a bound sink;
// otherwise it is invoked once, for every registered feature, by Start.
func (r *Registry) Register(f Feature) {
	if f == nil {
		return
	}
	r.mu.Lock()
	id := f.FeatureID()
	if _, exists := r.features[id]; exists {
		r.mu.Unlock()
		return
	}
	r.features[id] = f
	r.order = append(r.order, id)
	started := r.started
	factory := r.sinkFactory
	r.mu.Unlock()

	if started && factory != nil {
		f.OnLinkAvailable(factory(id))
	}
}

// Start marks the registry started and calls onLinkAvailable exactly once
// for every feature registered so far, using factory to bind each sink.
func (r *Registry) Start(factory SinkFactory) {
	r.mu.Lock()
	r.sinkFactory = factory
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	ids := append([]string(nil), r.order...)
	r.mu.Unlock()

	for _, id := range ids {
		r.mu.Lock()
		f := r.features[id]
		r.mu.Unlock()
		if f != nil && factory != nil {
			f.OnLinkAvailable(factory(id))
		}
	}
}

// Lookup returns the feature registered under id, if any.
func (r *Registry) Lookup(id string) (Feature, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.features[id]
	return f, ok
}

// Snapshot returns every registered feature, in registration order.
func (r *Registry) Snapshot() []Feature {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Feature, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.features[id])
	}
	return out
}
