// Package buffer implements the bounded, conversation-aware event buffer
// that sits behind the Network Feature: a time-sorted sequence of records
// with window/count/byte eviction that never breaks an open conversation.
package buffer

import (
	"sort"
	"time"

	"github.com/openai/snap-o-link/record"
	"github.com/openai/snap-o-link/wire"
)

// Config bounds the buffer's retention.
type Config struct {
	Window    time.Duration
	MaxEvents int
	MaxBytes  int64
}

// DefaultConfig matches spec.md §6's defaults (bufferWindow=5m,
// maxBufferedEvents=10000, maxBufferedBytes=16MiB).
func DefaultConfig() Config {
	return Config{
		Window:    5 * time.Minute,
		MaxEvents: 10_000,
		MaxBytes:  16 << 20,
	}
}

// EventBuffer is NOT safe for concurrent use on its own; callers serialize
// access with their own mutex (spec.md §4.3). The Network Feature is the
// sole owner of a buffer instance and holds that mutex.
type EventBuffer struct {
	cfg Config

	records     []record.Record
	approxBytes int64

	openWebSockets        map[string]struct{}
	activeResponseStreams map[string]struct{}
}

// New constructs an empty buffer with cfg (zero-value fields are replaced
// by DefaultConfig's corresponding values).
func New(cfg Config) *EventBuffer {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = def.MaxEvents
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	return &EventBuffer{
		cfg:                   cfg,
		openWebSockets:        make(map[string]struct{}),
		activeResponseStreams: make(map[string]struct{}),
	}
}

// Len returns the current record count.
func (b *EventBuffer) Len() int { return len(b.records) }

// ApproxBytes returns the running encoded-size estimate.
func (b *EventBuffer) ApproxBytes() int64 { return b.approxBytes }

// IsWebSocketOpen reports whether id has an unmatched Will/Opened marker.
func (b *EventBuffer) IsWebSocketOpen(id string) bool {
	_, ok := b.openWebSockets[id]
	return ok
}

// IsResponseStreamActive reports whether id has received a
// ResponseStreamEvent with no matching ResponseStreamClosed.
func (b *EventBuffer) IsResponseStreamActive(id string) bool {
	_, ok := b.activeResponseStreams[id]
	return ok
}

// Snapshot returns a time-ordered copy of the buffer's contents.
func (b *EventBuffer) Snapshot() []record.Record {
	out := make([]record.Record, len(b.records))
	copy(out, b.records)
	return out
}

// Append inserts r in time order (ties: after equals), maintains the
// openWebSockets/activeResponseStreams indexes, then evicts by window and
// by cap.
func (b *EventBuffer) Append(r record.Record) {
	idx := sort.Search(len(b.records), func(i int) bool {
		return record.WallMillis(b.records[i]) > record.WallMillis(r)
	})
	b.records = append(b.records, nil)
	copy(b.records[idx+1:], b.records[idx:])
	b.records[idx] = r
	b.approxBytes += int64(wire.Estimate(r))

	b.updateIndexesOnAppend(r)

	if record.IsTimed(r) {
		cutoff := record.WallMillis(r) - b.cfg.Window.Milliseconds()
		b.windowEvict(cutoff)
	}
	b.capEvict()
}

func (b *EventBuffer) updateIndexesOnAppend(r record.Record) {
	id, ok := record.ConversationIDOf(r)
	if !ok {
		return
	}
	switch r.Kind() {
	case record.KindWebSocketWillOpen, record.KindWebSocketOpened:
		b.openWebSockets[id] = struct{}{}
	case record.KindWebSocketClosed, record.KindWebSocketFailed, record.KindWebSocketCancelled:
		delete(b.openWebSockets, id)
	case record.KindResponseStreamEvent:
		b.activeResponseStreams[id] = struct{}{}
	case record.KindResponseStreamClosed:
		delete(b.activeResponseStreams, id)
	}
}

// UpdateLatestResponseBody mutates the latest ResponseReceived for id (the
// last one in time order) with body information, adjusting approxBytes.
func (b *EventBuffer) UpdateLatestResponseBody(id string, preview, body *string, encoding string, truncated bool, size int64) bool {
	for i := len(b.records) - 1; i >= 0; i-- {
		rr, ok := b.records[i].(record.ResponseReceived)
		if !ok || rr.ID != id {
			continue
		}
		before := wire.Estimate(rr)
		rr.BodyPreview = preview
		rr.Body = body
		rr.BodyEncoding = encoding
		rr.BodyTruncated = truncated
		rr.BodySize = size
		after := wire.Estimate(rr)
		b.records[i] = rr
		b.approxBytes += int64(after - before)
		return true
	}
	return false
}

// --- window eviction ---

func (b *EventBuffer) windowEvict(cutoff int64) {
	// Pure deltas: always droppable past the cutoff, active stream or not.
	b.filter(func(r record.Record) bool {
		return !(r.Kind() == record.KindResponseStreamEvent && record.WallMillis(r) < cutoff)
	})

	for id := range b.collectIDs(record.IsPerRequest) {
		if b.requestWindowEvictable(id, cutoff) {
			b.removeConversation(id, record.IsPerRequest)
		}
	}
	for id := range b.collectIDs(record.IsPerWebSocket) {
		if !b.IsWebSocketOpen(id) && !b.anyAtOrAfter(id, cutoff, record.IsPerWebSocket) {
			b.removeConversation(id, record.IsPerWebSocket)
		}
	}

	// Non-conversation records strictly older than cutoff: unconditional drop.
	b.filter(func(r record.Record) bool {
		k := r.Kind()
		if record.IsPerRequest(k) || record.IsPerWebSocket(k) {
			return true
		}
		return record.WallMillis(r) >= cutoff
	})
}

func (b *EventBuffer) requestWindowEvictable(id string, cutoff int64) bool {
	return b.hasRequestTerminal(id) && !b.anyAtOrAfter(id, cutoff, record.IsPerRequest)
}

func (b *EventBuffer) hasRequestTerminal(id string) bool {
	active := b.IsResponseStreamActive(id)
	for _, r := range b.records {
		cid, ok := record.ConversationIDOf(r)
		if !ok || cid != id {
			continue
		}
		switch r.Kind() {
		case record.KindResponseReceived:
			if !active {
				return true
			}
		case record.KindRequestFailed, record.KindResponseStreamClosed:
			return true
		}
	}
	return false
}

func (b *EventBuffer) anyAtOrAfter(id string, cutoff int64, classify func(record.Kind) bool) bool {
	for _, r := range b.records {
		if !classify(r.Kind()) {
			continue
		}
		cid, ok := record.ConversationIDOf(r)
		if !ok || cid != id {
			continue
		}
		if record.WallMillis(r) >= cutoff {
			return true
		}
	}
	return false
}

func (b *EventBuffer) collectIDs(classify func(record.Kind) bool) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, r := range b.records {
		if !classify(r.Kind()) {
			continue
		}
		if id, ok := record.ConversationIDOf(r); ok {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// --- cap eviction ---

func (b *EventBuffer) capEvict() {
	for b.overCap() {
		i, ok := b.findDroppable()
		if !ok {
			return
		}
		b.dropAt(i)
	}
}

func (b *EventBuffer) overCap() bool {
	return len(b.records) > b.cfg.MaxEvents || b.approxBytes > b.cfg.MaxBytes
}

func (b *EventBuffer) findDroppable() (int, bool) {
	for i, r := range b.records {
		switch r.Kind() {
		case record.KindRequestWillBeSent:
			id, _ := record.ConversationIDOf(r)
			if b.hasRequestTerminal(id) {
				return i, true
			}
		case record.KindWebSocketWillOpen, record.KindWebSocketOpened:
			id, _ := record.ConversationIDOf(r)
			if !b.IsWebSocketOpen(id) {
				return i, true
			}
		default:
			return i, true
		}
	}
	return 0, false
}

func (b *EventBuffer) dropAt(i int) {
	r := b.records[i]
	switch r.Kind() {
	case record.KindRequestWillBeSent:
		id, _ := record.ConversationIDOf(r)
		b.removeConversation(id, record.IsPerRequest)
	case record.KindWebSocketWillOpen, record.KindWebSocketOpened:
		id, _ := record.ConversationIDOf(r)
		b.removeConversation(id, record.IsPerWebSocket)
	default:
		b.removeAt(i)
	}
}

// --- removal primitives ---

func (b *EventBuffer) removeAt(i int) {
	b.approxBytes -= int64(wire.Estimate(b.records[i]))
	b.records = append(b.records[:i], b.records[i+1:]...)
}

func (b *EventBuffer) removeConversation(id string, classify func(record.Kind) bool) {
	b.filter(func(r record.Record) bool {
		if !classify(r.Kind()) {
			return true
		}
		cid, ok := record.ConversationIDOf(r)
		return !ok || cid != id
	})
	delete(b.openWebSockets, id)
	delete(b.activeResponseStreams, id)
}

// filter keeps only records for which keep returns true, adjusting
// approxBytes for everything removed. Order is preserved.
func (b *EventBuffer) filter(keep func(record.Record) bool) {
	out := b.records[:0]
	for _, r := range b.records {
		if keep(r) {
			out = append(out, r)
			continue
		}
		b.approxBytes -= int64(wire.Estimate(r))
	}
	b.records = out
}
