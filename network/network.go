// Package network implements the Network Feature (C7): the built-in feature
// that buffers HTTP/WebSocket traffic records and replays them to clients
// that open the "network" feature.
package network

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/openai/snap-o-link/buffer"
	"github.com/openai/snap-o-link/feature"
	"github.com/openai/snap-o-link/internal/obslog"
	"github.com/openai/snap-o-link/metrics"
	"github.com/openai/snap-o-link/record"
	"github.com/openai/snap-o-link/wire"
)

// FeatureID is the wire-level "feature" discriminator this feature binds to.
const FeatureID = "network"

// Config bounds the deferred-body replay timing (spec.md §4.7, §6) and the
// inlining threshold above which a response body is offloaded to the Bulk
// Transfer Channel instead of riding the line protocol.
type Config struct {
	ResponseBodyDelay        time.Duration
	ResponseBodyStagger      time.Duration
	InlineBodyThresholdBytes int64
}

// DefaultConfig matches spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{
		ResponseBodyDelay:        200 * time.Millisecond,
		ResponseBodyStagger:      25 * time.Millisecond,
		InlineBodyThresholdBytes: 64 << 10,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ResponseBodyDelay <= 0 {
		c.ResponseBodyDelay = def.ResponseBodyDelay
	}
	if c.ResponseBodyStagger <= 0 {
		c.ResponseBodyStagger = def.ResponseBodyStagger
	}
	if c.InlineBodyThresholdBytes <= 0 {
		c.InlineBodyThresholdBytes = def.InlineBodyThresholdBytes
	}
	return c
}

// BulkSender streams a response body to one session's Bulk Transfer Channel
// (bulk.Channel), out of band from the line protocol. link.Server implements
// this by routing to whichever session owns sessionID.
type BulkSender interface {
	SendBody(sessionID uint64, requestID string, size int64, encoding string, body io.Reader) error
}

// getRequestPostData and getResponseBody are the recognized
// FeatureCommand method names (spec.md §4.7).
type commandEnvelope struct {
	Method    string `json:"method"`
	RequestID string `json:"requestId"`
}

type commandErrorReply struct {
	Error struct {
		Method  string `json:"method"`
		Reason  string `json:"reason"`
		Request string `json:"requestId,omitempty"`
	} `json:"error"`
}

// Feature is the Network Feature: it owns an EventBuffer and publishes
// buffered records to whichever sessions have opened it.
type Feature struct {
	cfg Config
	obs metrics.BufferObserver

	mu         sync.Mutex
	buf        *buffer.EventBuffer
	sink       feature.Sink
	bulkSender BulkSender
}

// New constructs a Network Feature with its own buffer.
func New(cfg Config, bufCfg buffer.Config, obs metrics.BufferObserver) *Feature {
	if obs == nil {
		obs = metrics.NoopBufferObserver
	}
	return &Feature{
		cfg: cfg.withDefaults(),
		obs: obs,
		buf: buffer.New(bufCfg),
	}
}

// FeatureID identifies this feature on the wire.
func (f *Feature) FeatureID() string { return FeatureID }

// SetBulkSender wires the Bulk Transfer Channel route for bodies over
// cfg.InlineBodyThresholdBytes. Safe to call at most once, before traffic
// starts; nil leaves every body, oversized or not, inlined on the line
// protocol.
func (f *Feature) SetBulkSender(b BulkSender) {
	f.mu.Lock()
	f.bulkSender = b
	f.mu.Unlock()
}

// OnLinkAvailable binds the sink this feature publishes through.
func (f *Feature) OnLinkAvailable(sink feature.Sink) {
	f.mu.Lock()
	f.sink = sink
	f.mu.Unlock()
}

// Publish appends r to the buffer and, if a sink is bound, sends it on to
// every client that has opened this feature (spec.md §4.7 step 1-4).
func (f *Feature) Publish(r record.Record) {
	f.mu.Lock()
	f.buf.Append(r)
	f.obs.BufferSize(f.buf.Len(), f.buf.ApproxBytes())
	sink := f.sink
	f.mu.Unlock()

	if sink == nil {
		return
	}

	if rr, ok := r.(record.ResponseReceived); ok && rr.HasBody() {
		f.sendHeaderThenBody(sink, rr, feature.All(), f.cfg.ResponseBodyDelay)
		return
	}
	f.send(sink, r, feature.All(), feature.High)
}

// OnFeatureOpened replays the buffer snapshot to sessionID: header-only
// records immediately at High priority, deferred bodies staggered behind
// them (spec.md §4.7).
func (f *Feature) OnFeatureOpened(sessionID uint64) {
	f.mu.Lock()
	snapshot := f.buf.Snapshot()
	sink := f.sink
	f.mu.Unlock()

	if sink == nil {
		return
	}

	target := feature.Specific(sessionID)
	delay := f.cfg.ResponseBodyDelay
	for _, r := range snapshot {
		if rr, ok := r.(record.ResponseReceived); ok && rr.HasBody() {
			f.send(sink, rr.StripBody(), target, feature.High)
			f.scheduleDeferredBody(sink, rr, target, delay)
			delay += f.cfg.ResponseBodyStagger
			continue
		}
		f.send(sink, r, target, feature.High)
	}
}

// OnFeatureCommand handles getRequestPostData/getResponseBody, resolving
// from the buffer's latest matching record; unknown methods get a
// structured error reply addressed only to the caller (spec.md §4.7, §7g).
func (f *Feature) OnFeatureCommand(sessionID uint64, payload record.RawJSON) {
	var cmd commandEnvelope
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return // malformed host message: ignored (spec.md §7d)
	}

	f.mu.Lock()
	sink := f.sink
	snapshot := f.buf.Snapshot()
	bulkSender := f.bulkSender
	f.mu.Unlock()

	if sink == nil {
		return
	}
	target := feature.Specific(sessionID)

	switch cmd.Method {
	case "getRequestPostData":
		// The Record Model (§3) does not carry request bodies separately
		// from RequestWillBeSent.BodySize; there is nothing further to
		// resolve beyond what was already streamed, so this command
		// reports "not available" rather than invent a payload.
		f.replyUnknown(sink, target, cmd.Method, cmd.RequestID, "not available")
	case "getResponseBody":
		rr, ok := latestResponseReceived(snapshot, cmd.RequestID)
		if !ok || !rr.HasBody() {
			f.replyUnknown(sink, target, cmd.Method, cmd.RequestID, "not available")
			return
		}
		if bulkSender != nil && rr.BodySize > f.cfg.InlineBodyThresholdBytes {
			f.offloadToBulk(bulkSender, sessionID, rr)
			return
		}
		f.send(sink, rr, target, feature.High)
	default:
		f.replyUnknown(sink, target, cmd.Method, cmd.RequestID, "unknown method")
	}
}

// OnClientDisconnected is a no-op: the buffer outlives any single client.
func (f *Feature) OnClientDisconnected(sessionID uint64) {}

func latestResponseReceived(snapshot []record.Record, requestID string) (record.ResponseReceived, bool) {
	for i := len(snapshot) - 1; i >= 0; i-- {
		if rr, ok := snapshot[i].(record.ResponseReceived); ok && rr.ID == requestID {
			return rr, true
		}
	}
	return record.ResponseReceived{}, false
}

// offloadToBulk streams rr's body to sessionID's Bulk Transfer Channel
// instead of inlining it on the line protocol, for bodies over
// cfg.InlineBodyThresholdBytes (spec.md §4.7 augmentation, C8).
func (f *Feature) offloadToBulk(sender BulkSender, sessionID uint64, rr record.ResponseReceived) {
	body := rr.BodyPreview
	if rr.Body != nil {
		body = rr.Body
	}
	if body == nil {
		return
	}
	payload := []byte(*body)
	go func() {
		if err := sender.SendBody(sessionID, rr.ID, rr.BodySize, rr.BodyEncoding, bytes.NewReader(payload)); err != nil {
			obslog.Server().Warn().Err(err).Str("requestId", rr.ID).Msg("bulk body send failed")
		}
	}()
}

func (f *Feature) sendHeaderThenBody(sink feature.Sink, rr record.ResponseReceived, target feature.ClientTarget, delay time.Duration) {
	f.send(sink, rr.StripBody(), target, feature.High)
	f.scheduleDeferredBody(sink, rr, target, delay)
}

func (f *Feature) scheduleDeferredBody(sink feature.Sink, rr record.ResponseReceived, target feature.ClientTarget, delay time.Duration) {
	time.AfterFunc(delay, func() {
		f.send(sink, rr, target, feature.Low)
	})
}

// send tags r with its "type" discriminator (the same way the top-level
// wire codec does) before handing it to the sink, so a client can tell a
// RequestWillBeSent payload from a ResponseReceived one within one feature.
func (f *Feature) send(sink feature.Sink, r record.Record, target feature.ClientTarget, prio feature.Priority) {
	payload, err := wire.MarshalPayload(r)
	if err != nil {
		return
	}
	f.sendRaw(sink, payload, target, prio)
}

func (f *Feature) sendRaw(sink feature.Sink, payload record.RawJSON, target feature.ClientTarget, prio feature.Priority) {
	_ = sink.Send(payload, target, prio)
}

func (f *Feature) replyUnknown(sink feature.Sink, target feature.ClientTarget, method, requestID, reason string) {
	var reply commandErrorReply
	reply.Error.Method = method
	reply.Error.Reason = reason
	reply.Error.Request = requestID
	b, err := json.Marshal(reply)
	if err != nil {
		return
	}
	f.sendRaw(sink, b, target, feature.High)
}
