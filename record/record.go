// Package record defines the tagged-variant record types streamed over the
// observability link: handshake records, per-request and per-websocket
// network events, the feature envelope, and host-originated messages.
package record

import (
	"encoding/json"
	"math"
)

// Kind discriminates a Record's variant; it doubles as the wire "type" tag.
type Kind string

const (
	KindHello          Kind = "Hello"
	KindAppIcon        Kind = "AppIcon"
	KindReplayComplete Kind = "ReplayComplete"

	KindRequestWillBeSent   Kind = "RequestWillBeSent"
	KindResponseReceived    Kind = "ResponseReceived"
	KindRequestFailed       Kind = "RequestFailed"
	KindResponseStreamEvent Kind = "ResponseStreamEvent"
	KindResponseStreamClosed Kind = "ResponseStreamClosed"

	KindWebSocketWillOpen        Kind = "WebSocketWillOpen"
	KindWebSocketOpened          Kind = "WebSocketOpened"
	KindWebSocketMessageSent     Kind = "WebSocketMessageSent"
	KindWebSocketMessageReceived Kind = "WebSocketMessageReceived"
	KindWebSocketClosing         Kind = "WebSocketClosing"
	KindWebSocketClosed          Kind = "WebSocketClosed"
	KindWebSocketFailed          Kind = "WebSocketFailed"
	KindWebSocketCloseRequested  Kind = "WebSocketCloseRequested"
	KindWebSocketCancelled       Kind = "WebSocketCancelled"

	KindFeatureEvent Kind = "FeatureEvent"

	// Host-originated kinds, under the same discriminator namespace.
	KindFeatureOpened  Kind = "FeatureOpened"
	KindFeatureCommand Kind = "FeatureCommand"

	// KindUnrecognized is yielded by the wire codec for an unknown tag;
	// reading code ignores it, per the record model's extensibility contract.
	KindUnrecognized Kind = "Unrecognized"
)

// TimeInfinity is the ordering value used for records with no timestamp, so
// that untimed records always sort last.
const TimeInfinity = int64(math.MaxInt64)

// Record is a value object: every variant is immutable once constructed and
// comparable by its wall-clock time for ordering purposes.
type Record interface {
	Kind() Kind
}

// Timed is implemented by records that carry a wall/mono timestamp pair.
type Timed interface {
	Record
	WallMillis() int64
	MonoNanos() int64
}

// Identified is implemented by per-request and per-websocket records.
type Identified interface {
	Record
	ConversationID() string
}

// HeaderPair preserves header order and duplicates, per the wire contract.
type HeaderPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Timings is a value object with optional per-phase millisecond durations.
type Timings struct {
	DNSMs            *int64 `json:"dnsMs,omitempty"`
	ConnectMs        *int64 `json:"connectMs,omitempty"`
	TLSMs            *int64 `json:"tlsMs,omitempty"`
	RequestHeadersMs *int64 `json:"requestHeadersMs,omitempty"`
	RequestBodyMs    *int64 `json:"requestBodyMs,omitempty"`
	TTFBMs           *int64 `json:"ttfbMs,omitempty"`
	ResponseBodyMs   *int64 `json:"responseBodyMs,omitempty"`
	TotalMs          *int64 `json:"totalMs,omitempty"`
}

// --- Handshake records ---

type Hello struct {
	SchemaVersion     string   `json:"schemaVersion"`
	PackageName       string   `json:"packageName"`
	ProcessName       string   `json:"processName"`
	PID               int      `json:"pid"`
	ServerStartWallMs int64    `json:"serverStartWallMs"`
	ServerStartMonoNs int64    `json:"serverStartMonoNs"`
	Mode              string   `json:"mode"`
	Capabilities      []string `json:"capabilities"`
}

func (Hello) Kind() Kind { return KindHello }

type AppIcon struct {
	Package string `json:"pkg"`
	Width   int    `json:"w"`
	Height  int    `json:"h"`
	Format  string `json:"format"`
	Base64  string `json:"base64"`
}

func (AppIcon) Kind() Kind { return KindAppIcon }

type ReplayComplete struct{}

func (ReplayComplete) Kind() Kind { return KindReplayComplete }

// --- Per-request records ---

type RequestWillBeSent struct {
	ID       string       `json:"id"`
	TWallMs  int64        `json:"tWallMs"`
	TMonoNs  int64        `json:"tMonoNs"`
	Method   string       `json:"method"`
	URL      string       `json:"url"`
	Headers  []HeaderPair `json:"headers,omitempty"`
	BodySize *int64       `json:"bodySize,omitempty"`
}

func (r RequestWillBeSent) Kind() Kind          { return KindRequestWillBeSent }
func (r RequestWillBeSent) WallMillis() int64   { return r.TWallMs }
func (r RequestWillBeSent) MonoNanos() int64    { return r.TMonoNs }
func (r RequestWillBeSent) ConversationID() string { return r.ID }

type ResponseReceived struct {
	ID            string       `json:"id"`
	TWallMs       int64        `json:"tWallMs"`
	TMonoNs       int64        `json:"tMonoNs"`
	StatusCode    int          `json:"statusCode"`
	Headers       []HeaderPair `json:"headers,omitempty"`
	Timings       *Timings     `json:"timings,omitempty"`
	BodyPreview   *string      `json:"bodyPreview,omitempty"`
	Body          *string      `json:"body,omitempty"`
	BodyEncoding  string       `json:"bodyEncoding,omitempty"`
	BodyTruncated bool         `json:"bodyTruncated,omitempty"`
	BodySize      int64        `json:"bodySize,omitempty"`
}

func (r ResponseReceived) Kind() Kind          { return KindResponseReceived }
func (r ResponseReceived) WallMillis() int64   { return r.TWallMs }
func (r ResponseReceived) MonoNanos() int64    { return r.TMonoNs }
func (r ResponseReceived) ConversationID() string { return r.ID }

// HasBody reports whether this response carries an inline body payload.
func (r ResponseReceived) HasBody() bool {
	return r.Body != nil || r.BodyPreview != nil
}

// StripBody returns a copy with body/bodyPreview cleared, per the
// header-only/deferred-body split (spec.md §4.7, §9).
func (r ResponseReceived) StripBody() ResponseReceived {
	r.Body = nil
	r.BodyPreview = nil
	return r
}

type RequestFailed struct {
	ID      string `json:"id"`
	TWallMs int64  `json:"tWallMs"`
	TMonoNs int64  `json:"tMonoNs"`
	Error   string `json:"error"`
}

func (r RequestFailed) Kind() Kind          { return KindRequestFailed }
func (r RequestFailed) WallMillis() int64   { return r.TWallMs }
func (r RequestFailed) MonoNanos() int64    { return r.TMonoNs }
func (r RequestFailed) ConversationID() string { return r.ID }

type ResponseStreamEvent struct {
	ID      string `json:"id"`
	TWallMs int64  `json:"tWallMs"`
	TMonoNs int64  `json:"tMonoNs"`
	Data    string `json:"data"`
}

func (r ResponseStreamEvent) Kind() Kind          { return KindResponseStreamEvent }
func (r ResponseStreamEvent) WallMillis() int64   { return r.TWallMs }
func (r ResponseStreamEvent) MonoNanos() int64    { return r.TMonoNs }
func (r ResponseStreamEvent) ConversationID() string { return r.ID }

type ResponseStreamClosed struct {
	ID      string `json:"id"`
	TWallMs int64  `json:"tWallMs"`
	TMonoNs int64  `json:"tMonoNs"`
	Reason  string `json:"reason,omitempty"`
}

func (r ResponseStreamClosed) Kind() Kind          { return KindResponseStreamClosed }
func (r ResponseStreamClosed) WallMillis() int64   { return r.TWallMs }
func (r ResponseStreamClosed) MonoNanos() int64    { return r.TMonoNs }
func (r ResponseStreamClosed) ConversationID() string { return r.ID }

// --- Per-websocket records ---

type WebSocketWillOpen struct {
	ID      string       `json:"id"`
	TWallMs int64        `json:"tWallMs"`
	TMonoNs int64        `json:"tMonoNs"`
	URL     string       `json:"url"`
	Headers []HeaderPair `json:"headers,omitempty"`
}

func (r WebSocketWillOpen) Kind() Kind          { return KindWebSocketWillOpen }
func (r WebSocketWillOpen) WallMillis() int64   { return r.TWallMs }
func (r WebSocketWillOpen) MonoNanos() int64    { return r.TMonoNs }
func (r WebSocketWillOpen) ConversationID() string { return r.ID }

type WebSocketOpened struct {
	ID         string `json:"id"`
	TWallMs    int64  `json:"tWallMs"`
	TMonoNs    int64  `json:"tMonoNs"`
	StatusCode int    `json:"statusCode"`
}

func (r WebSocketOpened) Kind() Kind          { return KindWebSocketOpened }
func (r WebSocketOpened) WallMillis() int64   { return r.TWallMs }
func (r WebSocketOpened) MonoNanos() int64    { return r.TMonoNs }
func (r WebSocketOpened) ConversationID() string { return r.ID }

type WebSocketMessageSent struct {
	ID      string `json:"id"`
	TWallMs int64  `json:"tWallMs"`
	TMonoNs int64  `json:"tMonoNs"`
	Data    string `json:"data"`
	Binary  bool   `json:"binary,omitempty"`
}

func (r WebSocketMessageSent) Kind() Kind          { return KindWebSocketMessageSent }
func (r WebSocketMessageSent) WallMillis() int64   { return r.TWallMs }
func (r WebSocketMessageSent) MonoNanos() int64    { return r.TMonoNs }
func (r WebSocketMessageSent) ConversationID() string { return r.ID }

type WebSocketMessageReceived struct {
	ID      string `json:"id"`
	TWallMs int64  `json:"tWallMs"`
	TMonoNs int64  `json:"tMonoNs"`
	Data    string `json:"data"`
	Binary  bool   `json:"binary,omitempty"`
}

func (r WebSocketMessageReceived) Kind() Kind          { return KindWebSocketMessageReceived }
func (r WebSocketMessageReceived) WallMillis() int64   { return r.TWallMs }
func (r WebSocketMessageReceived) MonoNanos() int64    { return r.TMonoNs }
func (r WebSocketMessageReceived) ConversationID() string { return r.ID }

type WebSocketClosing struct {
	ID      string `json:"id"`
	TWallMs int64  `json:"tWallMs"`
	TMonoNs int64  `json:"tMonoNs"`
	Code    int    `json:"code"`
	Reason  string `json:"reason,omitempty"`
}

func (r WebSocketClosing) Kind() Kind          { return KindWebSocketClosing }
func (r WebSocketClosing) WallMillis() int64   { return r.TWallMs }
func (r WebSocketClosing) MonoNanos() int64    { return r.TMonoNs }
func (r WebSocketClosing) ConversationID() string { return r.ID }

type WebSocketClosed struct {
	ID      string `json:"id"`
	TWallMs int64  `json:"tWallMs"`
	TMonoNs int64  `json:"tMonoNs"`
	Code    int    `json:"code"`
	Reason  string `json:"reason,omitempty"`
}

func (r WebSocketClosed) Kind() Kind          { return KindWebSocketClosed }
func (r WebSocketClosed) WallMillis() int64   { return r.TWallMs }
func (r WebSocketClosed) MonoNanos() int64    { return r.TMonoNs }
func (r WebSocketClosed) ConversationID() string { return r.ID }

type WebSocketFailed struct {
	ID      string `json:"id"`
	TWallMs int64  `json:"tWallMs"`
	TMonoNs int64  `json:"tMonoNs"`
	Error   string `json:"error"`
}

func (r WebSocketFailed) Kind() Kind          { return KindWebSocketFailed }
func (r WebSocketFailed) WallMillis() int64   { return r.TWallMs }
func (r WebSocketFailed) MonoNanos() int64    { return r.TMonoNs }
func (r WebSocketFailed) ConversationID() string { return r.ID }

type WebSocketCloseRequested struct {
	ID      string `json:"id"`
	TWallMs int64  `json:"tWallMs"`
	TMonoNs int64  `json:"tMonoNs"`
	Code    int    `json:"code"`
	Reason  string `json:"reason,omitempty"`
}

func (r WebSocketCloseRequested) Kind() Kind          { return KindWebSocketCloseRequested }
func (r WebSocketCloseRequested) WallMillis() int64   { return r.TWallMs }
func (r WebSocketCloseRequested) MonoNanos() int64    { return r.TMonoNs }
func (r WebSocketCloseRequested) ConversationID() string { return r.ID }

type WebSocketCancelled struct {
	ID      string `json:"id"`
	TWallMs int64  `json:"tWallMs"`
	TMonoNs int64  `json:"tMonoNs"`
}

func (r WebSocketCancelled) Kind() Kind          { return KindWebSocketCancelled }
func (r WebSocketCancelled) WallMillis() int64   { return r.TWallMs }
func (r WebSocketCancelled) MonoNanos() int64    { return r.TMonoNs }
func (r WebSocketCancelled) ConversationID() string { return r.ID }

// --- Feature envelope and host messages ---

// FeatureEvent wraps a feature-specific JSON payload, carried verbatim.
type FeatureEvent struct {
	Feature string          `json:"feature"`
	Payload RawJSON         `json:"payload,omitempty"`
}

func (FeatureEvent) Kind() Kind { return KindFeatureEvent }

// RawJSON is an opaque, pass-through JSON value.
type RawJSON = json.RawMessage

// HostMessage is anything the client sends to the server.
type HostMessage interface {
	Kind() Kind
}

// FeatureOpened signals that a client's view of a feature has opened and
// replay should begin for that client.
type FeatureOpened struct {
	Feature string `json:"feature"`
}

func (FeatureOpened) Kind() Kind { return KindFeatureOpened }

// FeatureCommand is a feature-defined host command.
type FeatureCommand struct {
	Feature string  `json:"feature"`
	Payload RawJSON `json:"payload,omitempty"`
}

func (FeatureCommand) Kind() Kind { return KindFeatureCommand }

// Unrecognized is yielded for a decodable-but-unknown tag.
type Unrecognized struct {
	RawKind string
}

func (Unrecognized) Kind() Kind { return KindUnrecognized }

// --- Classification helpers (C1) ---

// IsPerRequest reports whether k identifies a per-request record variant.
func IsPerRequest(k Kind) bool {
	switch k {
	case KindRequestWillBeSent, KindResponseReceived, KindRequestFailed,
		KindResponseStreamEvent, KindResponseStreamClosed:
		return true
	}
	return false
}

// IsPerWebSocket reports whether k identifies a per-websocket record variant.
func IsPerWebSocket(k Kind) bool {
	switch k {
	case KindWebSocketWillOpen, KindWebSocketOpened, KindWebSocketMessageSent,
		KindWebSocketMessageReceived, KindWebSocketClosing, KindWebSocketClosed,
		KindWebSocketFailed, KindWebSocketCloseRequested, KindWebSocketCancelled:
		return true
	}
	return false
}

// IsTimed reports whether r carries a wall-clock timestamp.
func IsTimed(r Record) bool {
	_, ok := r.(Timed)
	return ok
}

// WallMillis returns r's wall-clock time, or TimeInfinity for untimed
// records, so that untimed records always sort last (spec.md §3).
func WallMillis(r Record) int64 {
	if t, ok := r.(Timed); ok {
		return t.WallMillis()
	}
	return TimeInfinity
}

// ConversationIDOf returns the per-request/per-websocket id of r, if any.
func ConversationIDOf(r Record) (string, bool) {
	if id, ok := r.(Identified); ok {
		return id.ConversationID(), true
	}
	return "", false
}

// IsRequestTerminal reports whether k is a record that, on its own, can end
// a request conversation (ResponseReceived, RequestFailed,
// ResponseStreamClosed). Whether ResponseReceived is *actually* terminal
// additionally depends on activeResponseStreams (buffer-level state).
func IsRequestTerminal(k Kind) bool {
	switch k {
	case KindResponseReceived, KindRequestFailed, KindResponseStreamClosed:
		return true
	}
	return false
}

// IsWSOpenMarker reports whether k is WillOpen/Opened.
func IsWSOpenMarker(k Kind) bool {
	return k == KindWebSocketWillOpen || k == KindWebSocketOpened
}

// IsWSTerminal reports whether k ends a websocket conversation.
func IsWSTerminal(k Kind) bool {
	switch k {
	case KindWebSocketClosed, KindWebSocketFailed, KindWebSocketCancelled:
		return true
	}
	return false
}
