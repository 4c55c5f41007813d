// Package wire implements the one-record-per-line JSON codec: every Record
// encodes to exactly one UTF-8 line, discriminated by a "type" key.
package wire

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/openai/snap-o-link/linkerrors"
	"github.com/openai/snap-o-link/record"
)

// DefaultMaxLineBytes bounds a single decoded line; callers reading
// client-originated traffic should size this to their own protocol limits
// (the handshake uses a much smaller bound of its own).
const DefaultMaxLineBytes = 1 << 20

// envelope peeks at a line's "type" discriminator so Decode/DecodeHost can
// dispatch to the concrete variant; encoding goes through marshalTagged.
type envelope struct {
	Type string `json:"type"`
}

// Encode writes r as a single newline-terminated JSON line.
func Encode(w io.Writer, r record.Record) error {
	b, err := marshalTagged(r)
	if err != nil {
		return linkerrors.Wrap(linkerrors.StageWire, linkerrors.CodeMalformed, err)
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return linkerrors.Wrap(linkerrors.StageWire, linkerrors.CodeIOError, err)
	}
	return nil
}

// MarshalPayload tags r with its "type" discriminator the same way Encode
// does, without the trailing newline — used for feature envelope payloads,
// which carry a Record verbatim under FeatureEvent.payload.
func MarshalPayload(r record.Record) (record.RawJSON, error) {
	b, err := marshalTagged(r)
	if err != nil {
		return nil, linkerrors.Wrap(linkerrors.StageWire, linkerrors.CodeMalformed, err)
	}
	return b, nil
}

// marshalTagged merges {"type": kind} with the JSON-marshaled fields of r.
func marshalTagged(r record.Record) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	typeJSON, err := json.Marshal(string(r.Kind()))
	if err != nil {
		return nil, err
	}
	fields["type"] = typeJSON
	return json.Marshal(fields)
}

// Decode parses a single line into a Record. Unknown tags yield
// record.Unrecognized rather than an error, per the extensibility contract
// (decoders must not fail on unknown optional fields or unknown tags).
func Decode(line []byte) (record.Record, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, linkerrors.Wrap(linkerrors.StageWire, linkerrors.CodeMalformed, err)
	}
	switch record.Kind(env.Type) {
	case record.KindHello:
		return decodeInto(line, new(record.Hello))
	case record.KindAppIcon:
		return decodeInto(line, new(record.AppIcon))
	case record.KindReplayComplete:
		return record.ReplayComplete{}, nil
	case record.KindRequestWillBeSent:
		return decodeInto(line, new(record.RequestWillBeSent))
	case record.KindResponseReceived:
		return decodeInto(line, new(record.ResponseReceived))
	case record.KindRequestFailed:
		return decodeInto(line, new(record.RequestFailed))
	case record.KindResponseStreamEvent:
		return decodeInto(line, new(record.ResponseStreamEvent))
	case record.KindResponseStreamClosed:
		return decodeInto(line, new(record.ResponseStreamClosed))
	case record.KindWebSocketWillOpen:
		return decodeInto(line, new(record.WebSocketWillOpen))
	case record.KindWebSocketOpened:
		return decodeInto(line, new(record.WebSocketOpened))
	case record.KindWebSocketMessageSent:
		return decodeInto(line, new(record.WebSocketMessageSent))
	case record.KindWebSocketMessageReceived:
		return decodeInto(line, new(record.WebSocketMessageReceived))
	case record.KindWebSocketClosing:
		return decodeInto(line, new(record.WebSocketClosing))
	case record.KindWebSocketClosed:
		return decodeInto(line, new(record.WebSocketClosed))
	case record.KindWebSocketFailed:
		return decodeInto(line, new(record.WebSocketFailed))
	case record.KindWebSocketCloseRequested:
		return decodeInto(line, new(record.WebSocketCloseRequested))
	case record.KindWebSocketCancelled:
		return decodeInto(line, new(record.WebSocketCancelled))
	case record.KindFeatureEvent:
		return decodeInto(line, new(record.FeatureEvent))
	default:
		return record.Unrecognized{RawKind: env.Type}, nil
	}
}

func decodeInto[T any](line []byte, v *T) (T, error) {
	if err := json.Unmarshal(line, v); err != nil {
		var zero T
		return zero, linkerrors.Wrap(linkerrors.StageWire, linkerrors.CodeMalformed, err)
	}
	return *v, nil
}

// DecodeHost parses a single client-originated line into a HostMessage.
// Malformed lines and unknown features are the caller's responsibility to
// ignore, per spec.md §7(d)/(e).
func DecodeHost(line []byte) (record.HostMessage, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, linkerrors.Wrap(linkerrors.StageWire, linkerrors.CodeMalformed, err)
	}
	switch record.Kind(env.Type) {
	case record.KindFeatureOpened:
		return decodeInto(line, new(record.FeatureOpened))
	case record.KindFeatureCommand:
		return decodeInto(line, new(record.FeatureCommand))
	default:
		return record.Unrecognized{RawKind: env.Type}, nil
	}
}

// Estimate approximates the encoded length of r in bytes, stable across
// repeated calls (spec.md §4.2's estimator contract).
func Estimate(r record.Record) int {
	b, err := marshalTagged(r)
	if err != nil {
		return 0
	}
	return len(b) + 1
}

// NewScanner returns a bufio.Scanner with a line-size cap suited to this
// protocol's newline-delimited framing.
func NewScanner(r io.Reader, maxLineBytes int) *bufio.Scanner {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxLineBytes)
	return s
}
