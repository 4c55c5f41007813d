// Package bulk implements the Bulk Transfer Channel: a yamux sub-stream a
// session opens lazily to carry a large response body as raw bytes instead
// of inflating the newline-JSON line protocol with a giant base64 field.
// The Network Feature still always inlines bodies under the inlining
// threshold per spec.md §4.7; this package only augments that path.
package bulk

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
)

// ErrFrameTooLarge is returned when a framed payload exceeds the caller's
// size guard.
var ErrFrameTooLarge = errors.New("bulk: frame too large")

// DefaultMaxFrameBytes bounds a single framed JSON greeting.
const DefaultMaxFrameBytes = 1 << 16

// writeJSONFrame writes a 4-byte big-endian length prefix followed by v's
// JSON encoding.
func writeJSONFrame(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// readJSONFrame reads a 4-byte-length-prefixed JSON payload, rejecting
// anything over maxLen.
func readJSONFrame(r io.Reader, maxLen int) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(hdr[:]))
	if maxLen > 0 && n > maxLen {
		return nil, ErrFrameTooLarge
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
