package bulk

import (
	"encoding/json"
	"errors"
)

// streamKind identifies a bulk stream opened over the yamux session.
const streamKind = "bulk.response-body"

// ErrBadHello is returned when a stream's opening greeting doesn't match
// this package's contract.
var ErrBadHello = errors.New("bulk: bad stream hello")

// hello is the first frame on a bulk stream, identifying which response
// body is about to follow.
type hello struct {
	Kind      string `json:"kind"`
	V         int    `json:"v"`
	RequestID string `json:"requestId"`
	Size      int64  `json:"size"`
	Encoding  string `json:"encoding,omitempty"`
}

func newHello(requestID string, size int64, encoding string) hello {
	return hello{Kind: streamKind, V: 1, RequestID: requestID, Size: size, Encoding: encoding}
}

func (h hello) validate() error {
	if h.V != 1 || h.Kind != streamKind || h.RequestID == "" {
		return ErrBadHello
	}
	return nil
}

func unmarshalHello(b []byte, h *hello) error {
	return json.Unmarshal(b, h)
}
