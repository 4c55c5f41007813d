package bulk

import (
	"io"
	"net"
	"time"

	"github.com/hashicorp/yamux"
)

// Channel is a session's lazily-opened bulk-transfer multiplexer: every
// large response body gets its own yamux sub-stream instead of sharing the
// newline-JSON line protocol.
type Channel struct {
	session *yamux.Session
}

// muxConfig returns the yamux tuning this package uses for a bulk
// sub-connection: a short keepalive suits a loopback link where a dead
// peer should surface quickly, and the accept backlog is small because a
// session only ever streams one body at a time in practice.
func muxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.EnableKeepAlive = true
	cfg.KeepAliveInterval = 10 * time.Second
	cfg.AcceptBacklog = 8
	return cfg
}

// NewServerChannel wraps conn as the server side of a bulk multiplexer. The
// yamux session takes over conn entirely, so conn is a connection dedicated
// to bulk transfer; the line protocol runs on a separate connection.
func NewServerChannel(conn net.Conn) (*Channel, error) {
	s, err := yamux.Server(conn, muxConfig())
	if err != nil {
		return nil, err
	}
	return &Channel{session: s}, nil
}

// NewClientChannel wraps conn as the client side of a bulk multiplexer.
func NewClientChannel(conn net.Conn) (*Channel, error) {
	s, err := yamux.Client(conn, muxConfig())
	if err != nil {
		return nil, err
	}
	return &Channel{session: s}, nil
}

// Close tears down every open sub-stream and the underlying mux session.
func (c *Channel) Close() error {
	return c.session.Close()
}

// SendBody opens a fresh sub-stream, greets it with requestID/size/encoding,
// and streams body's bytes to completion.
func (c *Channel) SendBody(requestID string, size int64, encoding string, body io.Reader) error {
	stream, err := c.session.OpenStream()
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := writeJSONFrame(stream, newHello(requestID, size, encoding)); err != nil {
		return err
	}
	_, err = io.Copy(stream, body)
	return err
}

// AcceptBody blocks for the next incoming sub-stream, validates its
// greeting, and returns the request id, declared size/encoding, and a
// reader for the body bytes that follow. The caller must read the returned
// body to completion (or Close the Channel) to release the sub-stream.
func (c *Channel) AcceptBody() (requestID string, size int64, encoding string, body io.ReadCloser, err error) {
	stream, err := c.session.AcceptStream()
	if err != nil {
		return "", 0, "", nil, err
	}
	b, err := readJSONFrame(stream, DefaultMaxFrameBytes)
	if err != nil {
		stream.Close()
		return "", 0, "", nil, err
	}
	var h hello
	if err := unmarshalHello(b, &h); err != nil {
		stream.Close()
		return "", 0, "", nil, err
	}
	if err := h.validate(); err != nil {
		stream.Close()
		return "", 0, "", nil, err
	}
	return h.RequestID, h.Size, h.Encoding, stream, nil
}
