// Package wsbridge adapts a gorilla/websocket connection to
// io.ReadWriteCloser, so a browser-based local inspector can speak the same
// newline-JSON line protocol a Session expects from a unix socket
// (spec.md §6's transport is "a bidirectional reliable byte stream"; a
// websocket text-message stream satisfies that contract once adapted).
package wsbridge

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps a *websocket.Conn as an io.ReadWriteCloser: each Write call
// becomes one text frame, and Read drains frames into the caller's buffer
// one at a time, carrying over any bytes the caller didn't take yet.
type Conn struct {
	c        *websocket.Conn
	leftover *bytes.Reader
}

// UpgraderOptions exposes a small set of websocket upgrader controls.
type UpgraderOptions struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// Upgrade upgrades an HTTP request to a websocket connection wrapped as a
// plain byte stream.
func Upgrade(w http.ResponseWriter, r *http.Request, opts UpgraderOptions) (*Conn, error) {
	up := websocket.Upgrader{
		ReadBufferSize:  opts.ReadBufferSize,
		WriteBufferSize: opts.WriteBufferSize,
		CheckOrigin:     opts.CheckOrigin,
	}
	c, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{c: c}, nil
}

// Read implements io.Reader by draining one websocket text/binary frame at
// a time, buffering whatever the caller's slice couldn't hold.
func (c *Conn) Read(p []byte) (int, error) {
	if c.leftover != nil && c.leftover.Len() > 0 {
		return c.leftover.Read(p)
	}
	_, r, err := c.c.NextReader()
	if err != nil {
		return 0, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	c.leftover = bytes.NewReader(data)
	return c.leftover.Read(p)
}

// Write implements io.Writer by sending p as one websocket text frame. A
// bufio.Writer's Flush hands this the full buffered line(s) in one call, so
// no line ever splits across two frames.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.c.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the underlying websocket connection.
func (c *Conn) Close() error {
	return c.c.Close()
}

// CloseWithStatus sends a close control frame before closing, for a clean
// client-visible shutdown reason.
func (c *Conn) CloseWithStatus(code int, text string) error {
	_ = c.c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(2*time.Second))
	return c.c.Close()
}

// SetReadLimit bounds the size of a single incoming websocket frame.
func (c *Conn) SetReadLimit(n int64) {
	c.c.SetReadLimit(n)
}
