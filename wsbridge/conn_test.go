package wsbridge

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newUpgradeServer(t *testing.T, got chan<- *Conn) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r, UpgraderOptions{})
		if err != nil {
			return
		}
		got <- c
	}))
}

func TestWriteThenReadRoundTripsOneLine(t *testing.T) {
	got := make(chan *Conn, 1)
	srv := newUpgradeServer(t, got)
	defer srv.Close()

	d := websocket.Dialer{}
	client, _, err := d.Dial("ws"+srv.URL[4:], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	server := <-got
	defer server.Close()

	line := []byte(`{"type":"Hello"}` + "\n")
	if _, err := server.Write(line); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(data) != string(line) {
		t.Fatalf("got %q, want %q", data, line)
	}
}

func TestReadDrainsOneFrameThenLeftover(t *testing.T) {
	got := make(chan *Conn, 1)
	srv := newUpgradeServer(t, got)
	defer srv.Close()

	d := websocket.Dialer{}
	client, _, err := d.Dial("ws"+srv.URL[4:], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	server := <-got
	defer server.Close()

	if err := client.WriteMessage(websocket.TextMessage, []byte("abcdef")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	buf := make([]byte, 3)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if string(buf[:n]) != "abc" {
		t.Fatalf("got %q, want %q", buf[:n], "abc")
	}

	n, err = server.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("second read: %v", err)
	}
	if string(buf[:n]) != "def" {
		t.Fatalf("got %q, want %q", buf[:n], "def")
	}
}

func TestCloseWithStatusClosesConnection(t *testing.T) {
	got := make(chan *Conn, 1)
	srv := newUpgradeServer(t, got)
	defer srv.Close()

	d := websocket.Dialer{}
	client, _, err := d.Dial("ws"+srv.URL[4:], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	server := <-got
	if err := server.CloseWithStatus(websocket.CloseNormalClosure, "done"); err != nil {
		t.Fatalf("CloseWithStatus: %v", err)
	}
}
