package link

import (
	"bufio"
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/openai/snap-o-link/feature"
	"github.com/openai/snap-o-link/record"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.ClientHelloTimeout = 500 * time.Millisecond
	return cfg
}

func TestServeAcceptsAndHandshakes(t *testing.T) {
	registry := feature.NewRegistry()
	hello := record.Hello{SchemaVersion: "1.0", Capabilities: []string{"network"}}
	srv, err := New(testConfig(), registry, hello, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(ln)
	defer srv.Close()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("HelloSnapO\n")); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(line) == 0 {
		t.Fatalf("expected a non-empty first record line")
	}
}

func TestServeBulkPairsConnectionToSession(t *testing.T) {
	registry := feature.NewRegistry()
	hello := record.Hello{SchemaVersion: "1.0", Capabilities: []string{"network"}}
	srv, err := New(testConfig(), registry, hello, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(ln)
	defer srv.Close()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("HelloSnapO\n")); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	r := bufio.NewReader(conn)
	if _, err := r.ReadString('\n'); err != nil {
		t.Fatalf("read hello reply: %v", err)
	}

	bulkLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen bulk: %v", err)
	}
	go srv.ServeBulk(bulkLn)

	bulkConn, err := net.Dial("tcp", bulkLn.Addr().String())
	if err != nil {
		t.Fatalf("dial bulk: %v", err)
	}
	defer bulkConn.Close()

	if err := WriteBulkHello(bulkConn, 1); err != nil {
		t.Fatalf("write bulk hello: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := srv.SendBody(1, "req-1", 4, "identity", bytes.NewReader([]byte("data"))); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for bulk channel to pair")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAcceptWSHandshakesLikeAnyOtherConn(t *testing.T) {
	registry := feature.NewRegistry()
	hello := record.Hello{SchemaVersion: "1.0", Capabilities: []string{"network"}}
	srv, err := New(testConfig(), registry, hello, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.registry.Start(srv.sinkFor)
	defer srv.Close()

	client, server := net.Pipe()
	defer client.Close()

	srv.AcceptWS(server)

	if _, err := client.Write([]byte("HelloSnapO\n")); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	r := bufio.NewReader(client)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(line) == 0 {
		t.Fatalf("expected a non-empty first record line")
	}
}

func TestCloseTearsDownListenerAndSessions(t *testing.T) {
	registry := feature.NewRegistry()
	hello := record.Hello{SchemaVersion: "1.0", Capabilities: []string{"network"}}
	srv, err := New(testConfig(), registry, hello, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan struct{})
	go func() {
		srv.Serve(ln)
		close(done)
	}()

	if err := srv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after Close")
	}

	if _, err := net.Dial("tcp", ln.Addr().String()); err == nil {
		t.Fatalf("expected dial to fail after listener close")
	}
}
