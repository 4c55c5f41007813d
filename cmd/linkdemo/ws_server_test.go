package main

import (
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/openai/snap-o-link/feature"
	"github.com/openai/snap-o-link/link"
	"github.com/openai/snap-o-link/record"
)

func TestWSHandlerUpgradesAndHandshakes(t *testing.T) {
	registry := feature.NewRegistry()
	hello := record.Hello{SchemaVersion: "1.0", Capabilities: []string{"network"}}
	srv, err := link.New(link.DefaultConfig(), registry, hello, nil, nil)
	if err != nil {
		t.Fatalf("link.New: %v", err)
	}
	defer srv.Close()

	httpSrv := httptest.NewServer(wsHandler("/link", "", srv))
	defer httpSrv.Close()

	d := websocket.Dialer{}
	client, _, err := d.Dial("ws"+httpSrv.URL[len("http"):]+"/link", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if err := client.WriteMessage(websocket.TextMessage, []byte("HelloSnapO\n")); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read hello reply: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected a non-empty first record line")
	}
}
