package record

import "testing"

func TestWallMillisUntimedIsInfinity(t *testing.T) {
	if got := WallMillis(ReplayComplete{}); got != TimeInfinity {
		t.Fatalf("got %d want TimeInfinity", got)
	}
}

func TestWallMillisTimed(t *testing.T) {
	r := RequestWillBeSent{ID: "a", TWallMs: 42}
	if got := WallMillis(r); got != 42 {
		t.Fatalf("got %d want 42", got)
	}
}

func TestConversationIDOf(t *testing.T) {
	r := WebSocketOpened{ID: "ws1"}
	id, ok := ConversationIDOf(r)
	if !ok || id != "ws1" {
		t.Fatalf("got (%q,%v) want (ws1,true)", id, ok)
	}
	if _, ok := ConversationIDOf(Hello{}); ok {
		t.Fatalf("Hello should not be identified")
	}
}

func TestClassification(t *testing.T) {
	if !IsPerRequest(KindResponseReceived) {
		t.Fatalf("ResponseReceived should be per-request")
	}
	if IsPerRequest(KindWebSocketOpened) {
		t.Fatalf("WebSocketOpened should not be per-request")
	}
	if !IsPerWebSocket(KindWebSocketOpened) {
		t.Fatalf("WebSocketOpened should be per-websocket")
	}
	if !IsRequestTerminal(KindRequestFailed) {
		t.Fatalf("RequestFailed should be terminal")
	}
	if !IsWSOpenMarker(KindWebSocketWillOpen) {
		t.Fatalf("WillOpen should be an open marker")
	}
	if !IsWSTerminal(KindWebSocketClosed) {
		t.Fatalf("Closed should be WS terminal")
	}
}

func TestStripBody(t *testing.T) {
	preview := "hi"
	body := "hello world"
	r := ResponseReceived{ID: "a", Body: &body, BodyPreview: &preview}
	if !r.HasBody() {
		t.Fatalf("expected HasBody true")
	}
	stripped := r.StripBody()
	if stripped.Body != nil || stripped.BodyPreview != nil {
		t.Fatalf("expected stripped body/preview to be nil")
	}
	if r.Body == nil {
		t.Fatalf("original record must not be mutated")
	}
}
