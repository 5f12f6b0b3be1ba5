package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/bambi-core/internal/door"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_PublishStatusToAllClients(t *testing.T) {
	hub := testHub(t)

	clients := []*WSClient{
		{hub: hub, send: make(chan []byte, wsSendBufferSize)},
		{hub: hub, send: make(chan []byte, wsSendBufferSize)},
	}
	for _, c := range clients {
		hub.Register(c)
	}
	client := clients[0]

	hub.PublishStatus(door.Status{Status: "FINISH", IsWaitingToClose: true})

	select {
	case msg := <-client.send:
		var wsMsg struct {
			Type      string      `json:"type"`
			EventType string      `json:"event_type"`
			Payload   door.Status `json:"payload"`
		}
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.Type != WSTypeEvent {
			t.Errorf("type = %q, want %q", wsMsg.Type, WSTypeEvent)
		}
		if wsMsg.EventType != EventStatus {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, EventStatus)
		}
		if wsMsg.Payload.Status != "FINISH" || !wsMsg.Payload.IsWaitingToClose {
			t.Errorf("payload = %+v", wsMsg.Payload)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for status push")
	}

	select {
	case <-clients[1].send:
	case <-time.After(time.Second):
		t.Error("second client did not receive the push")
	}
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := testHub(t)

	client := &WSClient{hub: hub, send: make(chan []byte, 1)}
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.PublishStatus(door.Status{Percent: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishStatus blocked on a full client buffer")
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := testHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{hub: hub, send: make(chan []byte, wsSendBufferSize)}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}

	// A second unregister must not double-close the send channel.
	hub.Unregister(client)
}

// ─── Connection Tests ──────────────────────────────────────────────

// connectWebSocket starts the router on an httptest server, dials the
// status socket and consumes the initial status push.
func connectWebSocket(t *testing.T) (*Server, *websocket.Conn, WSMessage) {
	t.Helper()

	srv, _ := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.buildRouter())
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		cancel()
		ts.Close()
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() {
		ws.Close()
		cancel()
		ts.Close()
	})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var initial WSMessage
	if err := ws.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial status: %v", err)
	}
	return srv, ws, initial
}

func TestWebSocket_InitialStatus(t *testing.T) {
	_, _, initial := connectWebSocket(t)

	if initial.Type != WSTypeEvent {
		t.Errorf("type = %q, want %q", initial.Type, WSTypeEvent)
	}
	if initial.EventType != EventStatus {
		t.Errorf("event_type = %q, want %q", initial.EventType, EventStatus)
	}
	payload, ok := initial.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type = %T, want object", initial.Payload)
	}
	if payload["status"] != "RUNNING" {
		t.Errorf("payload status = %v, want RUNNING", payload["status"])
	}
}

func TestWebSocket_StatusPush(t *testing.T) {
	srv, ws, _ := connectWebSocket(t)

	srv.hub.PublishStatus(door.Status{Status: "FINISH", IsDoorOpen: true})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read push: %v", err)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["status"] != "FINISH" || payload["is_door_open"] != true {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	_, ws, _ := connectWebSocket(t)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if resp.Type != WSTypePong {
		t.Errorf("response type = %s, want pong", resp.Type)
	}
	if resp.ID != "ping-1" {
		t.Errorf("response ID = %s, want ping-1", resp.ID)
	}
}

func TestWebSocket_InvalidMessage(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "not json"},
		{"unknown type", `{"type":"unknown_type","id":"x"}`},
		{"subscribe not supported", `{"type":"subscribe","id":"s1","payload":{"channels":["door.status"]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ws, _ := connectWebSocket(t)

			if err := ws.WriteMessage(websocket.TextMessage, []byte(tt.data)); err != nil {
				t.Fatalf("write: %v", err)
			}

			ws.SetReadDeadline(time.Now().Add(2 * time.Second))
			var resp WSMessage
			if err := ws.ReadJSON(&resp); err != nil {
				t.Fatalf("read error response: %v", err)
			}
			if resp.Type != WSTypeError {
				t.Errorf("response type = %s, want error", resp.Type)
			}
		})
	}
}
