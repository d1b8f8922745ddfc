package api

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FSE-2021-1/central-server/internal/device"
	"github.com/FSE-2021-1/central-server/internal/fleet"
	"github.com/FSE-2021-1/central-server/internal/infrastructure/config"
	"github.com/FSE-2021-1/central-server/internal/infrastructure/logging"
)

// inbound is a decoded server frame.
type inbound struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

func fakeSession(h *Hub, id string, buffer int) *Session {
	return &Session{id: id, hub: h, send: make(chan []byte, buffer)}
}

func TestHub_Broadcast(t *testing.T) {
	h := NewHub(config.WebSocketConfig{}, logging.Discard())
	a := fakeSession(h, "a", 4)
	b := fakeSession(h, "b", 4)
	h.Register(a)
	h.Register(b)

	h.Broadcast(fleet.EventState, device.State{Active: []device.Record{}, Pending: []device.Record{}})

	for _, sess := range []*Session{a, b} {
		select {
		case data := <-sess.send:
			var msg inbound
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if msg.Type != WSTypeEvent || msg.EventType != fleet.EventState {
				t.Errorf("session %s got %s/%s, want event/state", sess.id, msg.Type, msg.EventType)
			}
		default:
			t.Errorf("session %s received nothing", sess.id)
		}
	}
}

func TestHub_BroadcastSkipsFullSession(t *testing.T) {
	h := NewHub(config.WebSocketConfig{}, logging.Discard())
	slow := fakeSession(h, "slow", 1)
	fast := fakeSession(h, "fast", 4)
	h.Register(slow)
	h.Register(fast)

	h.Broadcast("one", nil)
	h.Broadcast("two", nil)

	if got := len(slow.send); got != 1 {
		t.Errorf("slow session queued %d frames, want 1", got)
	}
	if got := len(fast.send); got != 2 {
		t.Errorf("fast session queued %d frames, want 2", got)
	}
}

func TestHub_SendTo(t *testing.T) {
	h := NewHub(config.WebSocketConfig{}, logging.Discard())
	sess := fakeSession(h, "only", 1)
	h.Register(sess)

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{"delivered", "only", nil},
		{"queue full", "only", ErrSendBufferFull},
		{"unknown session", "ghost", ErrSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.SendTo(tt.id, fleet.EventState, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SendTo() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHub_UnregisterClosesOnce(t *testing.T) {
	h := NewHub(config.WebSocketConfig{}, logging.Discard())
	sess := fakeSession(h, "x", 1)
	h.Register(sess)

	h.Unregister(sess)
	h.Unregister(sess)

	if h.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", h.ClientCount())
	}
	if sess.trySend([]byte("late")) {
		t.Error("trySend() on a closed session should report false")
	}
}

func TestHub_DefaultSendBuffer(t *testing.T) {
	h := NewHub(config.WebSocketConfig{}, logging.Discard())
	if h.cfg.SendBuffer != defaultSendBuffer {
		t.Errorf("SendBuffer = %d, want %d", h.cfg.SendBuffer, defaultSendBuffer)
	}
}

// dialWS connects a client to the env's WebSocket endpoint.
func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(env.srv.buildRouter())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	resp.Body.Close() //nolint:errcheck // Handshake response
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until match returns true or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(inbound) bool) inbound {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		//nolint:errcheck // Deadline failure surfaces on read
		conn.SetReadDeadline(deadline)
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func isEvent(name string) func(inbound) bool {
	return func(m inbound) bool { return m.Type == WSTypeEvent && m.EventType == name }
}

func isReply(id string) func(inbound) bool {
	return func(m inbound) bool { return m.ID == id && (m.Type == WSTypeResponse || m.Type == WSTypeError) }
}

func sendIntent(t *testing.T, conn *websocket.Conn, typ, id string, payload any) {
	t.Helper()
	frame := map[string]any{"type": typ, "id": id}
	if payload != nil {
		frame["payload"] = payload
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write intent: %v", err)
	}
}

func TestWebSocket_GreetsWithState(t *testing.T) {
	env := testServer(t)
	if err := env.registry.Set(testMAC, device.NewActive(testMAC, "kitchen", "presence", "lamp")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	conn := dialWS(t, env)
	msg := readUntil(t, conn, isEvent(fleet.EventState))

	var state device.State
	if err := json.Unmarshal(msg.Payload, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if len(state.Active) != 1 || state.Active[0].ID != testMAC {
		t.Errorf("state = %+v, want the kitchen device active", state)
	}
}

func TestWebSocket_RegisterIntent(t *testing.T) {
	env := testServer(t)
	conn := dialWS(t, env)
	observer := dialWS(t, env)
	readUntil(t, conn, isEvent(fleet.EventState))
	readUntil(t, observer, isEvent(fleet.EventState))

	sendIntent(t, conn, IntentRegister, "req-1", fleet.Registration{
		ID: testMAC, Local: "kitchen", Input: "presence", Output: "lamp",
	})

	reply := readUntil(t, conn, isReply("req-1"))
	if reply.Type != WSTypeResponse {
		t.Fatalf("reply type = %s (%s), want response", reply.Type, reply.Payload)
	}
	var rec device.Record
	if err := json.Unmarshal(reply.Payload, &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if rec.ID != testMAC || rec.IsPending {
		t.Errorf("record = %+v, want active %s", rec, testMAC)
	}

	// The state broadcast from the registry change precedes "registered".
	var sawRegistered, sawState bool
	readUntil(t, observer, func(m inbound) bool {
		switch {
		case isEvent(fleet.EventRegistered)(m):
			sawRegistered = true
		case isEvent(fleet.EventState)(m):
			var state device.State
			if err := json.Unmarshal(m.Payload, &state); err == nil && len(state.Active) == 1 {
				sawState = true
			}
		}
		return sawRegistered && sawState
	})
}

func TestWebSocket_IntentErrors(t *testing.T) {
	env := testServer(t)
	conn := dialWS(t, env)
	readUntil(t, conn, isEvent(fleet.EventState))

	tests := []struct {
		name     string
		typ      string
		payload  any
		wantCode string
	}{
		{"push to unknown device", IntentPushOutput, map[string]any{"id": "ghost", "value": 1}, ErrCodeNotFound},
		{"push without value", IntentPushOutput, map[string]any{"id": testMAC}, ErrCodeValidation},
		{"delete unknown device", IntentDelete, map[string]any{"id": "ghost"}, ErrCodeNotFound},
		{"register without zone", IntentRegister, fleet.Registration{ID: testMAC, Input: "a", Output: "b"}, ErrCodeValidation},
		{"register without payload", IntentRegister, nil, ErrCodeBadRequest},
		{"unknown type", "reboot", nil, ErrCodeBadRequest},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := "req-" + string(rune('a'+i))
			sendIntent(t, conn, tt.typ, id, tt.payload)

			reply := readUntil(t, conn, isReply(id))
			if reply.Type != WSTypeError {
				t.Fatalf("reply type = %s, want error", reply.Type)
			}
			var body map[string]string
			if err := json.Unmarshal(reply.Payload, &body); err != nil {
				t.Fatalf("unmarshal error payload: %v", err)
			}
			if body["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
			}
		})
	}

	if len(env.bus.Published()) != 0 {
		t.Errorf("failed intents published %d bus messages, want 0", len(env.bus.Published()))
	}
}

func TestWebSocket_PushOutputAndDelete(t *testing.T) {
	env := testServer(t)
	if err := env.registry.Set(testMAC, device.NewActive(testMAC, "kitchen", "presence", "lamp")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	conn := dialWS(t, env)
	readUntil(t, conn, isEvent(fleet.EventState))

	sendIntent(t, conn, IntentPushOutput, "out-1", map[string]any{"id": testMAC, "value": 1})
	if reply := readUntil(t, conn, isReply("out-1")); reply.Type != WSTypeResponse {
		t.Fatalf("push_output reply = %s (%s)", reply.Type, reply.Payload)
	}

	sendIntent(t, conn, IntentDelete, "del-1", map[string]any{"id": testMAC})
	if reply := readUntil(t, conn, isReply("del-1")); reply.Type != WSTypeResponse {
		t.Fatalf("delete reply = %s (%s)", reply.Type, reply.Payload)
	}

	rec, ok := env.registry.Get(testMAC)
	if !ok || !rec.IsPending || rec.Output.Value != 1 {
		t.Errorf("record = %+v, want pending with output 1", rec)
	}

	pubs := env.bus.Published()
	if len(pubs) != 2 {
		t.Fatalf("published %d messages, want 2", len(pubs))
	}
	if pubs[0].Payload != `{"out":1}` || pubs[1].Payload != `{"type":"unregister"}` {
		t.Errorf("published = %+v", pubs)
	}
}

func TestWebSocket_RequestState(t *testing.T) {
	env := testServer(t)
	conn := dialWS(t, env)
	readUntil(t, conn, isEvent(fleet.EventState))

	sendIntent(t, conn, IntentRequestState, "st-1", nil)
	readUntil(t, conn, isEvent(fleet.EventState))
}

func TestWebSocket_MessageRelay(t *testing.T) {
	env := testServer(t)
	sender := dialWS(t, env)
	receiver := dialWS(t, env)
	readUntil(t, sender, isEvent(fleet.EventState))
	readUntil(t, receiver, isEvent(fleet.EventState))

	sendIntent(t, sender, IntentMessage, "", map[string]any{"text": "hello"})

	for _, conn := range []*websocket.Conn{sender, receiver} {
		msg := readUntil(t, conn, isEvent(fleet.EventMessage))
		if !strings.Contains(string(msg.Payload), "hello") {
			t.Errorf("relayed payload = %s, want hello", msg.Payload)
		}
	}
}

func TestWebSocket_PingAndInvalidJSON(t *testing.T) {
	env := testServer(t)
	conn := dialWS(t, env)
	readUntil(t, conn, isEvent(fleet.EventState))

	sendIntent(t, conn, WSTypePing, "p-1", nil)
	if msg := readUntil(t, conn, func(m inbound) bool { return m.ID == "p-1" }); msg.Type != WSTypePong {
		t.Errorf("ping reply type = %s, want pong", msg.Type)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readUntil(t, conn, func(m inbound) bool { return m.Type == WSTypeError })
	if !strings.Contains(string(msg.Payload), ErrCodeBadRequest) {
		t.Errorf("error payload = %s, want bad_request", msg.Payload)
	}
}

func TestWebSocket_SessionCount(t *testing.T) {
	env := testServer(t)
	conn := dialWS(t, env)
	readUntil(t, conn, isEvent(fleet.EventState))

	if n := env.hub.ClientCount(); n != 1 {
		t.Errorf("ClientCount() = %d, want 1", n)
	}

	conn.Close()
	deadline := time.Now().Add(3 * time.Second)
	for env.hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := env.hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount() after close = %d, want 0", n)
	}
}
