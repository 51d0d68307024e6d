package debugws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelmind.ai/internal/ai/telemetry"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func subscribe(t *testing.T, conn *websocket.Conn, sub SubscribeMsg) WelcomeMsg {
	t.Helper()
	sub.Type, sub.ProtocolVersion = TypeSubscribe, Version
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var w WelcomeMsg
	if err := conn.ReadJSON(&w); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if w.Type != TypeWelcome || w.SessionID == "" {
		t.Fatalf("welcome: %+v", w)
	}
	return w
}

func TestStreamsFilteredEvents(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub.WSHandler())
	defer srv.Close()

	conn := dial(t, srv)
	subscribe(t, conn, SubscribeMsg{Agents: []uint64{2}, Kinds: []telemetry.Kind{telemetry.PlanFound, telemetry.PlanFailed}})

	hub.Emit(telemetry.Event{Kind: telemetry.PlanFound, Agent: 1, Root: "other"})
	hub.Emit(telemetry.Event{Kind: telemetry.StepCompleted, Agent: 2, Step: "move_to"})
	hub.Emit(telemetry.Event{Kind: telemetry.PlanFailed, Agent: 2, Root: "survive", Step: "pickup"})

	var msg EventMsg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != TypeEvent || msg.Event.Agent != 2 || msg.Event.Kind != telemetry.PlanFailed || msg.Event.Step != "pickup" {
		t.Fatalf("event: %+v", msg)
	}
	if st := hub.Stats(); st.Sessions != 1 || st.Sent != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestQuietSessionStaysOpen(t *testing.T) {
	hub := NewHub(nil)
	hub.pingEvery = 50 * time.Millisecond
	hub.readWait = 200 * time.Millisecond
	srv := httptest.NewServer(hub.WSHandler())
	defer srv.Close()

	conn := dial(t, srv)
	subscribe(t, conn, SubscribeMsg{})

	sessions := make(chan int, 1)
	go func() {
		time.Sleep(700 * time.Millisecond)
		sessions <- hub.Stats().Sessions
		hub.Emit(telemetry.Event{Kind: telemetry.PlanCompleted, Agent: 4, Root: "survive"})
	}()

	// Reading answers the server's pings while the stream is quiet.
	var msg EventMsg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read after quiet period: %v", err)
	}
	if n := <-sessions; n != 1 {
		t.Fatalf("sessions after quiet period: %d", n)
	}
	if msg.Event.Kind != telemetry.PlanCompleted || msg.Event.Agent != 4 {
		t.Fatalf("event: %+v", msg)
	}
}

func TestSilentClientIsClosed(t *testing.T) {
	hub := NewHub(nil)
	hub.pingEvery = time.Hour
	hub.readWait = 100 * time.Millisecond
	srv := httptest.NewServer(hub.WSHandler())
	defer srv.Close()

	conn := dial(t, srv)
	subscribe(t, conn, SubscribeMsg{})
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestRejectsBadHandshake(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub.WSHandler())
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HELLO"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestLoopbackOnly(t *testing.T) {
	hub := NewHub(nil)
	for _, h := range []http.HandlerFunc{hub.WSHandler(), hub.StatsHandler()} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("remote client: %d", rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:5555"
	rec := httptest.NewRecorder()
	hub.StatsHandler()(rec, req)
	var st Stats
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("stats: %d %v", rec.Code, err)
	}

	hub.AllowRemote = true
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec = httptest.NewRecorder()
	hub.StatsHandler()(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("allow remote: %d", rec.Code)
	}
}

func TestFilterMatch(t *testing.T) {
	f := newFilter(SubscribeMsg{Agents: []uint64{9, 3}})
	if !f.match(telemetry.Event{Agent: 3}) || f.match(telemetry.Event{Agent: 4}) {
		t.Fatalf("agent filter")
	}
	if !newFilter(SubscribeMsg{}).match(telemetry.Event{Agent: 77, Kind: telemetry.PlanCompleted}) {
		t.Fatalf("empty filter should match")
	}
}
