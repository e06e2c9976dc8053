// ABOUTME: Tests for the WebSocket transport
// ABOUTME: Covers queue-and-flush, demultiplexing and disconnect handling
package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/AleixFerre/guessong-client/internal/protocol"
)

type testServer struct {
	*httptest.Server
	conns chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{conns: make(chan *websocket.Conn, 2)}
	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ts.conns <- conn
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ts.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestQueuedMessagesFlushInOrder(t *testing.T) {
	ts := newTestServer(t)
	tr := New(clockwork.NewFakeClock())

	if tr.State() != StateDisconnected {
		t.Fatal("expected disconnected initially")
	}

	// Queued while disconnected; must not fail.
	if err := tr.Send("FIRST", map[string]int{"n": 1}); err != nil {
		t.Fatalf("queueing send failed: %v", err)
	}
	if err := tr.Send("SECOND", map[string]int{"n": 2}); err != nil {
		t.Fatalf("queueing send failed: %v", err)
	}

	if err := tr.Connect(ts.url()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer tr.Disconnect()

	if tr.State() != StateConnected {
		t.Errorf("expected connected, got %v", tr.State())
	}

	conn := ts.accept(t)
	defer conn.Close()

	// Probe goes out before the backlog, then the backlog in order.
	if msg := readFrame(t, conn); msg.Type != protocol.TypePing {
		t.Errorf("expected PING first, got %s", msg.Type)
	}
	if msg := readFrame(t, conn); msg.Type != "FIRST" {
		t.Errorf("expected FIRST, got %s", msg.Type)
	}
	if msg := readFrame(t, conn); msg.Type != "SECOND" {
		t.Errorf("expected SECOND, got %s", msg.Type)
	}
}

func TestPongConsumedInternally(t *testing.T) {
	ts := newTestServer(t)
	clock := clockwork.NewFakeClock()
	tr := New(clock)

	if err := tr.Connect(ts.url()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer tr.Disconnect()

	conn := ts.accept(t)
	defer conn.Close()
	readFrame(t, conn) // initial PING

	now := clock.Now().UnixMilli()
	pong, _ := json.Marshal(protocol.Envelope{
		Type:    protocol.TypePong,
		Payload: protocol.PongPayload{ClientTs: now - 20, ServerTs: now + 50},
	})
	if err := conn.WriteMessage(websocket.TextMessage, pong); err != nil {
		t.Fatalf("write pong: %v", err)
	}

	waitFor(t, "clock sync", tr.ClockSync().Synced)

	// offset = (now+50) + 20/2 - now = 60
	if got := tr.ClockSync().OffsetMs(); got != 60 {
		t.Errorf("expected offset 60ms, got %d", got)
	}

	// The probe reply never surfaces as an application event.
	select {
	case ev := <-tr.Events():
		t.Errorf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestApplicationEventsSurface(t *testing.T) {
	ts := newTestServer(t)
	tr := New(clockwork.NewFakeClock())

	if err := tr.Connect(ts.url()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer tr.Disconnect()

	conn := ts.accept(t)
	defer conn.Close()
	readFrame(t, conn) // initial PING

	// Garbage is dropped silently.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	frame, _ := json.Marshal(protocol.Envelope{
		Type:    protocol.TypeRoundStart,
		Payload: protocol.RoundStartPayload{StartAtServerTs: 123, ClipDuration: 15},
	})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	select {
	case ev := <-tr.Events():
		if ev.Type != protocol.TypeRoundStart {
			t.Errorf("expected ROUND_START, got %s", ev.Type)
		}
		var payload protocol.RoundStartPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.StartAtServerTs != 123 {
			t.Errorf("expected start ts 123, got %d", payload.StartAtServerTs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestServerCloseSurfacesDisconnected(t *testing.T) {
	ts := newTestServer(t)
	tr := New(clockwork.NewFakeClock())

	if err := tr.Connect(ts.url()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	conn := ts.accept(t)
	readFrame(t, conn) // initial PING
	conn.Close()

	waitFor(t, "disconnect", func() bool { return tr.State() == StateDisconnected })

	// No auto-reconnect: sending afterwards queues instead of failing.
	if err := tr.Send("LATER", nil); err != nil {
		t.Errorf("send after disconnect should queue, got %v", err)
	}
}

func TestConnectReplacesExistingSocket(t *testing.T) {
	ts := newTestServer(t)
	tr := New(clockwork.NewFakeClock())

	if err := tr.Connect(ts.url()); err != nil {
		t.Fatalf("first connect failed: %v", err)
	}
	first := ts.accept(t)
	readFrame(t, first) // initial PING

	if err := tr.Connect(ts.url()); err != nil {
		t.Fatalf("second connect failed: %v", err)
	}
	defer tr.Disconnect()
	second := ts.accept(t)
	defer second.Close()
	readFrame(t, second) // initial PING on the new socket

	// The old socket is closed by the transport.
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Error("expected old socket to be closed")
	}

	if tr.State() != StateConnected {
		t.Errorf("expected connected, got %v", tr.State())
	}
}
