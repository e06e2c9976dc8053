// ABOUTME: WebSocket transport for the Guessong protocol
// ABOUTME: Owns the socket, the probe loop and inbound frame demultiplexing
package transport

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/AleixFerre/guessong-client/internal/protocol"
)

// State is the connection lifecycle, owned exclusively by Transport.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Event is one application frame, demultiplexed from the socket. Probe
// replies are consumed internally and never appear here.
type Event struct {
	Type    string
	Payload json.RawMessage
}

const probeInterval = 5 * time.Second

// Transport maintains one logical connection to the game server. Messages
// sent while disconnected are queued and flushed in order on the next open.
// There is no automatic reconnection; the lobby-join flow drives Connect.
type Transport struct {
	mu    sync.Mutex
	conn  *websocket.Conn
	state State
	gen   int // connection generation, guards callbacks of stale sockets

	clock     clockwork.Clock
	clockSync *ClockSync
	dialer    *websocket.Dialer

	pending []protocol.Envelope

	events chan Event
	states chan State

	probeStop chan struct{}
}

// New creates a transport. The same clock feeds the probe ticker and the
// offset estimate so tests can drive both deterministically.
func New(clock clockwork.Clock) *Transport {
	return &Transport{
		clock:     clock,
		clockSync: NewClockSync(clock),
		dialer:    websocket.DefaultDialer,
		events:    make(chan Event, 64),
		states:    make(chan State, 8),
	}
}

// Events returns the stream of application events.
func (t *Transport) Events() <-chan Event {
	return t.events
}

// States returns connection state transitions. Late transitions are dropped
// if the consumer lags; State() always has the current value.
func (t *Transport) States() <-chan State {
	return t.states
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ClockSync returns the offset estimator bound to this transport.
func (t *Transport) ClockSync() *ClockSync {
	return t.clockSync
}

// Connect closes any existing socket and opens a new one. On open it sends
// an immediate clock probe, starts the recurring probe loop and flushes any
// messages queued while disconnected, in their original order.
func (t *Transport) Connect(url string) error {
	t.mu.Lock()
	if t.conn != nil {
		t.closeLocked()
	}
	t.setStateLocked(StateConnecting)
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	log.Info().Str("url", url).Msg("connecting")

	conn, _, err := t.dialer.Dial(url, nil)
	if err != nil {
		t.mu.Lock()
		if t.gen == gen {
			t.setStateLocked(StateDisconnected)
		}
		t.mu.Unlock()
		return fmt.Errorf("dial failed: %w", err)
	}

	t.mu.Lock()
	if t.gen != gen {
		// A concurrent Connect or Disconnect superseded this dial.
		t.mu.Unlock()
		conn.Close()
		return fmt.Errorf("connection superseded")
	}
	t.conn = conn
	t.setStateLocked(StateConnected)
	t.probeStop = make(chan struct{})
	stop := t.probeStop

	t.writeLocked(protocol.TypePing, protocol.PingPayload{Ts: t.clock.Now().UnixMilli()})
	for _, env := range t.pending {
		t.writeLocked(env.Type, env.Payload)
	}
	t.pending = nil
	t.mu.Unlock()

	go t.probeLoop(stop)
	go t.readLoop(conn, gen)

	return nil
}

// Send transmits {type, payload} immediately when connected, otherwise
// queues it for the next open. Queueing never fails.
func (t *Transport) Send(msgType string, payload interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateConnected {
		t.pending = append(t.pending, protocol.Envelope{Type: msgType, Payload: payload})
		log.Debug().Str("type", msgType).Int("queued", len(t.pending)).Msg("queued message while disconnected")
		return nil
	}
	return t.writeLocked(msgType, payload)
}

// Disconnect closes the socket and stops the probe loop. It does not
// reconnect; callers observe the state change and decide what to do.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.closeLocked()
}

// writeLocked serializes and transmits one frame. Caller holds t.mu, which
// also serializes writers as gorilla/websocket requires.
func (t *Transport) writeLocked(msgType string, payload interface{}) error {
	if t.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := t.conn.WriteJSON(protocol.Envelope{Type: msgType, Payload: payload}); err != nil {
		return fmt.Errorf("write %s: %w", msgType, err)
	}
	return nil
}

// closeLocked tears down the current socket, if any.
func (t *Transport) closeLocked() {
	if t.probeStop != nil {
		close(t.probeStop)
		t.probeStop = nil
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.setStateLocked(StateDisconnected)
}

func (t *Transport) setStateLocked(s State) {
	if t.state == s {
		return
	}
	t.state = s
	select {
	case t.states <- s:
	default:
	}
}

// probeLoop issues a clock probe every probeInterval until stopped.
func (t *Transport) probeLoop(stop chan struct{}) {
	ticker := t.clock.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if err := t.Send(protocol.TypePing, protocol.PingPayload{Ts: t.clock.Now().UnixMilli()}); err != nil {
				log.Debug().Err(err).Msg("probe send failed")
			}
		}
	}
}

// readLoop reads frames until the socket dies, then surfaces Disconnected.
func (t *Transport) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if t.gen == gen {
				t.closeLocked()
				log.Info().Err(err).Msg("socket closed")
			}
			t.mu.Unlock()
			return
		}
		t.handleFrame(data)
	}
}

// handleFrame demultiplexes one inbound frame. Probe replies update the
// clock estimate; anything else parseable is published; the rest is dropped.
func (t *Transport) handleFrame(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		log.Debug().Err(err).Msg("dropping unparseable frame")
		return
	}

	if msg.Type == protocol.TypePong {
		var pong protocol.PongPayload
		if err := json.Unmarshal(msg.Payload, &pong); err != nil {
			log.Debug().Err(err).Msg("dropping malformed probe reply")
			return
		}
		t.clockSync.ProcessPong(pong.ClientTs, pong.ServerTs)
		return
	}

	select {
	case t.events <- Event{Type: msg.Type, Payload: msg.Payload}:
	default:
		log.Warn().Str("type", msg.Type).Msg("event channel full, dropping frame")
	}
}
