// ABOUTME: Lobby session orchestration
// ABOUTME: Wires catalog, transport, round engine, playback and notices
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/AleixFerre/guessong-client/internal/catalog"
	"github.com/AleixFerre/guessong-client/internal/game"
	"github.com/AleixFerre/guessong-client/internal/notify"
	"github.com/AleixFerre/guessong-client/internal/playback"
	"github.com/AleixFerre/guessong-client/internal/protocol"
	"github.com/AleixFerre/guessong-client/internal/transport"
)

// Config holds session configuration.
type Config struct {
	// ServerURL is the backend base URL, e.g. "http://play.example.com/guessong".
	ServerURL string
	Username  string
	NoAudio   bool

	OnSnapshot  func(game.Snapshot)
	OnNotices   func([]notify.Notice)
	OnConnState func(transport.State)
}

// Session owns everything scoped to one lobby membership: the socket, the
// clock estimate, the round engine and local playback. It is created per
// lobby session and torn down on leave, never process-wide.
type Session struct {
	cfg       Config
	clientID  string
	clock     clockwork.Clock
	api       *catalog.Client
	transport *transport.Transport
	scheduler *playback.Scheduler
	engine    *game.Engine
	notices   *notify.Feed

	mu       sync.Mutex
	lobbyID  string
	playerID string

	cancel context.CancelFunc
}

// New creates a session. The clock is injected so tests can drive every
// timer in the stack deterministically.
func New(cfg Config, clock clockwork.Clock) *Session {
	s := &Session{
		cfg:      cfg,
		clientID: uuid.New().String(),
		clock:    clock,
		api:      catalog.NewClient(strings.TrimRight(cfg.ServerURL, "/") + "/api"),
	}

	s.transport = transport.New(clock)
	s.notices = notify.NewFeed(clock, cfg.OnNotices)

	var out playback.Output = playback.NewOtoOutput()
	if cfg.NoAudio {
		out = playback.NopOutput{}
	}
	s.scheduler = playback.NewScheduler(clock, out, cfg.ServerURL)

	s.engine = game.NewEngine(game.Config{
		OnSnapshot:  cfg.OnSnapshot,
		OnDissolved: s.onDissolved,
	}, clock, s.transport.ClockSync(), s.scheduler, s.transport, s.notices)

	return s
}

// Start runs the engine loop and connection-state forwarding until the
// context is cancelled.
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go s.engine.Run(ctx, s.transport.Events())
	go s.watchConnState(ctx)

	log.Info().Str("client_id", s.clientID).Msg("session started")
}

func (s *Session) watchConnState(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-s.transport.States():
			log.Info().Stringer("state", state).Msg("connection state")
			if s.cfg.OnConnState != nil {
				s.cfg.OnConnState(state)
			}
		}
	}
}

// Libraries lists the selectable track libraries.
func (s *Session) Libraries(ctx context.Context) ([]catalog.LibraryInfo, error) {
	return s.api.Libraries(ctx)
}

// Tracks lists one library's tracks, for the guess-option pool.
func (s *Session) Tracks(ctx context.Context, libraryID string) ([]catalog.Track, error) {
	return s.api.Tracks(ctx, libraryID)
}

// CreateLobby creates a lobby, then joins its event stream.
func (s *Session) CreateLobby(ctx context.Context, req catalog.CreateLobbyRequest) error {
	req.Username = s.cfg.Username
	resp, err := s.api.CreateLobby(ctx, req)
	if err != nil {
		return fmt.Errorf("create lobby: %w", err)
	}
	return s.enterLobby(resp)
}

// JoinLobby joins an existing lobby, then its event stream.
func (s *Session) JoinLobby(ctx context.Context, lobbyID string) error {
	resp, err := s.api.JoinLobby(ctx, lobbyID, s.cfg.Username)
	if err != nil {
		return fmt.Errorf("join lobby: %w", err)
	}
	return s.enterLobby(resp)
}

// enterLobby connects the socket and binds it to the seat the REST call
// gave us. JOIN_LOBBY may be queued if the dial is still in flight.
func (s *Session) enterLobby(resp *catalog.LobbyResponse) error {
	s.mu.Lock()
	s.lobbyID = resp.LobbyID
	s.playerID = resp.PlayerID
	s.mu.Unlock()

	s.engine.SetPlayerID(resp.PlayerID)

	if err := s.transport.Connect(wsURL(s.cfg.ServerURL)); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	return s.transport.Send(protocol.TypeJoinLobby, protocol.JoinLobbyPayload{
		LobbyID:  resp.LobbyID,
		PlayerID: resp.PlayerID,
		Username: s.cfg.Username,
	})
}

// Leave tears down the lobby membership: socket closed, round state
// dropped, playback cancelled. The session itself stays usable.
func (s *Session) Leave() {
	s.transport.Disconnect()
	s.engine.Reset()

	s.mu.Lock()
	s.lobbyID = ""
	s.playerID = ""
	s.mu.Unlock()
}

func (s *Session) onDissolved() {
	s.transport.Disconnect()
	s.mu.Lock()
	s.lobbyID = ""
	s.playerID = ""
	s.mu.Unlock()
}

// Close ends the session entirely.
func (s *Session) Close() {
	s.Leave()
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Close()
}

// LobbyID returns the joined lobby id, if any.
func (s *Session) LobbyID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lobbyID
}

// Engine exposes the round engine for UI actions.
func (s *Session) Engine() *game.Engine { return s.engine }

// Playback exposes the playback scheduler for volume control.
func (s *Session) Playback() *playback.Scheduler { return s.scheduler }

// Transport exposes the transport for status display.
func (s *Session) Transport() *transport.Transport { return s.transport }

// Notices exposes the transient notice feed.
func (s *Session) Notices() *notify.Feed { return s.notices }

// wsURL derives the WebSocket endpoint from the backend base URL.
func wsURL(serverURL string) string {
	url := strings.TrimRight(serverURL, "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/ws"
}
