// ABOUTME: Round state machine driven by server events and a fixed-rate tick
// ABOUTME: Derives every time-dependent quantity from the estimated server clock
package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/AleixFerre/guessong-client/internal/catalog"
	"github.com/AleixFerre/guessong-client/internal/protocol"
	"github.com/AleixFerre/guessong-client/internal/transport"
)

// Phase is the round lifecycle, owned exclusively by the engine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePlaying
	PhasePaused
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseEnded:
		return "ended"
	default:
		return "idle"
	}
}

// ServerClock provides the estimated server time.
type ServerClock interface {
	ServerNowMs() int64
	OffsetMs() int64
}

// ClipPlayer is the playback surface the engine drives at round boundaries.
type ClipPlayer interface {
	LoadClip(url string, durationSeconds float64)
	SchedulePlay(startAtServerTs, clockOffsetMs int64, seekToSeconds float64)
	PauseAt(offsetSeconds float64)
	Stop()
	Replay()
}

// Sender produces client events toward the server.
type Sender interface {
	Send(msgType string, payload interface{}) error
}

// Notifier receives transient human-readable notices.
type Notifier interface {
	Push(message string)
}

// Config tunes the engine. Zero values get the defaults below.
type Config struct {
	TickInterval   time.Duration
	NextRoundDelay time.Duration
	DissolveDelay  time.Duration

	// OnSnapshot, if set, receives a fresh snapshot after every event and
	// every tick.
	OnSnapshot func(Snapshot)
	// OnDissolved, if set, fires when the server dissolves the lobby.
	OnDissolved func()
}

const (
	defaultTickInterval   = 250 * time.Millisecond
	defaultNextRoundDelay = 5 * time.Second
	defaultDissolveDelay  = 10 * time.Second
)

// Engine consumes application events and tracks all round-scoped state.
// Everything time-dependent is recomputed from immutable server timestamps
// on demand, never decremented by a local counter, so a suspended and
// resumed process recovers the correct remaining time instantly.
type Engine struct {
	cfg    Config
	clock  clockwork.Clock
	sclock ServerClock
	player ClipPlayer
	sender Sender
	notify Notifier

	mu       sync.Mutex
	playerID string
	lobby    *protocol.LobbySnapshot

	phase                Phase
	roundStartAtServerTs int64
	roundDurationSec     float64
	clipDurationSec      float64
	pausedOffsetSeconds  *float64
	buzzDeadlineServerTs *int64
	lastPauseAtServerTs  int64
	roundEndAtServerTs   int64
	dissolveAtServerTs   int64
	buzzOwnerID          string
	roundResult          *protocol.RoundEndPayload
	roundOptions         []string

	// Rule knobs captured at round start; mid-round settings updates only
	// apply to future rounds.
	guessCap    int
	requireBuzz bool

	ledger *Ledger
}

// NewEngine creates a round engine. All collaborators are injected; the
// engine itself never touches the network or a real clock directly.
func NewEngine(cfg Config, clock clockwork.Clock, sclock ServerClock, player ClipPlayer, sender Sender, notifier Notifier) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.NextRoundDelay <= 0 {
		cfg.NextRoundDelay = defaultNextRoundDelay
	}
	if cfg.DissolveDelay <= 0 {
		cfg.DissolveDelay = defaultDissolveDelay
	}
	return &Engine{
		cfg:    cfg,
		clock:  clock,
		sclock: sclock,
		player: player,
		sender: sender,
		notify: notifier,
		ledger: NewLedger(),
	}
}

// SetPlayerID records which seat this client occupies.
func (e *Engine) SetPlayerID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playerID = id
}

// Run consumes events and re-evaluates derived state at a fixed rate until
// the context is cancelled. All mutation happens on this goroutine.
func (e *Engine) Run(ctx context.Context, events <-chan transport.Event) {
	ticker := e.clock.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.HandleEvent(ev)
			e.publish()
		case <-ticker.Chan():
			e.publish()
		}
	}
}

func (e *Engine) publish() {
	if e.cfg.OnSnapshot != nil {
		e.cfg.OnSnapshot(e.Snapshot())
	}
}

// HandleEvent applies one application event to the state machine.
// Malformed payloads are dropped; no event here is ever fatal.
func (e *Engine) HandleEvent(ev transport.Event) {
	switch ev.Type {
	case protocol.TypeLobbyUpdate:
		decode(ev.Payload, e.onLobbyUpdate)
	case protocol.TypeRoundStart:
		decode(ev.Payload, e.onRoundStart)
	case protocol.TypePlay:
		decode(ev.Payload, e.onPlay)
	case protocol.TypePause:
		decode(ev.Payload, e.onPause)
	case protocol.TypeBuzzAccepted:
		decode(ev.Payload, e.onBuzzAccepted)
	case protocol.TypeGuessResult:
		decode(ev.Payload, e.onGuessResult)
	case protocol.TypeRoundEnd:
		decode(ev.Payload, e.onRoundEnd)
	case protocol.TypeBuzzTimeout:
		decode(ev.Payload, e.onBuzzTimeout)
	case protocol.TypeEarlyBuzz:
		decode(ev.Payload, e.onEarlyBuzz)
	case protocol.TypeError:
		decode(ev.Payload, e.onServerError)
	case protocol.TypeLobbyDissolved:
		e.onLobbyDissolved()
	default:
		log.Debug().Str("type", ev.Type).Msg("ignoring unknown event")
	}
}

// decode unmarshals a payload and applies the handler, dropping the event
// on malformed input.
func decode[T any](raw json.RawMessage, handler func(T)) {
	var payload T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			log.Debug().Err(err).Msg("dropping malformed payload")
			return
		}
	}
	handler(payload)
}

func (e *Engine) onLobbyUpdate(snapshot protocol.LobbySnapshot) {
	e.mu.Lock()

	prev := e.lobby
	e.lobby = &snapshot

	// A full rematch: Finished -> Waiting with the round counter reset.
	// Force-reset every bit of round-local state; the snapshot itself
	// carries the server-applied score reset.
	if prev != nil && prev.State == protocol.LobbyFinished &&
		snapshot.State == protocol.LobbyWaiting && snapshot.CurrentRound == 0 {
		log.Info().Msg("rematch: resetting round state")
		e.resetRoundLocked()
		e.dissolveAtServerTs = 0
		e.mu.Unlock()
		return
	}

	// Entering Finished anchors the dissolve countdown at the current
	// server time; ticks re-derive the remaining seconds from it.
	finished := snapshot.State == protocol.LobbyFinished &&
		(prev == nil || prev.State != protocol.LobbyFinished)
	if finished {
		e.dissolveAtServerTs = e.sclock.ServerNowMs() + e.cfg.DissolveDelay.Milliseconds()
	}
	if snapshot.State != protocol.LobbyFinished {
		e.dissolveAtServerTs = 0
	}
	e.mu.Unlock()

	if finished {
		// The final leaderboard is on screen now; tell the server so it
		// can start tearing the lobby down.
		if err := e.AckFinalResults(); err != nil {
			log.Debug().Err(err).Msg("final results ack failed")
		}
	}
}

func (e *Engine) onRoundStart(payload protocol.RoundStartPayload) {
	e.mu.Lock()

	e.resetRoundLocked()
	e.phase = PhasePlaying
	e.roundStartAtServerTs = payload.StartAtServerTs
	e.clipDurationSec = payload.ClipDuration
	e.roundOptions = payload.GuessOptions
	e.roundDurationSec = e.roundDurationForLocked(payload.Mode)

	// Rule knobs freeze here; settings edits apply from the next round on.
	if e.lobby != nil {
		e.guessCap = e.lobby.Settings.MaxGuesses
		e.requireBuzz = RequiresBuzz(e.lobby.Settings.Mode)
	}

	clipURL := payload.ClipURL
	clipDuration := payload.ClipDuration
	e.mu.Unlock()

	log.Info().Int64("start_at", payload.StartAtServerTs).Float64("clip_s", clipDuration).Msg("round start")
	e.player.LoadClip(clipURL, clipDuration)
}

func (e *Engine) roundDurationForLocked(mode string) float64 {
	if mode == ModeOneSecond {
		return 1
	}
	if e.lobby != nil && e.lobby.Settings.RoundDuration > 0 {
		return float64(e.lobby.Settings.RoundDuration)
	}
	return 30
}

func (e *Engine) onPlay(payload protocol.PlayPayload) {
	e.mu.Lock()

	// Stale guard: a PLAY that predates the last PAUSE is a reordered or
	// duplicated resume and must leave everything untouched.
	if e.lastPauseAtServerTs != 0 && payload.StartAtServerTs < e.lastPauseAtServerTs {
		lastPause := e.lastPauseAtServerTs
		e.mu.Unlock()
		log.Debug().
			Int64("start_at", payload.StartAtServerTs).
			Int64("last_pause", lastPause).
			Msg("discarding stale PLAY")
		return
	}

	e.phase = PhasePlaying
	e.pausedOffsetSeconds = nil
	e.buzzDeadlineServerTs = nil
	if payload.StartAtServerTs != 0 {
		// Shift the round origin so elapsed time stays continuous across
		// a mid-round resume.
		e.roundStartAtServerTs = payload.StartAtServerTs - int64(payload.SeekToSeconds*1000)
	}
	e.mu.Unlock()

	e.player.SchedulePlay(payload.StartAtServerTs, e.sclock.OffsetMs(), payload.SeekToSeconds)
}

func (e *Engine) onPause(payload protocol.PausePayload) {
	e.mu.Lock()
	if e.phase != PhasePlaying {
		e.mu.Unlock()
		log.Debug().Str("phase", e.phase.String()).Msg("ignoring PAUSE outside playing")
		return
	}

	offset := payload.OffsetSeconds
	e.phase = PhasePaused
	e.pausedOffsetSeconds = &offset
	e.buzzDeadlineServerTs = payload.ResponseDeadlineServerTs
	e.lastPauseAtServerTs = e.sclock.ServerNowMs()
	e.mu.Unlock()

	e.player.PauseAt(offset)
}

func (e *Engine) onBuzzAccepted(payload protocol.BuzzAcceptedPayload) {
	e.mu.Lock()
	e.buzzOwnerID = payload.PlayerID
	name := e.playerNameLocked(payload.PlayerID)
	e.mu.Unlock()

	e.notify.Push(fmt.Sprintf("%s buzzed in", name))
}

func (e *Engine) onGuessResult(payload protocol.GuessResultPayload) {
	e.mu.Lock()
	e.ledger.RecordGuess(payload.PlayerID)
	if !payload.Correct && payload.GuessText != "" {
		e.ledger.ExcludeOption(payload.GuessText)
	}
	name := e.playerNameLocked(payload.PlayerID)
	e.mu.Unlock()

	if payload.Correct {
		e.notify.Push(fmt.Sprintf("%s guessed it!", name))
	} else {
		e.notify.Push(fmt.Sprintf("%s missed", name))
	}
}

func (e *Engine) onRoundEnd(payload protocol.RoundEndPayload) {
	e.mu.Lock()
	e.phase = PhaseEnded
	e.buzzOwnerID = ""
	e.pausedOffsetSeconds = nil
	e.buzzDeadlineServerTs = nil
	e.lastPauseAtServerTs = 0
	e.roundEndAtServerTs = e.sclock.ServerNowMs()
	e.roundResult = &payload
	e.mu.Unlock()

	log.Info().Str("reason", payload.Reason).Str("winner", payload.WinnerID).Msg("round end")
	// Reveal: replay the clip from the top while the result shows.
	e.player.Replay()
}

func (e *Engine) onBuzzTimeout(payload protocol.BuzzTimeoutPayload) {
	e.mu.Lock()
	if e.buzzOwnerID == payload.PlayerID {
		e.buzzOwnerID = ""
	}
	name := e.playerNameLocked(payload.PlayerID)
	e.mu.Unlock()

	e.notify.Push(fmt.Sprintf("%s ran out of time", name))
}

func (e *Engine) onEarlyBuzz(payload protocol.EarlyBuzzPayload) {
	e.mu.Lock()
	name := e.playerNameLocked(payload.PlayerID)
	e.mu.Unlock()

	e.notify.Push(fmt.Sprintf("%s buzzed too early", name))
}

func (e *Engine) onServerError(payload protocol.ErrorPayload) {
	msg := payload.Message
	if msg == "" {
		msg = "unexpected server error"
	}
	e.notify.Push(msg)
}

func (e *Engine) onLobbyDissolved() {
	e.notify.Push("lobby dissolved")
	e.Reset()
	if e.cfg.OnDissolved != nil {
		e.cfg.OnDissolved()
	}
}

// Reset drops all lobby- and round-scoped state and cancels any scheduled
// playback. Used on leave, disconnect and dissolve.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.lobby = nil
	e.dissolveAtServerTs = 0
	e.resetRoundLocked()
	e.mu.Unlock()

	e.player.Stop()
}

// resetRoundLocked clears everything that lives for one round.
func (e *Engine) resetRoundLocked() {
	e.phase = PhaseIdle
	e.roundStartAtServerTs = 0
	e.roundDurationSec = 0
	e.clipDurationSec = 0
	e.pausedOffsetSeconds = nil
	e.buzzDeadlineServerTs = nil
	e.lastPauseAtServerTs = 0
	e.roundEndAtServerTs = 0
	e.buzzOwnerID = ""
	e.roundResult = nil
	e.roundOptions = nil
	e.guessCap = 0
	e.requireBuzz = false
	e.ledger = NewLedger()
}

// GuessOptions returns the pickable labels for the current round: the
// server-provided options when present, otherwise labels derived from the
// catalog tracks, always minus options already guessed wrong this round.
// Re-fetching the catalog never resurrects an excluded option.
func (e *Engine) GuessOptions(tracks []catalog.Track) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var labels []string
	if len(e.roundOptions) > 0 {
		labels = e.roundOptions
	} else if e.lobby != nil {
		for _, track := range tracks {
			labels = append(labels, FormatGuessLabel(track, e.lobby.Settings.Mode, e.lobby.Settings.Library))
		}
	}

	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		key := NormalizeGuess(label)
		if key == "" || e.ledger.IsOptionExcluded(label) {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, label)
	}
	return out
}

// SubmitGuess sends a guess if the eligibility gate allows it.
func (e *Engine) SubmitGuess(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !e.canGuess() {
		return fmt.Errorf("not eligible to guess")
	}
	return e.sender.Send(protocol.TypeGuess, protocol.GuessPayload{GuessText: text})
}

// Buzz claims the right to answer.
func (e *Engine) Buzz() error {
	if !e.canBuzz() {
		return fmt.Errorf("not eligible to buzz")
	}
	return e.sender.Send(protocol.TypeBuzz, nil)
}

// StartGame asks the server to begin. Host only; the server enforces it.
func (e *Engine) StartGame() error {
	return e.sender.Send(protocol.TypeStartGame, struct{}{})
}

// RequestSkip votes to skip the current round.
func (e *Engine) RequestSkip() error {
	return e.sender.Send(protocol.TypeSkipRequest, struct{}{})
}

// RequestRematch asks for a rematch during the dissolve countdown.
func (e *Engine) RequestRematch() error {
	return e.sender.Send(protocol.TypeRematch, struct{}{})
}

// AckFinalResults tells the server the final leaderboard was shown.
func (e *Engine) AckFinalResults() error {
	return e.sender.Send(protocol.TypeFinalResultsShown, struct{}{})
}

// UpdateSettings pushes new lobby settings. They apply to future rounds;
// the current round keeps the knobs captured at its start.
func (e *Engine) UpdateSettings(settings protocol.LobbySettings) error {
	return e.sender.Send(protocol.TypeUpdateSettings, protocol.UpdateSettingsPayload{Settings: settings})
}

func (e *Engine) canGuess() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canGuessLocked()
}

func (e *Engine) canBuzz() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canBuzzLocked()
}

// canGuessLocked is the eligibility gate: a pure function of current state.
func (e *Engine) canGuessLocked() bool {
	if e.phase != PhasePlaying && e.phase != PhasePaused {
		return false
	}
	if e.lockedForRoundLocked(e.playerID) {
		return false
	}
	if e.guessCap > 0 && e.ledger.GuessCount(e.playerID) >= e.guessCap {
		return false
	}
	if e.requireBuzz && e.buzzOwnerID != e.playerID {
		return false
	}
	return true
}

func (e *Engine) canBuzzLocked() bool {
	return e.requireBuzz &&
		e.phase == PhasePlaying &&
		e.buzzOwnerID == "" &&
		!e.lockedForRoundLocked(e.playerID)
}

func (e *Engine) lockedForRoundLocked(playerID string) bool {
	if e.lobby == nil {
		return false
	}
	for _, p := range e.lobby.Players {
		if p.ID == playerID {
			return p.LockedForRound
		}
	}
	return false
}

func (e *Engine) playerNameLocked(playerID string) string {
	if e.lobby != nil {
		for _, p := range e.lobby.Players {
			if p.ID == playerID {
				return p.Username
			}
		}
	}
	return "someone"
}

// Snapshot is the full derived view of the engine at one instant. Every
// countdown is recomputed from a server-anchored deadline, so values stay
// correct no matter how many ticks fired or were missed.
type Snapshot struct {
	Phase      Phase
	LobbyPhase protocol.LobbyPhase
	Lobby      *protocol.LobbySnapshot
	PlayerID   string
	IsHost     bool

	ElapsedSeconds  float64
	ProgressPercent float64
	RoundDuration   float64

	BuzzOwnerID           string
	BuzzCountdownSec      *float64
	NextRoundCountdownSec *float64
	DissolveCountdownSec  *float64

	CanBuzz  bool
	CanGuess bool

	RemainingGuesses int
	RoundResult      *protocol.RoundEndPayload

	SortedPlayers []protocol.Player
	ServerNowMs   int64
}

// Snapshot computes the current derived view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	nowMs := e.sclock.ServerNowMs()

	snap := Snapshot{
		Phase:            e.phase,
		PlayerID:         e.playerID,
		BuzzOwnerID:      e.buzzOwnerID,
		RoundDuration:    e.roundDurationSec,
		RoundResult:      e.roundResult,
		CanBuzz:          e.canBuzzLocked(),
		CanGuess:         e.canGuessLocked(),
		RemainingGuesses: e.ledger.RemainingGuesses(e.playerID, e.guessCap),
		ServerNowMs:      nowMs,
	}

	if e.lobby != nil {
		e.sortPlayersInto(&snap)
	}

	snap.ElapsedSeconds = e.elapsedLocked(nowMs)
	snap.ProgressPercent = progressPercent(snap.ElapsedSeconds, e.roundDurationSec)

	if e.phase == PhasePaused && e.buzzDeadlineServerTs != nil {
		snap.BuzzCountdownSec = remainingSec(*e.buzzDeadlineServerTs, nowMs)
	}
	if e.phase == PhaseEnded && e.roundEndAtServerTs != 0 &&
		e.lobby != nil && e.lobby.State == protocol.LobbyInGame {
		deadline := e.roundEndAtServerTs + e.cfg.NextRoundDelay.Milliseconds()
		snap.NextRoundCountdownSec = remainingSec(deadline, nowMs)
	}
	if e.dissolveAtServerTs != 0 {
		snap.DissolveCountdownSec = remainingSec(e.dissolveAtServerTs, nowMs)
	}

	return snap
}

func (e *Engine) sortPlayersInto(snap *Snapshot) {
	lobby := *e.lobby
	snap.Lobby = &lobby
	snap.LobbyPhase = lobby.State
	snap.IsHost = lobby.HostID == e.playerID && e.playerID != ""

	players := make([]protocol.Player, len(lobby.Players))
	copy(players, lobby.Players)
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Score > players[j].Score
	})
	snap.SortedPlayers = players
}

// elapsedLocked applies the mutual-exclusion invariant: frozen at the
// paused offset while paused, otherwise derived from the clock. Never both.
func (e *Engine) elapsedLocked(nowMs int64) float64 {
	if e.roundStartAtServerTs == 0 || e.roundDurationSec == 0 {
		return 0
	}
	if e.pausedOffsetSeconds != nil {
		return min(e.roundDurationSec, *e.pausedOffsetSeconds)
	}
	elapsed := float64(nowMs-e.roundStartAtServerTs) / 1000
	if elapsed < 0 {
		elapsed = 0
	}
	return min(e.roundDurationSec, elapsed)
}

func progressPercent(elapsed, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	pct := 100 * elapsed / duration
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// remainingSec derives a countdown from a fixed server-anchored deadline.
func remainingSec(deadlineServerTs, nowMs int64) *float64 {
	remaining := float64(deadlineServerTs-nowMs) / 1000
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
