// ABOUTME: Guessong wire protocol message type definitions
// ABOUTME: Defines the JSON envelope and payload structs for all event types
package protocol

import "encoding/json"

// Message is the top-level envelope for every frame, in both directions.
// Inbound payloads stay raw until the event type is known.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope wraps an outbound payload for serialization.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Control types, consumed inside the transport and never surfaced.
const (
	TypePing = "PING"
	TypePong = "PONG"
)

// Server-pushed application event types.
const (
	TypeLobbyUpdate    = "LOBBY_UPDATE"
	TypeRoundStart     = "ROUND_START"
	TypePlay           = "PLAY"
	TypePause          = "PAUSE"
	TypeBuzzAccepted   = "BUZZ_ACCEPTED"
	TypeGuessResult    = "GUESS_RESULT"
	TypeRoundEnd       = "ROUND_END"
	TypeBuzzTimeout    = "BUZZ_TIMEOUT"
	TypeEarlyBuzz      = "EARLY_BUZZ"
	TypeError          = "ERROR"
	TypeLobbyDissolved = "LOBBY_DISSOLVED"
)

// Client-produced event types.
const (
	TypeJoinLobby         = "JOIN_LOBBY"
	TypeStartGame         = "START_GAME"
	TypeBuzz              = "BUZZ"
	TypeGuess             = "GUESS"
	TypeSkipRequest       = "SKIP_REQUEST"
	TypeUpdateSettings    = "UPDATE_SETTINGS"
	TypeRematch           = "REMATCH"
	TypeFinalResultsShown = "FINAL_RESULTS_SHOWN"
)

// PingPayload carries the client transmit timestamp in Unix milliseconds.
type PingPayload struct {
	Ts int64 `json:"ts"`
}

// PongPayload echoes the client timestamp next to the server clock reading.
type PongPayload struct {
	ClientTs int64 `json:"clientTs"`
	ServerTs int64 `json:"serverTs"`
}

// LobbyPhase is the coarse server-owned lobby state.
type LobbyPhase string

const (
	LobbyWaiting  LobbyPhase = "WAITING"
	LobbyInGame   LobbyPhase = "IN_GAME"
	LobbyFinished LobbyPhase = "FINISHED"
)

// Player is one lobby member as reported by the server.
type Player struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Score          int    `json:"score"`
	LockedForRound bool   `json:"lockedForRound"`
	IsHost         bool   `json:"isHost,omitempty"`
}

// LobbySettings are the host-configured rules for a lobby.
type LobbySettings struct {
	Mode              string `json:"mode"`
	Library           string `json:"library"`
	RoundDuration     int    `json:"roundDuration"`
	MaxPlayers        int    `json:"maxPlayers"`
	TotalRounds       int    `json:"totalRounds"`
	MaxGuesses        int    `json:"maxGuesses,omitempty"`
	LockoutSeconds    int    `json:"lockoutSeconds,omitempty"`
	ResponseWindowSec int    `json:"responseWindowSec,omitempty"`
}

// RoundInfo is the server's view of the in-flight round, carried on snapshots.
type RoundInfo struct {
	Status          string  `json:"status"`
	ClipDuration    float64 `json:"clipDuration"`
	StartAtServerTs int64   `json:"startAtServerTs"`
}

// LobbySnapshot is the full lobby state pushed on every LOBBY_UPDATE.
type LobbySnapshot struct {
	ID           string        `json:"id"`
	HostID       string        `json:"hostId"`
	Settings     LobbySettings `json:"settings"`
	CurrentRound int           `json:"currentRound"`
	Players      []Player      `json:"players"`
	State        LobbyPhase    `json:"state"`
	Round        *RoundInfo    `json:"round"`
}

// RoundStartPayload announces a new round and its clip.
type RoundStartPayload struct {
	ClipURL         string   `json:"clipUrl"`
	ClipDuration    float64  `json:"clipDuration"`
	StartAtServerTs int64    `json:"startAtServerTs"`
	Mode            string   `json:"mode"`
	GuessOptions    []string `json:"guessOptions,omitempty"`
}

// PlayPayload schedules (or resumes) playback at a server timestamp.
type PlayPayload struct {
	StartAtServerTs int64   `json:"startAtServerTs"`
	SeekToSeconds   float64 `json:"seekToSeconds,omitempty"`
}

// PausePayload freezes the round at an offset, optionally opening a
// response window for the buzzing player.
type PausePayload struct {
	OffsetSeconds            float64 `json:"offsetSeconds"`
	ByPlayerID               string  `json:"byPlayerId,omitempty"`
	ResponseDeadlineServerTs *int64  `json:"responseDeadlineServerTs,omitempty"`
}

// BuzzAcceptedPayload names the player who won the buzz race.
type BuzzAcceptedPayload struct {
	PlayerID      string  `json:"playerId"`
	OffsetSeconds float64 `json:"offsetSeconds"`
}

// GuessResultPayload reports the outcome of a submitted guess.
type GuessResultPayload struct {
	PlayerID  string `json:"playerId"`
	Correct   bool   `json:"correct"`
	GuessText string `json:"guessText,omitempty"`
}

// TrackMeta identifies the revealed track after a round.
type TrackMeta struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// RoundEndPayload closes a round with its outcome and leaderboard.
type RoundEndPayload struct {
	Reason            string    `json:"reason"` // WIN, TIMEOUT or SKIP
	WinnerID          string    `json:"winnerId,omitempty"`
	PointsAwarded     int       `json:"pointsAwarded"`
	RevealedTrackMeta TrackMeta `json:"revealedTrackMeta"`
	Leaderboard       []Player  `json:"leaderboard,omitempty"`
}

// BuzzTimeoutPayload reports a buzz-owner who let the response window lapse.
type BuzzTimeoutPayload struct {
	PlayerID string `json:"playerId"`
}

// EarlyBuzzPayload reports a buzz pressed before the round allowed it.
type EarlyBuzzPayload struct {
	PlayerID string `json:"playerId"`
}

// ErrorPayload is a server-reported application error.
type ErrorPayload struct {
	Message string `json:"message"`
}

// JoinLobbyPayload binds this socket to a lobby seat.
type JoinLobbyPayload struct {
	LobbyID  string `json:"lobbyId"`
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
}

// GuessPayload submits a guess for the current round.
type GuessPayload struct {
	GuessText string `json:"guessText"`
}

// UpdateSettingsPayload replaces the lobby settings for future rounds.
type UpdateSettingsPayload struct {
	Settings LobbySettings `json:"settings"`
}
