// ABOUTME: Bubbletea model for the Guessong terminal client
// ABOUTME: Renders lobby and round state; game logic stays in the engine
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleixFerre/guessong-client/internal/game"
	"github.com/AleixFerre/guessong-client/internal/notify"
	"github.com/AleixFerre/guessong-client/internal/protocol"
	"github.com/AleixFerre/guessong-client/internal/transport"
)

// Model is the TUI state. It is a thin consumer of engine snapshots; no
// game rules live here.
type Model struct {
	conn     transport.State
	offsetMs int64
	rttMs    int64

	snap    game.Snapshot
	notices []notify.Notice

	typing    bool
	guessText string

	volume int
	muted  bool

	width  int
	height int

	controls *Controls
}

// SnapshotMsg delivers a fresh engine snapshot.
type SnapshotMsg game.Snapshot

// ConnMsg delivers connection status for the header.
type ConnMsg struct {
	State    transport.State
	OffsetMs int64
	RTTMs    int64
}

// NoticesMsg delivers the current transient notices.
type NoticesMsg []notify.Notice

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case SnapshotMsg:
		m.snap = game.Snapshot(msg)
	case ConnMsg:
		m.conn = msg.State
		m.offsetMs = msg.OffsetMs
		m.rttMs = msg.RTTMs
	case NoticesMsg:
		m.notices = msg
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.typing {
		return m.handleTypingKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.quit()
		return m, tea.Quit
	case "enter", "g":
		if m.snap.CanGuess {
			m.typing = true
			m.guessText = ""
		}
	case "b":
		m.controls.buzz()
	case "s":
		m.controls.start()
	case "k":
		m.controls.skip()
	case "r":
		m.controls.rematch()
	case "m":
		m.muted = !m.muted
		m.controls.volume(m.volume, m.muted)
	case "up":
		m.volume = clampVolume(m.volume + 5)
		m.controls.volume(m.volume, m.muted)
	case "down":
		m.volume = clampVolume(m.volume - 5)
		m.controls.volume(m.volume, m.muted)
	}
	return m, nil
}

func (m Model) handleTypingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		text := strings.TrimSpace(m.guessText)
		m.typing = false
		m.guessText = ""
		if text != "" {
			m.controls.guess(text)
		}
	case "esc":
		m.typing = false
		m.guessText = ""
	case "backspace":
		if len(m.guessText) > 0 {
			runes := []rune(m.guessText)
			m.guessText = string(runes[:len(runes)-1])
		}
	case "ctrl+c":
		m.controls.quit()
		return m, tea.Quit
	default:
		if msg.Type == tea.KeyRunes || msg.String() == " " {
			m.guessText += string(msg.Runes)
		}
	}
	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := m.renderHeader()
	s += m.renderLobby()
	s += m.renderRound()
	s += m.renderNotices()
	s += m.renderInput()
	s += m.renderHelp()
	return s
}

func (m Model) renderHeader() string {
	connStatus := m.conn.String()
	syncText := "no sync yet"
	if m.rttMs > 0 || m.offsetMs != 0 {
		syncText = fmt.Sprintf("offset %+dms, rtt %dms", m.offsetMs, m.rttMs)
	}

	return fmt.Sprintf(`┌─ Guessong ───────────────────────────────────────────┐
│ Status: %-45s│
│ Clock:  %-45s│
├──────────────────────────────────────────────────────┤
`, connStatus, syncText)
}

func (m Model) renderLobby() string {
	if m.snap.Lobby == nil {
		return "│ Not in a lobby                                       │\n"
	}

	lobby := m.snap.Lobby
	s := fmt.Sprintf("│ Lobby %-8s %-9s round %d/%-2d %-14s│\n",
		lobby.ID, string(lobby.State), lobby.CurrentRound, lobby.Settings.TotalRounds, "")

	for i, p := range m.snap.SortedPlayers {
		if i >= 8 {
			break
		}
		marker := " "
		if p.ID == m.snap.PlayerID {
			marker = ">"
		}
		buzz := ""
		if p.ID == m.snap.BuzzOwnerID {
			buzz = " [buzz]"
		}
		s += fmt.Sprintf("│ %s %-28s %5d pts%-10s│\n", marker, truncate(p.Username, 28), p.Score, buzz)
	}
	return s
}

func (m Model) renderRound() string {
	snap := m.snap
	s := "├──────────────────────────────────────────────────────┤\n"

	switch snap.Phase {
	case game.PhaseIdle:
		if snap.LobbyPhase == protocol.LobbyFinished {
			return s + m.renderFinished()
		}
		s += "│ Waiting for the next round...                        │\n"
	case game.PhasePlaying, game.PhasePaused:
		bar := renderBar(int(snap.ProgressPercent), 100, 30)
		s += fmt.Sprintf("│ [%s] %3.0fs / %-3.0fs %-5s│\n",
			bar, snap.ElapsedSeconds, snap.RoundDuration, "")
		if snap.Phase == game.PhasePaused {
			if snap.BuzzCountdownSec != nil {
				s += fmt.Sprintf("│ Paused - answer within %-4.1fs %-24s│\n", *snap.BuzzCountdownSec, "")
			} else {
				s += "│ Paused                                               │\n"
			}
		}
		if snap.RemainingGuesses >= 0 {
			s += fmt.Sprintf("│ Guesses left: %-39d│\n", snap.RemainingGuesses)
		}
	case game.PhaseEnded:
		s += m.renderResult()
	}
	return s
}

func (m Model) renderResult() string {
	snap := m.snap
	s := ""
	if result := snap.RoundResult; result != nil {
		meta := result.RevealedTrackMeta
		s += fmt.Sprintf("│ Round over (%s): %-36s│\n",
			strings.ToLower(result.Reason), truncate(meta.Artist+" - "+meta.Title, 36))
	}
	if snap.NextRoundCountdownSec != nil {
		s += fmt.Sprintf("│ Next round in %-4.0fs %-33s│\n", *snap.NextRoundCountdownSec, "")
	}
	if snap.DissolveCountdownSec != nil {
		s += fmt.Sprintf("│ Lobby dissolves in %-4.0fs %-28s│\n", *snap.DissolveCountdownSec, "")
	}
	return s
}

func (m Model) renderFinished() string {
	s := "│ Game finished!                                       │\n"
	if m.snap.DissolveCountdownSec != nil {
		s += fmt.Sprintf("│ Lobby dissolves in %-4.0fs (r to rematch) %-12s│\n", *m.snap.DissolveCountdownSec, "")
	}
	return s
}

func (m Model) renderNotices() string {
	if len(m.notices) == 0 {
		return ""
	}
	s := "├──────────────────────────────────────────────────────┤\n"
	for _, n := range m.notices {
		s += fmt.Sprintf("│ * %-51s│\n", truncate(n.Message, 51))
	}
	return s
}

func (m Model) renderInput() string {
	if !m.typing {
		return ""
	}
	return fmt.Sprintf("│ Guess: %-46s│\n", truncate(m.guessText+"_", 46))
}

func (m Model) renderHelp() string {
	actions := []string{}
	if m.snap.CanBuzz {
		actions = append(actions, "b:Buzz")
	}
	if m.snap.CanGuess {
		actions = append(actions, "g:Guess")
	}
	if m.snap.IsHost && m.snap.LobbyPhase == protocol.LobbyWaiting {
		actions = append(actions, "s:Start")
	}
	actions = append(actions, "k:Skip", "r:Rematch", "↑/↓:Vol", "m:Mute", "q:Quit")

	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ %-53s│
└──────────────────────────────────────────────────────┘
`, strings.Join(actions, "  "))
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func renderBar(value, max, width int) string {
	if max <= 0 {
		max = 1
	}
	filled := value * width / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

// truncate shortens by runes, never mid-codepoint.
func truncate(s string, length int) string {
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	if length <= 3 {
		return string(runes[:length])
	}
	return string(runes[:length-3]) + "..."
}
