// ABOUTME: TUI initialization and player action channels
// ABOUTME: Wraps the bubbletea program for the terminal client
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeChange carries a volume/mute adjustment from the TUI.
type VolumeChange struct {
	Volume int
	Muted  bool
}

// Controls carries player actions out of the TUI event loop. Sends are
// non-blocking; a slow consumer drops actions rather than freezing input.
type Controls struct {
	Buzz    chan struct{}
	Guess   chan string
	Start   chan struct{}
	Skip    chan struct{}
	Rematch chan struct{}
	Volume  chan VolumeChange
	Quit    chan struct{}
}

// NewControls creates the action channels.
func NewControls() *Controls {
	return &Controls{
		Buzz:    make(chan struct{}, 4),
		Guess:   make(chan string, 4),
		Start:   make(chan struct{}, 4),
		Skip:    make(chan struct{}, 4),
		Rematch: make(chan struct{}, 4),
		Volume:  make(chan VolumeChange, 10),
		Quit:    make(chan struct{}, 1),
	}
}

func (c *Controls) buzz()    { nonBlocking(c.Buzz) }
func (c *Controls) start()   { nonBlocking(c.Start) }
func (c *Controls) skip()    { nonBlocking(c.Skip) }
func (c *Controls) rematch() { nonBlocking(c.Rematch) }

func (c *Controls) guess(text string) {
	select {
	case c.Guess <- text:
	default:
	}
}

func (c *Controls) volume(volume int, muted bool) {
	select {
	case c.Volume <- VolumeChange{Volume: volume, Muted: muted}:
	default:
	}
}

func (c *Controls) quit() {
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

func nonBlocking(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// NewModel creates the initial TUI model with the stored volume state.
func NewModel(controls *Controls, volume int, muted bool) Model {
	return Model{
		volume:   clampVolume(volume),
		muted:    muted,
		controls: controls,
	}
}

// Run starts the TUI program.
func Run(controls *Controls, volume int, muted bool) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(controls, volume, muted), tea.WithAltScreen())
	return p, nil
}
