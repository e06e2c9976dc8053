// ABOUTME: Bounded feed of short-lived human-readable notices
// ABOUTME: Keeps the most recent few and expires them on a timer
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Kind classifies a notice for display.
type Kind string

const (
	KindInfo    Kind = "info"
	KindError   Kind = "error"
	KindSuccess Kind = "success"
)

// Notice is one transient message.
type Notice struct {
	ID      string
	Message string
	Kind    Kind
}

const (
	defaultKeep = 4
	defaultTTL  = 3 * time.Second
)

// Feed holds the last few notices. Each notice expires on its own timer;
// pushing beyond the cap drops the oldest.
type Feed struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	items    []Notice
	keep     int
	ttl      time.Duration
	onChange func([]Notice)
}

// NewFeed creates a feed. onChange, if non-nil, is invoked with a copy of
// the items after every mutation.
func NewFeed(clock clockwork.Clock, onChange func([]Notice)) *Feed {
	return &Feed{
		clock:    clock,
		keep:     defaultKeep,
		ttl:      defaultTTL,
		onChange: onChange,
	}
}

// Push adds an info notice.
func (f *Feed) Push(message string) {
	f.PushKind(message, KindInfo)
}

// PushKind adds a notice of the given kind.
func (f *Feed) PushKind(message string, kind Kind) {
	id := uuid.New().String()

	f.mu.Lock()
	f.items = append(f.items, Notice{ID: id, Message: message, Kind: kind})
	if len(f.items) > f.keep {
		f.items = f.items[len(f.items)-f.keep:]
	}
	f.mu.Unlock()
	f.changed()

	f.clock.AfterFunc(f.ttl, func() { f.Dismiss(id) })
}

// Dismiss removes a notice by id.
func (f *Feed) Dismiss(id string) {
	f.mu.Lock()
	kept := f.items[:0]
	removed := false
	for _, n := range f.items {
		if n.ID == id {
			removed = true
			continue
		}
		kept = append(kept, n)
	}
	f.items = kept
	f.mu.Unlock()
	if removed {
		f.changed()
	}
}

// Items returns a copy of the current notices, oldest first.
func (f *Feed) Items() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notice, len(f.items))
	copy(out, f.items)
	return out
}

func (f *Feed) changed() {
	if f.onChange != nil {
		f.onChange(f.Items())
	}
}
