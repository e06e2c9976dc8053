// ABOUTME: Named cancellable deferred tasks for playback timing
// ABOUTME: Superseding a task is a single cancel-then-schedule call
package playback

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// taskScheduler owns one-shot timers keyed by purpose ("play", "stop").
// Scheduling a name that is already pending replaces it, so a deferred
// action can never fire twice.
type taskScheduler struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	active map[string]chan struct{}
}

func newTaskScheduler(clock clockwork.Clock) *taskScheduler {
	return &taskScheduler{
		clock:  clock,
		active: make(map[string]chan struct{}),
	}
}

// Schedule defers fn by d under the given name, replacing any pending task
// with the same name. A non-positive delay still goes through the timer so
// cancellation semantics stay uniform.
func (ts *taskScheduler) Schedule(name string, d time.Duration, fn func()) {
	ts.mu.Lock()
	ts.cancelLocked(name)
	cancel := make(chan struct{})
	ts.active[name] = cancel
	ts.mu.Unlock()

	if d < 0 {
		d = 0
	}
	timer := ts.clock.NewTimer(d)

	go func() {
		select {
		case <-timer.Chan():
			// The timer may fire while a Cancel or replacement is in
			// flight; only the still-registered owner runs.
			ts.mu.Lock()
			owned := ts.active[name] == cancel
			if owned {
				delete(ts.active, name)
			}
			ts.mu.Unlock()
			if owned {
				fn()
			}
		case <-cancel:
			stopAndDrainTimer(timer)
		}
	}()

	log.Debug().Str("task", name).Dur("delay", d).Msg("scheduled deferred task")
}

// Cancel drops the pending task with the given name, if any.
func (ts *taskScheduler) Cancel(name string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.cancelLocked(name)
}

// CancelAll drops every pending task.
func (ts *taskScheduler) CancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for name := range ts.active {
		ts.cancelLocked(name)
	}
}

func (ts *taskScheduler) cancelLocked(name string) {
	if cancel, ok := ts.active[name]; ok {
		close(cancel)
		delete(ts.active, name)
	}
}

// stopAndDrainTimer stops a timer and drains its channel so the waiting
// goroutine can never observe a late fire.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
