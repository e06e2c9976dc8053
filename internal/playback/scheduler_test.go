// ABOUTME: Tests for the playback scheduler and deferred task handling
// ABOUTME: Uses a fake clock and a recording output, no real audio device
package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type call struct {
	name    string
	seconds float64
}

type fakeOutput struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeOutput) Load(url string, durationSeconds float64) error {
	f.record("load", durationSeconds)
	return nil
}
func (f *fakeOutput) PlayFrom(seconds float64) { f.record("play", seconds) }
func (f *fakeOutput) PauseAt(seconds float64)  { f.record("pause", seconds) }
func (f *fakeOutput) Stop()                    { f.record("stop", 0) }
func (f *fakeOutput) SetVolume(int)            {}
func (f *fakeOutput) SetMuted(bool)            {}
func (f *fakeOutput) Close()                   {}

func (f *fakeOutput) record(name string, seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name, seconds})
}

func (f *fakeOutput) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]call, len(f.calls))
	copy(out, f.calls)
	return out
}

func waitForCalls(t *testing.T, out *fakeOutput, want int) []call {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := out.snapshot(); len(calls) >= want {
			return calls
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d calls, have %v", want, out.snapshot())
	return nil
}

func TestSchedulePlayDefersUntilServerTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	out := &fakeOutput{}
	s := NewScheduler(clock, out, "")

	// Server clock runs 500ms ahead; start 1s in the server's future.
	offset := int64(500)
	startAt := clock.Now().UnixMilli() + offset + 1000
	s.SchedulePlay(startAt, offset, 3.5)

	// Nothing fires before the deadline.
	clock.Advance(900 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if calls := out.snapshot(); len(calls) != 0 {
		t.Fatalf("play fired early: %v", calls)
	}

	clock.Advance(100 * time.Millisecond)
	calls := waitForCalls(t, out, 1)
	if calls[0].name != "play" || calls[0].seconds != 3.5 {
		t.Errorf("expected play at 3.5s, got %v", calls[0])
	}
}

func TestSchedulePlayInPastFiresImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	out := &fakeOutput{}
	s := NewScheduler(clock, out, "")

	s.SchedulePlay(clock.Now().UnixMilli()-5000, 0, 0)
	clock.Advance(time.Millisecond)
	calls := waitForCalls(t, out, 1)
	if calls[0].name != "play" {
		t.Errorf("expected immediate play, got %v", calls[0])
	}
}

func TestReschedulingCancelsPendingPlay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	out := &fakeOutput{}
	s := NewScheduler(clock, out, "")

	now := clock.Now().UnixMilli()
	s.SchedulePlay(now+1000, 0, 0)
	s.SchedulePlay(now+2000, 0, 7)

	clock.Advance(1 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if calls := out.snapshot(); len(calls) != 0 {
		t.Fatalf("superseded play still fired: %v", calls)
	}

	clock.Advance(1 * time.Second)
	calls := waitForCalls(t, out, 1)
	if len(calls) != 1 || calls[0].seconds != 7 {
		t.Errorf("expected one play at 7s, got %v", calls)
	}
}

func TestPauseAtCancelsPendingPlay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	out := &fakeOutput{}
	s := NewScheduler(clock, out, "")

	s.SchedulePlay(clock.Now().UnixMilli()+1000, 0, 0)
	s.PauseAt(12)

	calls := waitForCalls(t, out, 1)
	if calls[0].name != "pause" || calls[0].seconds != 12 {
		t.Errorf("expected pause at 12s, got %v", calls[0])
	}

	clock.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	for _, c := range out.snapshot() {
		if c.name == "play" {
			t.Errorf("cancelled play still fired: %v", out.snapshot())
		}
	}
}

func TestLoadClipResetsPendingActions(t *testing.T) {
	clock := clockwork.NewFakeClock()
	out := &fakeOutput{}
	s := NewScheduler(clock, out, "")

	s.SchedulePlay(clock.Now().UnixMilli()+1000, 0, 0)
	s.LoadClip("http://example.com/clip.mp3", 20)

	calls := waitForCalls(t, out, 1)
	if calls[0].name != "load" {
		t.Errorf("expected load, got %v", calls)
	}

	clock.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	for _, c := range out.snapshot() {
		if c.name == "play" {
			t.Errorf("pending play survived the clip change: %v", out.snapshot())
		}
	}
}

func TestReplayStartsFromZeroAndStopsAfterClip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	out := &fakeOutput{}
	s := NewScheduler(clock, out, "")

	s.LoadClip("", 10)
	waitForCalls(t, out, 1)
	s.Replay()

	calls := waitForCalls(t, out, 2)
	if calls[1].name != "play" || calls[1].seconds != 0 {
		t.Errorf("expected replay from zero, got %v", calls[1])
	}

	clock.Advance(10 * time.Second)
	calls = waitForCalls(t, out, 3)
	if calls[2].name != "stop" {
		t.Errorf("expected stop after clip duration, got %v", calls[2])
	}
}

func TestTaskSchedulerReplaceAndCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ts := newTaskScheduler(clock)

	var mu sync.Mutex
	fired := []string{}
	mark := func(name string) func() {
		return func() {
			mu.Lock()
			fired = append(fired, name)
			mu.Unlock()
		}
	}

	ts.Schedule("play", time.Second, mark("first"))
	ts.Schedule("play", time.Second, mark("second"))
	ts.Schedule("stop", 2*time.Second, mark("stop"))
	ts.Cancel("stop")

	clock.Advance(3 * time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(fired)
		mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != "second" {
		t.Errorf("expected only the replacing task to fire, got %v", fired)
	}
}

func TestCancelWinsAgainstFiredTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ts := newTaskScheduler(clock)

	var mu sync.Mutex
	fired := 0

	for i := 0; i < 200; i++ {
		ts.Schedule("play", 10*time.Millisecond, func() {
			mu.Lock()
			fired++
			mu.Unlock()
		})

		// Pin the interleaving: the timer fires while the scheduler lock
		// is held, and the task is cancelled before the worker can take
		// that lock. The callback must never run after the cancel.
		ts.mu.Lock()
		clock.Advance(10 * time.Millisecond)
		ts.cancelLocked("play")
		ts.mu.Unlock()
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	n := fired
	mu.Unlock()
	if n != 0 {
		t.Errorf("cancelled task fired %d times", n)
	}

	// The scheduler stays usable afterwards.
	done := make(chan struct{})
	ts.Schedule("play", 10*time.Millisecond, func() { close(done) })
	clock.Advance(10 * time.Millisecond)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fresh task never fired")
	}
}

type blockingOutput struct {
	fakeOutput
	release chan struct{}
}

func (b *blockingOutput) Load(url string, durationSeconds float64) error {
	<-b.release
	return b.fakeOutput.Load(url, durationSeconds)
}

func TestLoadClipDoesNotBlockOnSlowFetch(t *testing.T) {
	clock := clockwork.NewFakeClock()
	out := &blockingOutput{release: make(chan struct{})}
	s := NewScheduler(clock, out, "")

	done := make(chan struct{})
	go func() {
		s.LoadClip("http://example.com/slow.mp3", 20)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("LoadClip blocked on the clip fetch")
	}

	// Round actions keep flowing while the fetch is in flight.
	s.SchedulePlay(clock.Now().UnixMilli(), 0, 0)
	clock.Advance(time.Millisecond)
	calls := waitForCalls(t, &out.fakeOutput, 1)
	if calls[0].name != "play" {
		t.Errorf("expected play while load pending, got %v", calls)
	}

	close(out.release)
	waitForCalls(t, &out.fakeOutput, 2)
}

func TestSupersededLoadNeverBinds(t *testing.T) {
	clock := clockwork.NewFakeClock()
	out := &fakeOutput{}
	s := NewScheduler(clock, out, "")

	// Hold the load gate so all three fetches queue up before any of them
	// can bind; only the newest may survive the backlog.
	s.loadMu.Lock()
	s.LoadClip("http://example.com/round1.mp3", 20)
	s.LoadClip("http://example.com/round2.mp3", 21)
	s.LoadClip("http://example.com/round3.mp3", 22)
	s.loadMu.Unlock()

	calls := waitForCalls(t, out, 1)
	time.Sleep(20 * time.Millisecond)
	calls = out.snapshot()
	if len(calls) != 1 || calls[0].seconds != 22 {
		t.Errorf("expected only the newest clip to load, got %v", calls)
	}
}

func TestResolveClipURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		clip string
		want string
	}{
		{"empty", "http://host/app", "", ""},
		{"absolute passthrough", "http://host/app", "https://cdn.example.com/c.mp3", "https://cdn.example.com/c.mp3"},
		{"root-relative keeps sub-path", "http://host/app", "/clips/c.mp3", "http://host/app/clips/c.mp3"},
		{"root-relative no sub-path", "http://host", "/clips/c.mp3", "http://host/clips/c.mp3"},
		{"no base", "", "/clips/c.mp3", "/clips/c.mp3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveClipURL(tt.base, tt.clip); got != tt.want {
				t.Errorf("resolveClipURL(%q, %q) = %q, want %q", tt.base, tt.clip, got, tt.want)
			}
		})
	}
}
