// ABOUTME: Tests for server clock offset estimation
// ABOUTME: Verifies the offset is a pure function of the latest probe reply
package transport

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestOffsetFromSingleReply(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cs := NewClockSync(clock)

	now := clock.Now().UnixMilli()
	clientTs := now - 40 // probe sent 40ms ago
	serverTs := now + 100

	cs.ProcessPong(clientTs, serverTs)

	// rtt = now - clientTs = 40; offset = serverTs + rtt/2 - now = 120
	if got := cs.RTTMs(); got != 40 {
		t.Errorf("expected rtt 40ms, got %d", got)
	}
	if got := cs.OffsetMs(); got != 120 {
		t.Errorf("expected offset 120ms, got %d", got)
	}
}

func TestOffsetReplacedNotSmoothed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cs := NewClockSync(clock)

	now := clock.Now().UnixMilli()
	cs.ProcessPong(now-10, now+500)
	first := cs.OffsetMs()

	// A second, wildly different reply fully replaces the estimate.
	clock.Advance(5 * time.Second)
	now = clock.Now().UnixMilli()
	cs.ProcessPong(now-20, now-300)

	if cs.OffsetMs() == first {
		t.Fatal("expected offset to change after new reply")
	}
	// offset = (now-300) + 20/2 - now = -290
	if got := cs.OffsetMs(); got != -290 {
		t.Errorf("expected offset -290ms from latest reply alone, got %d", got)
	}
}

func TestServerNowAppliesOffset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cs := NewClockSync(clock)

	now := clock.Now().UnixMilli()
	cs.ProcessPong(now, now+1000) // zero rtt, offset exactly +1000

	want := clock.Now().UnixMilli() + 1000
	if got := cs.ServerNowMs(); got != want {
		t.Errorf("expected server now %d, got %d", want, got)
	}

	// ServerNow tracks the local clock; advancing local time advances it.
	clock.Advance(2 * time.Second)
	want += 2000
	if got := cs.ServerNowMs(); got != want {
		t.Errorf("expected server now %d after advance, got %d", want, got)
	}
}

func TestSyncedAndStaleness(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cs := NewClockSync(clock)

	if cs.Synced() {
		t.Error("expected not synced before any reply")
	}
	if cs.SinceLastReply() != 0 {
		t.Error("expected zero staleness before any reply")
	}

	now := clock.Now().UnixMilli()
	cs.ProcessPong(now, now)
	if !cs.Synced() {
		t.Error("expected synced after reply")
	}

	clock.Advance(7 * time.Second)
	if got := cs.SinceLastReply(); got != 7*time.Second {
		t.Errorf("expected staleness 7s, got %v", got)
	}
}
