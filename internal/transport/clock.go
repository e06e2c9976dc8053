// ABOUTME: Server clock offset estimation from probe replies
// ABOUTME: Each reply fully replaces the estimate, no smoothing or averaging
package transport

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ClockSync tracks the server-minus-local clock offset. The offset is
// recomputed from scratch on every probe reply: a single delayed reply can
// transiently skew derived timers, which is accepted in exchange for a
// trivially predictable estimate.
type ClockSync struct {
	mu        sync.RWMutex
	clock     clockwork.Clock
	offsetMs  int64
	rttMs     int64
	lastReply time.Time
	synced    bool
}

// NewClockSync creates a clock synchronizer reading local time from clock.
func NewClockSync(clock clockwork.Clock) *ClockSync {
	return &ClockSync{clock: clock}
}

// ProcessPong ingests a probe reply. clientTs is the echoed client transmit
// time and serverTs the server clock reading, both Unix milliseconds.
func (cs *ClockSync) ProcessPong(clientTs, serverTs int64) {
	now := cs.clock.Now().UnixMilli()
	rtt := now - clientTs
	offset := serverTs + rtt/2 - now

	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.rttMs = rtt
	cs.offsetMs = offset
	cs.lastReply = cs.clock.Now()
	cs.synced = true

	log.Debug().
		Int64("offset_ms", offset).
		Int64("rtt_ms", rtt).
		Msg("clock probe reply")
}

// OffsetMs returns the current server-minus-local offset in milliseconds.
func (cs *ClockSync) OffsetMs() int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.offsetMs
}

// RTTMs returns the last measured round-trip time. Display only.
func (cs *ClockSync) RTTMs() int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.rttMs
}

// ServerNow returns the estimated current server time.
func (cs *ClockSync) ServerNow() time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.clock.Now().Add(time.Duration(cs.offsetMs) * time.Millisecond)
}

// ServerNowMs returns the estimated current server time in Unix milliseconds.
func (cs *ClockSync) ServerNowMs() int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.clock.Now().UnixMilli() + cs.offsetMs
}

// Synced reports whether any probe reply has been processed yet.
func (cs *ClockSync) Synced() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.synced
}

// SinceLastReply reports how stale the estimate is. A hung connection is
// only visible through this value growing, it never flips any state.
func (cs *ClockSync) SinceLastReply() time.Duration {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if !cs.synced {
		return 0
	}
	return cs.clock.Since(cs.lastReply)
}
