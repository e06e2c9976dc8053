// ABOUTME: Schedules local audio playback against the server's timeline
// ABOUTME: Converts server timestamps plus clock offset into deferred actions
package playback

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Task names used with the deferred-task scheduler.
const (
	taskPlay = "play"
	taskStop = "stop"
)

// Scheduler makes local playback track a server-declared timeline. All
// deferred actions are named and cancellable, so superseding a pending
// play is a single cancel-then-schedule.
type Scheduler struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	tasks   *taskScheduler
	out     Output
	baseURL string

	clipURL      string
	clipDuration float64
	loadGen      int

	// loadMu serializes the actual output loads so a slow fetch can never
	// bind over a clip that superseded it.
	loadMu sync.Mutex
}

// NewScheduler creates a playback scheduler on top of the given output.
// baseURL resolves relative clip paths when the app is served from a
// sub-path; it may be empty.
func NewScheduler(clock clockwork.Clock, out Output, baseURL string) *Scheduler {
	return &Scheduler{
		clock:   clock,
		tasks:   newTaskScheduler(clock),
		out:     out,
		baseURL: baseURL,
	}
}

// LoadClip cancels any pending scheduled action and binds a new clip. An
// empty URL signals "audio unavailable" and is not an error. The fetch and
// decode run off the caller's goroutine: a slow clip must never stall round
// events, so the round simply plays without audio until the load finishes.
func (s *Scheduler) LoadClip(clipURL string, durationSeconds float64) {
	s.tasks.CancelAll()

	resolved := resolveClipURL(s.baseURL, clipURL)

	s.mu.Lock()
	s.clipURL = resolved
	s.clipDuration = durationSeconds
	s.loadGen++
	gen := s.loadGen
	s.mu.Unlock()

	go func() {
		s.loadMu.Lock()
		defer s.loadMu.Unlock()

		s.mu.Lock()
		stale := gen != s.loadGen
		s.mu.Unlock()
		if stale {
			log.Debug().Str("url", resolved).Msg("clip superseded before load")
			return
		}

		if err := s.out.Load(resolved, durationSeconds); err != nil {
			// Playback is best-effort; the round proceeds without audio.
			log.Warn().Err(err).Str("url", resolved).Msg("clip load failed")
		}
	}()
}

// SchedulePlay defers playback so it starts at startAtServerTs on the
// server's clock, then seeks to seekToSeconds. A pending play is replaced.
func (s *Scheduler) SchedulePlay(startAtServerTs, clockOffsetMs int64, seekToSeconds float64) {
	clientStart := startAtServerTs - clockOffsetMs
	delay := time.Duration(clientStart-s.clock.Now().UnixMilli()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	s.tasks.Schedule(taskPlay, delay, func() {
		s.out.PlayFrom(seekToSeconds)
	})
}

// PauseAt cancels any pending play and pauses at the server-declared offset.
func (s *Scheduler) PauseAt(offsetSeconds float64) {
	s.tasks.Cancel(taskPlay)
	s.out.PauseAt(offsetSeconds)
}

// Stop cancels everything pending and resets position to zero.
func (s *Scheduler) Stop() {
	s.tasks.CancelAll()
	s.out.Stop()
}

// Replay restarts the clip from zero immediately, without a server-declared
// start time. Used for the post-round reveal.
func (s *Scheduler) Replay() {
	s.tasks.Cancel(taskPlay)
	s.out.PlayFrom(0)

	s.mu.Lock()
	duration := s.clipDuration
	s.mu.Unlock()
	if duration > 0 {
		s.tasks.Schedule(taskStop, time.Duration(duration*float64(time.Second)), func() {
			s.out.Stop()
		})
	}
}

// SetVolume forwards to the output.
func (s *Scheduler) SetVolume(volume int) { s.out.SetVolume(volume) }

// SetMuted forwards to the output.
func (s *Scheduler) SetMuted(muted bool) { s.out.SetMuted(muted) }

// Close stops everything and releases the output.
func (s *Scheduler) Close() {
	s.tasks.CancelAll()
	s.out.Close()
}

// resolveClipURL turns a server-relative clip path into an absolute URL.
// Absolute URLs pass through untouched; unparseable input is returned as-is
// so a broken URL fails at fetch time, not here.
func resolveClipURL(baseURL, clipURL string) string {
	if clipURL == "" {
		return ""
	}
	if strings.Contains(clipURL, "://") || baseURL == "" {
		return clipURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return clipURL
	}
	ref, err := url.Parse(clipURL)
	if err != nil {
		return clipURL
	}
	if strings.HasPrefix(clipURL, "/") {
		// Keep the sub-path the app is served from.
		basePath := strings.TrimSuffix(base.Path, "/")
		ref.Path = basePath + ref.Path
		ref.Scheme = base.Scheme
		ref.Host = base.Host
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
