// ABOUTME: Local audio output for round clips using oto and go-mp3
// ABOUTME: Fetches MP3 clips over HTTP and plays them with volume control
package playback

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
	"github.com/rs/zerolog/log"
)

// Output is the audio device the scheduler drives. Implementations must
// treat every failure as non-fatal: round timing is server-authoritative
// and proceeds whether or not local audio works.
type Output interface {
	// Load binds a new clip. An empty URL means "audio unavailable" and is
	// not an error.
	Load(url string, durationSeconds float64) error
	PlayFrom(seconds float64)
	PauseAt(seconds float64)
	Stop()
	SetVolume(volume int)
	SetMuted(muted bool)
	Close()
}

// go-mp3 always decodes to 16-bit stereo.
const bytesPerFrame = 4

// OtoOutput plays MP3 clips through the system audio device.
type OtoOutput struct {
	mu     sync.Mutex
	client *http.Client
	otoCtx *oto.Context
	player *oto.Player

	sampleRate int
	volume     int
	muted      bool
}

// NewOtoOutput creates an audio output. The oto context is created lazily
// on the first clip, using that clip's sample rate.
func NewOtoOutput() *OtoOutput {
	return &OtoOutput{
		client: &http.Client{Timeout: 15 * time.Second},
		volume: 100,
	}
}

// Load fetches and decodes a clip, replacing the current one.
func (o *OtoOutput) Load(url string, durationSeconds float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closePlayerLocked()

	if url == "" {
		log.Debug().Msg("round has no audio clip")
		return nil
	}

	data, err := o.fetch(url)
	if err != nil {
		return fmt.Errorf("fetch clip: %w", err)
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode clip: %w", err)
	}

	if err := o.ensureContextLocked(decoder.SampleRate()); err != nil {
		return err
	}
	if decoder.SampleRate() != o.sampleRate {
		// The oto context is process-wide and keeps its original rate.
		log.Warn().
			Int("clip_rate", decoder.SampleRate()).
			Int("device_rate", o.sampleRate).
			Msg("clip sample rate differs from audio device")
	}

	o.player = o.otoCtx.NewPlayer(decoder)
	o.player.SetVolume(volumeMultiplier(o.volume, o.muted))

	log.Debug().Str("url", url).Float64("duration_s", durationSeconds).Msg("clip loaded")
	return nil
}

// PlayFrom seeks to the given offset and starts playback.
func (o *OtoOutput) PlayFrom(seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return
	}
	o.seekLocked(seconds)
	o.player.Play()
}

// PauseAt pauses immediately and parks the position at the given offset so
// a later resume lines up where the server says it should.
func (o *OtoOutput) PauseAt(seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return
	}
	o.player.Pause()
	o.seekLocked(seconds)
}

// Stop pauses and rewinds to the beginning.
func (o *OtoOutput) Stop() {
	o.PauseAt(0)
}

// SetVolume sets the software volume (0-100).
func (o *OtoOutput) SetVolume(volume int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.volume = volume
	if o.player != nil {
		o.player.SetVolume(volumeMultiplier(o.volume, o.muted))
	}
}

// SetMuted sets mute state.
func (o *OtoOutput) SetMuted(muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.muted = muted
	if o.player != nil {
		o.player.SetVolume(volumeMultiplier(o.volume, o.muted))
	}
}

// Close releases the player and suspends the audio device.
func (o *OtoOutput) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closePlayerLocked()
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
	}
}

func (o *OtoOutput) fetch(url string) ([]byte, error) {
	resp, err := o.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (o *OtoOutput) ensureContextLocked(sampleRate int) error {
	if o.otoCtx != nil {
		return nil
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("create audio context: %w", err)
	}
	<-ready
	o.otoCtx = ctx
	o.sampleRate = sampleRate
	log.Debug().Int("sample_rate", sampleRate).Msg("audio output initialized")
	return nil
}

func (o *OtoOutput) seekLocked(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	offset := int64(seconds * float64(o.sampleRate))
	if _, err := o.player.Seek(offset*bytesPerFrame, io.SeekStart); err != nil {
		log.Debug().Err(err).Msg("seek failed")
	}
}

func (o *OtoOutput) closePlayerLocked() {
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
}

// volumeMultiplier maps the 0-100 volume and mute flag to a gain factor.
func volumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}

// NopOutput discards all playback. Used when no audio device is wanted.
type NopOutput struct{}

func (NopOutput) Load(string, float64) error { return nil }
func (NopOutput) PlayFrom(float64)           {}
func (NopOutput) PauseAt(float64)            {}
func (NopOutput) Stop()                      {}
func (NopOutput) SetVolume(int)              {}
func (NopOutput) SetMuted(bool)              {}
func (NopOutput) Close()                     {}
