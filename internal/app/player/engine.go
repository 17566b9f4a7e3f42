package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/ryanh/retrobox/internal/domain/track"
	"github.com/ryanh/retrobox/internal/infra/audio"
	"github.com/ryanh/retrobox/internal/infra/nowplaying"
)

// DefaultTickInterval is the progress refresh period.
const DefaultTickInterval = 200 * time.Millisecond

// PathResolver maps a track to the absolute paths of its stored blobs.
// The library manager implements it.
type PathResolver interface {
	AudioPath(t track.Track) string
	ArtworkPath(t track.Track) string
}

// Engine owns the playback queue and drives the audio sink. All methods
// are safe for concurrent use.
type Engine struct {
	mu    sync.Mutex
	sink  audio.Sink
	pub   nowplaying.Publisher
	paths PathResolver

	queue        []track.Track
	currentIndex *int
	currentTrack *track.Track
	loaded       bool
	isPlaying    bool
	currentTime  float64
	duration     float64
	repeatOne    bool

	tickInterval time.Duration
}

// NewEngine creates an engine over the given sink and publisher.
func NewEngine(sink audio.Sink, pub nowplaying.Publisher, paths PathResolver) *Engine {
	e := &Engine{
		sink:         sink,
		pub:          pub,
		paths:        paths,
		tickInterval: DefaultTickInterval,
	}
	sink.SetOnFinished(e.onSinkFinished)
	return e
}

// SetTickInterval overrides the progress refresh period. Call before
// Run.
func (e *Engine) SetTickInterval(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d > 0 {
		e.tickInterval = d
	}
}

// Play starts playback of a single track without touching the queue
// position. The track does not need to be part of the queue.
func (e *Engine) Play(trk track.Track) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playLocked(trk)
}

// SetQueue replaces the queue and starts playback at startAt, clamped
// into range. An empty queue clears the position without touching
// current playback.
func (e *Engine) SetQueue(tracks []track.Track, startAt int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue = make([]track.Track, len(tracks))
	copy(e.queue, tracks)

	if len(e.queue) == 0 {
		e.currentIndex = nil
		return nil
	}

	idx := lo.Clamp(startAt, 0, len(e.queue)-1)
	e.currentIndex = &idx
	return e.playLocked(e.queue[idx])
}

// PlayNext advances to the next queue entry. Past the end it stops
// playback and is idempotent afterwards.
func (e *Engine) PlayNext() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playNextLocked()
}

func (e *Engine) playNextLocked() error {
	if e.currentIndex == nil {
		return nil
	}
	next := *e.currentIndex + 1
	if next >= len(e.queue) {
		e.stopLocked(false)
		return nil
	}
	e.currentIndex = &next
	return e.playLocked(e.queue[next])
}

// PlayPrevious moves to the previous queue entry. At the head it
// restarts the current track from the beginning instead.
func (e *Engine) PlayPrevious() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currentIndex == nil {
		return nil
	}
	prev := *e.currentIndex - 1
	if prev < 0 {
		return e.seekToLocked(0)
	}
	e.currentIndex = &prev
	return e.playLocked(e.queue[prev])
}

// TogglePlayPause pauses a playing track and resumes a paused one.
func (e *Engine) TogglePlayPause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return nil
	}
	if e.isPlaying {
		return e.pauseLocked()
	}
	return e.resumeLocked()
}

// Pause pauses playback, keeping the position.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded || !e.isPlaying {
		return nil
	}
	return e.pauseLocked()
}

func (e *Engine) pauseLocked() error {
	if err := e.sink.Pause(); err != nil {
		return err
	}
	e.isPlaying = false
	e.pub.UpdateElapsed(e.currentTime, 0)
	return nil
}

// Resume continues playback of a paused track.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded || e.isPlaying {
		return nil
	}
	return e.resumeLocked()
}

func (e *Engine) resumeLocked() error {
	if err := e.sink.Play(); err != nil {
		return err
	}
	e.isPlaying = true
	e.pub.UpdateElapsed(e.currentTime, 1)
	return nil
}

// Seek jumps to a fractional position in the current track. A ratio of
// 0 is the start, 1 the end. No-op when nothing is loaded.
func (e *Engine) Seek(ratio float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.duration == 0 {
		return nil
	}
	return e.seekToLocked(ratio * e.duration)
}

// SeekTo jumps to an absolute position in seconds, clamped to the
// track bounds.
func (e *Engine) SeekTo(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seekToLocked(seconds)
}

func (e *Engine) seekToLocked(seconds float64) error {
	if !e.loaded {
		return nil
	}
	seconds = lo.Clamp(seconds, 0, e.duration)
	if err := e.sink.SetCurrentTime(seconds); err != nil {
		return err
	}
	e.currentTime = seconds
	rate := 0.0
	if e.isPlaying {
		rate = 1
	}
	e.pub.UpdateElapsed(e.currentTime, rate)
	return nil
}

// Stop halts playback. With resetTrack the current track and the
// published now-playing info are cleared as well.
func (e *Engine) Stop(resetTrack bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked(resetTrack)
}

func (e *Engine) stopLocked(resetTrack bool) {
	if e.loaded {
		if err := e.sink.Stop(); err != nil {
			zlog.Warn().Err(err).Msg("player: stop failed")
		}
	}
	e.loaded = false
	e.isPlaying = false
	e.currentTime = 0
	e.duration = 0
	e.pub.UpdateElapsed(0, 0)

	if resetTrack {
		e.currentTrack = nil
		e.pub.Clear()
	}
}

// playLocked loads and starts trk, replacing whatever was playing.
func (e *Engine) playLocked(trk track.Track) error {
	if e.loaded {
		e.stopLocked(false)
	}

	if err := e.sink.Open(e.paths.AudioPath(trk)); err != nil {
		zlog.Error().Err(err).Str("title", trk.Title).Msg("player: cannot open track")
		e.stopLocked(true)
		return err
	}

	t := trk
	e.currentTrack = &t
	e.loaded = true
	e.currentTime = 0
	e.duration = e.sink.Duration()
	if e.duration == 0 {
		e.duration = trk.Duration
	}

	if err := e.sink.Play(); err != nil {
		e.stopLocked(true)
		return err
	}
	e.isPlaying = true

	e.pub.Publish(nowplaying.Info{
		Title:        trk.Title,
		Artist:       trk.Artist,
		Album:        trk.Album,
		Duration:     e.duration,
		Elapsed:      0,
		PlaybackRate: 1,
		ArtworkPath:  e.artworkPathLocked(trk),
	})

	zlog.Info().Str("title", trk.Title).Str("artist", trk.Artist).Msg("player: playing")
	return nil
}

func (e *Engine) artworkPathLocked(trk track.Track) string {
	if trk.ArtworkPath == "" {
		return ""
	}
	return e.paths.ArtworkPath(trk)
}

// ToggleRepeatOne flips single-track repeat and returns the new value.
func (e *Engine) ToggleRepeatOne() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repeatOne = !e.repeatOne
	return e.repeatOne
}

// RepeatOne reports whether single-track repeat is on.
func (e *Engine) RepeatOne() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repeatOne
}

// CanPlayNext reports whether a further queue entry exists.
func (e *Engine) CanPlayNext() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentIndex != nil && *e.currentIndex+1 < len(e.queue)
}

// CanPlayPrevious reports whether an earlier queue entry exists.
func (e *Engine) CanPlayPrevious() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentIndex != nil && *e.currentIndex > 0
}

// State returns the playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case !e.loaded:
		return StateStopped
	case e.isPlaying:
		return StatePlaying
	default:
		return StatePaused
	}
}

// CurrentTrack returns a copy of the loaded track, if any.
func (e *Engine) CurrentTrack() (track.Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentTrack == nil {
		return track.Track{}, false
	}
	return *e.currentTrack, true
}

// Progress returns the fractional position in [0, 1], 0 with no
// duration.
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.duration == 0 {
		return 0
	}
	return lo.Clamp(e.currentTime/e.duration, 0, 1)
}

// Position returns elapsed and total seconds of the current track.
func (e *Engine) Position() (elapsed, duration float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime, e.duration
}

// ElapsedString formats the position as "m:ss".
func (e *Engine) ElapsedString() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return formatClock(e.currentTime)
}

// RemainingString formats the remaining time as "-m:ss".
func (e *Engine) RemainingString() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return "-" + formatClock(e.duration-e.currentTime)
}

// formatClock renders a playback position as "m:ss". Unlike
// track.FormatSeconds, zero is a valid position.
func formatClock(seconds float64) string {
	if seconds < 0 || seconds != seconds {
		seconds = 0
	}
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Tick refreshes the position from the sink, republishes it and
// handles end of track. Run calls it on every tick interval; it is
// exported for tests.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded || !e.isPlaying {
		return
	}
	e.currentTime = e.sink.CurrentTime()
	e.pub.UpdateElapsed(e.currentTime, 1)

	if e.duration > 0 && e.currentTime >= e.duration {
		e.handleTrackEndLocked()
	}
}

// handleTrackEndLocked reacts to the current track reaching its end:
// repeat the same track or advance through the queue.
func (e *Engine) handleTrackEndLocked() {
	if e.repeatOne && e.loaded {
		if err := e.sink.SetCurrentTime(0); err == nil {
			e.currentTime = 0
			if err := e.sink.Play(); err != nil {
				e.stopLocked(true)
				return
			}
			e.isPlaying = true
			e.pub.UpdateElapsed(0, 1)
			return
		}
	}
	if err := e.playNextLocked(); err != nil {
		zlog.Warn().Err(err).Msg("player: advance after track end failed")
	}
}

// onSinkFinished is the sink's finish callback. A natural finish
// advances the queue; a failed one resets playback.
func (e *Engine) onSinkFinished(successfully bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return
	}
	if !successfully {
		e.stopLocked(true)
		return
	}
	e.handleTrackEndLocked()
}

// Run drives the progress tick and serves inbound transport commands
// until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	interval := e.tickInterval
	e.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Tick()
		case cmd := <-e.pub.Commands():
			e.handleCommand(cmd)
		}
	}
}

func (e *Engine) handleCommand(cmd nowplaying.Command) {
	zlog.Debug().Str("command", cmd.Type.String()).Msg("player: remote command")

	var err error
	switch cmd.Type {
	case nowplaying.CommandPlay:
		err = e.Resume()
	case nowplaying.CommandPause:
		err = e.Pause()
	case nowplaying.CommandToggle:
		err = e.TogglePlayPause()
	case nowplaying.CommandNext:
		err = e.PlayNext()
	case nowplaying.CommandPrevious:
		err = e.PlayPrevious()
	case nowplaying.CommandSeek:
		err = e.SeekTo(cmd.SeekTo)
	}
	if err != nil {
		zlog.Warn().Err(err).Str("command", cmd.Type.String()).Msg("player: remote command failed")
	}
}
