// Package nowplaying provides the media-info/remote-control surface:
// outbound now-playing state and inbound transport commands.
package nowplaying

import (
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/ryanh/retrobox/internal/domain/track"
)

// Info is the published now-playing state.
type Info struct {
	Title        string
	Artist       string
	Album        string
	Duration     float64 // seconds
	Elapsed      float64 // seconds
	PlaybackRate float64 // 1.0 playing, 0.0 paused
	ArtworkPath  string  // absolute path of the artwork blob, "" if none
}

// CommandType identifies an inbound transport command.
type CommandType int

const (
	CommandPlay CommandType = iota
	CommandPause
	CommandToggle
	CommandNext
	CommandPrevious
	CommandSeek
)

// String returns the string representation of the command type.
func (c CommandType) String() string {
	switch c {
	case CommandPlay:
		return "play"
	case CommandPause:
		return "pause"
	case CommandToggle:
		return "toggle"
	case CommandNext:
		return "next"
	case CommandPrevious:
		return "previous"
	case CommandSeek:
		return "seek"
	default:
		return "unknown"
	}
}

// Command is an inbound transport command. SeekTo is meaningful only
// for CommandSeek.
type Command struct {
	Type   CommandType
	SeekTo float64 // absolute position in seconds
}

// Publisher is the abstract media-info surface. The playback engine
// publishes state through it and consumes its command channel.
type Publisher interface {
	// Publish replaces the full now-playing info.
	Publish(info Info)
	// UpdateElapsed refreshes position and playback rate only.
	UpdateElapsed(elapsed, playbackRate float64)
	// Clear removes the published info entirely.
	Clear()
	// Commands delivers inbound transport commands.
	Commands() <-chan Command
}

// ConsolePublisher logs now-playing transitions and relays injected
// transport commands. It is the publisher used by the CLI and tests.
type ConsolePublisher struct {
	mu       sync.Mutex
	current  *Info
	commands chan Command
}

// NewConsolePublisher creates a console publisher.
func NewConsolePublisher() *ConsolePublisher {
	return &ConsolePublisher{commands: make(chan Command, 8)}
}

func (p *ConsolePublisher) Publish(info Info) {
	p.mu.Lock()
	p.current = &info
	p.mu.Unlock()

	zlog.Info().Str("title", info.Title).Str("artist", info.Artist).
		Str("album", info.Album).Str("duration", track.FormatSeconds(info.Duration)).
		Msg("now playing")
}

func (p *ConsolePublisher) UpdateElapsed(elapsed, playbackRate float64) {
	p.mu.Lock()
	if p.current != nil {
		p.current.Elapsed = elapsed
		p.current.PlaybackRate = playbackRate
	}
	p.mu.Unlock()
}

func (p *ConsolePublisher) Clear() {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	zlog.Debug().Msg("now playing cleared")
}

func (p *ConsolePublisher) Commands() <-chan Command {
	return p.commands
}

// Send injects an inbound transport command, as a remote-control
// surface would. Full channels drop the command rather than block.
func (p *ConsolePublisher) Send(cmd Command) {
	select {
	case p.commands <- cmd:
	default:
		zlog.Warn().Str("command", cmd.Type.String()).Msg("nowplaying: command dropped")
	}
}

// Current returns a copy of the published info, if any.
func (p *ConsolePublisher) Current() (Info, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Info{}, false
	}
	return *p.current, true
}
