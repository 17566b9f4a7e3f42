// Package audio provides the abstract playback sink and its MPD
// implementation.
package audio

import "github.com/cockroachdb/errors"

// ErrDecode is returned when the sink cannot open or decode a file.
var ErrDecode = errors.New("failed to decode audio file")

// Sink is a device-level playback handle for one file at a time. The
// playback engine is the sole owner of a sink: opening a new track
// always stops the previous one first.
type Sink interface {
	// Open loads the file and prepares playback, stopping any current
	// track. Failures surface as ErrDecode.
	Open(path string) error
	Play() error
	Pause() error
	Stop() error
	// CurrentTime returns the playback position in seconds.
	CurrentTime() float64
	// SetCurrentTime seeks to an absolute position in seconds.
	SetCurrentTime(seconds float64) error
	// Duration returns the duration of the open track in seconds,
	// 0 when nothing is open.
	Duration() float64
	// SetOnFinished registers a callback invoked when the open track
	// finishes on its own; successfully is false on decode failure.
	// The callback may be invoked from an internal goroutine.
	SetOnFinished(fn func(successfully bool))
}
