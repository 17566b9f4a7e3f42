// Package player provides the playback engine: sequential playback
// over an ordered queue of tracks through an audio sink.
package player

// State represents the playback state.
type State int

const (
	StateStopped State = iota // No track loaded
	StatePlaying              // Track is playing
	StatePaused               // Track is loaded and paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
