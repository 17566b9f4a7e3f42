// Package track provides the Track and Tag domain entities.
package track

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Unknown is the sentinel value for absent artist/album metadata.
const Unknown = "Unknown"

// Track represents one imported audio item.
type Track struct {
	ID            uuid.UUID // Assigned at creation, immutable
	Title         string    // Display title
	Artist        string    // Artist name, "Unknown" when absent
	Album         string    // Album name, "Unknown" when absent
	DateAdded     time.Time // Creation timestamp, immutable
	DownloadIndex int       // Dense 1-based insertion order, reassigned on delete
	FilePath      string    // Store-relative audio blob filename
	ArtworkPath   string    // Store-relative artwork blob filename, empty if none
	Duration      float64   // Seconds, 0 when unmeasurable
	TagIDs        []int64   // Associated tag IDs
}

// Tag represents a user-defined label, many-to-many with tracks.
type Tag struct {
	ID   int64  // Repository-assigned identifier
	Name string // Unique case-sensitive key
}

// HasTag reports whether the track carries the given tag.
func (t *Track) HasTag(tagID int64) bool {
	for _, id := range t.TagIDs {
		if id == tagID {
			return true
		}
	}
	return false
}

// FormattedDuration returns the duration as "m:ss", or "--:--" when
// the duration is unknown.
func (t *Track) FormattedDuration() string {
	return FormatSeconds(t.Duration)
}

// FormatSeconds formats a positive duration in seconds as "m:ss".
// Non-positive or NaN values render as "--:--".
func FormatSeconds(seconds float64) string {
	if seconds <= 0 || seconds != seconds {
		return "--:--"
	}
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
