// Package media provides a best-effort probe for audio file metadata
// and duration.
package media

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	zlog "github.com/rs/zerolog/log"
)

// Info holds everything the probe could extract from a file. Absent
// fields are zero values; Duration is 0 when unmeasurable.
type Info struct {
	Title      string
	Artist     string
	Album      string
	Duration   float64 // seconds
	Artwork    []byte  // embedded cover art, nil if none
	ArtworkExt string  // "jpg", "png", ... valid only when Artwork is set
}

// Probe reads embedded metadata and measures the duration of the file.
// Every step is best-effort: a file that cannot be parsed yields a
// zero Info rather than an error.
func Probe(path string) Info {
	var info Info

	f, err := os.Open(path)
	if err != nil {
		zlog.Debug().Err(err).Str("path", path).Msg("media: probe open failed")
		return info
	}
	defer f.Close()

	if md, err := tag.ReadFrom(f); err == nil {
		info.Title = strings.TrimSpace(md.Title())
		info.Artist = strings.TrimSpace(md.Artist())
		info.Album = strings.TrimSpace(md.Album())
		if pic := md.Picture(); pic != nil && len(pic.Data) > 0 {
			info.Artwork = pic.Data
			info.ArtworkExt = pictureExt(pic)
		}
	}

	if _, err := f.Seek(0, 0); err != nil {
		return info
	}
	info.Duration = clampDuration(measureDuration(f, strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))))

	return info
}

// clampDuration maps non-finite, NaN, or negative measurements to 0.
func clampDuration(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	return d
}

// pictureExt derives a filename extension for an embedded picture,
// defaulting to jpg.
func pictureExt(pic *tag.Picture) string {
	switch {
	case strings.Contains(pic.MIMEType, "png"):
		return "png"
	case pic.Ext != "":
		return strings.TrimPrefix(strings.ToLower(pic.Ext), ".")
	default:
		return "jpg"
	}
}
