package media

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWAV writes a valid PCM WAV file of the given duration
// (8 kHz, mono, 16-bit => 16000 bytes per second).
func writeWAV(t *testing.T, path string, seconds float64) {
	t.Helper()

	const byteRate = 16000
	dataSize := uint32(seconds * byteRate)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))        // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))        // mono
	binary.Write(&buf, binary.LittleEndian, uint32(8000))     // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))        // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))       // bits per sample
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// writeMP3 writes a CBR MPEG-1 Layer III stream of the given size with
// a 128 kbit/s first frame header.
func writeMP3(t *testing.T, path string, size int) {
	t.Helper()

	payload := make([]byte, size)
	// Frame sync + MPEG-1 Layer III, 128 kbit/s @ 44.1 kHz
	payload[0] = 0xFF
	payload[1] = 0xFB
	payload[2] = 0x90
	require.NoError(t, os.WriteFile(path, payload, 0o644))
}

func TestProbe_WAVDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.wav")
	writeWAV(t, path, 213.0)

	info := Probe(path)
	assert.InDelta(t, 213.0, info.Duration, 0.01)
}

func TestProbe_MP3DurationEstimate(t *testing.T) {
	// 128 kbit/s => 16000 bytes per second; 80000 bytes ~= 5 s.
	path := filepath.Join(t.TempDir(), "song.mp3")
	writeMP3(t, path, 80000)

	info := Probe(path)
	assert.InDelta(t, 5.0, info.Duration, 0.01)
}

func TestProbe_UnreadableFile(t *testing.T) {
	info := Probe(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Zero(t, info.Duration)
	assert.Empty(t, info.Title)
	assert.Nil(t, info.Artwork)
}

func TestProbe_GarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o644))

	info := Probe(path)
	assert.Zero(t, info.Duration)
}

func TestClampDuration(t *testing.T) {
	tests := []struct {
		name     string
		in       float64
		expected float64
	}{
		{name: "NaN", in: math.NaN(), expected: 0},
		{name: "positive infinity", in: math.Inf(1), expected: 0},
		{name: "negative", in: -3, expected: 0},
		{name: "zero", in: 0, expected: 0},
		{name: "normal", in: 213.4, expected: 213.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, clampDuration(tt.in))
		})
	}
}
