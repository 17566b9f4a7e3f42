package track

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrack_FormattedDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		expected string
	}{
		{
			name:     "zero duration",
			duration: 0,
			expected: "--:--",
		},
		{
			name:     "negative duration",
			duration: -10,
			expected: "--:--",
		},
		{
			name:     "NaN duration",
			duration: math.NaN(),
			expected: "--:--",
		},
		{
			name:     "under a minute",
			duration: 42,
			expected: "0:42",
		},
		{
			name:     "three minutes thirty three",
			duration: 213,
			expected: "3:33",
		},
		{
			name:     "rounds fractional seconds",
			duration: 213.6,
			expected: "3:34",
		},
		{
			name:     "over an hour keeps minutes",
			duration: 3725,
			expected: "62:05",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trk := Track{Duration: tt.duration}
			assert.Equal(t, tt.expected, trk.FormattedDuration())
		})
	}
}

func TestTrack_HasTag(t *testing.T) {
	trk := Track{TagIDs: []int64{1, 3, 7}}

	assert.True(t, trk.HasTag(1))
	assert.True(t, trk.HasTag(7))
	assert.False(t, trk.HasTag(2))

	empty := Track{}
	assert.False(t, empty.HasTag(1))
}
