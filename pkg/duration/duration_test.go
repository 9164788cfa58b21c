package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
	}{
		{"0", 0},
		{"600", 10 * time.Minute},
		{"90s", 90 * time.Second},
		{"10m", 10 * time.Minute},
		{"1h30m", 90 * time.Minute},
		{"1d", 24 * time.Hour},
		{"30d", 720 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{"1w2d12h", 228 * time.Hour},
		{"1.5d", 36 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"", "  ", "abc", "10x", "-600", "d"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{0, "0s"},
		{90 * time.Second, "1m30s"},
		{24 * time.Hour, "1d"},
		{720 * time.Hour, "30d"},
		{14 * 24 * time.Hour, "2w"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Format(tt.d))
	}
}
