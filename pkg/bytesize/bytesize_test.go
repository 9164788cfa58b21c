package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected Size
	}{
		{"0", 0},
		{"1024", 1024},
		{"1KB", KB},
		{"1kb", KB},
		{"1 KiB", KB},
		{"5MB", 5 * MB},
		{"100MB", 104857600},
		{"500MB", 524288000},
		{"1.5GB", Size(1.5 * float64(GB))},
		{"2 gb", 2 * GB},
		{"1TB", TB},
		{"104857600", 104857600},
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
	for _, input := range []string{"", "   ", "MB", "12XB", "-5MB", "1..5MB"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		size     Size
		expected string
	}{
		{0, "0"},
		{512, "512"},
		{KB, "1KB"},
		{104857600, "100MB"},
		{524288000, "500MB"},
		{3 * GB, "3GB"},
		{1536, "1536"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.size.String())
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("not a size") })
}
