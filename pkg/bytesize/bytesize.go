// Package bytesize parses and formats human-readable byte sizes using
// binary (1024) units. A bare number is taken as bytes, so values such as
// "104857600" and "100MB" are equivalent.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is a byte count.
type Size int64

const (
	B  Size = 1
	KB Size = 1024 * B
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
)

var units = map[string]Size{
	"":      B,
	"b":     B,
	"byte":  B,
	"bytes": B,
	"k":     KB,
	"kb":    KB,
	"kib":   KB,
	"m":     MB,
	"mb":    MB,
	"mib":   MB,
	"g":     GB,
	"gb":    GB,
	"gib":   GB,
	"t":     TB,
	"tb":    TB,
	"tib":   TB,
}

// Parse parses a size string such as "500KB", "1.5 GB" or "1024".
func Parse(s string) (Size, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	// Split the numeric prefix from the unit suffix.
	split := len(trimmed)
	for i, r := range trimmed {
		if (r < '0' || r > '9') && r != '.' {
			split = i
			break
		}
	}
	numPart := trimmed[:split]
	unitPart := strings.ToLower(strings.TrimSpace(trimmed[split:]))

	if numPart == "" {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}

	mult, ok := units[unitPart]
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit %q in %q", unitPart, s)
	}

	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", numPart, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("bytesize: negative size %q", s)
	}

	return Size(value * float64(mult)), nil
}

// MustParse is like Parse but panics on error. Use for constants only.
func MustParse(s string) Size {
	size, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return size
}

// String formats the size with the largest unit that divides it exactly,
// e.g. 104857600 -> "100MB", 1536 -> "1536" (not a whole KB multiple).
func (s Size) String() string {
	switch {
	case s >= TB && s%TB == 0:
		return strconv.FormatInt(int64(s/TB), 10) + "TB"
	case s >= GB && s%GB == 0:
		return strconv.FormatInt(int64(s/GB), 10) + "GB"
	case s >= MB && s%MB == 0:
		return strconv.FormatInt(int64(s/MB), 10) + "MB"
	case s >= KB && s%KB == 0:
		return strconv.FormatInt(int64(s/KB), 10) + "KB"
	default:
		return strconv.FormatInt(int64(s), 10)
	}
}

// Int64 returns the size as a plain byte count.
func (s Size) Int64() int64 {
	return int64(s)
}
