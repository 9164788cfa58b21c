package config

import (
	"encoding/json"

	"github.com/juniormartinxo/transcription/pkg/bytesize"
)

// ByteSize is a size value that supports human-readable parsing in config
// files and environment variables: "100MB", "1.5 GB" or a raw byte count
// such as "104857600".
//
// It implements encoding.TextUnmarshaler for viper/YAML decoding and
// json.Unmarshaler for JSON configuration files.
type ByteSize int64

// ParseByteSize parses a human-readable byte size string.
func ParseByteSize(s string) (ByteSize, error) {
	size, err := bytesize.Parse(s)
	if err != nil {
		return 0, err
	}
	return ByteSize(size), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Accepts both a string with
// units and a plain number of bytes.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*b = ByteSize(n)
		return nil
	}
	return b.UnmarshalText([]byte(s))
}

// MarshalJSON implements json.Marshaler.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// String renders the size with the largest exact unit.
func (b ByteSize) String() string {
	return bytesize.Size(b).String()
}

// Int64 returns the size as a plain byte count.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
