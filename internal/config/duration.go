package config

import (
	"encoding/json"
	"time"

	"github.com/juniormartinxo/transcription/pkg/duration"
)

// Duration is a time.Duration that supports human-readable parsing in
// config files and environment variables. Beyond Go's standard format it
// accepts day ("30d") and week ("2w") units, and a bare number is read as
// seconds so the original deployment's *_SECONDS variables keep working.
//
// It implements encoding.TextUnmarshaler for viper/YAML decoding and
// json.Unmarshaler for JSON configuration files.
type Duration time.Duration

// ParseDuration parses a human-readable duration string.
func ParseDuration(s string) (Duration, error) {
	d, err := duration.Parse(s)
	if err != nil {
		return 0, err
	}
	return Duration(d), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Accepts both a string and a
// plain number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var secs float64
		if err := json.Unmarshal(data, &secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// String renders the duration compactly.
func (d Duration) String() string {
	return duration.Format(time.Duration(d))
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
