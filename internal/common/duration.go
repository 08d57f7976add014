package common

import (
	"time"

	"github.com/invopop/jsonschema"
)

// Duration is a wrapper around time.Duration that can be decoded from
// human readable strings ("30s", "5m") in YAML, JSON and TOML configuration files.
type Duration struct {
	time.Duration
}

// NewDuration wraps the given time.Duration.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText parses a duration string such as "1m30s".
func (d *Duration) UnmarshalText(data []byte) error {
	duration, err := time.ParseDuration(string(data))
	if err != nil {
		return err
	}

	d.Duration = duration
	return nil
}

// MarshalText encodes the duration in its string form.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// JSONSchema describes the string representation of a Duration.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Title:       "Duration",
		Description: "Duration expressed in units: [ns, us, ms, s, m, h]",
		Examples: []any{
			"1m",
			"300ms",
		},
	}
}
