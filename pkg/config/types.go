// Package config defines the configuration documents for the vigil host,
// agent and built-in plugins.
//
// Documents are plain values with no behavior beyond accessors. A plugin
// is handed a freshly constructed value each load, never a reference
// shared with a previous lifecycle generation.
package config

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Duration is a time.Duration that serializes as a human-readable string
// ("10s", "2m") in TOML and JSON documents.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// OrDefault returns the value, or fallback when unset.
func (d Duration) OrDefault(fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}

	return time.Duration(d)
}
