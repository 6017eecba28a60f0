package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration wraps time.Duration so TOML files can use strings such as "24h".
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in time.Duration notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Auth configures the bearer tokens accepted by the RPC server. The HMAC
// secret is read from the named environment variable, never from the file.
type Auth struct {
	HMACSecretEnv string   `toml:"HMACSecretEnv"`
	Issuer        string   `toml:"Issuer"`
	Audience      string   `toml:"Audience"`
	ClockSkew     Duration `toml:"ClockSkew"`
}

// RateLimit bounds requests per client address.
type RateLimit struct {
	RequestsPerMinute int `toml:"RequestsPerMinute"`
	Burst             int `toml:"Burst"`
}

// Telemetry configures OTLP export. An empty endpoint disables exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Indexer configures the SQL event journal.
type Indexer struct {
	Enabled bool `toml:"Enabled"`
	// DSN is a postgres:// URL or a SQLite file path. Empty uses
	// <DataDir>/events.db.
	DSN string `toml:"DSN"`
}
