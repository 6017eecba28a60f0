package config

import (
	"fmt"
	"strings"
	"time"

	"rafflechain/storage"
)

var (
	MinRoundDuration = time.Minute
	MaxWinnersLimit  = 1024
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.DBBackend)) {
	case storage.BackendMemory, storage.BackendLevelDB, storage.BackendBolt:
	default:
		return fmt.Errorf("config: unknown DBBackend %q", c.DBBackend)
	}
	if d := c.DefaultRoundDuration.Duration; d != 0 && d < MinRoundDuration {
		return fmt.Errorf("config: DefaultRoundDuration must be 0 or at least %s", MinRoundDuration)
	}
	if c.MaxWinners < 0 || c.MaxWinners > MaxWinnersLimit {
		return fmt.Errorf("config: MaxWinners must be within [0,%d]", MaxWinnersLimit)
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("config: rate limits must not be negative")
	}
	if c.Auth.ClockSkew.Duration < 0 {
		return fmt.Errorf("config: Auth.ClockSkew must not be negative")
	}
	if strings.TrimSpace(c.Auth.HMACSecretEnv) == "" {
		return fmt.Errorf("config: Auth.HMACSecretEnv must name an environment variable")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown LogLevel %q", c.LogLevel)
	}
	return nil
}
