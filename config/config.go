package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"rafflechain/storage"
)

type Config struct {
	ListenAddress        string   `toml:"ListenAddress"`
	DataDir              string   `toml:"DataDir"`
	DBBackend            string   `toml:"DBBackend"`
	NetworkName          string   `toml:"NetworkName"`
	Environment          string   `toml:"Environment"`
	DefaultRoundDuration Duration `toml:"DefaultRoundDuration"`
	MaxTicketsPerBuyer   uint64   `toml:"MaxTicketsPerBuyer"`
	MaxWinners           int      `toml:"MaxWinners"`
	EnableFaucet         bool     `toml:"EnableFaucet"`
	// BootstrapFile is an optional YAML file listing mints and balances to
	// seed into an empty state on startup.
	BootstrapFile string `toml:"BootstrapFile,omitempty"`
	LogFile       string `toml:"LogFile,omitempty"`
	LogLevel      string `toml:"LogLevel"`

	Auth      Auth      `toml:"auth"`
	RateLimit RateLimit `toml:"rate_limit"`
	Telemetry Telemetry `toml:"telemetry"`
	Indexer   Indexer   `toml:"indexer"`
}

// Default returns the configuration written for a fresh local network.
func Default() *Config {
	return &Config{
		ListenAddress:        ":8547",
		DataDir:              "./raffle-data",
		DBBackend:            storage.BackendLevelDB,
		NetworkName:          "raffle-local",
		Environment:          "local",
		DefaultRoundDuration: Duration{24 * time.Hour},
		MaxTicketsPerBuyer:   5,
		MaxWinners:           16,
		EnableFaucet:         true,
		LogLevel:             "info",
		Auth: Auth{
			HMACSecretEnv: "RAFFLE_RPC_JWT_SECRET",
			Issuer:        "rafflechain",
			Audience:      "lottery-rpc",
			ClockSkew:     Duration{2 * time.Minute},
		},
		RateLimit: RateLimit{RequestsPerMinute: 600, Burst: 60},
		Indexer:   Indexer{Enabled: true},
	}
}

// Load loads the configuration from the given path, writing the defaults
// first when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "raffle-local"
	}
	if strings.TrimSpace(cfg.DBBackend) == "" {
		cfg.DBBackend = storage.BackendLevelDB
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IndexerDSN resolves the event journal location.
func (c *Config) IndexerDSN() string {
	if dsn := strings.TrimSpace(c.Indexer.DSN); dsn != "" {
		return dsn
	}
	return filepath.Join(c.DataDir, "events.db")
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
