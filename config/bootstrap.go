package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bootstrap lists the tokens and balances seeded into an empty local state.
type Bootstrap struct {
	Mints []BootstrapMint `yaml:"mints"`
}

// BootstrapMint registers one token. Authority and allocation owners are
// bech32 account addresses.
type BootstrapMint struct {
	Symbol      string             `yaml:"symbol"`
	Name        string             `yaml:"name"`
	Decimals    uint8              `yaml:"decimals"`
	Authority   string             `yaml:"authority"`
	Allocations []BootstrapBalance `yaml:"allocations"`
}

// BootstrapBalance credits Amount smallest units to Owner.
type BootstrapBalance struct {
	Owner  string `yaml:"owner"`
	Amount uint64 `yaml:"amount"`
}

// LoadBootstrap reads a bootstrap file from disk.
func LoadBootstrap(path string) (*Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bootstrap: %w", err)
	}
	var out Bootstrap
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode bootstrap: %w", err)
	}
	seen := make(map[string]struct{}, len(out.Mints))
	for i, mint := range out.Mints {
		symbol := strings.ToUpper(strings.TrimSpace(mint.Symbol))
		if symbol == "" {
			return nil, fmt.Errorf("bootstrap: mint %d has no symbol", i)
		}
		if _, dup := seen[symbol]; dup {
			return nil, fmt.Errorf("bootstrap: mint %s listed twice", symbol)
		}
		seen[symbol] = struct{}{}
		if strings.TrimSpace(mint.Authority) == "" {
			return nil, fmt.Errorf("bootstrap: mint %s has no authority", symbol)
		}
	}
	return &out, nil
}
