package main

import (
	"errors"
	"fmt"
	"log/slog"

	"rafflechain/config"
	"rafflechain/core/state"
	"rafflechain/crypto"
)

// applyBootstrap registers the listed mints and credits their allocations.
// Mints that already exist are left untouched so restarts do not re-issue
// supply.
func applyBootstrap(manager *state.Manager, boot *config.Bootstrap, logger *slog.Logger) error {
	for _, entry := range boot.Mints {
		authority, err := crypto.DecodeAs(crypto.AccountPrefix, entry.Authority)
		if err != nil {
			return fmt.Errorf("bootstrap %s authority: %w", entry.Symbol, err)
		}
		mint, err := manager.RegisterMint(entry.Symbol, entry.Name, entry.Decimals, authority)
		if errors.Is(err, state.ErrMintExists) {
			logger.Info("bootstrap mint already registered", slog.String("symbol", entry.Symbol))
			continue
		}
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", entry.Symbol, err)
		}
		for _, alloc := range entry.Allocations {
			owner, err := crypto.DecodeAs(crypto.AccountPrefix, alloc.Owner)
			if err != nil {
				return fmt.Errorf("bootstrap %s allocation: %w", entry.Symbol, err)
			}
			if _, err := manager.MintTo(authority, mint, owner, alloc.Amount); err != nil {
				return fmt.Errorf("bootstrap %s allocation to %s: %w", entry.Symbol, alloc.Owner, err)
			}
		}
		logger.Info("bootstrap mint registered",
			slog.String("symbol", entry.Symbol),
			slog.String("mint", crypto.FormatMint(mint)),
			slog.Int("allocations", len(entry.Allocations)))
	}
	return nil
}
