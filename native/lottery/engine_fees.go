package lottery

import (
	"fmt"

	"rafflechain/core/types"
)

// CreateFeeConfig registers the fee configuration for an organizer. Each
// organizer owns at most one configuration.
func (e *Engine) CreateFeeConfig(owner [20]byte, feePercent uint8, feeRecipient, admin, mint [20]byte) (*FeeConfig, error) {
	if feePercent > MaxFeePercent {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFeePercent, feePercent)
	}
	if owner == ([20]byte{}) {
		return nil, fmt.Errorf("%w: owner required", ErrInvalidArgument)
	}
	if feeRecipient == ([20]byte{}) {
		feeRecipient = owner
	}
	var created *FeeConfig
	err := e.apply(func(st State) ([]*types.Event, error) {
		if _, ok, err := st.FeeConfigGet(owner); err != nil {
			return nil, err
		} else if ok {
			return nil, fmt.Errorf("%w: fee config for %x", ErrAlreadyExists, owner)
		}
		if mint != ([20]byte{}) {
			exists, err := st.MintExists(mint)
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, fmt.Errorf("%w: mint %x not registered", ErrMintMismatch, mint)
			}
		}
		cfg := &FeeConfig{
			Owner:        owner,
			FeePercent:   feePercent,
			FeeRecipient: feeRecipient,
			Admin:        admin,
			TokenMint:    mint,
		}
		if err := st.FeeConfigPut(cfg); err != nil {
			return nil, err
		}
		created = cfg
		return []*types.Event{newFeeConfigEvent(EventTypeFeeConfigCreated, cfg)}, nil
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// UpdateFeeConfig changes the fee percent and, when newRecipient is non-nil,
// the fee recipient. Only the owner or the admin may call it. Lotteries pick
// up the new values on their next purchase.
func (e *Engine) UpdateFeeConfig(caller, owner [20]byte, feePercent uint8, newRecipient *[20]byte) (*FeeConfig, error) {
	if feePercent > MaxFeePercent {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFeePercent, feePercent)
	}
	var updated *FeeConfig
	err := e.apply(func(st State) ([]*types.Event, error) {
		cfg, err := loadFeeConfig(st, owner)
		if err != nil {
			return nil, err
		}
		if !cfg.CanUpdate(caller) {
			return nil, fmt.Errorf("%w: caller may not update fee config", ErrUnauthorized)
		}
		cfg.FeePercent = feePercent
		if newRecipient != nil {
			if *newRecipient == ([20]byte{}) {
				return nil, fmt.Errorf("%w: fee recipient required", ErrInvalidArgument)
			}
			cfg.FeeRecipient = *newRecipient
		}
		if err := st.FeeConfigPut(cfg); err != nil {
			return nil, err
		}
		updated = cfg
		return []*types.Event{newFeeConfigEvent(EventTypeFeeConfigUpdated, cfg)}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}
