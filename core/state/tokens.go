package state

import (
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	ErrMintExists       = errors.New("state: mint already registered")
	ErrMintNotFound     = errors.New("state: mint not registered")
	ErrMintUnauthorized = errors.New("state: caller is not the mint authority")
	ErrBalanceOverflow  = errors.New("state: balance overflow")
	ErrVaultRecipient   = errors.New("state: cannot mint into a lottery vault")
)

// TokenMetadata describes a registered fungible token.
type TokenMetadata struct {
	Symbol    string
	Name      string
	Decimals  uint8
	Authority [20]byte
}

// MintAddress derives the mint identifier for a token symbol.
func MintAddress(symbol string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("mint:" + normalizeSymbol(symbol)))
	var out [20]byte
	copy(out[:], digest[12:])
	return out
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (t *Txn) mintMetadata(mint [20]byte) (*TokenMetadata, error) {
	data, ok, err := t.get(mintKey(mint))
	if err != nil || !ok {
		return nil, err
	}
	meta := new(TokenMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, fmt.Errorf("state: decode mint: %w", err)
	}
	return meta, nil
}

// MintExists reports whether mint has been registered.
func (t *Txn) MintExists(mint [20]byte) (bool, error) {
	_, ok, err := t.get(mintKey(mint))
	return ok, err
}

// RegisterMint stores the metadata for a token and returns its mint address.
// Only authority may later issue new supply with MintTo.
func (m *Manager) RegisterMint(symbol, name string, decimals uint8, authority [20]byte) ([20]byte, error) {
	normalized := normalizeSymbol(symbol)
	if normalized == "" {
		return [20]byte{}, fmt.Errorf("token symbol must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return [20]byte{}, fmt.Errorf("token %s: name must not be empty", normalized)
	}
	mint := MintAddress(normalized)
	tx := m.Begin().(*Txn)
	defer tx.Discard()
	if existing, err := tx.mintMetadata(mint); err != nil {
		return [20]byte{}, err
	} else if existing != nil {
		return [20]byte{}, fmt.Errorf("%w: %s", ErrMintExists, normalized)
	}
	encoded, err := rlp.EncodeToBytes(&TokenMetadata{
		Symbol:    normalized,
		Name:      strings.TrimSpace(name),
		Decimals:  decimals,
		Authority: authority,
	})
	if err != nil {
		return [20]byte{}, err
	}
	if err := tx.put(mintKey(mint), encoded); err != nil {
		return [20]byte{}, err
	}
	if err := tx.Commit(); err != nil {
		return [20]byte{}, err
	}
	return mint, nil
}

// Mint returns the metadata registered for mint.
func (m *Manager) Mint(mint [20]byte) (*TokenMetadata, error) {
	tx := m.Begin().(*Txn)
	defer tx.Discard()
	meta, err := tx.mintMetadata(mint)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, ErrMintNotFound
	}
	return meta, nil
}

// MintTo issues amount of new supply to recipient.
func (m *Manager) MintTo(caller, mint, recipient [20]byte, amount uint64) (uint64, error) {
	tx := m.Begin().(*Txn)
	defer tx.Discard()
	meta, err := tx.mintMetadata(mint)
	if err != nil {
		return 0, err
	}
	if meta == nil {
		return 0, ErrMintNotFound
	}
	if caller != meta.Authority {
		return 0, ErrMintUnauthorized
	}
	// Vault balances only move through the lottery engine.
	if id, isVault, err := tx.VaultLottery(recipient); err != nil {
		return 0, err
	} else if isVault {
		return 0, fmt.Errorf("%w: %x", ErrVaultRecipient, id)
	}
	balance, err := tx.Balance(recipient, mint)
	if err != nil {
		return 0, err
	}
	if amount > ^uint64(0)-balance {
		return 0, ErrBalanceOverflow
	}
	balance += amount
	if err := tx.SetBalance(recipient, mint, balance); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return balance, nil
}
