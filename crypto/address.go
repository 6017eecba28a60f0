package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix is the human-readable part of a bech32 address.
type AddressPrefix string

const (
	// AccountPrefix tags participants, organizers and fee recipients.
	AccountPrefix AddressPrefix = "raf"
	// MintPrefix tags token mints.
	MintPrefix AddressPrefix = "rmint"
)

// Address is a 20-byte identifier paired with the prefix it is displayed
// under.
type Address struct {
	prefix AddressPrefix
	raw    [20]byte
}

// NewAddress wraps raw bytes. It panics when b is not 20 bytes long.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != 20 {
		panic("address must be 20 bytes long")
	}
	var raw [20]byte
	copy(raw[:], b)
	return Address{prefix: prefix, raw: raw}
}

// FromArray wraps a fixed-size address.
func FromArray(prefix AddressPrefix, b [20]byte) Address {
	return Address{prefix: prefix, raw: b}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte { return append([]byte(nil), a.raw[:]...) }

func (a Address) Array() [20]byte { return a.raw }

func (a Address) Prefix() AddressPrefix { return a.prefix }

// DecodeAddress parses any bech32 address carrying a 20-byte payload.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address must decode to 20 bytes, got %d", len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// DecodeAs parses value and requires it to carry the given prefix.
func DecodeAs(prefix AddressPrefix, value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("empty %s address", prefix)
	}
	addr, err := DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	if addr.Prefix() != prefix {
		return [20]byte{}, fmt.Errorf("address %s must use the %s prefix", trimmed, prefix)
	}
	return addr.Array(), nil
}

// FormatAccount renders an account address.
func FormatAccount(addr [20]byte) string { return FromArray(AccountPrefix, addr).String() }

// FormatMint renders a mint address.
func FormatMint(addr [20]byte) string { return FromArray(MintPrefix, addr).String() }
