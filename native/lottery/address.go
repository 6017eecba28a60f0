package lottery

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Namespaces used for deterministic account derivation.
const (
	NamespaceFeeConfig = "fee-config"
	NamespaceLottery   = "lottery"
	NamespacePrize     = "prize"
	NamespaceProceeds  = "proceeds"
)

// DeriveAddress maps (namespace, owner) to an account address by taking the
// low 20 bytes of keccak256(namespace || owner). The mapping is pure and
// collision resistant across namespaces.
func DeriveAddress(namespace string, owner [20]byte) [20]byte {
	digest := ethcrypto.Keccak256([]byte(namespace), owner[:])
	var out [20]byte
	copy(out[:], digest[12:])
	return out
}

// FeeConfigAddress returns the storage address of an organizer's fee config.
func FeeConfigAddress(owner [20]byte) [20]byte { return DeriveAddress(NamespaceFeeConfig, owner) }

// PrizeVaultAddress returns the prize vault owned by the lottery.
func PrizeVaultAddress(id [20]byte) [20]byte { return DeriveAddress(NamespacePrize, id) }

// ProceedsVaultAddress returns the proceeds vault owned by the lottery.
func ProceedsVaultAddress(id [20]byte) [20]byte { return DeriveAddress(NamespaceProceeds, id) }

// DeriveLotteryID produces the identifier used when the creator does not
// supply one: keccak256("lottery" || creator || feeOwner || round).
func DeriveLotteryID(creator, feeOwner [20]byte, round uint64) [20]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], round)
	digest := ethcrypto.Keccak256([]byte(NamespaceLottery), creator[:], feeOwner[:], buf[:])
	var out [20]byte
	copy(out[:], digest[12:])
	return out
}
