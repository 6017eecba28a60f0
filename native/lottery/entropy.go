package lottery

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

// EntropySource supplies the seed used to draw winners.
type EntropySource interface {
	Seed(lotteryID [20]byte, now int64) ([32]byte, error)
}

// EntropyFunc adapts a function to the EntropySource interface.
type EntropyFunc func(lotteryID [20]byte, now int64) ([32]byte, error)

// Seed implements EntropySource.
func (f EntropyFunc) Seed(lotteryID [20]byte, now int64) ([32]byte, error) {
	return f(lotteryID, now)
}

// ClockEntropy derives the seed from the ledger clock and, when configured,
// the current slot height. Anyone able to choose when reveal is submitted can
// bias the result; it is NOT suitable for prizes worth manipulating and a
// verifiable randomness source should be injected instead.
type ClockEntropy struct {
	Slot func() uint64
}

// Seed implements EntropySource.
func (c ClockEntropy) Seed(lotteryID [20]byte, now int64) ([32]byte, error) {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(now))
	if c.Slot != nil {
		binary.LittleEndian.PutUint64(buf[8:], c.Slot())
	}
	h := blake3.New(32, nil)
	_, _ = h.Write(lotteryID[:])
	_, _ = h.Write(buf[:])
	var seed [32]byte
	copy(seed[:], h.Sum(nil))
	return seed, nil
}

// FixedEntropy always returns the same seed. Intended for tests and replays.
type FixedEntropy [32]byte

// Seed implements EntropySource.
func (f FixedEntropy) Seed([20]byte, int64) ([32]byte, error) { return [32]byte(f), nil }
