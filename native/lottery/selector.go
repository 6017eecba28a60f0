package lottery

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// maxRejections bounds the hash retries per winner. After that the draw
// probes linearly from the last candidate.
const maxRejections = 64

// drawCandidate returns sha256(seed || round || attempt) reduced mod sold.
func drawCandidate(seed [32]byte, round, attempt, sold uint64) uint64 {
	var buf [48]byte
	copy(buf[:32], seed[:])
	binary.LittleEndian.PutUint64(buf[32:40], round)
	binary.LittleEndian.PutUint64(buf[40:48], attempt)
	digest := sha256.Sum256(buf[:])
	return binary.LittleEndian.Uint64(digest[:8]) % sold
}

// SelectWinners draws count distinct ticket ids from [0, sold) without
// replacement. The result is fully determined by seed.
func SelectWinners(seed [32]byte, sold uint64, count int) ([]uint64, error) {
	if sold == 0 {
		return nil, ErrNoParticipants
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: winner count must be positive", ErrInvalidArgument)
	}
	if uint64(count) > sold {
		return nil, fmt.Errorf("%w: %d winners requested from %d sold tickets", ErrInvalidArgument, count, sold)
	}
	chosen := make(map[uint64]struct{}, count)
	out := make([]uint64, 0, count)
	for round := uint64(0); len(out) < count; round++ {
		var candidate uint64
		picked := false
		for attempt := uint64(0); attempt < maxRejections; attempt++ {
			candidate = drawCandidate(seed, round, attempt, sold)
			if _, taken := chosen[candidate]; !taken {
				picked = true
				break
			}
		}
		for !picked {
			candidate = (candidate + 1) % sold
			if _, taken := chosen[candidate]; !taken {
				picked = true
			}
		}
		chosen[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out, nil
}
