// Package pow implements the proof-of-work difficulty target math and
// the per-request validator state machine.
package pow

import (
	"crypto/sha256"
	"encoding/binary"
)

// Target is a 256-bit big-endian difficulty threshold. A candidate
// SHA-256 hash is valid iff, compared big-endian byte-wise, it is <=
// Target.
type Target [32]byte

// GetDifficulty computes the difficulty target for level, a strictly
// positive scalar. The top 8 bytes are math.MaxUint64/level in
// big-endian order; the remaining 24 bytes are 0xFF. Callers must treat
// level == 0 as the "no challenge" sentinel before calling this — it is
// never valid to call GetDifficulty(0).
func GetDifficulty(level uint64) Target {
	var t Target
	for i := range t {
		t[i] = 0xff
	}
	binary.BigEndian.PutUint64(t[:8], ^uint64(0)/level)
	return t
}

// Cmp is the total order the 256-bit comparison requires: -1 if a<b, 0
// if equal, 1 if a>b, treating both as big-endian unsigned integers.
func Cmp(a, b Target) int {
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// ValidNonce reports whether SHA256(data||nonce) <= target.
func ValidNonce(data, nonce []byte, target Target) bool {
	h := sha256.New()
	h.Write(data)
	h.Write(nonce)
	var sum Target
	copy(sum[:], h.Sum(nil))
	return Cmp(sum, target) <= 0
}
