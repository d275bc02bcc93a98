package chain

import (
	"encoding/hex"
	"fmt"
)

// Hash is a 32-byte chain-tip hash, the non-replayable seed clients mix
// into their PoW input.
type Hash [32]byte

// String renders h as lowercase hex, the wire form used everywhere this
// filter exchanges hashes (headers, KV keys, JSON bodies).
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the raw 32 bytes, in big-endian order as received.
func (h Hash) Bytes() []byte { return h[:] }

// ParseHash parses a 64-character lowercase hex string into a Hash.
// Anything else — wrong length, uppercase, non-hex characters — is
// rejected rather than normalized, matching the strict admissibility
// check the validator relies on.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 64 {
		return h, fmt.Errorf("chain: hash must be 64 hex characters, got %d", len(s))
	}
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			continue
		}
		return h, fmt.Errorf("chain: hash must be lowercase hex")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("chain: %w", err)
	}
	copy(h[:], raw)
	return h, nil
}
