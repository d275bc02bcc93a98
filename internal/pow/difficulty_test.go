package pow_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"proxy-pow-filter/internal/pow"
)

func TestGetDifficulty_TopBytesAndTrailer(t *testing.T) {
	for _, level := range []uint64{1, 2, 3, 6, 1_000_000} {
		target := pow.GetDifficulty(level)
		got := binary.BigEndian.Uint64(target[:8])
		want := ^uint64(0) / level
		assert.Equal(t, want, got, "level=%d", level)
		for _, b := range target[8:] {
			assert.EqualValues(t, 0xff, b)
		}
	}
}

func TestGetDifficulty_LevelOneIsMaximalTarget(t *testing.T) {
	target := pow.GetDifficulty(1)
	for _, b := range target {
		assert.EqualValues(t, 0xff, b)
	}
}

func TestCmp_TotalOrder(t *testing.T) {
	low := pow.GetDifficulty(1_000_000)
	high := pow.GetDifficulty(1)
	assert.Equal(t, -1, pow.Cmp(low, high))
	assert.Equal(t, 1, pow.Cmp(high, low))
	assert.Equal(t, 0, pow.Cmp(low, low))
}

// TestValidNonce_MonotoneInTarget covers I2: a hash valid at target T
// stays valid at any target T' >= T.
func TestValidNonce_MonotoneInTarget(t *testing.T) {
	data := []byte("base+timestamp+path")
	nonce := []byte{0x01, 0x02, 0x03}

	tight := pow.GetDifficulty(1_000_000)
	loose := pow.GetDifficulty(1)

	if pow.ValidNonce(data, nonce, tight) {
		assert.True(t, pow.ValidNonce(data, nonce, loose))
	}
	// the loosest possible target (level 1) admits every hash.
	assert.True(t, pow.ValidNonce(data, nonce, loose))
}

func TestValidNonce_RejectsWhenAboveTarget(t *testing.T) {
	data := []byte("x")
	nonce := []byte("y")
	var zero pow.Target // the tightest possible target: nothing can beat it
	assert.False(t, pow.ValidNonce(data, nonce, zero))
}
