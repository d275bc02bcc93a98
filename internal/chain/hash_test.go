package chain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxy-pow-filter/internal/chain"
)

func TestParseHash_RoundTrips(t *testing.T) {
	s := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	h, err := chain.ParseHash(s)
	require.NoError(t, err)
	assert.Equal(t, s, h.String())
}

func TestParseHash_RejectsWrongLength(t *testing.T) {
	_, err := chain.ParseHash("deadbeef")
	assert.Error(t, err)
}

func TestParseHash_RejectsUppercase(t *testing.T) {
	s := "00112233445566778899AABBCCDDEEFF00112233445566778899aabbccddeeff"
	_, err := chain.ParseHash(s)
	assert.Error(t, err)
}

func TestParseHash_RejectsNonHex(t *testing.T) {
	s := "zz112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	_, err := chain.ParseHash(s)
	assert.Error(t, err)
}
