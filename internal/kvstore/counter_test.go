package kvstore_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxy-pow-filter/internal/hostabi"
	"proxy-pow-filter/internal/kvstore"
)

type fakeKV struct {
	values map[string][]byte
	cas    map[string]uint32
	// conflictsRemaining forces that many CAS conflicts before Set succeeds.
	conflictsRemaining int
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string][]byte{}, cas: map[string]uint32{}}
}

func (f *fakeKV) Get(key string) ([]byte, uint32, error) {
	return f.values[key], f.cas[key], nil
}

func (f *fakeKV) Set(key string, value []byte, cas uint32) error {
	if cas != f.cas[key] {
		return hostabi.ErrCASConflict
	}
	if f.conflictsRemaining > 0 {
		f.conflictsRemaining--
		return hostabi.ErrCASConflict
	}
	f.values[key] = value
	f.cas[key]++
	return nil
}

func TestCounterBucket_GetAbsentKeyIsZero(t *testing.T) {
	c := kvstore.New(newFakeKV(), "pow")
	v, err := c.Get("10.0.0.1:1:example.com/api")
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestCounterBucket_IncAccumulates(t *testing.T) {
	kv := newFakeKV()
	c := kvstore.New(kv, "pow")
	key := "10.0.0.1:1:example.com/api"

	dropped, err := c.Inc(key, 1)
	require.NoError(t, err)
	assert.False(t, dropped)

	dropped, err = c.Inc(key, 1)
	require.NoError(t, err)
	assert.False(t, dropped)

	v, err := c.Get(key)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestCounterBucket_IncRetriesOnCASConflict(t *testing.T) {
	kv := newFakeKV()
	kv.conflictsRemaining = 3
	c := kvstore.New(kv, "pow")

	dropped, err := c.Inc("key", 5)
	require.NoError(t, err)
	assert.False(t, dropped)

	v, err := c.Get("key")
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)
}

func TestCounterBucket_IncDropsAfterExhaustingRetries(t *testing.T) {
	kv := newFakeKV()
	kv.conflictsRemaining = 1000
	c := kvstore.New(kv, "pow")

	dropped, err := c.Inc("key", 1)
	require.NoError(t, err)
	assert.True(t, dropped)
}

func TestCounterBucket_NamespacesKeys(t *testing.T) {
	kv := newFakeKV()
	a := kvstore.New(kv, "ns-a")
	b := kvstore.New(kv, "ns-b")

	_, err := a.Inc("shared", 1)
	require.NoError(t, err)

	v, err := b.Get("shared")
	require.NoError(t, err)
	assert.Zero(t, v, "namespaces must not collide on the same underlying key")
}

func TestCounterBucket_EncodingRoundTrips(t *testing.T) {
	kv := newFakeKV()
	c := kvstore.New(kv, "pow")
	_, err := c.Inc("key", 1<<40)
	require.NoError(t, err)

	raw := kv.values["pow:key"]
	require.Len(t, raw, 8)
	assert.EqualValues(t, 1<<40, binary.LittleEndian.Uint64(raw))
}
