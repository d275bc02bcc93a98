// Package kvstore implements the time-windowed request counter backed by
// the host's shared key-value surface.
package kvstore

import (
	"encoding/binary"

	"proxy-pow-filter/internal/hostabi"
)

// maxCASRetries bounds the read-modify-write retry loop. The original
// implementation retried unboundedly; this risks a hot-loop stall under
// sustained contention, so a small bound is enforced instead — an
// increment lost to contention is simply dropped, which under-counts
// only until the bucket itself rotates.
const maxCASRetries = 8

// CounterBucket is a namespaced view over the host KV store, keyed by
// opaque strings the caller shapes (e.g. "ip:window:host:pattern").
type CounterBucket struct {
	kv        hostabi.KVStore
	namespace string
}

// New returns a CounterBucket scoped to namespace. All keys passed to
// Get/Inc are prefixed with it, so callers sharing a KVStore never
// collide across namespaces.
func New(kv hostabi.KVStore, namespace string) *CounterBucket {
	return &CounterBucket{kv: kv, namespace: namespace}
}

func (c *CounterBucket) fullKey(key string) string {
	return c.namespace + ":" + key
}

// Get reads the current count for key, returning 0 for an absent key.
func (c *CounterBucket) Get(key string) (uint64, error) {
	raw, _, err := c.kv.Get(c.fullKey(key))
	if err != nil {
		return 0, err
	}
	return decode(raw), nil
}

// Inc adds delta to the count for key, retrying on CAS conflict for at
// most maxCASRetries attempts in total. If every attempt fails the increment is
// dropped (the caller is expected to log this); the count may
// under-count under heavy contention, which is acceptable since the key
// rotates and abuse re-triggers the next bucket.
func (c *CounterBucket) Inc(key string, delta uint64) (dropped bool, err error) {
	full := c.fullKey(key)
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		raw, cas, getErr := c.kv.Get(full)
		if getErr != nil {
			return false, getErr
		}
		next := decode(raw) + delta
		setErr := c.kv.Set(full, encode(next), cas)
		if setErr == nil {
			return false, nil
		}
		if setErr != hostabi.ErrCASConflict {
			return false, setErr
		}
	}
	return true, nil
}

func decode(raw []byte) uint64 {
	if len(raw) != 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(raw)
}

func encode(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}
