package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

// CryptoKey holds decrypted key material for one key version.
//
// The bytes are only reachable through WithBytes, which guards them against a
// concurrent Close. Close zeroes the material; afterwards WithBytes fails with
// ErrKeyClosed. A CryptoKey is never serialized.
type CryptoKey struct {
	created int64
	revoked atomic.Bool

	mu     sync.RWMutex
	key    []byte
	closed bool
}

// NewCryptoKey takes ownership of key. Callers must not use the slice afterwards.
func NewCryptoKey(key []byte, created int64, revoked bool) *CryptoKey {
	k := &CryptoKey{key: key, created: created}
	k.revoked.Store(revoked)
	return k
}

// Created returns the creation time in unix seconds.
func (k *CryptoKey) Created() int64 {
	return k.created
}

// Revoked reports whether the key was marked revoked in the metastore.
func (k *CryptoKey) Revoked() bool {
	return k.revoked.Load()
}

// SetRevoked updates the revoked flag after a metastore re-check.
func (k *CryptoKey) SetRevoked(revoked bool) {
	k.revoked.Store(revoked)
}

// IsExpired reports whether the key is older than expireAfter at now.
func (k *CryptoKey) IsExpired(now time.Time, expireAfter time.Duration) bool {
	return IsKeyExpired(k.created, now, expireAfter)
}

// WithBytes calls fn with the key material while holding a read lock.
// fn must not retain the slice.
func (k *CryptoKey) WithBytes(fn func(key []byte) error) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return ErrKeyClosed
	}
	return fn(k.key)
}

// Close zeroes the key material. It is safe to call more than once.
func (k *CryptoKey) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return
	}
	Zero(k.key)
	k.key = nil
	k.closed = true
}

// IsKeyExpired reports whether a key created at the given unix time is older than expireAfter.
func IsKeyExpired(created int64, now time.Time, expireAfter time.Duration) bool {
	return now.Sub(time.Unix(created, 0)) >= expireAfter
}

// NewKeyTimestamp returns the creation timestamp for a new key version.
// Keys are versioned at second precision.
func NewKeyTimestamp(now time.Time) int64 {
	return now.Truncate(time.Second).Unix()
}
