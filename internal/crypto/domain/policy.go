package domain

import "time"

// CryptoPolicy controls key rotation, cache trust and payload limits.
type CryptoPolicy struct {
	// ExpireKeyAfter is the age after which a system or intermediate key is rotated.
	ExpireKeyAfter time.Duration
	// RevokeCheckInterval is how long a cached key is served before it is re-read
	// from the metastore to pick up revocations and rotations by other processes.
	RevokeCheckInterval time.Duration
	// MaxDataSize bounds a single payload, in bytes.
	MaxDataSize int
	// Algorithm is the AEAD used for every layer of the hierarchy.
	Algorithm Algorithm
}

// NewCryptoPolicy returns a policy with zero values replaced by defaults.
func NewCryptoPolicy(expireAfter, checkInterval time.Duration, maxDataSize int, alg Algorithm) *CryptoPolicy {
	if expireAfter <= 0 {
		expireAfter = DefaultExpireAfter
	}
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	if maxDataSize <= 0 {
		maxDataSize = DefaultMaxDataSize
	}
	if alg == "" {
		alg = AESGCM
	}
	return &CryptoPolicy{
		ExpireKeyAfter:      expireAfter,
		RevokeCheckInterval: checkInterval,
		MaxDataSize:         maxDataSize,
		Algorithm:           alg,
	}
}
