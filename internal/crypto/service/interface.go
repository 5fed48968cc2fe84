// Package service provides the cryptographic building blocks of the envelope hierarchy:
// AEAD ciphers (AES-256-GCM, ChaCha20-Poly1305), the key manager that generates and
// wraps keys, and the KMS adapters that protect system keys.
package service

import (
	"context"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// KeyManager generates keys and encrypts keys and payloads under other keys.
//
// Every ciphertext it produces is laid out as ciphertext || nonce.
type KeyManager interface {
	// GenerateKey creates a random key stamped with the given creation time.
	GenerateKey(created int64) (*cryptoDomain.CryptoKey, error)

	// EncryptKey encrypts key under parent.
	EncryptKey(key, parent *cryptoDomain.CryptoKey) ([]byte, error)

	// DecryptKey decrypts a key encrypted under parent.
	DecryptKey(
		encrypted []byte,
		created int64,
		revoked bool,
		parent *cryptoDomain.CryptoKey,
	) (*cryptoDomain.CryptoKey, error)

	// EncryptData encrypts a payload under key.
	EncryptData(data []byte, key *cryptoDomain.CryptoKey) ([]byte, error)

	// DecryptData decrypts a payload encrypted under key.
	DecryptData(data []byte, key *cryptoDomain.CryptoKey) ([]byte, error)
}

// KeyManagementService protects system keys with an external key management system.
type KeyManagementService interface {
	// EncryptKey wraps raw system key bytes.
	EncryptKey(ctx context.Context, key []byte) ([]byte, error)

	// DecryptKey unwraps system key bytes produced by EncryptKey.
	DecryptKey(ctx context.Context, encrypted []byte) ([]byte, error)

	// Close releases the underlying keepers.
	Close() error
}

// KMSKeeper is the subset of *secrets.Keeper used by the KMS adapters.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}
