package domain

import "time"

// Algorithm represents the AEAD cipher used for payload and key encryption.
//
// Both supported algorithms use a 256-bit key, a 12-byte nonce and a 16-byte
// authentication tag, so records produced by either have the same overhead.
type Algorithm string

const (
	// AESGCM represents AES-256-GCM. It is the default and benefits from AES-NI.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 represents ChaCha20-Poly1305, preferred on hardware without AES acceleration.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// ParseAlgorithm maps a configuration value to an Algorithm. An empty value selects AESGCM.
func ParseAlgorithm(value string) (Algorithm, error) {
	switch Algorithm(value) {
	case "", AESGCM:
		return AESGCM, nil
	case ChaCha20:
		return ChaCha20, nil
	default:
		return "", ErrUnsupportedAlgorithm
	}
}

const (
	// KeySize is the size in bytes of every key in the hierarchy.
	KeySize = 32

	// NonceSize is the nonce size appended to every ciphertext.
	NonceSize = 12

	// TagSize is the authentication tag size included in every ciphertext.
	TagSize = 16

	// MaxPartitionIDLength is the largest accepted partition ID, in bytes.
	MaxPartitionIDLength = 1024

	// DefaultMaxDataSize bounds a single payload.
	DefaultMaxDataSize = 100 * 1024 * 1024

	// MaxRecordJSONSize bounds a serialized DataRowRecord accepted for decryption.
	MaxRecordJSONSize = 10 * 1024 * 1024

	// DefaultExpireAfter is how long a system or intermediate key stays current.
	DefaultExpireAfter = 90 * 24 * time.Hour

	// DefaultCheckInterval is how long a cached key is trusted before it is re-validated.
	DefaultCheckInterval = 60 * time.Minute

	// DefaultStaticMasterKey is the well-known master key used by the static KMS.
	// It exists for tests and local development only.
	DefaultStaticMasterKey = "thisIsAStaticMasterKeyForTesting"
)
