package domain

import (
	"github.com/allisson/asherah/internal/errors"
)

// Cryptographic operation error definitions.
//
// These errors wrap the shared classes from internal/errors so callers can test
// for a class (errors.Is(err, errors.ErrNotFound)) or for the exact failure.
// None of them ever carries key material.
var (
	// ErrUnsupportedAlgorithm indicates the requested AEAD algorithm is not supported.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates a key is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrDecryptionFailed indicates AEAD authentication failed.
	//
	// The cause (wrong key, tampered ciphertext, truncated nonce) is deliberately
	// not disclosed.
	ErrDecryptionFailed = errors.Wrap(errors.ErrInvalidInput, "decryption failed")

	// ErrEncryptionFailed indicates the AEAD or random source failed while sealing.
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrKeyNotFound indicates an intermediate or system key could not be resolved
	// from the cache or the metastore.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "key not found")

	// ErrPartitionMismatch indicates a record was issued for a different partition.
	// It belongs to the key-not-found class: the partition's key cannot be found.
	ErrPartitionMismatch = errors.Wrap(ErrKeyNotFound, "record does not belong to partition")

	// ErrDataTooLarge indicates a payload exceeds the configured maximum size.
	ErrDataTooLarge = errors.Wrap(errors.ErrInvalidInput, "data too large")

	// ErrInvalidPartitionID indicates an empty or oversized partition ID.
	ErrInvalidPartitionID = errors.Wrap(errors.ErrInvalidInput, "invalid partition id")

	// ErrInvalidDataRowRecord indicates a malformed or incomplete DataRowRecord.
	ErrInvalidDataRowRecord = errors.Wrap(errors.ErrInvalidInput, "invalid data row record")

	// ErrInvalidKeyRecord indicates a malformed envelope key record read from the metastore.
	ErrInvalidKeyRecord = errors.Wrap(errors.ErrInvalidInput, "invalid key record")

	// ErrKMSUnavailable indicates no KMS region could wrap or unwrap a key.
	ErrKMSUnavailable = errors.Wrap(errors.ErrUnavailable, "kms unavailable")

	// ErrMetastoreUnavailable indicates the metastore failed or timed out.
	ErrMetastoreUnavailable = errors.Wrap(errors.ErrUnavailable, "metastore unavailable")

	// ErrDuplicateKey indicates a (key ID, created) pair already exists in the metastore.
	ErrDuplicateKey = errors.Wrap(errors.ErrConflict, "duplicate key")

	// ErrKeyClosed indicates a key's material was zeroed before use.
	ErrKeyClosed = errors.Wrap(errors.ErrFailedPrecondition, "key closed")

	// ErrCacheClosed indicates a key cache was used after Close.
	ErrCacheClosed = errors.Wrap(errors.ErrFailedPrecondition, "key cache closed")

	// ErrSessionClosed indicates a session was used after Close.
	ErrSessionClosed = errors.Wrap(errors.ErrFailedPrecondition, "session closed")

	// ErrSessionFactoryClosed indicates a session was requested after shutdown.
	ErrSessionFactoryClosed = errors.Wrap(errors.ErrFailedPrecondition, "session factory closed")
)
