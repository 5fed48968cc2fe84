// Package usecase defines the business logic interfaces for envelope encryption.
//
// This package contains the metastore contract, the envelope engine that walks
// the system key -> intermediate key -> data row key hierarchy, and the session
// factory that hands out per-partition engines.
package usecase

import (
	"context"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
)

// Metastore defines the interface for envelope key record persistence.
//
// Records are addressed by key ID plus creation time (unix seconds) and are
// immutable once written: Store never overwrites an existing version.
//
// Implementation requirements:
//   - Return a nil record (not an error) when a key is absent
//   - Report a duplicate (id, created) from Store as (false, nil)
//   - Be safe for concurrent access
//
// Available implementations:
//   - MemoryMetastore: process-local map, for tests and single-process tools
//   - MySQLMetastore and PostgreSQLMetastore: encryption_key table
//   - DynamoDBMetastore: EncryptionKey table with Id/Created keys
type Metastore interface {
	// Load retrieves the record stored for exactly (id, created).
	Load(ctx context.Context, id string, created int64) (*cryptoDomain.EnvelopeKeyRecord, error)

	// LoadLatest retrieves the record with the highest created value for id.
	LoadLatest(ctx context.Context, id string) (*cryptoDomain.EnvelopeKeyRecord, error)

	// Store inserts record under (id, created). It returns false without modifying
	// anything when that version already exists.
	Store(ctx context.Context, id string, created int64, record *cryptoDomain.EnvelopeKeyRecord) (bool, error)
}

// EnvelopeUseCase encrypts and decrypts payloads for a single partition.
//
// Every call generates a fresh data row key. The intermediate key that wraps it is
// looked up in the session's key cache and created on demand, together with the
// system key above it when that is also missing or expired.
type EnvelopeUseCase interface {
	// Encrypt encrypts data and returns the self-contained record.
	//
	// The payload size is checked against the policy before any cryptographic work.
	Encrypt(ctx context.Context, data []byte) (*cryptoDomain.DataRowRecord, error)

	// Decrypt returns the plaintext of a record produced by Encrypt for the same partition.
	//
	// Records issued for another partition fail with ErrPartitionMismatch, which is a
	// key-not-found class error.
	Decrypt(ctx context.Context, drr *cryptoDomain.DataRowRecord) ([]byte, error)

	// Close releases the session's intermediate key cache.
	Close()
}
