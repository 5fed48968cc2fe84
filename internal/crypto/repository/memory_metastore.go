// Package repository provides Metastore implementations for envelope key records.
//
// The in-memory metastore lives here; SQL and DynamoDB backends live in the
// mysql, postgresql and dynamodb subpackages.
package repository

import (
	"context"
	"slices"
	"sync"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
)

// MemoryMetastore keeps records in process memory. Versions of a key are kept
// sorted by creation time. Records are copied on the way in and out.
type MemoryMetastore struct {
	mu   sync.RWMutex
	keys map[string][]*cryptoDomain.EnvelopeKeyRecord
}

// NewMemoryMetastore creates an empty MemoryMetastore.
func NewMemoryMetastore() *MemoryMetastore {
	return &MemoryMetastore{
		keys: make(map[string][]*cryptoDomain.EnvelopeKeyRecord),
	}
}

// Load returns the record for (id, created), or nil.
func (m *MemoryMetastore) Load(
	ctx context.Context,
	id string,
	created int64,
) (*cryptoDomain.EnvelopeKeyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.keys[id]
	i, found := slices.BinarySearchFunc(versions, created, compareCreated)
	if !found {
		return nil, nil
	}
	return cloneRecord(versions[i]), nil
}

// LoadLatest returns the newest record for id, or nil.
func (m *MemoryMetastore) LoadLatest(ctx context.Context, id string) (*cryptoDomain.EnvelopeKeyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.keys[id]
	if len(versions) == 0 {
		return nil, nil
	}
	return cloneRecord(versions[len(versions)-1]), nil
}

// Store inserts record unless (id, created) already exists.
func (m *MemoryMetastore) Store(
	ctx context.Context,
	id string,
	created int64,
	record *cryptoDomain.EnvelopeKeyRecord,
) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions := m.keys[id]
	i, found := slices.BinarySearchFunc(versions, created, compareCreated)
	if found {
		return false, nil
	}

	stored := cloneRecord(record)
	stored.ID = id
	stored.Created = created
	m.keys[id] = slices.Insert(versions, i, stored)
	return true, nil
}

func compareCreated(record *cryptoDomain.EnvelopeKeyRecord, created int64) int {
	switch {
	case record.Created < created:
		return -1
	case record.Created > created:
		return 1
	default:
		return 0
	}
}

func cloneRecord(record *cryptoDomain.EnvelopeKeyRecord) *cryptoDomain.EnvelopeKeyRecord {
	clone := *record
	clone.EncryptedKey = slices.Clone(record.EncryptedKey)
	if record.ParentKeyMeta != nil {
		parent := *record.ParentKeyMeta
		clone.ParentKeyMeta = &parent
	}
	return &clone
}
