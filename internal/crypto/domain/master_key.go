package domain

import (
	"encoding/base64"
	"fmt"
)

// MasterKey is the root key of the static KMS.
//
// The static KMS wraps system keys with this key directly. It exists for tests
// and local development; production deployments use a cloud KMS instead.
type MasterKey struct {
	ID  string
	Key []byte
}

// NewStaticMasterKey builds the static KMS master key from its configured value.
//
// The value is either 32 raw bytes or the standard base64 encoding of 32 bytes.
// An empty value selects DefaultStaticMasterKey.
func NewStaticMasterKey(value string) (*MasterKey, error) {
	if value == "" {
		return &MasterKey{ID: "static", Key: []byte(DefaultStaticMasterKey)}, nil
	}

	if len(value) == KeySize {
		return &MasterKey{ID: "static", Key: []byte(value)}, nil
	}

	key, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: static master key is neither %d bytes nor base64", ErrInvalidKeySize, KeySize)
	}
	if len(key) != KeySize {
		Zero(key)
		return nil, fmt.Errorf("%w: static master key must be %d bytes, got %d", ErrInvalidKeySize, KeySize, len(key))
	}
	return &MasterKey{ID: "static", Key: key}, nil
}

// Close zeroes the key material.
func (m *MasterKey) Close() {
	Zero(m.Key)
	m.Key = nil
}
