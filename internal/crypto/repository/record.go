package repository

import (
	"encoding/json"
	"fmt"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
)

// EncodeRecord serializes record for storage under (id, created).
//
// The encoded form is the interoperable Asherah key record: the encrypted key
// under "Key" alongside Created, Revoked and ParentKeyMeta.
func EncodeRecord(created int64, record *cryptoDomain.EnvelopeKeyRecord) ([]byte, error) {
	stored := struct {
		Key           []byte                `json:"Key"`
		Created       int64                 `json:"Created"`
		Revoked       bool                  `json:"Revoked,omitempty"`
		ParentKeyMeta *cryptoDomain.KeyMeta `json:"ParentKeyMeta,omitempty"`
	}{
		Key:           record.EncryptedKey,
		Created:       created,
		Revoked:       record.Revoked,
		ParentKeyMeta: record.ParentKeyMeta,
	}
	return json.Marshal(stored)
}

// DecodeRecord parses a stored key record and sets its ID.
func DecodeRecord(id string, data []byte) (*cryptoDomain.EnvelopeKeyRecord, error) {
	var record cryptoDomain.EnvelopeKeyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", cryptoDomain.ErrInvalidKeyRecord, id, err)
	}
	if len(record.EncryptedKey) == 0 {
		return nil, fmt.Errorf("%w: %s: missing key", cryptoDomain.ErrInvalidKeyRecord, id)
	}
	record.ID = id
	return &record, nil
}
