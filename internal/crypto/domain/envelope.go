package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EnvelopeKeyRecord is a key encrypted under its parent, plus a pointer to that parent.
//
// Intermediate keys are stored as records whose ParentKeyMeta names a system key.
// System keys are stored with a nil ParentKeyMeta since the KMS wraps them.
// A DataRowRecord embeds one for its data row key, parented by an intermediate key.
type EnvelopeKeyRecord struct {
	Revoked       bool     `json:"Revoked,omitempty"`
	ID            string   `json:"-"`
	Created       int64    `json:"Created"`
	EncryptedKey  []byte   `json:"EncryptedKey"`
	ParentKeyMeta *KeyMeta `json:"ParentKeyMeta,omitempty"`
}

// UnmarshalJSON decodes a record, also accepting "Key" as the encrypted key field name.
func (r *EnvelopeKeyRecord) UnmarshalJSON(data []byte) error {
	type plain EnvelopeKeyRecord
	var raw struct {
		plain
		Key []byte `json:"Key"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = EnvelopeKeyRecord(raw.plain)
	if len(r.EncryptedKey) == 0 {
		r.EncryptedKey = raw.Key
	}
	return nil
}

// DataRowRecord is the self-contained output of an encryption: the encrypted payload
// and the data row key that encrypted it, itself encrypted under an intermediate key.
type DataRowRecord struct {
	Data []byte             `json:"Data"`
	Key  *EnvelopeKeyRecord `json:"Key"`
}

// Validate checks the record has everything decryption needs.
func (r *DataRowRecord) Validate() error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: record is nil", ErrInvalidDataRowRecord)
	case r.Key == nil:
		return fmt.Errorf("%w: missing key", ErrInvalidDataRowRecord)
	case len(r.Key.EncryptedKey) == 0:
		return fmt.Errorf("%w: missing encrypted key", ErrInvalidDataRowRecord)
	case r.Key.ParentKeyMeta == nil || r.Key.ParentKeyMeta.ID == "":
		return fmt.Errorf("%w: missing parent key meta", ErrInvalidDataRowRecord)
	case len(r.Data) < NonceSize+TagSize:
		return fmt.Errorf("%w: data too short", ErrInvalidDataRowRecord)
	}
	return nil
}

// ParseDataRowRecord decodes the canonical JSON form of a DataRowRecord.
// The input must be a JSON object of at most MaxRecordJSONSize bytes.
func ParseDataRowRecord(data []byte) (*DataRowRecord, error) {
	if len(data) > MaxRecordJSONSize {
		return nil, fmt.Errorf("%w: record is %d bytes, limit is %d", ErrDataTooLarge, len(data), MaxRecordJSONSize)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: must be a JSON object", ErrInvalidDataRowRecord)
	}

	var drr DataRowRecord
	if err := json.Unmarshal(trimmed, &drr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataRowRecord, err)
	}

	if err := drr.Validate(); err != nil {
		return nil, err
	}
	return &drr, nil
}
