package domain

import (
	"encoding/json"
	"fmt"
)

// KeyMeta identifies one version of a key: its ID plus its creation time in unix seconds.
type KeyMeta struct {
	ID      string `json:"ID"`
	Created int64  `json:"Created"`
}

// String returns a printable identifier, used in logs and as a cache key.
func (m KeyMeta) String() string {
	return fmt.Sprintf("%s@%d", m.ID, m.Created)
}

// UnmarshalJSON accepts both the "ID" spelling and the "KeyId" spelling
// written by other Asherah implementations.
func (m *KeyMeta) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      string `json:"ID"`
		KeyID   string `json:"KeyId"`
		Created int64  `json:"Created"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.ID = raw.ID
	if m.ID == "" {
		m.ID = raw.KeyID
	}
	m.Created = raw.Created
	return nil
}
