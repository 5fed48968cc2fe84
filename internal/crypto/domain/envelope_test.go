package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/asherah/internal/errors"
)

func validRecord() *DataRowRecord {
	return &DataRowRecord{
		Data: make([]byte, NonceSize+TagSize+4),
		Key: &EnvelopeKeyRecord{
			Created:       1_700_000_000,
			EncryptedKey:  []byte("encrypted-data-row-key"),
			ParentKeyMeta: &KeyMeta{ID: "_IK_user-1_svc_prod", Created: 1_699_999_000},
		},
	}
}

func TestDataRowRecord_JSONWireFormat(t *testing.T) {
	raw, err := json.Marshal(validRecord())
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))

	assert.Contains(t, generic, "Data")
	key := generic["Key"].(map[string]any)
	assert.Contains(t, key, "Created")
	assert.Contains(t, key, "EncryptedKey")
	assert.NotContains(t, key, "Revoked")
	parent := key["ParentKeyMeta"].(map[string]any)
	assert.Equal(t, "_IK_user-1_svc_prod", parent["ID"])
	assert.EqualValues(t, 1_699_999_000, parent["Created"])
}

func TestParseDataRowRecord(t *testing.T) {
	t.Run("Success_CanonicalForm", func(t *testing.T) {
		raw, err := json.Marshal(validRecord())
		require.NoError(t, err)

		drr, err := ParseDataRowRecord(raw)
		require.NoError(t, err)
		assert.Equal(t, validRecord(), drr)
	})

	t.Run("Success_UpstreamFieldNames", func(t *testing.T) {
		raw := `{"Data":"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA","Key":{"Created":5,"Key":"a2V5",` +
			`"ParentKeyMeta":{"KeyId":"_IK_p_svc_prod","Created":4}}}`

		drr, err := ParseDataRowRecord([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, []byte("key"), drr.Key.EncryptedKey)
		assert.Equal(t, KeyMeta{ID: "_IK_p_svc_prod", Created: 4}, *drr.Key.ParentKeyMeta)
	})

	t.Run("Error_NotAnObject", func(t *testing.T) {
		_, err := ParseDataRowRecord([]byte(`["not","an","object"]`))
		assert.ErrorIs(t, err, ErrInvalidDataRowRecord)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_MalformedJSON", func(t *testing.T) {
		_, err := ParseDataRowRecord([]byte(`{"Data":`))
		assert.ErrorIs(t, err, ErrInvalidDataRowRecord)
	})

	t.Run("Error_MissingKey", func(t *testing.T) {
		_, err := ParseDataRowRecord([]byte(`{"Data":"AAAA"}`))
		assert.ErrorIs(t, err, ErrInvalidDataRowRecord)
	})

	t.Run("Error_TooLarge", func(t *testing.T) {
		raw := []byte(`{"Data":"` + strings.Repeat("A", MaxRecordJSONSize) + `"}`)
		_, err := ParseDataRowRecord(raw)
		assert.ErrorIs(t, err, ErrDataTooLarge)
	})
}

func TestDataRowRecord_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DataRowRecord)
	}{
		{name: "missing parent meta", mutate: func(r *DataRowRecord) { r.Key.ParentKeyMeta = nil }},
		{name: "empty parent id", mutate: func(r *DataRowRecord) { r.Key.ParentKeyMeta.ID = "" }},
		{name: "missing encrypted key", mutate: func(r *DataRowRecord) { r.Key.EncryptedKey = nil }},
		{name: "short data", mutate: func(r *DataRowRecord) { r.Data = []byte{1, 2, 3} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drr := validRecord()
			tt.mutate(drr)
			assert.ErrorIs(t, drr.Validate(), ErrInvalidDataRowRecord)
		})
	}

	t.Run("nil record", func(t *testing.T) {
		var drr *DataRowRecord
		assert.ErrorIs(t, drr.Validate(), ErrInvalidDataRowRecord)
	})
}

func TestEnvelopeKeyRecord_RevokedRoundTrip(t *testing.T) {
	rec := &EnvelopeKeyRecord{ID: "_SK_svc_prod", Revoked: true, Created: 10, EncryptedKey: []byte{1}}

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "_SK_svc_prod")

	var decoded EnvelopeKeyRecord
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.Revoked)
	assert.Nil(t, decoded.ParentKeyMeta)
}
