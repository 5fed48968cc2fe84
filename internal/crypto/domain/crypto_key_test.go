package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptoKey_WithBytes(t *testing.T) {
	t.Run("Success_ExposesMaterial", func(t *testing.T) {
		key := NewCryptoKey([]byte{1, 2, 3}, 100, false)

		var seen []byte
		err := key.WithBytes(func(b []byte) error {
			seen = append(seen, b...)
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, seen)
	})

	t.Run("Error_PropagatesCallbackError", func(t *testing.T) {
		key := NewCryptoKey([]byte{1}, 100, false)
		boom := errors.New("boom")

		err := key.WithBytes(func([]byte) error { return boom })

		assert.ErrorIs(t, err, boom)
	})

	t.Run("Error_ClosedKey", func(t *testing.T) {
		key := NewCryptoKey([]byte{1}, 100, false)
		key.Close()

		err := key.WithBytes(func([]byte) error { return nil })

		assert.ErrorIs(t, err, ErrKeyClosed)
	})
}

func TestCryptoKey_Close(t *testing.T) {
	material := []byte{9, 9, 9, 9}
	key := NewCryptoKey(material, 100, false)

	key.Close()
	key.Close()

	assert.Equal(t, []byte{0, 0, 0, 0}, material)
}

func TestCryptoKey_Revoked(t *testing.T) {
	key := NewCryptoKey([]byte{1}, 100, true)
	assert.True(t, key.Revoked())

	key.SetRevoked(false)
	assert.False(t, key.Revoked())
}

func TestCryptoKey_IsExpired(t *testing.T) {
	now := time.Unix(10_000, 0)

	tests := []struct {
		name    string
		created int64
		want    bool
	}{
		{name: "fresh", created: 9_990, want: false},
		{name: "exactly at expiry", created: 9_900, want: true},
		{name: "past expiry", created: 1_000, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewCryptoKey([]byte{1}, tt.created, false)
			assert.Equal(t, tt.want, key.IsExpired(now, 100*time.Second))
		})
	}
}

func TestNewKeyTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 999_999_999)
	assert.Equal(t, int64(1_700_000_000), NewKeyTimestamp(now))
}
