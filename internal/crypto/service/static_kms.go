package service

import (
	"context"
	"fmt"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
)

// StaticKMS wraps system keys with a fixed master key held in process memory.
// For tests and local development only.
type StaticKMS struct {
	keeper KMSKeeper
}

// NewStaticKMS opens a localsecrets keeper over masterKey.
func NewStaticKMS(ctx context.Context, kmsService KMSService, masterKey *cryptoDomain.MasterKey) (*StaticKMS, error) {
	if len(masterKey.Key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	keeper, err := kmsService.OpenKeeper(ctx, LocalKeeperURI(masterKey.Key))
	if err != nil {
		return nil, err
	}
	return &StaticKMS{keeper: keeper}, nil
}

// EncryptKey wraps key with the master key.
func (s *StaticKMS) EncryptKey(ctx context.Context, key []byte) ([]byte, error) {
	encrypted, err := s.keeper.Encrypt(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrEncryptionFailed, err)
	}
	return encrypted, nil
}

// DecryptKey unwraps a key wrapped by EncryptKey.
func (s *StaticKMS) DecryptKey(ctx context.Context, encrypted []byte) ([]byte, error) {
	key, err := s.keeper.Decrypt(ctx, encrypted)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	return key, nil
}

// Close releases the keeper.
func (s *StaticKMS) Close() error {
	return s.keeper.Close()
}
