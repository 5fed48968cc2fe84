package service

import (
	"crypto/rand"
	"fmt"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
)

// KeyManagerService implements the KeyManager interface for envelope encryption.
//
// It manages every tier below the KMS:
//   - intermediate keys are encrypted with a system key
//   - data row keys are encrypted with an intermediate key
//   - payloads are encrypted with a data row key
//
// All layers use the same AEAD algorithm. Ciphertexts carry their nonce at the
// end (ciphertext || nonce), so a stored blob is self-describing given the key.
type KeyManagerService struct {
	aeadManager AEADManager
	algorithm   cryptoDomain.Algorithm
}

// NewKeyManager creates a new KeyManagerService using alg for every layer.
func NewKeyManager(aeadManager AEADManager, alg cryptoDomain.Algorithm) *KeyManagerService {
	return &KeyManagerService{
		aeadManager: aeadManager,
		algorithm:   alg,
	}
}

// GenerateKey creates a random 32-byte key.
func (km *KeyManagerService) GenerateKey(created int64) (*cryptoDomain.CryptoKey, error) {
	key := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: failed to generate key: %v", cryptoDomain.ErrEncryptionFailed, err)
	}
	return cryptoDomain.NewCryptoKey(key, created, false), nil
}

// EncryptKey encrypts key under parent.
func (km *KeyManagerService) EncryptKey(key, parent *cryptoDomain.CryptoKey) ([]byte, error) {
	var encrypted []byte
	err := key.WithBytes(func(keyBytes []byte) error {
		var sealErr error
		encrypted, sealErr = km.EncryptData(keyBytes, parent)
		return sealErr
	})
	if err != nil {
		return nil, err
	}
	return encrypted, nil
}

// DecryptKey decrypts a key encrypted under parent and wraps it with its metadata.
func (km *KeyManagerService) DecryptKey(
	encrypted []byte,
	created int64,
	revoked bool,
	parent *cryptoDomain.CryptoKey,
) (*cryptoDomain.CryptoKey, error) {
	keyBytes, err := km.DecryptData(encrypted, parent)
	if err != nil {
		return nil, err
	}
	if len(keyBytes) != cryptoDomain.KeySize {
		cryptoDomain.Zero(keyBytes)
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	return cryptoDomain.NewCryptoKey(keyBytes, created, revoked), nil
}

// EncryptData encrypts data under key and returns ciphertext || nonce.
func (km *KeyManagerService) EncryptData(data []byte, key *cryptoDomain.CryptoKey) ([]byte, error) {
	var sealed []byte
	err := key.WithBytes(func(keyBytes []byte) error {
		aead, err := km.aeadManager.CreateCipher(keyBytes, km.algorithm)
		if err != nil {
			return err
		}

		ciphertext, nonce, err := aead.Encrypt(data, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", cryptoDomain.ErrEncryptionFailed, err)
		}
		sealed = append(ciphertext, nonce...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

// DecryptData decrypts ciphertext || nonce produced by EncryptData.
// Any authentication failure is reported as ErrDecryptionFailed.
func (km *KeyManagerService) DecryptData(data []byte, key *cryptoDomain.CryptoKey) ([]byte, error) {
	if len(data) < cryptoDomain.NonceSize+cryptoDomain.TagSize {
		return nil, cryptoDomain.ErrDecryptionFailed
	}

	split := len(data) - cryptoDomain.NonceSize
	var plaintext []byte
	err := key.WithBytes(func(keyBytes []byte) error {
		aead, err := km.aeadManager.CreateCipher(keyBytes, km.algorithm)
		if err != nil {
			return err
		}

		plaintext, err = aead.Decrypt(data[:split], data[split:], nil)
		if err != nil {
			return cryptoDomain.ErrDecryptionFailed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
