package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/allisson/asherah/internal/crypto/cache"
	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	cryptoService "github.com/allisson/asherah/internal/crypto/service"
)

// envelopeUseCase implements EnvelopeUseCase for one partition.
//
// The system key cache is shared by every session of the factory; the intermediate
// key cache belongs to this session and is closed with it.
type envelopeUseCase struct {
	partition        cryptoDomain.Partition
	policy           *cryptoDomain.CryptoPolicy
	metastore        Metastore
	kms              cryptoService.KeyManagementService
	keyManager       cryptoService.KeyManager
	systemKeys       *cache.KeyCache
	intermediateKeys *cache.KeyCache
	logger           *slog.Logger
	now              func() time.Time
}

// NewEnvelopeUseCase creates the engine for partition. It takes ownership of
// intermediateKeys.
func NewEnvelopeUseCase(
	partition cryptoDomain.Partition,
	policy *cryptoDomain.CryptoPolicy,
	metastore Metastore,
	kms cryptoService.KeyManagementService,
	keyManager cryptoService.KeyManager,
	systemKeys *cache.KeyCache,
	intermediateKeys *cache.KeyCache,
	logger *slog.Logger,
) EnvelopeUseCase {
	return newEnvelopeUseCase(
		partition, policy, metastore, kms, keyManager, systemKeys, intermediateKeys, logger, time.Now,
	)
}

func newEnvelopeUseCase(
	partition cryptoDomain.Partition,
	policy *cryptoDomain.CryptoPolicy,
	metastore Metastore,
	kms cryptoService.KeyManagementService,
	keyManager cryptoService.KeyManager,
	systemKeys *cache.KeyCache,
	intermediateKeys *cache.KeyCache,
	logger *slog.Logger,
	now func() time.Time,
) *envelopeUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &envelopeUseCase{
		partition:        partition,
		policy:           policy,
		metastore:        metastore,
		kms:              kms,
		keyManager:       keyManager,
		systemKeys:       systemKeys,
		intermediateKeys: intermediateKeys,
		logger:           logger,
		now:              now,
	}
}

// Encrypt seals data under a fresh data row key wrapped by the partition's current
// intermediate key.
func (e *envelopeUseCase) Encrypt(ctx context.Context, data []byte) (*cryptoDomain.DataRowRecord, error) {
	if len(data) > e.policy.MaxDataSize {
		return nil, fmt.Errorf(
			"%w: payload is %d bytes, limit is %d",
			cryptoDomain.ErrDataTooLarge,
			len(data),
			e.policy.MaxDataSize,
		)
	}

	ikID := e.partition.IntermediateKeyID()
	ik, err := e.intermediateKeys.GetOrCreate(ctx, ikID, e.loadOrCreateIntermediateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get intermediate key: %w", err)
	}

	drk, err := e.keyManager.GenerateKey(cryptoDomain.NewKeyTimestamp(e.now()))
	if err != nil {
		return nil, err
	}
	defer drk.Close()

	ciphertext, err := e.keyManager.EncryptData(data, drk)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt data: %w", err)
	}

	encryptedDRK, err := e.keyManager.EncryptKey(drk, ik)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt data row key: %w", err)
	}

	return &cryptoDomain.DataRowRecord{
		Data: ciphertext,
		Key: &cryptoDomain.EnvelopeKeyRecord{
			Created:      drk.Created(),
			EncryptedKey: encryptedDRK,
			ParentKeyMeta: &cryptoDomain.KeyMeta{
				ID:      ikID,
				Created: ik.Created(),
			},
		},
	}, nil
}

// Decrypt opens a record produced by Encrypt for this partition.
func (e *envelopeUseCase) Decrypt(ctx context.Context, drr *cryptoDomain.DataRowRecord) ([]byte, error) {
	if err := drr.Validate(); err != nil {
		return nil, err
	}

	meta := *drr.Key.ParentKeyMeta
	if !e.partition.IsValidIntermediateKeyID(meta.ID) {
		return nil, fmt.Errorf("%w: %s", cryptoDomain.ErrPartitionMismatch, meta.ID)
	}

	ik, err := e.intermediateKeys.GetOrLoad(ctx, meta, e.loadIntermediateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get intermediate key: %w", err)
	}

	drk, err := e.keyManager.DecryptKey(drr.Key.EncryptedKey, drr.Key.Created, false, ik)
	if err != nil {
		return nil, err
	}
	defer drk.Close()

	return e.keyManager.DecryptData(drr.Data, drk)
}

// Close zeroes the session's intermediate keys.
func (e *envelopeUseCase) Close() {
	e.intermediateKeys.Close()
}

func (e *envelopeUseCase) isUsable(record *cryptoDomain.EnvelopeKeyRecord) bool {
	return record != nil &&
		!record.Revoked &&
		!cryptoDomain.IsKeyExpired(record.Created, e.now(), e.policy.ExpireKeyAfter)
}

// loadOrCreateIntermediateKey returns the latest intermediate key when it may still
// encrypt, and otherwise creates, persists and returns a new version.
func (e *envelopeUseCase) loadOrCreateIntermediateKey(ctx context.Context) (*cryptoDomain.CryptoKey, error) {
	ikID := e.partition.IntermediateKeyID()

	record, err := e.metastore.LoadLatest(ctx, ikID)
	if err != nil {
		return nil, err
	}
	if e.isUsable(record) {
		ik, err := e.decryptIntermediateKey(ctx, record)
		if err == nil {
			return ik, nil
		}
		e.logger.Warn("failed to decrypt latest intermediate key, creating a new version",
			slog.String("key_id", ikID),
			slog.Int64("created", record.Created),
			slog.Any("error", err),
		)
	}

	return e.createIntermediateKey(ctx)
}

func (e *envelopeUseCase) createIntermediateKey(ctx context.Context) (*cryptoDomain.CryptoKey, error) {
	ikID := e.partition.IntermediateKeyID()

	sk, err := e.systemKeys.GetOrCreate(ctx, e.partition.SystemKeyID(), e.loadOrCreateSystemKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get system key: %w", err)
	}

	created := cryptoDomain.NewKeyTimestamp(e.now())
	ik, err := e.keyManager.GenerateKey(created)
	if err != nil {
		return nil, err
	}

	encrypted, err := e.keyManager.EncryptKey(ik, sk)
	if err != nil {
		ik.Close()
		return nil, err
	}

	record := &cryptoDomain.EnvelopeKeyRecord{
		ID:           ikID,
		Created:      created,
		EncryptedKey: encrypted,
		ParentKeyMeta: &cryptoDomain.KeyMeta{
			ID:      e.partition.SystemKeyID(),
			Created: sk.Created(),
		},
	}

	stored, err := e.metastore.Store(ctx, ikID, created, record)
	if err != nil {
		ik.Close()
		return nil, fmt.Errorf("failed to store intermediate key: %w", err)
	}
	if stored {
		e.logger.Debug("created intermediate key",
			slog.String("key_id", ikID),
			slog.Int64("created", created),
		)
		return ik, nil
	}

	// Another writer stored this version first; use whatever is now latest.
	ik.Close()
	latest, err := e.metastore.LoadLatest(ctx, ikID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: %s", cryptoDomain.ErrKeyNotFound, ikID)
	}
	return e.decryptIntermediateKey(ctx, latest)
}

func (e *envelopeUseCase) loadIntermediateKey(
	ctx context.Context,
	meta cryptoDomain.KeyMeta,
) (*cryptoDomain.CryptoKey, error) {
	record, err := e.metastore.Load(ctx, meta.ID, meta.Created)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: intermediate key %s", cryptoDomain.ErrKeyNotFound, meta)
	}
	return e.decryptIntermediateKey(ctx, record)
}

func (e *envelopeUseCase) decryptIntermediateKey(
	ctx context.Context,
	record *cryptoDomain.EnvelopeKeyRecord,
) (*cryptoDomain.CryptoKey, error) {
	if record.ParentKeyMeta == nil {
		return nil, fmt.Errorf("%w: intermediate key has no parent", cryptoDomain.ErrInvalidKeyRecord)
	}

	sk, err := e.systemKeys.GetOrLoad(ctx, *record.ParentKeyMeta, e.loadSystemKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get system key: %w", err)
	}
	return e.keyManager.DecryptKey(record.EncryptedKey, record.Created, record.Revoked, sk)
}

// loadOrCreateSystemKey mirrors loadOrCreateIntermediateKey one tier up, with the
// KMS as the parent.
func (e *envelopeUseCase) loadOrCreateSystemKey(ctx context.Context) (*cryptoDomain.CryptoKey, error) {
	skID := e.partition.SystemKeyID()

	record, err := e.metastore.LoadLatest(ctx, skID)
	if err != nil {
		return nil, err
	}
	if e.isUsable(record) {
		sk, err := e.decryptSystemKey(ctx, record)
		if err == nil {
			return sk, nil
		}
		e.logger.Warn("failed to decrypt latest system key, creating a new version",
			slog.String("key_id", skID),
			slog.Int64("created", record.Created),
			slog.Any("error", err),
		)
	}

	return e.createSystemKey(ctx)
}

func (e *envelopeUseCase) createSystemKey(ctx context.Context) (*cryptoDomain.CryptoKey, error) {
	skID := e.partition.SystemKeyID()

	created := cryptoDomain.NewKeyTimestamp(e.now())
	sk, err := e.keyManager.GenerateKey(created)
	if err != nil {
		return nil, err
	}

	var encrypted []byte
	err = sk.WithBytes(func(key []byte) error {
		var kmsErr error
		encrypted, kmsErr = e.kms.EncryptKey(ctx, key)
		return kmsErr
	})
	if err != nil {
		sk.Close()
		return nil, fmt.Errorf("failed to encrypt system key: %w", err)
	}

	record := &cryptoDomain.EnvelopeKeyRecord{
		ID:           skID,
		Created:      created,
		EncryptedKey: encrypted,
	}

	stored, err := e.metastore.Store(ctx, skID, created, record)
	if err != nil {
		sk.Close()
		return nil, fmt.Errorf("failed to store system key: %w", err)
	}
	if stored {
		e.logger.Debug("created system key",
			slog.String("key_id", skID),
			slog.Int64("created", created),
		)
		return sk, nil
	}

	sk.Close()
	latest, err := e.metastore.LoadLatest(ctx, skID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: %s", cryptoDomain.ErrKeyNotFound, skID)
	}
	return e.decryptSystemKey(ctx, latest)
}

func (e *envelopeUseCase) loadSystemKey(ctx context.Context, meta cryptoDomain.KeyMeta) (*cryptoDomain.CryptoKey, error) {
	record, err := e.metastore.Load(ctx, meta.ID, meta.Created)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: system key %s", cryptoDomain.ErrKeyNotFound, meta)
	}
	return e.decryptSystemKey(ctx, record)
}

func (e *envelopeUseCase) decryptSystemKey(
	ctx context.Context,
	record *cryptoDomain.EnvelopeKeyRecord,
) (*cryptoDomain.CryptoKey, error) {
	key, err := e.kms.DecryptKey(ctx, record.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt system key: %w", err)
	}
	if len(key) != cryptoDomain.KeySize {
		cryptoDomain.Zero(key)
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	return cryptoDomain.NewCryptoKey(key, record.Created, record.Revoked), nil
}
