package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
)

// kmsWithTimeout bounds every KMS call with a deadline.
type kmsWithTimeout struct {
	next    KeyManagementService
	timeout time.Duration
}

// NewKMSWithTimeout wraps kms so each call runs under timeout. A call that misses
// its deadline fails with ErrKMSUnavailable. A zero timeout disables the bound.
func NewKMSWithTimeout(kms KeyManagementService, timeout time.Duration) KeyManagementService {
	return &kmsWithTimeout{next: kms, timeout: timeout}
}

// EncryptKey wraps key under the call deadline.
func (k *kmsWithTimeout) EncryptKey(ctx context.Context, key []byte) ([]byte, error) {
	ctx, cancel := k.withTimeout(ctx)
	defer cancel()

	encrypted, err := k.next.EncryptKey(ctx, key)
	return encrypted, wrapDeadline(err)
}

// DecryptKey unwraps encrypted under the call deadline.
func (k *kmsWithTimeout) DecryptKey(ctx context.Context, encrypted []byte) ([]byte, error) {
	ctx, cancel := k.withTimeout(ctx)
	defer cancel()

	key, err := k.next.DecryptKey(ctx, encrypted)
	return key, wrapDeadline(err)
}

// Close delegates.
func (k *kmsWithTimeout) Close() error {
	return k.next.Close()
}

func (k *kmsWithTimeout) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if k.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, k.timeout)
}

func wrapDeadline(err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, cryptoDomain.ErrKMSUnavailable) {
		return fmt.Errorf("%w: %w", cryptoDomain.ErrKMSUnavailable, err)
	}
	return err
}
