package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	apperrors "github.com/allisson/asherah/internal/errors"
	"github.com/allisson/asherah/internal/retry"
)

// metastoreWithRetry bounds every metastore call with a timeout and retries reads.
type metastoreWithRetry struct {
	next    Metastore
	timeout time.Duration
	retrier *retry.Retrier
}

// NewMetastoreWithRetry wraps metastore so each call runs under timeout, and Load and
// LoadLatest are retried with backoff. Store is never retried: an insert that timed
// out may have landed, and the caller recovers from that by reloading.
func NewMetastoreWithRetry(
	metastore Metastore,
	timeout time.Duration,
	policy retry.Policy,
	logger *slog.Logger,
) Metastore {
	return &metastoreWithRetry{
		next:    metastore,
		timeout: timeout,
		retrier: retry.New("metastore", policy, isRetryableMetastoreError, logger),
	}
}

// Load retries exact-version loads.
func (m *metastoreWithRetry) Load(
	ctx context.Context,
	id string,
	created int64,
) (*cryptoDomain.EnvelopeKeyRecord, error) {
	return retry.Do(ctx, m.retrier, func(ctx context.Context) (*cryptoDomain.EnvelopeKeyRecord, error) {
		ctx, cancel := m.withTimeout(ctx)
		defer cancel()

		record, err := m.next.Load(ctx, id, created)
		return record, m.wrapTimeout(err)
	})
}

// LoadLatest retries latest-version loads.
func (m *metastoreWithRetry) LoadLatest(ctx context.Context, id string) (*cryptoDomain.EnvelopeKeyRecord, error) {
	return retry.Do(ctx, m.retrier, func(ctx context.Context) (*cryptoDomain.EnvelopeKeyRecord, error) {
		ctx, cancel := m.withTimeout(ctx)
		defer cancel()

		record, err := m.next.LoadLatest(ctx, id)
		return record, m.wrapTimeout(err)
	})
}

// Store runs a single insert attempt under the timeout.
func (m *metastoreWithRetry) Store(
	ctx context.Context,
	id string,
	created int64,
	record *cryptoDomain.EnvelopeKeyRecord,
) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	stored, err := m.next.Store(ctx, id, created, record)
	return stored, m.wrapTimeout(err)
}

func (m *metastoreWithRetry) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

func (m *metastoreWithRetry) wrapTimeout(err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, cryptoDomain.ErrMetastoreUnavailable) {
		return fmt.Errorf("%w: %w", cryptoDomain.ErrMetastoreUnavailable, err)
	}
	return err
}

// isRetryableMetastoreError skips errors that another attempt cannot fix.
func isRetryableMetastoreError(err error) bool {
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case apperrors.Is(err, apperrors.ErrInvalidInput):
		return false
	default:
		return true
	}
}
