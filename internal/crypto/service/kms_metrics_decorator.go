package service

import (
	"context"
	"time"

	"github.com/allisson/asherah/internal/metrics"
)

// kmsWithMetrics decorates KeyManagementService with metrics instrumentation.
type kmsWithMetrics struct {
	next    KeyManagementService
	metrics metrics.BusinessMetrics
}

// NewKMSWithMetrics wraps a KeyManagementService with metrics recording.
func NewKMSWithMetrics(kms KeyManagementService, m metrics.BusinessMetrics) KeyManagementService {
	return &kmsWithMetrics{
		next:    kms,
		metrics: m,
	}
}

// EncryptKey records metrics for system key wrapping.
func (k *kmsWithMetrics) EncryptKey(ctx context.Context, key []byte) ([]byte, error) {
	start := time.Now()
	encrypted, err := k.next.EncryptKey(ctx, key)
	k.record(ctx, "kms_encrypt", start, err)
	return encrypted, err
}

// DecryptKey records metrics for system key unwrapping.
func (k *kmsWithMetrics) DecryptKey(ctx context.Context, encrypted []byte) ([]byte, error) {
	start := time.Now()
	key, err := k.next.DecryptKey(ctx, encrypted)
	k.record(ctx, "kms_decrypt", start, err)
	return key, err
}

// Close delegates without recording.
func (k *kmsWithMetrics) Close() error {
	return k.next.Close()
}

func (k *kmsWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	k.metrics.RecordOperation(ctx, metrics.DomainEnvelope, operation, status)
	k.metrics.RecordDuration(ctx, metrics.DomainEnvelope, operation, time.Since(start), status)
}
