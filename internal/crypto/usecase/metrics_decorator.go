package usecase

import (
	"context"
	"time"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	"github.com/allisson/asherah/internal/metrics"
)

// envelopeUseCaseWithMetrics decorates EnvelopeUseCase with metrics instrumentation.
type envelopeUseCaseWithMetrics struct {
	next    EnvelopeUseCase
	metrics metrics.BusinessMetrics
}

// NewEnvelopeUseCaseWithMetrics wraps an EnvelopeUseCase with metrics recording.
func NewEnvelopeUseCaseWithMetrics(useCase EnvelopeUseCase, m metrics.BusinessMetrics) EnvelopeUseCase {
	return &envelopeUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Encrypt records metrics for encryption operations.
func (e *envelopeUseCaseWithMetrics) Encrypt(
	ctx context.Context,
	data []byte,
) (*cryptoDomain.DataRowRecord, error) {
	start := time.Now()
	drr, err := e.next.Encrypt(ctx, data)

	status := "success"
	if err != nil {
		status = "error"
	}

	e.metrics.RecordOperation(ctx, metrics.DomainEnvelope, "encrypt", status)
	e.metrics.RecordDuration(ctx, metrics.DomainEnvelope, "encrypt", time.Since(start), status)

	return drr, err
}

// Decrypt records metrics for decryption operations.
func (e *envelopeUseCaseWithMetrics) Decrypt(
	ctx context.Context,
	drr *cryptoDomain.DataRowRecord,
) ([]byte, error) {
	start := time.Now()
	plaintext, err := e.next.Decrypt(ctx, drr)

	status := "success"
	if err != nil {
		status = "error"
	}

	e.metrics.RecordOperation(ctx, metrics.DomainEnvelope, "decrypt", status)
	e.metrics.RecordDuration(ctx, metrics.DomainEnvelope, "decrypt", time.Since(start), status)

	return plaintext, err
}

// Close delegates to the wrapped use case.
func (e *envelopeUseCaseWithMetrics) Close() {
	e.next.Close()
}

// metastoreWithMetrics decorates Metastore with metrics instrumentation.
type metastoreWithMetrics struct {
	next    Metastore
	metrics metrics.BusinessMetrics
}

// NewMetastoreWithMetrics wraps a Metastore with metrics recording.
func NewMetastoreWithMetrics(metastore Metastore, m metrics.BusinessMetrics) Metastore {
	return &metastoreWithMetrics{
		next:    metastore,
		metrics: m,
	}
}

// Load records metrics for exact-version loads.
func (s *metastoreWithMetrics) Load(
	ctx context.Context,
	id string,
	created int64,
) (*cryptoDomain.EnvelopeKeyRecord, error) {
	start := time.Now()
	record, err := s.next.Load(ctx, id, created)
	s.record(ctx, "metastore_load", start, err)
	return record, err
}

// LoadLatest records metrics for latest-version loads.
func (s *metastoreWithMetrics) LoadLatest(ctx context.Context, id string) (*cryptoDomain.EnvelopeKeyRecord, error) {
	start := time.Now()
	record, err := s.next.LoadLatest(ctx, id)
	s.record(ctx, "metastore_load_latest", start, err)
	return record, err
}

// Store records metrics for inserts. A lost insert race counts as success.
func (s *metastoreWithMetrics) Store(
	ctx context.Context,
	id string,
	created int64,
	record *cryptoDomain.EnvelopeKeyRecord,
) (bool, error) {
	start := time.Now()
	stored, err := s.next.Store(ctx, id, created, record)
	s.record(ctx, "metastore_store", start, err)
	return stored, err
}

func (s *metastoreWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	s.metrics.RecordOperation(ctx, metrics.DomainEnvelope, operation, status)
	s.metrics.RecordDuration(ctx, metrics.DomainEnvelope, operation, time.Since(start), status)
}
