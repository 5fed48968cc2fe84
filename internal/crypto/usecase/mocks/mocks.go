// Package mocks provides mock implementations of the usecase interfaces for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
)

// MockMetastore is a mock implementation of Metastore.
type MockMetastore struct {
	mock.Mock
}

// Load mocks the Load method of Metastore.
func (m *MockMetastore) Load(ctx context.Context, id string, created int64) (*cryptoDomain.EnvelopeKeyRecord, error) {
	args := m.Called(ctx, id, created)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.EnvelopeKeyRecord), args.Error(1)
}

// LoadLatest mocks the LoadLatest method of Metastore.
func (m *MockMetastore) LoadLatest(ctx context.Context, id string) (*cryptoDomain.EnvelopeKeyRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.EnvelopeKeyRecord), args.Error(1)
}

// Store mocks the Store method of Metastore.
func (m *MockMetastore) Store(
	ctx context.Context,
	id string,
	created int64,
	record *cryptoDomain.EnvelopeKeyRecord,
) (bool, error) {
	args := m.Called(ctx, id, created, record)
	return args.Bool(0), args.Error(1)
}

// MockEnvelopeUseCase is a mock implementation of EnvelopeUseCase.
type MockEnvelopeUseCase struct {
	mock.Mock
}

// Encrypt mocks the Encrypt method of EnvelopeUseCase.
func (m *MockEnvelopeUseCase) Encrypt(ctx context.Context, data []byte) (*cryptoDomain.DataRowRecord, error) {
	args := m.Called(ctx, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.DataRowRecord), args.Error(1)
}

// Decrypt mocks the Decrypt method of EnvelopeUseCase.
func (m *MockEnvelopeUseCase) Decrypt(ctx context.Context, drr *cryptoDomain.DataRowRecord) ([]byte, error) {
	args := m.Called(ctx, drr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Close mocks the Close method of EnvelopeUseCase.
func (m *MockEnvelopeUseCase) Close() {
	m.Called()
}
