package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	"github.com/allisson/asherah/internal/crypto/usecase"
	usecaseMocks "github.com/allisson/asherah/internal/crypto/usecase/mocks"
)

// mockBusinessMetrics is a local mock for metrics.BusinessMetrics to avoid dependency issues.
type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *mockBusinessMetrics) RecordCacheEvent(ctx context.Context, cache, event string) {
	m.Called(ctx, cache, event)
}

func expectOperation(m *mockBusinessMetrics, ctx context.Context, operation, status string) {
	m.On("RecordOperation", ctx, "envelope", operation, status).Return().Once()
	m.On("RecordDuration", ctx, "envelope", operation, mock.AnythingOfType("time.Duration"), status).
		Return().
		Once()
}

func TestEnvelopeUseCaseWithMetrics_Encrypt(t *testing.T) {
	ctx := context.Background()

	t.Run("Encrypt_Success", func(t *testing.T) {
		mockNext := &usecaseMocks.MockEnvelopeUseCase{}
		mockMetrics := &mockBusinessMetrics{}
		uc := usecase.NewEnvelopeUseCaseWithMetrics(mockNext, mockMetrics)

		expected := &cryptoDomain.DataRowRecord{Data: []byte("ciphertext")}
		mockNext.On("Encrypt", ctx, []byte("data")).Return(expected, nil).Once()
		expectOperation(mockMetrics, ctx, "encrypt", "success")

		result, err := uc.Encrypt(ctx, []byte("data"))

		assert.NoError(t, err)
		assert.Equal(t, expected, result)
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("Encrypt_Error", func(t *testing.T) {
		mockNext := &usecaseMocks.MockEnvelopeUseCase{}
		mockMetrics := &mockBusinessMetrics{}
		uc := usecase.NewEnvelopeUseCaseWithMetrics(mockNext, mockMetrics)

		mockNext.On("Encrypt", ctx, []byte("data")).Return(nil, cryptoDomain.ErrDataTooLarge).Once()
		expectOperation(mockMetrics, ctx, "encrypt", "error")

		result, err := uc.Encrypt(ctx, []byte("data"))

		assert.ErrorIs(t, err, cryptoDomain.ErrDataTooLarge)
		assert.Nil(t, result)
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})
}

func TestEnvelopeUseCaseWithMetrics_Decrypt(t *testing.T) {
	ctx := context.Background()
	drr := &cryptoDomain.DataRowRecord{Data: []byte("ciphertext")}

	t.Run("Decrypt_Success", func(t *testing.T) {
		mockNext := &usecaseMocks.MockEnvelopeUseCase{}
		mockMetrics := &mockBusinessMetrics{}
		uc := usecase.NewEnvelopeUseCaseWithMetrics(mockNext, mockMetrics)

		mockNext.On("Decrypt", ctx, drr).Return([]byte("data"), nil).Once()
		expectOperation(mockMetrics, ctx, "decrypt", "success")

		result, err := uc.Decrypt(ctx, drr)

		assert.NoError(t, err)
		assert.Equal(t, []byte("data"), result)
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("Decrypt_Error", func(t *testing.T) {
		mockNext := &usecaseMocks.MockEnvelopeUseCase{}
		mockMetrics := &mockBusinessMetrics{}
		uc := usecase.NewEnvelopeUseCaseWithMetrics(mockNext, mockMetrics)

		mockNext.On("Decrypt", ctx, drr).Return(nil, cryptoDomain.ErrKeyNotFound).Once()
		expectOperation(mockMetrics, ctx, "decrypt", "error")

		result, err := uc.Decrypt(ctx, drr)

		assert.ErrorIs(t, err, cryptoDomain.ErrKeyNotFound)
		assert.Nil(t, result)
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("Close_Delegates", func(t *testing.T) {
		mockNext := &usecaseMocks.MockEnvelopeUseCase{}
		uc := usecase.NewEnvelopeUseCaseWithMetrics(mockNext, &mockBusinessMetrics{})

		mockNext.On("Close").Return().Once()
		uc.Close()
		mockNext.AssertExpectations(t)
	})
}

func TestMetastoreWithMetrics(t *testing.T) {
	ctx := context.Background()
	record := &cryptoDomain.EnvelopeKeyRecord{Created: 100, EncryptedKey: []byte("key")}

	t.Run("Load_Success", func(t *testing.T) {
		mockNext := &usecaseMocks.MockMetastore{}
		mockMetrics := &mockBusinessMetrics{}
		store := usecase.NewMetastoreWithMetrics(mockNext, mockMetrics)

		mockNext.On("Load", ctx, "_SK_s_p", int64(100)).Return(record, nil).Once()
		expectOperation(mockMetrics, ctx, "metastore_load", "success")

		result, err := store.Load(ctx, "_SK_s_p", 100)

		assert.NoError(t, err)
		assert.Equal(t, record, result)
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("LoadLatest_Error", func(t *testing.T) {
		mockNext := &usecaseMocks.MockMetastore{}
		mockMetrics := &mockBusinessMetrics{}
		store := usecase.NewMetastoreWithMetrics(mockNext, mockMetrics)

		expectedErr := errors.New("connection refused")
		mockNext.On("LoadLatest", ctx, "_SK_s_p").Return(nil, expectedErr).Once()
		expectOperation(mockMetrics, ctx, "metastore_load_latest", "error")

		result, err := store.LoadLatest(ctx, "_SK_s_p")

		assert.ErrorIs(t, err, expectedErr)
		assert.Nil(t, result)
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("Store_Duplicate", func(t *testing.T) {
		mockNext := &usecaseMocks.MockMetastore{}
		mockMetrics := &mockBusinessMetrics{}
		store := usecase.NewMetastoreWithMetrics(mockNext, mockMetrics)

		mockNext.On("Store", ctx, "_SK_s_p", int64(100), record).Return(false, nil).Once()
		expectOperation(mockMetrics, ctx, "metastore_store", "success")

		stored, err := store.Store(ctx, "_SK_s_p", 100, record)

		assert.NoError(t, err)
		assert.False(t, stored)
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})
}
