package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	"github.com/allisson/asherah/internal/crypto/usecase"
	usecaseMocks "github.com/allisson/asherah/internal/crypto/usecase/mocks"
	"github.com/allisson/asherah/internal/retry"
)

var fastRetryPolicy = retry.Policy{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxElapsedTime:  time.Second,
	MaxRetries:      2,
}

func TestMetastoreWithRetry_Load(t *testing.T) {
	ctx := context.Background()
	record := &cryptoDomain.EnvelopeKeyRecord{Created: 100, EncryptedKey: []byte("key")}

	t.Run("Success_RetriesTransientError", func(t *testing.T) {
		mockNext := &usecaseMocks.MockMetastore{}
		store := usecase.NewMetastoreWithRetry(mockNext, time.Second, fastRetryPolicy, nil)

		mockNext.On("Load", mock.Anything, "_IK_p_s_p", int64(100)).
			Return(nil, errors.New("connection reset")).
			Once()
		mockNext.On("Load", mock.Anything, "_IK_p_s_p", int64(100)).Return(record, nil).Once()

		result, err := store.Load(ctx, "_IK_p_s_p", 100)

		require.NoError(t, err)
		assert.Equal(t, record, result)
		mockNext.AssertExpectations(t)
	})

	t.Run("Error_RetriesExhausted", func(t *testing.T) {
		mockNext := &usecaseMocks.MockMetastore{}
		store := usecase.NewMetastoreWithRetry(mockNext, time.Second, fastRetryPolicy, nil)

		mockNext.On("Load", mock.Anything, "_IK_p_s_p", int64(100)).
			Return(nil, cryptoDomain.ErrMetastoreUnavailable).
			Times(3)

		_, err := store.Load(ctx, "_IK_p_s_p", 100)

		assert.ErrorIs(t, err, cryptoDomain.ErrMetastoreUnavailable)
		mockNext.AssertExpectations(t)
	})
}

func TestMetastoreWithRetry_LoadLatest(t *testing.T) {
	ctx := context.Background()

	t.Run("Error_InvalidRecordIsNotRetried", func(t *testing.T) {
		mockNext := &usecaseMocks.MockMetastore{}
		store := usecase.NewMetastoreWithRetry(mockNext, time.Second, fastRetryPolicy, nil)

		mockNext.On("LoadLatest", mock.Anything, "_SK_s_p").
			Return(nil, cryptoDomain.ErrInvalidKeyRecord).
			Once()

		_, err := store.LoadLatest(ctx, "_SK_s_p")

		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeyRecord)
		mockNext.AssertExpectations(t)
	})

	t.Run("Success_AbsentKey", func(t *testing.T) {
		mockNext := &usecaseMocks.MockMetastore{}
		store := usecase.NewMetastoreWithRetry(mockNext, time.Second, fastRetryPolicy, nil)

		mockNext.On("LoadLatest", mock.Anything, "_SK_s_p").Return(nil, nil).Once()

		result, err := store.LoadLatest(ctx, "_SK_s_p")

		assert.NoError(t, err)
		assert.Nil(t, result)
		mockNext.AssertExpectations(t)
	})
}

func TestMetastoreWithRetry_Store(t *testing.T) {
	ctx := context.Background()
	record := &cryptoDomain.EnvelopeKeyRecord{Created: 100, EncryptedKey: []byte("key")}

	t.Run("Error_NeverRetried", func(t *testing.T) {
		mockNext := &usecaseMocks.MockMetastore{}
		store := usecase.NewMetastoreWithRetry(mockNext, time.Second, fastRetryPolicy, nil)

		expectedErr := errors.New("connection reset")
		mockNext.On("Store", mock.Anything, "_SK_s_p", int64(100), record).Return(false, expectedErr).Once()

		stored, err := store.Store(ctx, "_SK_s_p", 100, record)

		assert.ErrorIs(t, err, expectedErr)
		assert.False(t, stored)
		mockNext.AssertExpectations(t)
	})

	t.Run("Error_TimeoutIsUnavailable", func(t *testing.T) {
		mockNext := &usecaseMocks.MockMetastore{}
		store := usecase.NewMetastoreWithRetry(mockNext, 10*time.Millisecond, fastRetryPolicy, nil)

		mockNext.On("Store", mock.Anything, "_SK_s_p", int64(100), record).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(false, context.DeadlineExceeded).
			Once()

		_, err := store.Store(ctx, "_SK_s_p", 100, record)

		assert.ErrorIs(t, err, cryptoDomain.ErrMetastoreUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		mockNext.AssertExpectations(t)
	})
}
