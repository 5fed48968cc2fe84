package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	"github.com/allisson/asherah/internal/crypto/service"
	serviceMocks "github.com/allisson/asherah/internal/crypto/service/mocks"
)

func TestKMSWithTimeout(t *testing.T) {
	ctx := context.Background()

	t.Run("EncryptKey_SetsDeadline", func(t *testing.T) {
		mockNext := &serviceMocks.MockKeyManagementService{}
		kms := service.NewKMSWithTimeout(mockNext, time.Minute)

		mockNext.On("EncryptKey", mock.MatchedBy(func(c context.Context) bool {
			_, ok := c.Deadline()
			return ok
		}), []byte("key")).Return([]byte("wrapped"), nil).Once()

		result, err := kms.EncryptKey(ctx, []byte("key"))
		require.NoError(t, err)
		assert.Equal(t, []byte("wrapped"), result)
		mockNext.AssertExpectations(t)
	})

	t.Run("DecryptKey_DeadlineExceeded", func(t *testing.T) {
		mockNext := &serviceMocks.MockKeyManagementService{}
		kms := service.NewKMSWithTimeout(mockNext, 10*time.Millisecond)

		mockNext.On("DecryptKey", mock.Anything, []byte("wrapped")).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(nil, context.DeadlineExceeded).
			Once()

		result, err := kms.DecryptKey(ctx, []byte("wrapped"))
		assert.Nil(t, result)
		assert.ErrorIs(t, err, cryptoDomain.ErrKMSUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("DecryptKey_OtherErrorUnchanged", func(t *testing.T) {
		mockNext := &serviceMocks.MockKeyManagementService{}
		kms := service.NewKMSWithTimeout(mockNext, 0)
		failure := errors.New("access denied")

		mockNext.On("DecryptKey", ctx, []byte("wrapped")).Return(nil, failure).Once()

		_, err := kms.DecryptKey(ctx, []byte("wrapped"))
		assert.Equal(t, failure, err)
	})

	t.Run("Close", func(t *testing.T) {
		mockNext := &serviceMocks.MockKeyManagementService{}
		kms := service.NewKMSWithTimeout(mockNext, time.Second)

		mockNext.On("Close").Return(nil).Once()
		assert.NoError(t, kms.Close())
		mockNext.AssertExpectations(t)
	})
}
