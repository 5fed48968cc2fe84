package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = Policy{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxElapsedTime:  time.Second,
	MaxRetries:      3,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	transient := errors.New("transient")

	t.Run("Success_FirstAttempt", func(t *testing.T) {
		calls := 0
		r := New("load", fastPolicy, nil, discardLogger())

		value, err := Do(ctx, r, func(context.Context) (string, error) {
			calls++
			return "ok", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "ok", value)
		assert.Equal(t, 1, calls)
	})

	t.Run("Success_AfterTransientFailures", func(t *testing.T) {
		calls := 0
		r := New("load", fastPolicy, nil, discardLogger())

		value, err := Do(ctx, r, func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, transient
			}
			return 42, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 42, value)
		assert.Equal(t, 3, calls)
	})

	t.Run("Error_ExhaustsRetries", func(t *testing.T) {
		calls := 0
		r := New("load", fastPolicy, nil, discardLogger())

		_, err := Do(ctx, r, func(context.Context) (int, error) {
			calls++
			return 0, transient
		})

		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 4, calls)
	})

	t.Run("Error_NonRetryableStopsImmediately", func(t *testing.T) {
		calls := 0
		permanent := errors.New("permanent")
		r := New("load", fastPolicy, func(err error) bool { return !errors.Is(err, permanent) }, discardLogger())

		_, err := Do(ctx, r, func(context.Context) (int, error) {
			calls++
			return 0, permanent
		})

		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("Error_CanceledContext", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		r := New("load", fastPolicy, nil, discardLogger())

		_, err := Do(canceled, r, func(ctx context.Context) (int, error) {
			return 0, ctx.Err()
		})

		assert.ErrorIs(t, err, context.Canceled)
	})
}
