package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

func (m *mockLocker) Unlock(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
}

func TestFailoverLocker(t *testing.T) {
	primary := new(mockLocker)
	fallback := new(mockLocker)
	logger := zerolog.New(io.Discard)
	locker := NewFailoverLocker(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Lock", ctx, "sync:1", time.Minute).Return("p-1", nil).Once()
		primary.On("Unlock", ctx, "sync:1", "p-1").Return(nil).Once()

		token, err := locker.Lock(ctx, "sync:1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "p-1", token)
		require.NoError(t, locker.Unlock(ctx, "sync:1", token))

		primary.AssertExpectations(t)
		fallback.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("HeldIsNotAFailure", func(t *testing.T) {
		primary.On("Lock", ctx, "sync:1", time.Minute).Return("", domain.ErrLockHeld).Once()

		_, err := locker.Lock(ctx, "sync:1", time.Minute)
		assert.ErrorIs(t, err, domain.ErrLockHeld)
		assert.False(t, locker.isDown.Load())
	})

	t.Run("PrimaryFailure", func(t *testing.T) {
		primary.On("Lock", ctx, "sync:2", time.Minute).Return("", errors.New("connection refused")).Once()
		fallback.On("Lock", ctx, "sync:2", time.Minute).Return("f-1", nil).Once()

		token, err := locker.Lock(ctx, "sync:2", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "f-1", token)
		assert.True(t, locker.isDown.Load())

		// while down, the primary is skipped
		fallback.On("Lock", ctx, "sync:3", time.Minute).Return("f-2", nil).Once()
		_, err = locker.Lock(ctx, "sync:3", time.Minute)
		require.NoError(t, err)

		fallback.On("Unlock", ctx, "sync:2", "f-1").Return(nil).Once()
		require.NoError(t, locker.Unlock(ctx, "sync:2", token))

		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("Recovery", func(t *testing.T) {
		locker.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		primary.On("Lock", ctx, "sync:4", time.Minute).Return("p-2", nil).Once()

		token, err := locker.Lock(ctx, "sync:4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "p-2", token)
		assert.False(t, locker.isDown.Load())
	})

	t.Run("UnknownToken", func(t *testing.T) {
		assert.ErrorIs(t, locker.Unlock(ctx, "sync:9", "nope"), domain.ErrLockLost)
	})
}

func TestFailoverLocker_WithMemory(t *testing.T) {
	logger := zerolog.New(io.Discard)
	primary := new(mockLocker)
	primary.On("Lock", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("redis down"))

	locker := NewFailoverLocker(primary, NewMemoryLocker(), &logger)
	ctx := context.Background()

	token, err := locker.Lock(ctx, "sync:1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "sync:1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	require.NoError(t, locker.Unlock(ctx, "sync:1", token))
}
