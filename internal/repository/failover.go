package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLocker uses the primary locker and switches to the fallback while the
// primary is erroring. Each token is released through the backend that issued it.
type FailoverLocker struct {
	primary   domain.Locker
	fallback  domain.Locker
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	issuedBy  sync.Map // token -> domain.Locker
}

func NewFailoverLocker(primary, fallback domain.Locker, logger *zerolog.Logger) *FailoverLocker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (l *FailoverLocker) Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.usePrimary() {
		token, err := l.primary.Lock(ctx, key, ttl)
		if err == nil || errors.Is(err, domain.ErrLockHeld) {
			l.isDown.Store(false)
			if err == nil {
				l.issuedBy.Store(token, l.primary)
			}
			return token, err
		}
		l.logger.Error().Err(err).Str("key", key).Msg("Primary locker failed, falling back to memory")
		l.markDown()
	}

	token, err := l.fallback.Lock(ctx, key, ttl)
	if err == nil {
		l.issuedBy.Store(token, l.fallback)
	}
	return token, err
}

func (l *FailoverLocker) Unlock(ctx context.Context, key, token string) error {
	backend, ok := l.issuedBy.LoadAndDelete(token)
	if !ok {
		return domain.ErrLockLost
	}
	return backend.(domain.Locker).Unlock(ctx, key, token)
}

// usePrimary is true while healthy and once per recovery interval while down.
func (l *FailoverLocker) usePrimary() bool {
	if !l.isDown.Load() {
		return true
	}
	last := time.Unix(0, l.lastCheck.Load())
	if time.Since(last) > recoveryInterval {
		l.lastCheck.Store(time.Now().UnixNano())
		return true
	}
	return false
}

func (l *FailoverLocker) markDown() {
	l.isDown.Store(true)
	l.lastCheck.Store(time.Now().UnixNano())
}
