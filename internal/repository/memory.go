package repository

import (
	"context"
	"sync"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/domain"

	"github.com/google/uuid"
)

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is the single-process lock used without Redis.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	now   func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]lockEntry),
		now:   time.Now,
	}
}

func (l *MemoryLocker) Lock(_ context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.locks[key]; ok && now.Before(entry.expiresAt) {
		return "", domain.ErrLockHeld
	}

	token := uuid.NewString()
	l.locks[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return token, nil
}

func (l *MemoryLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[key]
	if !ok || entry.token != token {
		return domain.ErrLockLost
	}
	delete(l.locks, key)
	if l.now().After(entry.expiresAt) {
		return domain.ErrLockLost
	}
	return nil
}
