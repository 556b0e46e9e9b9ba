package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/config"
	"github.com/thiagoooop/morada-de-praia/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "morada:lock:"

// unlockScript deletes the key only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a lease lock shared by every process talking to the same Redis.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisClient cria o cliente Redis a partir da configuração
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockPrefix+key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", domain.ErrLockHeld
	}
	return token, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	if l.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	n, err := unlockScript.Run(ctx, l.client, []string{lockPrefix + key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if n == 0 {
		return domain.ErrLockLost
	}
	return nil
}

// Ping verifica a conexão com o Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close fecha a conexão com o Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
