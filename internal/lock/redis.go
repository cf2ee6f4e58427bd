package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds the caller's token.
// The check and delete run atomically server-side, so a holder whose TTL
// expired cannot delete a lock re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

// RedisBackend implements the lock contract over a persistent Redis
// connection. The client is created lazily on first use.
type RedisBackend struct {
	url string

	mu     sync.Mutex
	client *redis.Client
}

func NewRedisBackend(url string) *RedisBackend {
	return &RedisBackend{url: url}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) getClient() (*redis.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}
	opts, err := redis.ParseURL(b.url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.MaxRetries = 2
	b.client = redis.NewClient(opts)
	return b.client, nil
}

func (b *RedisBackend) Acquire(ctx context.Context, key string, token string, ttl time.Duration) (bool, error) {
	client, err := b.getClient()
	if err != nil {
		return false, err
	}
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (b *RedisBackend) Release(ctx context.Context, key string, token string) error {
	client, err := b.getClient()
	if err != nil {
		return err
	}
	if err := releaseScript.Run(ctx, client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("redis release script: %w", err)
	}
	return nil
}

// Close shuts the underlying client down if one was ever created.
func (b *RedisBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}
