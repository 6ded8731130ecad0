package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:generate mockgen -source=$GOFILE -destination=mock/mock.go -package=mock_scheduler

// Lease is a best-effort exclusive claim on a task name across instances
type Lease interface {
	// Acquire reports whether the caller now holds key for ttl
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release gives key back if the caller still holds it
	Release(ctx context.Context, key string) error
}

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease implements Lease with SET NX PX
type RedisLease struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisLease creates a lease store on addr
func NewRedisLease(addr, password string) *RedisLease {
	return NewRedisLeaseWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	}))
}

// NewRedisLeaseWithClient wraps an existing client
func NewRedisLeaseWithClient(client *redis.Client) *RedisLease {
	return &RedisLease{
		client: client,
		prefix: "wingo:lease:",
		tokens: make(map[string]string),
	}
}

// Acquire implements Lease
func (l *RedisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("error acquiring lease %s: %w", key, err)
	}
	if ok {
		l.mu.Lock()
		l.tokens[key] = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Release implements Lease
func (l *RedisLease) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("error releasing lease %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection
func (l *RedisLease) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (l *RedisLease) Close() error {
	return l.client.Close()
}
