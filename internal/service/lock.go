package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Locker hands out advisory locks with a TTL. ok is false when the key is
// already held. release only frees a lock still owned by the caller.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// MemoryLocker keeps locks in process memory
type MemoryLocker struct {
	mu    sync.Mutex
	locks *cache.Cache
}

// NewMemoryLocker creates an in-process Locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: cache.New(cache.NoExpiration, time.Minute)}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()

	l.mu.Lock()
	err := l.locks.Add(key, token, ttl)
	l.mu.Unlock()
	if err != nil {
		return nil, false, nil
	}

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if v, ok := l.locks.Get(key); ok && v == token {
			l.locks.Delete(key)
		}
	}
	return release, true, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares locks between processes through Redis
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker creates a Locker backed by client. Keys are namespaced with "fitsync:".
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "fitsync:"}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	fullKey := l.prefix + key

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		releaseScript.Run(ctx, l.client, []string{fullKey}, token)
	}
	return release, true, nil
}
