package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginLimiter caps login attempts per client address within a fixed window.
type LoginLimiter interface {
	// Allow records one attempt for key and reports whether it is within the limit.
	Allow(ctx context.Context, key string) bool
}

type attemptWindow struct {
	count   int
	resetAt time.Time
}

// MemoryLoginLimiter keeps attempt counters in process memory.
type MemoryLoginLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*attemptWindow
}

// NewMemoryLoginLimiter allows limit attempts per window for each key.
func NewMemoryLoginLimiter(limit int, window time.Duration) *MemoryLoginLimiter {
	return &MemoryLoginLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		entries: map[string]*attemptWindow{},
	}
}

// Allow denies without counting once the window is full. The window restarts
// on the first attempt after it expired.
func (m *MemoryLoginLimiter) Allow(_ context.Context, key string) bool {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if ok && now.Before(e.resetAt) && e.count >= m.limit {
		return false
	}
	if !ok || !now.Before(e.resetAt) {
		m.sweepLocked(now)
		m.entries[key] = &attemptWindow{count: 1, resetAt: now.Add(m.window)}
		return true
	}
	e.count++
	return true
}

func (m *MemoryLoginLimiter) sweepLocked(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.resetAt) {
			delete(m.entries, k)
		}
	}
}

// KEYS[1] counter key, ARGV[1] limit, ARGV[2] window in milliseconds.
var loginAttemptScript = redis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
if n >= tonumber(ARGV[1]) then
  return 0
end
n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// RedisLoginLimiter shares attempt counters between instances through Redis.
type RedisLoginLimiter struct {
	client   *redis.Client
	limit    int
	window   time.Duration
	fallback *MemoryLoginLimiter
}

// NewRedisLoginLimiter uses client for counting and falls back to memory when Redis errors.
func NewRedisLoginLimiter(client *redis.Client, limit int, window time.Duration) *RedisLoginLimiter {
	return &RedisLoginLimiter{
		client:   client,
		limit:    limit,
		window:   window,
		fallback: NewMemoryLoginLimiter(limit, window),
	}
}

func (r *RedisLoginLimiter) Allow(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	ok, err := loginAttemptScript.Run(ctx, r.client, []string{"login:attempts:" + key}, r.limit, r.window.Milliseconds()).Int()
	if err != nil {
		Sugar.Warnf("login limiter redis error, using memory: %v", err)
		return r.fallback.Allow(ctx, key)
	}
	return ok == 1
}

// NewLoginLimiter picks Redis when a client is available.
func NewLoginLimiter(client *redis.Client, limit int, window time.Duration) LoginLimiter {
	if client != nil {
		return NewRedisLoginLimiter(client, limit, window)
	}
	return NewMemoryLoginLimiter(limit, window)
}
