// Package cache provides the short-lived memoization layer for aggregated
// feed payloads. The cache is a performance optimization only: a cold cache
// must produce the same logical result as a warm one, and entries are never
// invalidated by writes elsewhere, only by expiry.
package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores opaque payload bytes under a key for a bounded time.
// Implementations must treat any backend error as a miss; losing an entry
// is always safe.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Key builds a cache key from the tenant, the view name and any scope
// parameters. The tenant always leads so entries can never collide across
// tenants.
func Key(tenantID, view string, scope ...string) string {
	key := tenantID + "|" + view
	for _, s := range scope {
		key += "|" + s
	}
	return key
}

// ── Redis ──

type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "feed:"}
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("cache: redis get failed: %v", err)
		return nil, false
	}
	return value, true
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		log.Printf("cache: redis set failed: %v", err)
	}
}

// ── In-process ──

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a process-local TTL map, used when Redis is not configured.
// Entries are evicted lazily on read and swept on write.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

// NewMemoryAt injects a clock for tests.
func NewMemoryAt(now func() time.Time) *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: now}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}
}

// ── No-op ──

// Noop never hits. Tests inject it so cached state cannot leak between cases.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool)          { return nil, false }
func (Noop) Set(context.Context, string, []byte, time.Duration) {}
