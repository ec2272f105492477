package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ResolverCache memoises parent-transaction closures. A miss or a backend
// error is never fatal: callers recompute.
type ResolverCache interface {
	Get(ctx context.Context, key string) ([]uuid.UUID, bool, error)
	Set(ctx context.Context, key string, ids []uuid.UUID, ttl time.Duration) error
}

// ResolverCacheKey builds the memoisation key for one closure.
func ResolverCacheKey(sourceTxnID uuid.UUID, language, mode string) string {
	return fmt.Sprintf("trace:parents:%s:%s:%s", sourceTxnID, language, mode)
}

// ── Redis ─────────────────────────────────────────────────────────────────────

type redisResolverCache struct{ rdb *redis.Client }

func NewRedisResolverCache(rdb *redis.Client) ResolverCache {
	return &redisResolverCache{rdb: rdb}
}

func (c *redisResolverCache) Get(ctx context.Context, key string) ([]uuid.UUID, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

func (c *redisResolverCache) Set(ctx context.Context, key string, ids []uuid.UUID, ttl time.Duration) error {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// ── In-memory ─────────────────────────────────────────────────────────────────

type memoryEntry struct {
	ids     []uuid.UUID
	expires time.Time
}

// MemoryResolverCache is a process-local ResolverCache used when redis is not
// configured and in tests.
type MemoryResolverCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryResolverCache() *MemoryResolverCache {
	return &MemoryResolverCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryResolverCache) Get(_ context.Context, key string) ([]uuid.UUID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return append([]uuid.UUID(nil), e.ids...), true, nil
}

func (c *MemoryResolverCache) Set(_ context.Context, key string, ids []uuid.UUID, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{ids: append([]uuid.UUID(nil), ids...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

// Len reports the number of live entries.
func (c *MemoryResolverCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
