package wire

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrReplayed is returned when a signed request is presented a second time.
var ErrReplayed = errors.New("request was already accepted")

// ReplayCache remembers accepted request signatures for ttl.
type ReplayCache interface {
	Claim(ctx context.Context, signature string, ttl time.Duration) error
}

// Claim records a verified envelope in cache until its timestamp leaves the
// skew window. A second claim of the same signature fails with ErrReplayed.
func Claim(ctx context.Context, cache ReplayCache, a Auth, now time.Time, skew time.Duration) error {
	if cache == nil {
		return nil
	}
	ttl := time.UnixMilli(a.TimestampMs).Add(skew).Sub(now) + time.Second
	if ttl < time.Second {
		ttl = time.Second
	}
	return cache.Claim(ctx, strings.ToLower(a.Signature), ttl)
}

// MemoryReplayCache keeps signatures in process memory.
type MemoryReplayCache struct {
	now func() time.Time

	mu      sync.Mutex
	expires map[string]time.Time
}

// NewMemoryReplayCache constructs an empty cache. A nil now uses time.Now.
func NewMemoryReplayCache(now func() time.Time) *MemoryReplayCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryReplayCache{now: now, expires: make(map[string]time.Time)}
}

func (c *MemoryReplayCache) Claim(ctx context.Context, signature string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for sig, exp := range c.expires {
		if !now.Before(exp) {
			delete(c.expires, sig)
		}
	}
	if _, ok := c.expires[signature]; ok {
		return ErrReplayed
	}
	c.expires[signature] = now.Add(ttl)
	return nil
}

// RedisReplayCache shares claimed signatures between service replicas.
type RedisReplayCache struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisReplayCache stores claims under <prefix>:replay:<signature>.
func NewRedisReplayCache(rdb redis.UniversalClient, prefix string) *RedisReplayCache {
	if prefix == "" {
		prefix = "zombies"
	}
	return &RedisReplayCache{rdb: rdb, prefix: prefix}
}

func (c *RedisReplayCache) Claim(ctx context.Context, signature string, ttl time.Duration) error {
	ok, err := c.rdb.SetNX(ctx, c.prefix+":replay:"+signature, 1, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrReplayed
	}
	return nil
}
