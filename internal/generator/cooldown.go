package generator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown remembers providers that recently failed with a quota error.
type Cooldown interface {
	// Active reports whether the provider is still cooling down.
	Active(ctx context.Context, provider string) (bool, error)
	// Trip starts a cooldown of d for the provider.
	Trip(ctx context.Context, provider string, d time.Duration) error
}

// MemoryCooldown keeps cooldowns in process memory.
type MemoryCooldown struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryCooldown(now func() time.Time) *MemoryCooldown {
	if now == nil {
		now = time.Now
	}

	return &MemoryCooldown{
		until: make(map[string]time.Time),
		now:   now,
	}
}

func (c *MemoryCooldown) Active(_ context.Context, provider string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	until, ok := c.until[provider]
	if !ok {
		return false, nil
	}

	if !c.now().Before(until) {
		delete(c.until, provider)
		return false, nil
	}

	return true, nil
}

func (c *MemoryCooldown) Trip(_ context.Context, provider string, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.until[provider] = c.now().Add(d)
	return nil
}

// RedisCooldown shares cooldowns between instances with expiring keys.
type RedisCooldown struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisCooldown(r redis.UniversalClient, prefix string) *RedisCooldown {
	return &RedisCooldown{
		redis:  r,
		prefix: prefix,
	}
}

func (c *RedisCooldown) Active(ctx context.Context, provider string) (bool, error) {
	n, err := c.redis.Exists(ctx, c.key(provider)).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown: exists: %w", err)
	}

	return n > 0, nil
}

func (c *RedisCooldown) Trip(ctx context.Context, provider string, d time.Duration) error {
	// The first instance to trip owns the window; later trips do not extend it.
	if err := c.redis.SetNX(ctx, c.key(provider), time.Now().UnixMilli(), d).Err(); err != nil {
		return fmt.Errorf("cooldown: setnx: %w", err)
	}

	return nil
}

func (c *RedisCooldown) key(provider string) string {
	return fmt.Sprintf("%s:cooldown:%s", c.prefix, provider)
}
