package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxledger/internal/ledger"
)

const keyPrefix = "rates:"

// Table maps a base currency to its rate per target currency.
type Table map[ledger.Currency]map[ledger.Currency]decimal.Decimal

// Cache stores the rate table per base currency.
type Cache interface {
	Get(ctx context.Context, base ledger.Currency) (map[ledger.Currency]decimal.Decimal, bool, error)
	Store(ctx context.Context, table Table, ttl time.Duration) error
}

// RedisCache keeps each base under "rates:{BASE}" as a JSON object of
// decimal strings.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps a redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached rates for base.
func (c *RedisCache) Get(ctx context.Context, base ledger.Currency) (map[ledger.Currency]decimal.Decimal, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+string(base)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rates map[ledger.Currency]decimal.Decimal
	if err := json.Unmarshal(raw, &rates); err != nil {
		return nil, false, fmt.Errorf("decode rates for %s: %w", base, err)
	}
	return rates, true, nil
}

// Store writes every base of the table in one pipeline.
func (c *RedisCache) Store(ctx context.Context, table Table, ttl time.Duration) error {
	pipe := c.client.TxPipeline()
	for base, rates := range table {
		raw, err := json.Marshal(rates)
		if err != nil {
			return err
		}
		pipe.Set(ctx, keyPrefix+string(base), raw, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// MemoryCache is a process-local Cache used when redis is not configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[ledger.Currency]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	rates   map[ledger.Currency]decimal.Decimal
	expires time.Time
}

// NewMemoryCache builds an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[ledger.Currency]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, base ledger.Currency) (map[ledger.Currency]decimal.Decimal, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[base]
	if !ok || (!entry.expires.IsZero() && !c.now().Before(entry.expires)) {
		return nil, false, nil
	}
	out := make(map[ledger.Currency]decimal.Decimal, len(entry.rates))
	for k, v := range entry.rates {
		out[k] = v
	}
	return out, true, nil
}

func (c *MemoryCache) Store(_ context.Context, table Table, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	for base, rates := range table {
		c.entries[base] = memoryEntry{rates: rates, expires: expires}
	}
	return nil
}
