package rates

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxledger/internal/ledger"
	"github.com/congo-pay/fxledger/internal/logging"
)

type countingProvider struct {
	calls  atomic.Int64
	values map[ledger.Currency]decimal.Decimal
	err    error
}

func (p *countingProvider) USDValues(context.Context) (map[ledger.Currency]decimal.Decimal, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.values, nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestCrossRates(t *testing.T) {
	table := CrossRates(map[ledger.Currency]decimal.Decimal{
		ledger.USD: d("1"),
		ledger.EUR: d("1.25"),
		ledger.BTC: d("50000"),
		ledger.ARS: d("0"),
	})

	if got := table[ledger.EUR][ledger.USD]; !got.Equal(d("1.25")) {
		t.Fatalf("EUR->USD: expected 1.25, got %s", got)
	}
	if got := table[ledger.USD][ledger.EUR]; !got.Equal(d("0.8")) {
		t.Fatalf("USD->EUR: expected 0.8, got %s", got)
	}
	if got := table[ledger.BTC][ledger.EUR]; !got.Equal(d("40000")) {
		t.Fatalf("BTC->EUR: expected 40000, got %s", got)
	}
	if _, ok := table[ledger.USD][ledger.USD]; ok {
		t.Fatalf("a currency must not be quoted against itself")
	}
	if _, ok := table[ledger.ARS]; ok {
		t.Fatalf("zero-valued currencies must be skipped as base")
	}
	if _, ok := table[ledger.USD][ledger.ARS]; ok {
		t.Fatalf("zero-valued currencies must be skipped as target")
	}
}

func TestRedisCacheStoresPerBaseWithTTL(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()

	table := Table{ledger.USD: {ledger.EUR: d("0.9")}}
	if err := cache.Store(ctx, table, time.Hour); err != nil {
		t.Fatalf("store: %v", err)
	}
	if !mr.Exists("rates:USD") {
		t.Fatalf("expected rates:USD key")
	}
	if ttl := mr.TTL("rates:USD"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}
	raw, _ := mr.Get("rates:USD")
	if raw != `{"EUR":"0.9"}` {
		t.Fatalf("unexpected encoding %s", raw)
	}

	rates, ok, err := cache.Get(ctx, ledger.USD)
	if err != nil || !ok || !rates[ledger.EUR].Equal(d("0.9")) {
		t.Fatalf("unexpected get: %v %v %v", rates, ok, err)
	}

	mr.FastForward(time.Hour)
	if _, ok, _ := cache.Get(ctx, ledger.USD); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestLookupRefreshesOnceOnMiss(t *testing.T) {
	cache, _ := newRedisCache(t)
	provider := &countingProvider{values: map[ledger.Currency]decimal.Decimal{ledger.USD: d("1"), ledger.EUR: d("2")}}
	lookup := NewLookup(cache, NewUpdater(provider, cache, time.Hour, logging.Discard()))
	ctx := context.Background()

	rates, err := lookup.GetRates(ctx, ledger.EUR)
	if err != nil {
		t.Fatalf("get rates: %v", err)
	}
	if !rates[ledger.USD].Equal(d("2")) {
		t.Fatalf("EUR->USD: expected 2, got %s", rates[ledger.USD])
	}
	if _, err := lookup.GetRates(ctx, ledger.USD); err != nil {
		t.Fatalf("get rates: %v", err)
	}
	if provider.calls.Load() != 1 {
		t.Fatalf("expected a single refresh, got %d", provider.calls.Load())
	}

	// a base the provider does not price stays missing after the refresh
	if _, err := lookup.GetRates(ctx, ledger.DOGE); !errors.Is(err, ledger.ErrRateFetchFailure) {
		t.Fatalf("expected rate fetch failure, got %v", err)
	}
	if provider.calls.Load() != 2 {
		t.Fatalf("expected one more refresh for the miss, got %d", provider.calls.Load())
	}
}

func TestLookupSharesConcurrentRefresh(t *testing.T) {
	cache := NewMemoryCache()
	provider := &countingProvider{values: map[ledger.Currency]decimal.Decimal{ledger.USD: d("1"), ledger.EUR: d("2")}}
	lookup := NewLookup(cache, NewUpdater(provider, cache, time.Hour, nil))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lookup.GetRates(context.Background(), ledger.USD); err != nil {
				t.Errorf("get rates: %v", err)
			}
		}()
	}
	wg.Wait()
	if calls := provider.calls.Load(); calls < 1 || calls > 10 {
		t.Fatalf("unexpected refresh count %d", calls)
	}
}

func TestLookupProviderFailure(t *testing.T) {
	cache := NewMemoryCache()
	provider := &countingProvider{err: errors.New("upstream 500")}
	lookup := NewLookup(cache, NewUpdater(provider, cache, time.Hour, logging.Discard()))

	if _, err := lookup.GetRates(context.Background(), ledger.USD); !errors.Is(err, ledger.ErrRateFetchFailure) {
		t.Fatalf("expected rate fetch failure, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	if err := cache.Store(context.Background(), Table{ledger.USD: {ledger.EUR: d("0.9")}}, time.Minute); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, ok, _ := cache.Get(context.Background(), ledger.USD); !ok {
		t.Fatalf("expected cached entry")
	}
	now = now.Add(time.Minute)
	if _, ok, _ := cache.Get(context.Background(), ledger.USD); ok {
		t.Fatalf("expected expired entry")
	}
}

func TestStaticProviderCoversEveryCurrency(t *testing.T) {
	values, err := NewStaticProvider(nil).USDValues(context.Background())
	if err != nil {
		t.Fatalf("usd values: %v", err)
	}
	for _, c := range ledger.SupportedCurrencies() {
		if v, ok := values[c]; !ok || !v.IsPositive() {
			t.Fatalf("missing value for %s", c)
		}
	}
}
