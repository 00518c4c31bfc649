package rates

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/congo-pay/fxledger/internal/ledger"
)

// Lookup serves cached rates and refreshes the cache once on a miss.
// Concurrent misses share a single refresh, which makes one upstream attempt
// so a request never waits out the scheduled job's retry budget.
type Lookup struct {
	cache   Cache
	updater *Updater
	group   singleflight.Group
}

// NewLookup builds a rate lookup.
func NewLookup(cache Cache, updater *Updater) *Lookup {
	return &Lookup{cache: cache, updater: updater}
}

// GetRates implements ledger.RateLookup.
func (l *Lookup) GetRates(ctx context.Context, base ledger.Currency) (map[ledger.Currency]decimal.Decimal, error) {
	rates, ok, err := l.cache.Get(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrRateFetchFailure, err)
	}
	if ok {
		return rates, nil
	}

	_, err, _ = l.group.Do("refresh", func() (any, error) {
		return nil, l.updater.Refresh(withSingleAttempt(ctx))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: refresh: %v", ledger.ErrRateFetchFailure, err)
	}

	rates, ok, err = l.cache.Get(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrRateFetchFailure, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: no rates for %s after refresh", ledger.ErrRateFetchFailure, base)
	}
	return rates, nil
}
