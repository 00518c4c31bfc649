package rates

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxledger/internal/ledger"
	"github.com/congo-pay/fxledger/internal/observability"
)

// Updater pulls USD values from a Provider and caches the cross rates of
// every supported currency pair.
type Updater struct {
	provider Provider
	cache    Cache
	ttl      time.Duration
	logger   *slog.Logger
}

// NewUpdater builds an updater writing entries that live for ttl.
func NewUpdater(provider Provider, cache Cache, ttl time.Duration, logger *slog.Logger) *Updater {
	return &Updater{provider: provider, cache: cache, ttl: ttl, logger: logger}
}

// Refresh fetches fresh values and rewrites the cache.
func (u *Updater) Refresh(ctx context.Context) error {
	values, err := u.provider.USDValues(ctx)
	if err != nil {
		observability.RateRefreshes.WithLabelValues("error").Inc()
		if u.logger != nil {
			u.logger.Error("rates.refresh failed", "error", err)
		}
		return err
	}

	table := CrossRates(values)
	if err := u.cache.Store(ctx, table, u.ttl); err != nil {
		observability.RateRefreshes.WithLabelValues("error").Inc()
		return err
	}
	observability.RateRefreshes.WithLabelValues("success").Inc()
	if u.logger != nil {
		u.logger.Info("rates.refresh completed", slog.Int("bases", len(table)))
	}
	return nil
}

// CrossRates computes rate[base][target] = usd[base] / usd[target] for every
// pair of distinct supported currencies with a non-zero value.
func CrossRates(values map[ledger.Currency]decimal.Decimal) Table {
	table := make(Table)
	for _, base := range ledger.SupportedCurrencies() {
		baseValue, ok := values[base]
		if !ok || baseValue.IsZero() {
			continue
		}
		rates := make(map[ledger.Currency]decimal.Decimal)
		for _, target := range ledger.SupportedCurrencies() {
			if target == base {
				continue
			}
			targetValue, ok := values[target]
			if !ok || targetValue.IsZero() {
				continue
			}
			rates[target] = baseValue.Div(targetValue)
		}
		table[base] = rates
	}
	return table
}
