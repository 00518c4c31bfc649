package rates

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxledger/internal/ledger"
)

// Provider reports the USD value of one unit of each currency it knows.
type Provider interface {
	USDValues(ctx context.Context) (map[ledger.Currency]decimal.Decimal, error)
}

type singleAttemptKey struct{}

// withSingleAttempt asks providers to give up after the first failed
// upstream call instead of backing off.
func withSingleAttempt(ctx context.Context) context.Context {
	return context.WithValue(ctx, singleAttemptKey{}, true)
}

func singleAttempt(ctx context.Context) bool {
	v, _ := ctx.Value(singleAttemptKey{}).(bool)
	return v
}

// StaticProvider serves a fixed table. It backs local development and tests.
type StaticProvider struct {
	values map[ledger.Currency]decimal.Decimal
}

// NewStaticProvider returns a provider with the given values, or a built-in
// snapshot when values is nil.
func NewStaticProvider(values map[ledger.Currency]decimal.Decimal) *StaticProvider {
	if values == nil {
		values = map[ledger.Currency]decimal.Decimal{
			ledger.USD:  decimal.NewFromInt(1),
			ledger.EUR:  decimal.RequireFromString("1.0704"),
			ledger.AUD:  decimal.RequireFromString("0.6541"),
			ledger.CAD:  decimal.RequireFromString("0.7137"),
			ledger.ARS:  decimal.RequireFromString("0.00098"),
			ledger.PLN:  decimal.RequireFromString("0.2503"),
			ledger.BTC:  decimal.RequireFromString("97250.41"),
			ledger.ETH:  decimal.RequireFromString("3557.3476"),
			ledger.DOGE: decimal.RequireFromString("0.3627"),
			ledger.USDT: decimal.RequireFromString("0.9998"),
		}
	}
	return &StaticProvider{values: values}
}

func (p *StaticProvider) USDValues(context.Context) (map[ledger.Currency]decimal.Decimal, error) {
	out := make(map[ledger.Currency]decimal.Decimal, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out, nil
}
