package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

type staticRates map[Currency]map[Currency]decimal.Decimal

func (s staticRates) GetRates(_ context.Context, base Currency) (map[Currency]decimal.Decimal, error) {
	rates, ok := s[base]
	if !ok {
		return nil, ErrRateFetchFailure
	}
	return rates, nil
}

type failingRates struct{ err error }

func (f failingRates) GetRates(context.Context, Currency) (map[Currency]decimal.Decimal, error) {
	return nil, f.err
}

func TestExchangeConvertsAtLookedUpRate(t *testing.T) {
	rates := staticRates{USD: {EUR: dec("0.9")}}
	engine, store := newTestEngine(t, directory{7: true}, rates)
	SeedBalance(store, 7, USD, "200")

	tx, err := engine.Exchange(context.Background(), ExchangeRequest{UserID: 7, From: USD, To: EUR, Amount: dec("100")})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	expectBalance(t, store, 7, USD, "100")
	expectBalance(t, store, 7, EUR, "90")

	if tx.Type != Exchange || !tx.Amount.Equal(dec("100")) || tx.Currency != USD {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if tx.FromCurrency == nil || *tx.FromCurrency != USD || tx.ToCurrency == nil || *tx.ToCurrency != EUR {
		t.Fatalf("expected USD->EUR, got %v->%v", tx.FromCurrency, tx.ToCurrency)
	}
	if tx.RecipientID == nil || *tx.RecipientID != 7 || tx.SenderID != 7 {
		t.Fatalf("exchange must be self-directed, got sender %d recipient %v", tx.SenderID, tx.RecipientID)
	}
}

func TestExchangeTruncatesConvertedAmount(t *testing.T) {
	rates := staticRates{BTC: {USD: dec("100000.1234567")}}
	engine, store := newTestEngine(t, directory{1: true}, rates)
	SeedBalance(store, 1, BTC, "1")

	if _, err := engine.Exchange(context.Background(), ExchangeRequest{UserID: 1, From: BTC, To: USD, Amount: dec("0.5")}); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	expectBalance(t, store, 1, USD, "50000.061728")
	expectBalance(t, store, 1, BTC, "0.5")
}

func TestExchangeMissingRate(t *testing.T) {
	rates := staticRates{USD: {EUR: dec("0.9")}}
	engine, store := newTestEngine(t, directory{1: true}, rates)
	SeedBalance(store, 1, USD, "200")

	_, err := engine.Exchange(context.Background(), ExchangeRequest{UserID: 1, From: USD, To: PLN, Amount: dec("100")})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
	expectBalance(t, store, 1, USD, "200")
	expectBalance(t, store, 1, PLN, "0")
}

func TestExchangeRateFailure(t *testing.T) {
	engine, store := newTestEngine(t, directory{1: true}, failingRates{err: errors.New("upstream timeout")})
	SeedBalance(store, 1, USD, "200")

	_, err := engine.Exchange(context.Background(), ExchangeRequest{UserID: 1, From: USD, To: EUR, Amount: dec("100")})
	if !errors.Is(err, ErrRateFetchFailure) {
		t.Fatalf("expected rate fetch failure, got %v", err)
	}
	expectBalance(t, store, 1, USD, "200")
}

func TestExchangePreconditions(t *testing.T) {
	rates := failingRates{err: ErrRateFetchFailure}
	engine, store := newTestEngine(t, directory{1: true, 2: false}, rates)
	SeedBalance(store, 1, USD, "50")
	delete(store.balances, BalanceKey{UserID: 1, Currency: CAD})

	cases := []struct {
		name string
		req  ExchangeRequest
		want error
	}{
		{"non positive amount", ExchangeRequest{UserID: 1, From: USD, To: EUR, Amount: dec("0")}, ErrBadRequest},
		{"same currency", ExchangeRequest{UserID: 1, From: USD, To: USD, Amount: dec("1")}, ErrBadRequest},
		{"unsupported currency", ExchangeRequest{UserID: 1, From: USD, To: "GBP", Amount: dec("1")}, ErrBadRequest},
		{"unknown user", ExchangeRequest{UserID: 3, From: USD, To: EUR, Amount: dec("1")}, ErrNotFound},
		{"blocked user", ExchangeRequest{UserID: 2, From: USD, To: EUR, Amount: dec("1")}, ErrBlockedUser},
		{"missing source balance", ExchangeRequest{UserID: 1, From: CAD, To: EUR, Amount: dec("1")}, ErrBadRequest},
		{"insufficient source", ExchangeRequest{UserID: 1, From: USD, To: EUR, Amount: dec("50.01")}, ErrNegativeBalance},
		{"missing destination balance", ExchangeRequest{UserID: 1, From: USD, To: CAD, Amount: dec("1")}, ErrBadRequest},
		{"rate failure reported last", ExchangeRequest{UserID: 1, From: USD, To: EUR, Amount: dec("1")}, ErrRateFetchFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.Exchange(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	expectBalance(t, store, 1, USD, "50")
}

type countingRates struct {
	lookups int
	next    RateLookup
}

func (c *countingRates) GetRates(ctx context.Context, base Currency) (map[Currency]decimal.Decimal, error) {
	c.lookups++
	return c.next.GetRates(ctx, base)
}

func TestExchangeSkipsRateLookupWhenBalancesReject(t *testing.T) {
	rates := &countingRates{next: staticRates{USD: {EUR: dec("0.9")}}}
	engine, store := newTestEngine(t, directory{1: true, 2: false}, rates)
	SeedBalance(store, 1, USD, "10")
	ctx := context.Background()

	rejected := []struct {
		name string
		req  ExchangeRequest
		want error
	}{
		{"insufficient source", ExchangeRequest{UserID: 1, From: USD, To: EUR, Amount: dec("10.5")}, ErrNegativeBalance},
		{"unknown user", ExchangeRequest{UserID: 9, From: USD, To: EUR, Amount: dec("1")}, ErrNotFound},
		{"blocked user", ExchangeRequest{UserID: 2, From: USD, To: EUR, Amount: dec("1")}, ErrBlockedUser},
	}
	for _, tc := range rejected {
		if _, err := engine.Exchange(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if rates.lookups != 0 {
		t.Fatalf("expected no rate lookups for rejected requests, got %d", rates.lookups)
	}

	if _, err := engine.Exchange(ctx, ExchangeRequest{UserID: 1, From: USD, To: EUR, Amount: dec("10")}); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if rates.lookups != 1 {
		t.Fatalf("expected one rate lookup, got %d", rates.lookups)
	}
	expectBalance(t, store, 1, EUR, "9")
}

func TestExchangeRejectsOverflowingCredit(t *testing.T) {
	rates := staticRates{BTC: {USD: dec("100000")}}
	engine, store := newTestEngine(t, directory{1: true}, rates)
	SeedBalance(store, 1, BTC, "100000000")

	_, err := engine.Exchange(context.Background(), ExchangeRequest{UserID: 1, From: BTC, To: USD, Amount: dec("100000000")})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
	expectBalance(t, store, 1, BTC, "100000000")
	expectBalance(t, store, 1, USD, "0")
}
