package wallet

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxledger/internal/ledger"
)

type holders map[int64]bool

func (h holders) Holder(_ context.Context, id int64) (ledger.Holder, bool, error) {
	active, ok := h[id]
	return ledger.Holder{ID: id, Active: active}, ok, nil
}

func TestServiceProvisionAndBalances(t *testing.T) {
	store := ledger.NewInMemory(holders{1: true})
	svc := NewService(store)
	ctx := context.Background()

	if err := svc.Provision(ctx, 1); err != nil {
		t.Fatalf("provision: %v", err)
	}
	ledger.SeedBalance(store, 1, ledger.BTC, "0.25")
	ledger.SeedBalance(store, 1, ledger.USD, "10")

	wallet, err := svc.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if len(wallet.Balances) != len(ledger.SupportedCurrencies()) {
		t.Fatalf("expected %d balances, got %d", len(ledger.SupportedCurrencies()), len(wallet.Balances))
	}
	if wallet.Balances[0].Currency != ledger.USD || wallet.Balances[1].Currency != ledger.BTC {
		t.Fatalf("expected USD then BTC first, got %s, %s", wallet.Balances[0].Currency, wallet.Balances[1].Currency)
	}

	// provisioning twice keeps funded rows intact
	if err := svc.Provision(ctx, 1); err != nil {
		t.Fatalf("provision again: %v", err)
	}
	balances, _ := svc.Balances(ctx, 1)
	if !balances[0].Amount.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("expected USD 10 to survive, got %s", balances[0].Amount)
	}
}
