package wallet

import (
	"context"
	"time"

	"github.com/congo-pay/fxledger/internal/ledger"
)

// Service exposes balance views backed by the ledger store.
type Service struct {
	store ledger.Store
	now   func() time.Time
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Provision creates a zero balance for every supported currency. Existing
// rows are left untouched.
func (s *Service) Provision(ctx context.Context, userID int64) error {
	return s.store.EnsureBalances(ctx, userID, ledger.SupportedCurrencies())
}

// Balances returns the user's balances, largest amount first.
func (s *Service) Balances(ctx context.Context, userID int64) ([]ledger.Balance, error) {
	balances, err := s.store.Balances(ctx, userID)
	if err != nil {
		return nil, err
	}
	ledger.SortBalances(balances)
	return balances, nil
}

// Get returns the user's wallet.
func (s *Service) Get(ctx context.Context, userID int64) (Wallet, error) {
	balances, err := s.Balances(ctx, userID)
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{UserID: userID, Balances: balances, AsOf: s.now()}, nil
}
