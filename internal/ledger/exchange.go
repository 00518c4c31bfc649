package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ExchangeRequest converts Amount of From into To for one user.
type ExchangeRequest struct {
	UserID int64
	From   Currency
	To     Currency
	Amount decimal.Decimal
}

// Exchange debits Amount from the From balance and credits Amount×rate to
// the To balance. The recorded transaction carries the debited amount.
//
// Balance preconditions are checked before rates are resolved, so a request
// that cannot succeed never triggers a rate lookup. The lookup runs with no
// row lock held and the unit of work checks the balances again.
func (e *Engine) Exchange(ctx context.Context, req ExchangeRequest) (Transaction, error) {
	if err := validAmount(req.Amount); err != nil {
		return Transaction{}, err
	}
	if req.UserID <= 0 {
		return Transaction{}, badRequest("user id must be positive")
	}
	if !req.From.Valid() {
		return Transaction{}, badRequest("unsupported currency %q", req.From)
	}
	if !req.To.Valid() {
		return Transaction{}, badRequest("unsupported currency %q", req.To)
	}
	if req.From == req.To {
		return Transaction{}, badRequest("cannot exchange %s into itself", req.From)
	}

	fromKey := BalanceKey{UserID: req.UserID, Currency: req.From}
	toKey := BalanceKey{UserID: req.UserID, Currency: req.To}

	err := e.store.Atomic(ctx, func(uow UnitOfWork) error {
		_, err := lockExchangeBalances(ctx, uow, req, fromKey, toKey)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}

	if e.rates == nil {
		return Transaction{}, fmt.Errorf("%w: no rate lookup configured", ErrRateFetchFailure)
	}
	rates, err := e.rates.GetRates(ctx, req.From)
	if err != nil {
		if errors.Is(err, ErrRateFetchFailure) {
			return Transaction{}, err
		}
		return Transaction{}, fmt.Errorf("%w: %v", ErrRateFetchFailure, err)
	}
	rate, ok := rates[req.To]
	if !ok {
		return Transaction{}, badRequest("no %s rate for base %s", req.To, req.From)
	}
	converted := req.Amount.Mul(rate).Truncate(AmountScale)

	var created Transaction
	err = e.store.Atomic(ctx, func(uow UnitOfWork) error {
		balances, err := lockExchangeBalances(ctx, uow, req, fromKey, toKey)
		if err != nil {
			return err
		}

		balances[fromKey] = balances[fromKey].Sub(req.Amount)
		if balances[toKey], err = credit(toKey, balances[toKey], converted); err != nil {
			return err
		}
		if err := writeBalances(ctx, uow, []BalanceKey{fromKey, toKey}, balances); err != nil {
			return err
		}

		created, err = uow.Insert(ctx, Transaction{
			SenderID:     req.UserID,
			RecipientID:  int64Ptr(req.UserID),
			Currency:     req.From,
			Amount:       req.Amount,
			Type:         Exchange,
			Status:       Processed,
			FromCurrency: currencyPtr(req.From),
			ToCurrency:   currencyPtr(req.To),
		})
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return created, nil
}

func lockExchangeBalances(ctx context.Context, uow UnitOfWork, req ExchangeRequest, fromKey, toKey BalanceKey) (map[BalanceKey]decimal.Decimal, error) {
	if err := requireActive(ctx, uow, "user", req.UserID); err != nil {
		return nil, err
	}
	balances, err := uow.LockBalances(ctx, fromKey, toKey)
	if err != nil {
		return nil, err
	}
	fromBalance, ok := balances[fromKey]
	if !ok {
		return nil, badRequest("balance %s not found", fromKey)
	}
	if fromBalance.LessThan(req.Amount) {
		return nil, ErrNegativeBalance
	}
	if _, ok := balances[toKey]; !ok {
		return nil, badRequest("balance %s not found", toKey)
	}
	return balances, nil
}
