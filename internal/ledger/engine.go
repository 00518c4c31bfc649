package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Engine validates and applies balance mutations against a Store.
type Engine struct {
	store Store
	rates RateLookup
}

// NewEngine builds an engine. rates may be nil when exchanges are not served.
func NewEngine(store Store, rates RateLookup) *Engine {
	return &Engine{store: store, rates: rates}
}

// Request describes a deposit, withdrawal or transfer. RecipientID is only
// read for transfers; zero means not supplied.
type Request struct {
	SenderID    int64
	RecipientID int64
	Currency    Currency
	Amount      decimal.Decimal
	Type        TransactionType
}

// Apply checks the request's preconditions in order, then mutates the
// affected balances and records a PROCESSED transaction in one unit of work.
func (e *Engine) Apply(ctx context.Context, req Request) (Transaction, error) {
	if req.SenderID <= 0 {
		return Transaction{}, badRequest("sender id must be positive")
	}
	if err := validAmount(req.Amount); err != nil {
		return Transaction{}, err
	}
	if !req.Currency.Valid() {
		return Transaction{}, badRequest("unsupported currency %q", req.Currency)
	}

	var created Transaction
	err := e.store.Atomic(ctx, func(uow UnitOfWork) error {
		if err := requireActive(ctx, uow, "sender", req.SenderID); err != nil {
			return err
		}

		senderKey := BalanceKey{UserID: req.SenderID, Currency: req.Currency}
		keys := []BalanceKey{senderKey}

		var (
			recipient      Holder
			recipientFound bool
			recipientKey   BalanceKey
		)
		if req.Type == Transfer && req.RecipientID > 0 {
			var err error
			recipient, recipientFound, err = uow.Holder(ctx, req.RecipientID)
			if err != nil {
				return err
			}
			recipientKey = BalanceKey{UserID: req.RecipientID, Currency: req.Currency}
			if recipientFound {
				keys = append(keys, recipientKey)
			}
		}

		balances, err := uow.LockBalances(ctx, keys...)
		if err != nil {
			return err
		}
		senderBalance, ok := balances[senderKey]
		if !ok {
			return badRequest("balance %s not found", senderKey)
		}

		tx := Transaction{
			SenderID: req.SenderID,
			Currency: req.Currency,
			Amount:   req.Amount,
			Type:     req.Type,
			Status:   Processed,
		}

		switch req.Type {
		case Deposit:
			if balances[senderKey], err = credit(senderKey, senderBalance, req.Amount); err != nil {
				return err
			}
		case Withdrawal:
			if senderBalance.LessThan(req.Amount) {
				return ErrNegativeBalance
			}
			balances[senderKey] = senderBalance.Sub(req.Amount)
		case Transfer:
			if req.RecipientID <= 0 {
				return badRequest("recipient id is required for transfers")
			}
			if !recipientFound {
				return notFound("recipient %d", req.RecipientID)
			}
			if !recipient.Active {
				return blocked("recipient", req.RecipientID)
			}
			if _, ok := balances[recipientKey]; !ok {
				return badRequest("balance %s not found", recipientKey)
			}
			if senderBalance.LessThan(req.Amount) {
				return ErrNegativeBalance
			}
			// Sequential updates keep a self-transfer net zero.
			balances[senderKey] = balances[senderKey].Sub(req.Amount)
			if balances[recipientKey], err = credit(recipientKey, balances[recipientKey], req.Amount); err != nil {
				return err
			}
			tx.RecipientID = int64Ptr(req.RecipientID)
		default:
			return badRequest("invalid transaction type %q", req.Type)
		}

		if err := writeBalances(ctx, uow, keys, balances); err != nil {
			return err
		}
		created, err = uow.Insert(ctx, tx)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return created, nil
}

// List returns transactions newest first. Without a user every transaction
// is returned; a direction requires a user.
func (e *Engine) List(ctx context.Context, filter Filter) ([]Transaction, error) {
	if filter.UserID < 0 {
		return nil, badRequest("user id must be positive")
	}
	if filter.Direction != "" {
		if !filter.Direction.Valid() {
			return nil, badRequest("unsupported direction %q", filter.Direction)
		}
		if filter.UserID == 0 {
			return nil, badRequest("direction requires a user id")
		}
	}
	return e.store.Transactions(ctx, filter)
}

// Get returns a single transaction.
func (e *Engine) Get(ctx context.Context, id int64) (Transaction, error) {
	if id <= 0 {
		return Transaction{}, badRequest("transaction id must be positive")
	}
	return e.store.Transaction(ctx, id)
}

func requireActive(ctx context.Context, uow UnitOfWork, role string, id int64) error {
	holder, found, err := uow.Holder(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return notFound("%s %d", role, id)
	}
	if !holder.Active {
		return blocked(role, id)
	}
	return nil
}

func writeBalances(ctx context.Context, uow UnitOfWork, keys []BalanceKey, balances map[BalanceKey]decimal.Decimal) error {
	for _, key := range sortedKeys(keys) {
		if err := uow.SetBalance(ctx, key, balances[key]); err != nil {
			return err
		}
	}
	return nil
}
