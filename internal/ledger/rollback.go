package ledger

import (
	"context"
)

// Rollback applies the inverse of a PROCESSED deposit, withdrawal or
// transfer against current balances and marks it ROLLBACKED, atomically.
// Exchanges are not reversible.
func (e *Engine) Rollback(ctx context.Context, id int64) (Transaction, error) {
	if id <= 0 {
		return Transaction{}, badRequest("transaction id must be positive")
	}

	var reversed Transaction
	err := e.store.Atomic(ctx, func(uow UnitOfWork) error {
		tx, found, err := uow.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return notFound("transaction %d", id)
		}
		if tx.Status == Rollbacked {
			return ErrAlreadyRollbacked
		}

		if err := requireActive(ctx, uow, "sender", tx.SenderID); err != nil {
			return err
		}
		var recipientID int64
		if tx.Type == Transfer {
			if tx.RecipientID == nil {
				return badRequest("transfer %d has no recipient", id)
			}
			recipientID = *tx.RecipientID
			if err := requireActive(ctx, uow, "recipient", recipientID); err != nil {
				return err
			}
		}

		senderKey := BalanceKey{UserID: tx.SenderID, Currency: tx.Currency}
		keys := []BalanceKey{senderKey}

		switch tx.Type {
		case Deposit, Withdrawal:
			balances, err := uow.LockBalances(ctx, senderKey)
			if err != nil {
				return err
			}
			current, ok := balances[senderKey]
			if !ok {
				return badRequest("balance %s not found", senderKey)
			}
			if tx.Type == Deposit {
				if current.LessThan(tx.Amount) {
					return ErrNegativeBalance
				}
				balances[senderKey] = current.Sub(tx.Amount)
			} else if balances[senderKey], err = credit(senderKey, current, tx.Amount); err != nil {
				return err
			}
			if err := writeBalances(ctx, uow, keys, balances); err != nil {
				return err
			}
		case Transfer:
			recipientKey := BalanceKey{UserID: recipientID, Currency: tx.Currency}
			keys = append(keys, recipientKey)
			balances, err := uow.LockBalances(ctx, keys...)
			if err != nil {
				return err
			}
			if _, ok := balances[senderKey]; !ok {
				return badRequest("balance %s not found", senderKey)
			}
			if _, ok := balances[recipientKey]; !ok {
				return badRequest("balance %s not found", recipientKey)
			}
			if balances[senderKey], err = credit(senderKey, balances[senderKey], tx.Amount); err != nil {
				return err
			}
			if balances[recipientKey].LessThan(tx.Amount) {
				return ErrNegativeBalance
			}
			balances[recipientKey] = balances[recipientKey].Sub(tx.Amount)
			if err := writeBalances(ctx, uow, keys, balances); err != nil {
				return err
			}
		case Exchange:
			return badRequest("exchange %d cannot be rolled back", id)
		default:
			return badRequest("unknown transaction type %q", tx.Type)
		}

		if err := uow.SetStatus(ctx, id, Rollbacked); err != nil {
			return err
		}
		tx.Status = Rollbacked
		reversed = tx
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return reversed, nil
}
