package identity

import (
	"context"
	"errors"

	"github.com/congo-pay/fxledger/internal/ledger"
)

// Holders exposes the repository as a ledger directory so the in-memory
// ledger store can gate mutations on user status.
func Holders(repo Repository) ledger.Directory {
	return ledger.DirectoryFunc(func(ctx context.Context, userID int64) (ledger.Holder, bool, error) {
		user, err := repo.FindByID(ctx, userID)
		if errors.Is(err, ErrUserNotFound) {
			return ledger.Holder{}, false, nil
		}
		if err != nil {
			return ledger.Holder{}, false, err
		}
		return ledger.Holder{ID: user.ID, Active: user.Active()}, true, nil
	})
}
