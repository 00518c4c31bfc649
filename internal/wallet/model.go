package wallet

import (
	"time"

	"github.com/congo-pay/fxledger/internal/ledger"
)

// Wallet is the set of per-currency balances a user holds.
type Wallet struct {
	UserID   int64            `json:"user_id"`
	Balances []ledger.Balance `json:"balances"`
	AsOf     time.Time        `json:"as_of"`
}
