package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeedBalance is a test helper that sets a balance when using the in-memory store.
func SeedBalance(s Store, userID int64, currency Currency, amount string) {
	if mem, ok := s.(*MemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[BalanceKey{UserID: userID, Currency: currency}] = decimal.RequireFromString(amount)
	}
}

// SetClock overrides the creation timestamp source of the in-memory store.
func SetClock(s Store, now func() time.Time) {
	if mem, ok := s.(*MemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.now = now
	}
}
