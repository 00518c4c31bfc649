package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrBadRequest covers malformed input: non-positive ids or amounts,
	// unsupported currencies, unknown types and missing balance rows.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound indicates a referenced user or transaction does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBlockedUser indicates the sender or recipient is not ACTIVE.
	ErrBlockedUser = errors.New("user is blocked")

	// ErrNegativeBalance indicates a mutation would drive a balance below zero.
	ErrNegativeBalance = errors.New("insufficient balance")

	// ErrAlreadyRollbacked is returned when a transaction was already reversed.
	ErrAlreadyRollbacked = errors.New("transaction already rollbacked")

	// ErrRateFetchFailure indicates exchange rates could not be obtained.
	ErrRateFetchFailure = errors.New("exchange rate unavailable")
)

var businessErrors = []error{
	ErrBadRequest,
	ErrNotFound,
	ErrBlockedUser,
	ErrNegativeBalance,
	ErrAlreadyRollbacked,
	ErrRateFetchFailure,
}

// IsBusiness reports whether err belongs to the ledger error taxonomy, as
// opposed to a persistence or infrastructure failure.
func IsBusiness(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func blocked(role string, id int64) error {
	return fmt.Errorf("%w: %s %d is not active", ErrBlockedUser, role, id)
}

// Holder is the view of a user the engine needs to gate mutations.
type Holder struct {
	ID     int64
	Active bool
}

// Directory resolves account holders. The in-memory store consults it since
// users live outside the ledger.
type Directory interface {
	Holder(ctx context.Context, userID int64) (Holder, bool, error)
}

// DirectoryFunc adapts a function to the Directory interface.
type DirectoryFunc func(ctx context.Context, userID int64) (Holder, bool, error)

// Holder implements Directory.
func (f DirectoryFunc) Holder(ctx context.Context, userID int64) (Holder, bool, error) {
	return f(ctx, userID)
}

// RateLookup returns conversion rates from base to every other currency it knows.
type RateLookup interface {
	GetRates(ctx context.Context, base Currency) (map[Currency]decimal.Decimal, error)
}

// UnitOfWork exposes the reads and writes available inside one atomic scope.
// Rows returned by the Lock* methods stay locked until the scope ends.
type UnitOfWork interface {
	Holder(ctx context.Context, userID int64) (Holder, bool, error)
	// LockBalances locks the given rows in ascending key order. Keys without
	// a row are absent from the result.
	LockBalances(ctx context.Context, keys ...BalanceKey) (map[BalanceKey]decimal.Decimal, error)
	SetBalance(ctx context.Context, key BalanceKey, amount decimal.Decimal) error
	Insert(ctx context.Context, tx Transaction) (Transaction, error)
	LockTransaction(ctx context.Context, id int64) (Transaction, bool, error)
	SetStatus(ctx context.Context, id int64, status TransactionStatus) error
}

// Store defines the contract implemented by ledger backends (e.g. Postgres).
type Store interface {
	// Atomic runs fn in a single unit of work. A non-nil error from fn
	// discards every write made through the unit.
	Atomic(ctx context.Context, fn func(uow UnitOfWork) error) error
	EnsureBalances(ctx context.Context, userID int64, currencies []Currency) error
	Balances(ctx context.Context, userID int64) ([]Balance, error)
	Transaction(ctx context.Context, id int64) (Transaction, error)
	Transactions(ctx context.Context, filter Filter) ([]Transaction, error)
	TransactionsBetween(ctx context.Context, from, to time.Time) ([]Transaction, error)
}
