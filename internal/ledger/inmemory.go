package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is a concurrency-safe in-memory Store useful for unit tests
// and local development. Units of work run one at a time.
type MemoryStore struct {
	mu           sync.Mutex
	directory    Directory
	balances     map[BalanceKey]decimal.Decimal
	transactions []Transaction
	now          func() time.Time
}

// NewInMemory creates an in-memory store resolving holders through directory.
func NewInMemory(directory Directory) *MemoryStore {
	return &MemoryStore{
		directory: directory,
		balances:  make(map[BalanceKey]decimal.Decimal),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Atomic implements Store. Writes are staged and only applied when fn succeeds.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(uow UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	unit := &memoryUnit{
		store:    s,
		balances: make(map[BalanceKey]decimal.Decimal),
		statuses: make(map[int64]TransactionStatus),
	}
	if err := fn(unit); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for key, amount := range unit.balances {
		s.balances[key] = amount
	}
	s.transactions = append(s.transactions, unit.inserts...)
	for id, status := range unit.statuses {
		s.transactions[id-1].Status = status
	}
	return nil
}

// EnsureBalances creates zero balances for currencies the user lacks.
func (s *MemoryStore) EnsureBalances(ctx context.Context, userID int64, currencies []Currency) error {
	if _, found, err := s.directory.Holder(ctx, userID); err != nil {
		return err
	} else if !found {
		return notFound("user %d", userID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range currencies {
		key := BalanceKey{UserID: userID, Currency: c}
		if _, exists := s.balances[key]; !exists {
			s.balances[key] = decimal.Zero
		}
	}
	return nil
}

// Balances returns the user's balances sorted by amount.
func (s *MemoryStore) Balances(_ context.Context, userID int64) ([]Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Balance
	for key, amount := range s.balances {
		if key.UserID == userID {
			out = append(out, Balance{UserID: userID, Currency: key.Currency, Amount: amount})
		}
	}
	SortBalances(out)
	return out, nil
}

// Transaction returns one transaction by id.
func (s *MemoryStore) Transaction(_ context.Context, id int64) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id <= 0 || id > int64(len(s.transactions)) {
		return Transaction{}, notFound("transaction %d", id)
	}
	return s.transactions[id-1], nil
}

// Transactions lists matching transactions newest first.
func (s *MemoryStore) Transactions(_ context.Context, filter Filter) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, tx := range s.transactions {
		if filter.Matches(tx) {
			out = append(out, tx)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// TransactionsBetween lists transactions created in [from, to).
func (s *MemoryStore) TransactionsBetween(_ context.Context, from, to time.Time) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, tx := range s.transactions {
		if !tx.CreatedAt.Before(from) && tx.CreatedAt.Before(to) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func sortNewestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return txs[i].ID > txs[j].ID
	})
}

type memoryUnit struct {
	store    *MemoryStore
	balances map[BalanceKey]decimal.Decimal
	inserts  []Transaction
	statuses map[int64]TransactionStatus
}

func (u *memoryUnit) Holder(ctx context.Context, userID int64) (Holder, bool, error) {
	return u.store.directory.Holder(ctx, userID)
}

func (u *memoryUnit) LockBalances(_ context.Context, keys ...BalanceKey) (map[BalanceKey]decimal.Decimal, error) {
	out := make(map[BalanceKey]decimal.Decimal, len(keys))
	for _, key := range sortedKeys(keys) {
		if amount, ok := u.balances[key]; ok {
			out[key] = amount
		} else if amount, ok := u.store.balances[key]; ok {
			out[key] = amount
		}
	}
	return out, nil
}

func (u *memoryUnit) SetBalance(_ context.Context, key BalanceKey, amount decimal.Decimal) error {
	if _, ok := u.store.balances[key]; !ok {
		return fmt.Errorf("balance %s does not exist", key)
	}
	if amount.IsNegative() {
		return fmt.Errorf("balance %s would become negative", key)
	}
	u.balances[key] = amount
	return nil
}

func (u *memoryUnit) Insert(_ context.Context, tx Transaction) (Transaction, error) {
	tx.ID = int64(len(u.store.transactions)+len(u.inserts)) + 1
	tx.CreatedAt = u.store.now()
	u.inserts = append(u.inserts, tx)
	return tx, nil
}

func (u *memoryUnit) LockTransaction(_ context.Context, id int64) (Transaction, bool, error) {
	if id <= 0 || id > int64(len(u.store.transactions)) {
		return Transaction{}, false, nil
	}
	tx := u.store.transactions[id-1]
	if status, ok := u.statuses[id]; ok {
		tx.Status = status
	}
	return tx, true, nil
}

func (u *memoryUnit) SetStatus(_ context.Context, id int64, status TransactionStatus) error {
	if id <= 0 || id > int64(len(u.store.transactions)) {
		return fmt.Errorf("transaction %d does not exist", id)
	}
	u.statuses[id] = status
	return nil
}
