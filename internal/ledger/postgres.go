package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgForeignKeyViolation = "23503"

	transactionColumns = `id, sender_id, recipient_id, currency, amount::text, type, status,
        from_currency, to_currency, created_at`
)

// PostgresStore persists balances and transactions in PostgreSQL. Balance
// and transaction rows are locked with SELECT ... FOR UPDATE inside a unit.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Atomic runs fn inside a READ COMMITTED transaction.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(uow UnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&pgUnit{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// EnsureBalances guarantees a balance row exists for every currency.
func (s *PostgresStore) EnsureBalances(ctx context.Context, userID int64, currencies []Currency) error {
	const query = `INSERT INTO balances (user_id, currency, amount) VALUES ($1, $2, 0)
        ON CONFLICT (user_id, currency) DO NOTHING`

	batch := &pgx.Batch{}
	for _, c := range currencies {
		batch.Queue(query, userID, string(c))
	}
	results := s.db.SendBatch(ctx, batch)
	for range currencies {
		if _, err := results.Exec(); err != nil {
			results.Close()
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				return notFound("user %d", userID)
			}
			return fmt.Errorf("ensure balances: %w", err)
		}
	}
	return results.Close()
}

// Balances returns the user's balances sorted by amount.
func (s *PostgresStore) Balances(ctx context.Context, userID int64) ([]Balance, error) {
	rows, err := s.db.Query(ctx, `SELECT currency, amount::text FROM balances
        WHERE user_id = $1 ORDER BY amount DESC, currency`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		var currency, amount string
		if err := rows.Scan(&currency, &amount); err != nil {
			return nil, err
		}
		b := Balance{UserID: userID}
		if b.Currency, err = ParseCurrency(currency); err != nil {
			return nil, fmt.Errorf("balance row: %w", err)
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("balance row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Transaction fetches a transaction by id.
func (s *PostgresStore) Transaction(ctx context.Context, id int64) (Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, notFound("transaction %d", id)
	}
	return tx, err
}

// Transactions lists matching transactions newest first.
func (s *PostgresStore) Transactions(ctx context.Context, filter Filter) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	var args []any
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		switch filter.Direction {
		case Received:
			query += ` WHERE (type = 'DEPOSIT' AND sender_id = $1) OR (type = 'TRANSFER' AND recipient_id = $1)`
		case Sent:
			query += ` WHERE type IN ('WITHDRAWAL', 'TRANSFER') AND sender_id = $1`
		default:
			query += ` WHERE sender_id = $1 OR recipient_id = $1`
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return s.queryTransactions(ctx, query, args...)
}

// TransactionsBetween lists transactions created in [from, to).
func (s *PostgresStore) TransactionsBetween(ctx context.Context, from, to time.Time) ([]Transaction, error) {
	return s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`, from.UTC(), to.UTC())
}

func (s *PostgresStore) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// scanTransaction validates every enum column on the way out of the store.
func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx                       Transaction
		currency, amount         string
		txType, status           string
		fromCurrency, toCurrency *string
		createdAt                time.Time
	)
	if err := row.Scan(&tx.ID, &tx.SenderID, &tx.RecipientID, &currency, &amount, &txType, &status,
		&fromCurrency, &toCurrency, &createdAt); err != nil {
		return Transaction{}, err
	}

	var err error
	if tx.Currency, err = ParseCurrency(currency); err != nil {
		return Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	if tx.Type, err = ParseTransactionType(txType); err != nil {
		return Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	if tx.Status, err = ParseTransactionStatus(status); err != nil {
		return Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	if fromCurrency != nil {
		c, err := ParseCurrency(*fromCurrency)
		if err != nil {
			return Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
		}
		tx.FromCurrency = &c
	}
	if toCurrency != nil {
		c, err := ParseCurrency(*toCurrency)
		if err != nil {
			return Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
		}
		tx.ToCurrency = &c
	}
	tx.CreatedAt = createdAt.UTC()
	return tx, nil
}

type pgUnit struct {
	tx pgx.Tx
}

// Holder takes a share lock so a concurrent status change waits for the unit.
func (u *pgUnit) Holder(ctx context.Context, userID int64) (Holder, bool, error) {
	var status string
	err := u.tx.QueryRow(ctx, `SELECT status FROM users WHERE id = $1 FOR SHARE`, userID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Holder{}, false, nil
	}
	if err != nil {
		return Holder{}, false, err
	}
	return Holder{ID: userID, Active: status == "ACTIVE"}, true, nil
}

func (u *pgUnit) LockBalances(ctx context.Context, keys ...BalanceKey) (map[BalanceKey]decimal.Decimal, error) {
	const query = `SELECT amount::text FROM balances WHERE user_id = $1 AND currency = $2 FOR UPDATE`

	out := make(map[BalanceKey]decimal.Decimal, len(keys))
	for _, key := range sortedKeys(keys) {
		var amount string
		err := u.tx.QueryRow(ctx, query, key.UserID, string(key.Currency)).Scan(&amount)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock balance %s: %w", key, err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("balance %s: %w", key, err)
		}
		out[key] = value
	}
	return out, nil
}

func (u *pgUnit) SetBalance(ctx context.Context, key BalanceKey, amount decimal.Decimal) error {
	cmd, err := u.tx.Exec(ctx, `UPDATE balances SET amount = $3::numeric, updated_at = now()
        WHERE user_id = $1 AND currency = $2`, key.UserID, string(key.Currency), amount.String())
	if err != nil {
		return fmt.Errorf("update balance %s: %w", key, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("balance %s does not exist", key)
	}
	return nil
}

func (u *pgUnit) Insert(ctx context.Context, tx Transaction) (Transaction, error) {
	var from, to *string
	if tx.FromCurrency != nil {
		v := string(*tx.FromCurrency)
		from = &v
	}
	if tx.ToCurrency != nil {
		v := string(*tx.ToCurrency)
		to = &v
	}
	err := u.tx.QueryRow(ctx, `INSERT INTO transactions
        (sender_id, recipient_id, currency, amount, type, status, from_currency, to_currency)
        VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)
        RETURNING id, created_at`,
		tx.SenderID, tx.RecipientID, string(tx.Currency), tx.Amount.String(), string(tx.Type), string(tx.Status), from, to,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}

func (u *pgUnit) LockTransaction(ctx context.Context, id int64) (Transaction, bool, error) {
	row := u.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, false, nil
	}
	if err != nil {
		return Transaction{}, false, err
	}
	return tx, true, nil
}

func (u *pgUnit) SetStatus(ctx context.Context, id int64, status TransactionStatus) error {
	cmd, err := u.tx.Exec(ctx, `UPDATE transactions SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", id, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d does not exist", id)
	}
	return nil
}
