package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context, filter Filter) ([]User, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	// Delete removes a user. Balances go with it.
	Delete(ctx context.Context, id int64) error
	// CreatedBetween returns creation times of users registered in [from, to).
	CreatedBetween(ctx context.Context, from, to time.Time) ([]time.Time, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, password_hash, status, role, created_at`

// Create inserts a new user and returns it with its assigned id.
func (r *PostgresRepository) Create(ctx context.Context, user User) (User, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO users (email, password_hash, status, role)
        VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		user.Email, user.PasswordHash, string(user.Status), string(user.Role),
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, ErrUserExists
		}
		return User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindByEmail fetches a user by email address.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// List returns users matching the filter ordered by id.
func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]User, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ID != 0 {
		args = append(args, filter.ID)
		conds = append(conds, fmt.Sprintf("id = $%d", len(args)))
	}
	if filter.Email != "" {
		args = append(args, filter.Email)
		conds = append(conds, fmt.Sprintf("email = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + userColumns + ` FROM users`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

// UpdateStatus stores a new status for the user.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes the user row; balances cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreatedBetween returns registration timestamps in [from, to).
func (r *PostgresRepository) CreatedBetween(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := r.db.Query(ctx, `SELECT created_at FROM users WHERE created_at >= $1 AND created_at < $2`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts.UTC())
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user         User
		status, role string
	)
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &status, &role, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	var err error
	if user.Status, err = ParseStatus(status); err != nil {
		return User{}, fmt.Errorf("user %d: status %q: %w", user.ID, status, err)
	}
	if user.Role, err = ParseRole(role); err != nil {
		return User{}, fmt.Errorf("user %d: role %q: %w", user.ID, role, err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}
