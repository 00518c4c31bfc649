package identity

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserBlocked        = errors.New("user is blocked")
	ErrAlreadyBlocked     = errors.New("user is already blocked")
	ErrAlreadyActive      = errors.New("user is already active")
)

// Status gates whether a user may send or receive funds.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusBlocked Status = "BLOCKED"
)

// ParseStatus validates a status, ignoring case.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusActive, StatusBlocked:
		return s, nil
	default:
		return "", ErrInvalidInput
	}
}

// Role decides which administrative routes a user may call.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// ParseRole validates a role, ignoring case.
func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleUser:
		return r, nil
	default:
		return "", ErrInvalidInput
	}
}

// User represents a registered ledger account holder.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	Status       Status    `json:"status"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Active reports whether the user may take part in new mutations.
func (u User) Active() bool { return u.Status == StatusActive }

// Credentials request structure.
type Credentials struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=72"`
}

// Filter narrows user listings; zero fields are ignored.
type Filter struct {
	ID     int64
	Email  string
	Status Status
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
