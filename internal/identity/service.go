package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// Provisioner creates the per-currency balances a new user starts with.
type Provisioner interface {
	Provision(ctx context.Context, userID int64) error
}

// Service manages identity lifecycle.
type Service struct {
	repo        Repository
	provisioner Provisioner
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewService creates a new identity service. provisioner may be nil.
func NewService(repo Repository, provisioner Provisioner, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		provisioner: provisioner,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
	}
}

// Register creates an ACTIVE user with a hashed password and provisions
// a zero balance for every supported currency.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	return s.create(ctx, creds, RoleUser)
}

// EnsureAdmin registers an admin account unless the email is already taken.
// An existing account gets any missing balances provisioned again.
func (s *Service) EnsureAdmin(ctx context.Context, creds Credentials) (User, error) {
	if existing, err := s.repo.FindByEmail(ctx, normalizeEmail(creds.Email)); err == nil {
		if s.provisioner != nil {
			if err := s.provisioner.Provision(ctx, existing.ID); err != nil {
				return User{}, fmt.Errorf("provision balances for user %d: %w", existing.ID, err)
			}
		}
		return existing, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}
	return s.create(ctx, creds, RoleAdmin)
}

func (s *Service) create(ctx context.Context, creds Credentials, role Role) (User, error) {
	creds.Email = normalizeEmail(creds.Email)
	if err := s.validate.Struct(creds); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user, err := s.repo.Create(ctx, User{
		Email:        creds.Email,
		PasswordHash: hash,
		Status:       StatusActive,
		Role:         role,
	})
	if err != nil {
		return User{}, err
	}

	if s.provisioner != nil {
		if err := s.provisioner.Provision(ctx, user.ID); err != nil {
			// Drop the half-created account so the email can register again.
			if delErr := s.repo.Delete(ctx, user.ID); delErr != nil {
				err = errors.Join(err, fmt.Errorf("delete user %d: %w", user.ID, delErr))
			}
			if s.logger != nil {
				s.logger.Error("identity.register provisioning failed",
					slog.Int64("user_id", user.ID),
					slog.String("error", err.Error()),
				)
			}
			return User{}, fmt.Errorf("provision balances for user %d: %w", user.ID, err)
		}
	}

	if s.logger != nil {
		s.logger.Info("identity.register completed",
			slog.Int64("user_id", user.ID),
			slog.String("role", string(user.Role)),
		)
	}
	return user, nil
}

// Authenticate verifies credentials. Blocked users cannot sign in.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(creds.Email))
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !user.Active() {
		return User{}, ErrUserBlocked
	}
	return user, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	if id <= 0 {
		return User{}, ErrInvalidInput
	}
	return s.repo.FindByID(ctx, id)
}

// List returns users matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]User, error) {
	if filter.ID < 0 {
		return nil, ErrInvalidInput
	}
	filter.Email = normalizeEmail(filter.Email)
	return s.repo.List(ctx, filter)
}

// UpdateStatus blocks or unblocks a user. Setting the current status again
// is rejected.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (User, error) {
	if id <= 0 {
		return User{}, ErrInvalidInput
	}
	if status != StatusActive && status != StatusBlocked {
		return User{}, ErrInvalidInput
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if user.Status == status {
		if status == StatusBlocked {
			return User{}, ErrAlreadyBlocked
		}
		return User{}, ErrAlreadyActive
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return User{}, err
	}
	user.Status = status

	if s.logger != nil {
		s.logger.Info("identity.status updated", slog.Int64("user_id", id), slog.String("status", string(status)))
	}
	return user, nil
}
