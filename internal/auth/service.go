package auth

import (
	"context"
	"errors"

	"github.com/congo-pay/fxledger/internal/identity"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID int64
	Role   identity.Role
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Service issues and verifies tokens for identity users.
type Service struct {
	issuer *Issuer
	ids    *identity.Service
}

// NewService builds an auth service.
func NewService(issuer *Issuer, ids *identity.Service) *Service {
	return &Service{issuer: issuer, ids: ids}
}

// Login validates credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, creds identity.Credentials) (TokenPair, error) {
	user, err := s.ids.Authenticate(ctx, creds)
	if err != nil {
		return TokenPair{}, err
	}
	access, exp, err := s.issuer.sign(user, typeAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.issuer.sign(user, typeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(exp.Sub(s.issuer.now()).Seconds()),
	}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.issuer.parse(refreshToken, typeRefresh)
	if err != nil {
		return "", 0, err
	}
	user, err := s.current(ctx, claims)
	if err != nil {
		return "", 0, err
	}
	access, exp, err := s.issuer.sign(user, typeAccess)
	if err != nil {
		return "", 0, err
	}
	return access, int64(exp.Sub(s.issuer.now()).Seconds()), nil
}

// Verify parses an access token and confirms the user still exists and is
// ACTIVE. The role is taken from the stored user, not the token.
func (s *Service) Verify(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.issuer.parse(accessToken, typeAccess)
	if err != nil {
		return Principal{}, err
	}
	user, err := s.current(ctx, claims)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: user.ID, Role: user.Role}, nil
}

func (s *Service) current(ctx context.Context, claims Claims) (identity.User, error) {
	id, err := claims.UserID()
	if err != nil {
		return identity.User{}, err
	}
	user, err := s.ids.Get(ctx, id)
	if errors.Is(err, identity.ErrUserNotFound) {
		return identity.User{}, ErrInvalidToken
	}
	if err != nil {
		return identity.User{}, err
	}
	if !user.Active() {
		return identity.User{}, identity.ErrUserBlocked
	}
	return user, nil
}
