package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxledger/internal/auth"
	"github.com/congo-pay/fxledger/internal/identity"
)

// TokenVerifier resolves a bearer token to the calling principal.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (auth.Principal, error)
}

// JWTAuth validates bearer access tokens and stores the caller's id and role
// in the request locals.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])

		principal, err := verifier.Verify(c.UserContext(), tokenStr)
		switch {
		case errors.Is(err, identity.ErrUserBlocked):
			return fiber.NewError(http.StatusForbidden, "user is blocked")
		case err != nil:
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals(localUserID, principal.UserID)
		c.Locals(localRole, string(principal.Role))
		return c.Next()
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...identity.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(localRole).(string)
		for _, allowed := range roles {
			if role == string(allowed) {
				return c.Next()
			}
		}
		return fiber.NewError(http.StatusForbidden, "insufficient permissions")
	}
}
