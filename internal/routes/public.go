package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxledger/internal/auth"
	"github.com/congo-pay/fxledger/internal/identity"
	"github.com/congo-pay/fxledger/internal/rates"
)

// RegisterPublicRoutes wires the endpoints reachable without a token. It
// must run before the protected group is created, whose auth middleware
// covers the whole prefix.
func RegisterPublicRoutes(r fiber.Router, users *identity.Handler, tokens *auth.Handler, quotes *rates.Handler, loginLimiter fiber.Handler) {
	r.Post("/users/register", users.Register)

	group := r.Group("/auth")
	if loginLimiter != nil {
		group.Post("/login", loginLimiter, tokens.Login)
	} else {
		group.Post("/login", tokens.Login)
	}
	group.Post("/refresh", tokens.Refresh)

	r.Get("/rates/:base", quotes.Get)
}
