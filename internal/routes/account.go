package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxledger/internal/identity"
	"github.com/congo-pay/fxledger/internal/wallet"
)

// RegisterAccountRoutes wires the caller's profile and balances plus the
// admin user management endpoints.
func RegisterAccountRoutes(protected fiber.Router, admin fiber.Handler, users *identity.Handler, wallets *wallet.Handler) {
	protected.Get("/me", users.Me)
	protected.Get("/wallet", wallets.Mine)
	protected.Get("/users", admin, users.List)
	protected.Patch("/users/:userId/status", admin, users.UpdateStatus)
}
