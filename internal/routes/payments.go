package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxledger/internal/payments"
)

// RegisterPaymentRoutes wires ledger mutation and listing endpoints. idem,
// when set, guards the mutating POST routes.
func RegisterPaymentRoutes(r fiber.Router, admin, idem fiber.Handler, h *payments.Handler) {
	create := []fiber.Handler{h.Create}
	exchange := []fiber.Handler{h.Exchange}
	if idem != nil {
		create = append([]fiber.Handler{idem}, create...)
		exchange = append([]fiber.Handler{idem}, exchange...)
	}
	r.Post("/transactions", create...)
	r.Get("/transactions", h.List)
	r.Patch("/transactions/:transactionId/rollback", admin, h.Rollback)
	r.Post("/exchange", exchange...)
}
