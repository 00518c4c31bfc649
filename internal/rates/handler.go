package rates

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxledger/internal/ledger"
)

// Handler exposes cached exchange rates.
type Handler struct {
	lookup *Lookup
}

// NewHandler constructs a rates handler.
func NewHandler(lookup *Lookup) *Handler {
	return &Handler{lookup: lookup}
}

// Get returns the rates for the base currency in the path.
func (h *Handler) Get(c *fiber.Ctx) error {
	base, err := ledger.ParseCurrency(c.Params("base"))
	if err != nil {
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	}
	rates, err := h.lookup.GetRates(c.UserContext(), base)
	if err != nil {
		if errors.Is(err, ledger.ErrRateFetchFailure) {
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		}
		return err
	}
	return c.JSON(fiber.Map{"base": base, "rates": rates})
}
