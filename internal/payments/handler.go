package payments

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxledger/internal/ledger"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transactionRequest struct {
	SenderID    int64                  `json:"sender_id"`
	RecipientID int64                  `json:"recipient_id"`
	Currency    ledger.Currency        `json:"currency"`
	Amount      decimal.Decimal        `json:"amount"`
	Type        ledger.TransactionType `json:"type"`
}

type exchangeRequest struct {
	FromCurrency ledger.Currency `json:"from_currency"`
	ToCurrency   ledger.Currency `json:"to_currency"`
	Amount       decimal.Decimal `json:"amount"`
}

// Create applies a deposit, withdrawal or transfer for the caller. Admins
// may act on behalf of another sender.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req transactionRequest
	if err := c.BodyParser(&req); err != nil {
		return parseError(err)
	}
	caller, admin := identify(c)
	if req.SenderID == 0 {
		req.SenderID = caller
	} else if req.SenderID != caller && !admin {
		return fiber.NewError(http.StatusForbidden, "cannot act on behalf of another user")
	}

	tx, err := h.service.CreateTransaction(c.UserContext(), ledger.Request{
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Currency:    req.Currency,
		Amount:      req.Amount,
		Type:        req.Type,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(tx)
}

// Exchange converts between two of the caller's balances.
func (h *Handler) Exchange(c *fiber.Ctx) error {
	var req exchangeRequest
	if err := c.BodyParser(&req); err != nil {
		return parseError(err)
	}
	caller, _ := identify(c)

	tx, err := h.service.CreateExchange(c.UserContext(), ledger.ExchangeRequest{
		UserID: caller,
		From:   req.FromCurrency,
		To:     req.ToCurrency,
		Amount: req.Amount,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(tx)
}

// Rollback reverses a processed transaction.
func (h *Handler) Rollback(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("transactionId"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusUnprocessableEntity, "transaction id must be an integer")
	}
	tx, err := h.service.Rollback(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(tx)
}

// List returns transactions. Non-admin callers only see their own.
func (h *Handler) List(c *fiber.Ctx) error {
	caller, admin := identify(c)

	var filter ledger.Filter
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fiber.NewError(http.StatusUnprocessableEntity, "user_id must be an integer")
		}
		filter.UserID = id
	}
	if !admin {
		if filter.UserID != 0 && filter.UserID != caller {
			return fiber.NewError(http.StatusForbidden, "cannot list another user's transactions")
		}
		filter.UserID = caller
	}
	if raw := c.Query("direction"); raw != "" {
		direction, err := ledger.ParseDirection(raw)
		if err != nil {
			return httpError(err)
		}
		filter.Direction = direction
	}

	txs, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(txs)
}

func identify(c *fiber.Ctx) (int64, bool) {
	uid, _ := c.Locals("user_id").(int64)
	role, _ := c.Locals("role").(string)
	return uid, role == "ADMIN"
}

func parseError(err error) error {
	if errors.Is(err, ledger.ErrBadRequest) {
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	}
	return fiber.NewError(http.StatusBadRequest, err.Error())
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrBadRequest):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrBlockedUser):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrNegativeBalance), errors.Is(err, ledger.ErrAlreadyRollbacked):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrRateFetchFailure):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
