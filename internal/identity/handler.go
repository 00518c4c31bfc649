package identity

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxledger/internal/ledger"
)

// BalanceReader returns a user's balances.
type BalanceReader interface {
	Balances(ctx context.Context, userID int64) ([]ledger.Balance, error)
}

// Handler exposes identity endpoints.
type Handler struct {
	service  *Service
	balances BalanceReader
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service, balances BalanceReader) *Handler {
	return &Handler{service: service, balances: balances}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type userResponse struct {
	User
	Balances []ledger.Balance `json:"balances,omitempty"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(h.withBalances(c.UserContext(), user))
}

// Me returns the authenticated user's profile and balances.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(int64)
	if uid == 0 {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	user, err := h.service.Get(c.UserContext(), uid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(h.withBalances(c.UserContext(), user))
}

// List returns users filtered by id, email or status.
func (h *Handler) List(c *fiber.Ctx) error {
	var filter Filter
	if raw := c.Query("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(http.StatusUnprocessableEntity, "id must be a positive integer")
		}
		filter.ID = id
	}
	filter.Email = c.Query("email")
	if raw := c.Query("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			return fiber.NewError(http.StatusUnprocessableEntity, "status must be ACTIVE or BLOCKED")
		}
		filter.Status = status
	}

	users, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return httpError(err)
	}
	out := make([]userResponse, 0, len(users))
	for _, user := range users {
		out = append(out, h.withBalances(c.UserContext(), user))
	}
	return c.JSON(out)
}

// UpdateStatus blocks or unblocks a user.
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusUnprocessableEntity, "user id must be an integer")
	}
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		return fiber.NewError(http.StatusUnprocessableEntity, "status must be ACTIVE or BLOCKED")
	}

	user, err := h.service.UpdateStatus(c.UserContext(), id, status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(user)
}

func (h *Handler) withBalances(ctx context.Context, user User) userResponse {
	resp := userResponse{User: user}
	if h.balances != nil {
		if balances, err := h.balances.Balances(ctx, user.ID); err == nil {
			resp.Balances = balances
		}
	}
	return resp
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrUserNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUserExists):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrAlreadyBlocked), errors.Is(err, ErrAlreadyActive):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrUserBlocked):
		return fiber.NewError(http.StatusForbidden, err.Error())
	default:
		return err
	}
}
