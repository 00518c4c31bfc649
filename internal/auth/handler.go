package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxledger/internal/identity"
)

// Handler exposes auth endpoints for login and refresh.
type Handler struct {
	svc *Service
}

// NewHandler constructs an auth handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	pair, err := h.svc.Login(c.UserContext(), identity.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"access_token": token, "token_type": "bearer", "expires_in": exp})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, ErrInvalidToken):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrUserBlocked):
		return fiber.NewError(http.StatusForbidden, err.Error())
	default:
		return err
	}
}
