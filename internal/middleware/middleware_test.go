package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/fxledger/internal/auth"
	"github.com/congo-pay/fxledger/internal/identity"
	"github.com/congo-pay/fxledger/internal/logging"
)

type stubVerifier map[string]auth.Principal

func (s stubVerifier) Verify(_ context.Context, token string) (auth.Principal, error) {
	if token == "blocked" {
		return auth.Principal{}, identity.ErrUserBlocked
	}
	p, ok := s[token]
	if !ok {
		return auth.Principal{}, errors.New("bad token")
	}
	return p, nil
}

func TestJWTAuthAndRequireRole(t *testing.T) {
	verifier := stubVerifier{
		"user":  {UserID: 7, Role: identity.RoleUser},
		"admin": {UserID: 1, Role: identity.RoleAdmin},
	}
	app := fiber.New()
	app.Use(RequestID(), Audit(logging.Discard()), JWTAuth(verifier))
	app.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(int64)
		if uid == 0 {
			return fiber.NewError(fiber.StatusInternalServerError, "no user id")
		}
		return c.SendString(RequestIDFrom(c))
	})
	app.Get("/admin", RequireRole(identity.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	cases := []struct {
		path, token string
		want        int
	}{
		{"/me", "", fiber.StatusUnauthorized},
		{"/me", "garbage", fiber.StatusUnauthorized},
		{"/me", "blocked", fiber.StatusForbidden},
		{"/me", "user", fiber.StatusOK},
		{"/admin", "user", fiber.StatusForbidden},
		{"/admin", "admin", fiber.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodGet, tc.path, nil)
		if tc.token != "" {
			req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tc.token)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", tc.path, err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("%s with %q: expected %d, got %d", tc.path, tc.token, tc.want, resp.StatusCode)
		}
		if resp.Header.Get(requestIDHeader) == "" {
			t.Fatalf("expected a request id header")
		}
	}
}

func TestRequestIDKeepsIncomingHeader(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(RequestIDFrom(c)) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Header.Get(requestIDHeader) != "req-42" {
		t.Fatalf("expected req-42, got %q", resp.Header.Get(requestIDHeader))
	}
}

func TestLoginRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 2, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	attempt := func(email string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"email":"`+email+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if got := attempt("A@example.com"); got != fiber.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i, got)
		}
	}
	if got := attempt("a@example.com"); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", got)
	}
	if got := attempt("b@example.com"); got != fiber.StatusOK {
		t.Fatalf("other emails must not be limited, got %d", got)
	}
	if !mr.Exists("rl:login:a@example.com") || mr.TTL("rl:login:a@example.com") <= 0 {
		t.Fatalf("expected an expiring counter")
	}

	mr.Close()
	if got := attempt("c@example.com"); got != fiber.StatusOK {
		t.Fatalf("limiter must fail open, got %d", got)
	}
}
