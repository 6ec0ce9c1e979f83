package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
	"github.com/fathima-sithara/messaging-core/internal/domain"
)

type staticValidator map[string]domain.Identity

func (v staticValidator) Validate(token string) (domain.Identity, error) {
	id, ok := v[token]
	if !ok {
		return domain.Identity{}, apperrors.ErrUnauthenticated
	}
	return id, nil
}

func testApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.SendStatus(fe.Code)
		}
		switch apperrors.CodeOf(err) {
		case apperrors.CodeUnauthenticated:
			return c.SendStatus(fiber.StatusUnauthorized)
		case apperrors.CodeRateLimited:
			return c.SendStatus(fiber.StatusTooManyRequests)
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}})
}

func whoami(c *fiber.Ctx) error {
	id, ok := Identity(c)
	if !ok {
		return errors.New("no identity")
	}
	return c.JSON(id)
}

func TestJWTAuth(t *testing.T) {
	v := staticValidator{"good": {UserID: 5}}
	app := testApp()
	app.Get("/h", JWTAuth(v, false), whoami)
	app.Get("/q", JWTAuth(v, true), whoami)

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"bearer", "/h", "Bearer good", fiber.StatusOK},
		{"lowercase scheme", "/h", "bearer good", fiber.StatusOK},
		{"missing", "/h", "", fiber.StatusUnauthorized},
		{"bad token", "/h", "Bearer bad", fiber.StatusUnauthorized},
		{"wrong scheme", "/h", "Basic good", fiber.StatusUnauthorized},
		{"query not allowed", "/h?token=good", "", fiber.StatusUnauthorized},
		{"query allowed", "/q?token=good", "", fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestLocalRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lim := NewLocalRateLimiter(ctx, 2, time.Hour, zap.NewNop())
	app := testApp()
	app.Use(JWTAuth(staticValidator{"a": {UserID: 1}, "b": {UserID: 2}}, false))
	app.Use(lim.Handler(ByIdentityOrIP))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	do := func(token string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusNoContent, do("a"))
	assert.Equal(t, fiber.StatusNoContent, do("a"))
	assert.Equal(t, fiber.StatusTooManyRequests, do("a"))
	assert.Equal(t, fiber.StatusNoContent, do("b"), "buckets are per user")
}
