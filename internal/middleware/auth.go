package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
	"github.com/fathima-sithara/messaging-core/internal/domain"
)

// IdentityLocal is the fiber Locals key JWTAuth stores the caller under.
const IdentityLocal = "identity"

type TokenValidator interface {
	Validate(token string) (domain.Identity, error)
}

// JWTAuth authenticates the request from the Authorization bearer header, or
// from the token query parameter when allowQuery is set (browsers cannot set
// headers on a websocket upgrade).
func JWTAuth(v TokenValidator, allowQuery bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearer(c.Get(fiber.HeaderAuthorization))
		if token == "" && allowQuery {
			token = c.Query("token")
		}
		if token == "" {
			return apperrors.ErrUnauthenticated
		}
		id, err := v.Validate(token)
		if err != nil {
			return apperrors.ErrUnauthenticated
		}
		c.Locals(IdentityLocal, id)
		return c.Next()
	}
}

func bearer(h string) string {
	const pref = "Bearer "
	if len(h) <= len(pref) || !strings.EqualFold(h[:len(pref)], pref) {
		return ""
	}
	return strings.TrimSpace(h[len(pref):])
}

// Identity returns the caller stored by JWTAuth.
func Identity(c *fiber.Ctx) (domain.Identity, bool) {
	id, ok := c.Locals(IdentityLocal).(domain.Identity)
	return id, ok
}
