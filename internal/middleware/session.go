package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	utils "github.com/fathima-sithara/tinytalk/internal/utils"
)

// SessionHeader carries the token minted by the PIN check.
const SessionHeader = "X-Session-Token"

type SessionVerifier interface {
	Verify(token string) error
}

// SessionToken reads the session from Authorization: Bearer, the session
// header, or a session query parameter (websocket upgrades).
func SessionToken(c *fiber.Ctx) string {
	if auth := c.Get(fiber.HeaderAuthorization); auth != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if tok := c.Get(SessionHeader); tok != "" {
		return tok
	}
	return c.Query("session")
}

// RequireSession rejects requests without a valid session token.
func RequireSession(v SessionVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := v.Verify(SessionToken(c)); err != nil {
			return utils.JSONError(c, fiber.StatusUnauthorized, "Unauthorized")
		}
		return c.Next()
	}
}
