package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/subtrack-app/subtrack/internal/pkg/env"
	"github.com/subtrack-app/subtrack/internal/pkg/security"
	"github.com/subtrack-app/subtrack/internal/pkg/usercontext"
)

// RelayTokenMiddleware authenticates device-relayed purchase events that
// arrive without a live session. Requests with a session pass through; the
// token path fills the user context from the signed claims.
func RelayTokenMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if usercontext.IsLoggedIn(c) {
			return c.Next()
		}

		token := extractRelayToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing relay token"})
		}

		secret := env.GetEnv("RELAY_TOKEN_SECRET", "")
		claims, err := security.VerifyRelayToken(token, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid relay token"})
		}

		userCtx := usercontext.UserContext{
			UserID:     claims.UserID,
			IsLoggedIn: true,
		}
		c.Locals("USER_CONTEXT", userCtx)
		c.Locals(usercontext.KeyFromProtected, true)
		c.Locals(usercontext.KeyUserID, claims.UserID)

		return c.Next()
	}
}

func extractRelayToken(c *fiber.Ctx) string {
	token := strings.TrimSpace(c.Get("X-Relay-Token"))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
