// Package middleware provides the Fiber middleware shared by every route:
// structured logging, authentication, rate limiting, metrics and tracing.
package middleware

import (
	"context"
	"errors"
	"strings"

	"postboard/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SessionVerifier resolves a session token to the user id it was issued for.
type SessionVerifier interface {
	ParseSessionToken(token string) (uint, error)
}

// AuthRequired rejects requests without a valid "Authorization: Bearer"
// session token and stores the caller's id in c.Locals("userID").
func AuthRequired(verifier SessionVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid authorization header format"))
		}

		userID, err := verifier.ParseSessionToken(parts[1])
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		c.Locals("userID", userID)
		ctx := context.WithValue(c.UserContext(), UserIDKey, userID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// UserID returns the authenticated caller's id set by AuthRequired.
func UserID(c *fiber.Ctx) (uint, error) {
	id, ok := c.Locals("userID").(uint)
	if !ok || id == 0 {
		return 0, errors.New("no authenticated user")
	}
	return id, nil
}
