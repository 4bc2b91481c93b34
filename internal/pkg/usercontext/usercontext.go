package usercontext

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ErrAuthenticationRequired signals that an operation needs a logged-in
// user. Handlers map it to a 401 response.
var ErrAuthenticationRequired = errors.New("authentication required")

// UserContext represents the complete user context for a request
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Username   string `json:"username"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
	Plan       string `json:"plan"`
	IsPremium  bool   `json:"is_premium"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals("USER_CONTEXT"); ctx != nil {
		return ctx.(UserContext)
	}
	return UserContext{IsLoggedIn: false, IsAdmin: false}
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin checks if the current user is an admin
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}

// GetUsername returns the current user's username, or empty string if not logged in
func GetUsername(c *fiber.Ctx) string {
	return GetUserContext(c).Username
}

// RequireUserID returns the logged-in user's id or
// ErrAuthenticationRequired.
func RequireUserID(c *fiber.Ctx) (uint, error) {
	ctx := GetUserContext(c)
	if !ctx.IsLoggedIn || ctx.UserID == 0 {
		return 0, ErrAuthenticationRequired
	}
	return ctx.UserID, nil
}
