package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/subtrack-app/subtrack/app/models"
	"github.com/subtrack-app/subtrack/internal/pkg/database"
	"github.com/subtrack-app/subtrack/internal/pkg/session"
	"github.com/subtrack-app/subtrack/internal/pkg/usercontext"
)

// UserContextMiddleware sets up the complete user context for every request.
// This centralizes user session handling and eliminates code duplication.
func UserContextMiddleware(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return anonymous(c)
	}

	userID := sess.Get(usercontext.KeyUserID)
	if userID == nil {
		return anonymous(c)
	}

	username := session.GetSessionValue(c, usercontext.KeyUsername)
	isAdmin := sess.Get(usercontext.KeyIsAdmin)

	// Plan with session-first strategy; the DB mirror is the fallback on a
	// fresh session.
	plan := session.GetSessionValue(c, "user_plan")
	premium := session.GetSessionValue(c, "user_is_premium") == "true"
	if plan == "" {
		plan = models.TierFree
		if db := database.GetDB(); db != nil {
			var user models.User
			if err := db.Select("plan", "is_premium").First(&user, userID.(uint)).Error; err == nil {
				if user.Plan != "" {
					plan = user.Plan
				}
				premium = user.IsPremium
			}
		}
		// cache in session for subsequent requests
		_ = session.SetSessionValue(c, "user_plan", plan)
		if premium {
			_ = session.SetSessionValue(c, "user_is_premium", "true")
		}
	}

	userCtx := usercontext.UserContext{
		UserID:     userID.(uint),
		Username:   username,
		IsLoggedIn: true,
		IsAdmin:    isAdmin != nil && isAdmin.(bool),
		Plan:       plan,
		IsPremium:  premium,
	}
	c.Locals("USER_CONTEXT", userCtx)

	c.Locals(usercontext.KeyFromProtected, true)
	c.Locals(usercontext.KeyUsername, username)
	c.Locals(usercontext.KeyUserID, userID.(uint))
	c.Locals(usercontext.KeyIsAdmin, userCtx.IsAdmin)

	return c.Next()
}

func anonymous(c *fiber.Ctx) error {
	c.Locals("USER_CONTEXT", usercontext.UserContext{
		IsLoggedIn: false,
		IsAdmin:    false,
	})
	c.Locals(usercontext.KeyFromProtected, false)
	c.Locals(usercontext.KeyIsAdmin, false)
	return c.Next()
}
