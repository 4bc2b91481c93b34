package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/subtrack-app/subtrack/app/models"
	"github.com/subtrack-app/subtrack/app/repository"
	"github.com/subtrack-app/subtrack/internal/pkg/limits"
	"github.com/subtrack-app/subtrack/internal/pkg/usercontext"
)

// HandleGetUserAccount returns account information for the authenticated user.
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	stats, err := repo.GetStatsByUserID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load statistics"})
	}

	svc := getServices()
	tier, err := svc.Resolver.CurrentTier(c.UserContext(), userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to resolve tier"})
	}
	premium, err := svc.Resolver.IsPremiumUser(c.UserContext(), userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to resolve premium status"})
	}

	subRemaining, err := svc.Gate.RemainingSlots(c.UserContext(), userCtx.UserID, limits.KindTrackedSubscriptions)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Limit check failed"})
	}
	remRemaining, err := svc.Gate.RemainingSlots(c.UserContext(), userCtx.UserID, limits.KindReminders)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Limit check failed"})
	}

	response := fiber.Map{
		"id":            account.ID,
		"username":      account.Name,
		"email":         account.Email,
		"status":        account.Status,
		"plan":          tier.Name,
		"is_premium":    premium,
		"is_admin":      account.Role == models.ROLE_ADMIN,
		"created_at":    account.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at": formatTimePtr(account.LastLoginAt),
		"stats": fiber.Map{
			"subscriptions": fiber.Map{
				"count":           stats.TrackedSubscriptionCount,
				"remaining_slots": derefOrNil(subRemaining),
			},
			"reminders": fiber.Map{
				"count":           stats.ReminderCount,
				"remaining_slots": derefOrNil(remRemaining),
			},
			"monthly_spend_cents": stats.MonthlySpendCents,
		},
		"limits": fiber.Map{
			"max_tracked_subscriptions": tier.MaxTrackedSubscriptions,
			"max_reminders":             tier.MaxReminders,
		},
	}

	return c.JSON(response)
}

func derefOrNil(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
