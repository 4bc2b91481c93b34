package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/subtrack-app/subtrack/internal/pkg/limits"
	"github.com/subtrack-app/subtrack/internal/pkg/usercontext"
)

// HandleGetLimit reports whether the user can add one more resource of the
// requested kind, plus the counts the client renders in the paywall.
func HandleGetLimit(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	kind, err := limits.ParseKind(c.Params("kind"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown resource kind"})
	}

	svc := getServices()
	result, err := svc.Gate.CheckCanAdd(c.UserContext(), userID, kind)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Limit check failed"})
	}

	remaining, err := svc.Gate.RemainingSlots(c.UserContext(), userID, kind)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Limit check failed"})
	}

	var remainingValue interface{}
	if remaining != nil {
		remainingValue = *remaining
	}

	return c.JSON(fiber.Map{
		"kind":            string(kind),
		"can_add":         result.CanAdd,
		"current_count":   result.CurrentCount,
		"limit":           result.Limit,
		"remaining_slots": remainingValue,
		"tier":            result.Tier,
		"reason":          result.Reason,
	})
}
