package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/subtrack-app/subtrack/app/models"
	"github.com/subtrack-app/subtrack/app/repository"
	"github.com/subtrack-app/subtrack/internal/pkg/limits"
	"github.com/subtrack-app/subtrack/internal/pkg/usercontext"
)

type reminderRequest struct {
	TrackedSubscriptionID uint       `json:"tracked_subscription_id"`
	RemindAt              *time.Time `json:"remind_at"`
	Channel               string     `json:"channel"`
}

// HandleListReminders lists the user's reminders ordered by due time.
func HandleListReminders(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	reminders, err := repository.GetGlobalFactory().GetReminderRepository().ListByUserID(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load reminders"})
	}

	return c.JSON(fiber.Map{"reminders": reminders, "count": len(reminders)})
}

// HandleCreateReminder creates a reminder behind the limit gate. The target
// subscription must belong to the caller.
func HandleCreateReminder(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req reminderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if req.RemindAt == nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": "remind_at is required"})
	}

	factory := repository.GetGlobalFactory()
	if _, err := factory.GetTrackedSubscriptionRepository().GetByIDForUser(req.TrackedSubscriptionID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	channel := strings.ToLower(strings.TrimSpace(req.Channel))
	if channel == "" {
		channel = "push"
	}
	reminder := &models.Reminder{
		UserID:                userID,
		TrackedSubscriptionID: req.TrackedSubscriptionID,
		RemindAt:              *req.RemindAt,
		Channel:               channel,
	}
	if err := validator.New().Struct(reminder); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	svc := getServices()
	err = svc.Gate.Enforce(c.UserContext(), userID, limits.KindReminders, func() error {
		return factory.GetReminderRepository().Create(reminder)
	})
	if err != nil {
		var limitErr *limits.LimitExceededError
		if errors.As(err, &limitErr) {
			return limitExceededResponse(c, limitErr)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create reminder"})
	}

	svc.Gate.Refresh(userID)

	return c.Status(fiber.StatusCreated).JSON(reminder)
}

// HandleUpdateReminder reschedules a reminder or changes its channel.
func HandleUpdateReminder(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid reminder id"})
	}

	repo := repository.GetGlobalFactory().GetReminderRepository()
	reminder, err := repo.GetByIDForUser(id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Reminder not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load reminder"})
	}

	var req reminderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	if req.RemindAt != nil {
		reminder.RemindAt = *req.RemindAt
		// Rescheduling re-arms a reminder that already went out.
		reminder.SentAt = nil
	}
	if req.Channel != "" {
		reminder.Channel = strings.ToLower(strings.TrimSpace(req.Channel))
	}

	if err := validator.New().Struct(reminder); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := repo.Update(reminder); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update reminder"})
	}

	getServices().Gate.Refresh(userID)

	return c.JSON(reminder)
}

// HandleDeleteReminder deletes a reminder, freeing its limit slot.
func HandleDeleteReminder(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid reminder id"})
	}

	repo := repository.GetGlobalFactory().GetReminderRepository()
	reminder, err := repo.GetByIDForUser(id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Reminder not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load reminder"})
	}

	if err := repo.Delete(reminder.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to delete reminder"})
	}

	// Deletes shrink counts other cached views may still hold.
	svc := getServices()
	svc.Gate.Refresh(userID)
	svc.Gate.ClearAll()

	return c.JSON(fiber.Map{"ok": true})
}
