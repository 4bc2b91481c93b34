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

type trackedSubscriptionRequest struct {
	Name          string     `json:"name"`
	ServiceURL    string     `json:"service_url"`
	AmountCents   int        `json:"amount_cents"`
	Currency      string     `json:"currency"`
	BillingCycle  string     `json:"billing_cycle"`
	NextRenewalAt *time.Time `json:"next_renewal_at"`
}

// HandleListTrackedSubscriptions lists the user's tracked subscriptions.
func HandleListTrackedSubscriptions(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	includeArchived := c.QueryBool("include_archived", false)
	subs, err := repository.GetGlobalFactory().GetTrackedSubscriptionRepository().ListByUserID(userID, includeArchived)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscriptions"})
	}

	return c.JSON(fiber.Map{"subscriptions": subs, "count": len(subs)})
}

// HandleCreateTrackedSubscription creates a tracked subscription behind the
// limit gate. A blocked create returns the paywall payload with 403.
func HandleCreateTrackedSubscription(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req trackedSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	sub := &models.TrackedSubscription{
		UserID:        userID,
		Name:          strings.TrimSpace(req.Name),
		ServiceURL:    strings.TrimSpace(req.ServiceURL),
		AmountCents:   req.AmountCents,
		Currency:      normalizeCurrency(req.Currency),
		BillingCycle:  normalizeBillingCycle(req.BillingCycle),
		NextRenewalAt: req.NextRenewalAt,
	}
	if err := validator.New().Struct(sub); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	svc := getServices()
	repo := repository.GetGlobalFactory().GetTrackedSubscriptionRepository()
	err = svc.Gate.Enforce(c.UserContext(), userID, limits.KindTrackedSubscriptions, func() error {
		return repo.Create(sub)
	})
	if err != nil {
		var limitErr *limits.LimitExceededError
		if errors.As(err, &limitErr) {
			return limitExceededResponse(c, limitErr)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create subscription"})
	}

	// Counts changed; drop cached limit state.
	svc.Gate.Refresh(userID)

	return c.Status(fiber.StatusCreated).JSON(sub)
}

// HandleGetTrackedSubscription returns one tracked subscription with its reminders.
func HandleGetTrackedSubscription(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid subscription id"})
	}

	factory := repository.GetGlobalFactory()
	sub, err := factory.GetTrackedSubscriptionRepository().GetByIDForUser(id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	reminders, err := factory.GetReminderRepository().ListBySubscriptionID(sub.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load reminders"})
	}

	return c.JSON(fiber.Map{"subscription": sub, "reminders": reminders})
}

// HandleUpdateTrackedSubscription updates an existing tracked subscription.
// Updates are never gated; the limit only guards net-new rows.
func HandleUpdateTrackedSubscription(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid subscription id"})
	}

	repo := repository.GetGlobalFactory().GetTrackedSubscriptionRepository()
	sub, err := repo.GetByIDForUser(id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	var req trackedSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	if strings.TrimSpace(req.Name) != "" {
		sub.Name = strings.TrimSpace(req.Name)
	}
	sub.ServiceURL = strings.TrimSpace(req.ServiceURL)
	if req.AmountCents >= 0 {
		sub.AmountCents = req.AmountCents
	}
	if req.Currency != "" {
		sub.Currency = normalizeCurrency(req.Currency)
	}
	if req.BillingCycle != "" {
		sub.BillingCycle = normalizeBillingCycle(req.BillingCycle)
	}
	sub.NextRenewalAt = req.NextRenewalAt

	if err := validator.New().Struct(sub); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := repo.Update(sub); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update subscription"})
	}

	return c.JSON(sub)
}

// HandleArchiveTrackedSubscription archives a subscription, freeing its limit slot.
func HandleArchiveTrackedSubscription(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid subscription id"})
	}

	repo := repository.GetGlobalFactory().GetTrackedSubscriptionRepository()
	sub, err := repo.GetByIDForUser(id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	sub.Archived = true
	if err := repo.Update(sub); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to archive subscription"})
	}

	getServices().Gate.Refresh(userID)

	return c.JSON(sub)
}

// HandleDeleteTrackedSubscription deletes a subscription and its reminders.
func HandleDeleteTrackedSubscription(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid subscription id"})
	}

	factory := repository.GetGlobalFactory()
	sub, err := factory.GetTrackedSubscriptionRepository().GetByIDForUser(id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	if err := factory.GetReminderRepository().DeleteBySubscriptionID(sub.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to delete reminders"})
	}
	if err := factory.GetTrackedSubscriptionRepository().Delete(sub.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to delete subscription"})
	}

	// Deletes cascade into reminder counts; a per-user refresh is not enough.
	svc := getServices()
	svc.Gate.Refresh(userID)
	svc.Gate.ClearAll()

	return c.JSON(fiber.Map{"ok": true})
}

func normalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "USD"
	}
	return currency
}

func normalizeBillingCycle(cycle string) string {
	cycle = strings.ToLower(strings.TrimSpace(cycle))
	if cycle == "" {
		return models.BillingCycleMonthly
	}
	return cycle
}
