package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/subtrack-app/subtrack/internal/pkg/entitlements"
	"github.com/subtrack-app/subtrack/internal/pkg/usercontext"
)

// HandleGetTier returns the authenticated user's current tier with its limits.
func HandleGetTier(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	tier, err := getServices().Resolver.CurrentTier(c.UserContext(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to resolve tier"})
	}

	return c.JSON(tier)
}

// HandleGetPremiumStatus reports whether the user currently counts as premium,
// grace windows included.
func HandleGetPremiumStatus(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	svc := getServices()
	premium, err := svc.Resolver.IsPremiumUser(c.UserContext(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to resolve premium status"})
	}

	status, err := svc.Resolver.SubscriptionStatus(c.UserContext(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to resolve subscription status"})
	}

	return c.JSON(fiber.Map{
		"is_premium":          premium,
		"subscription_status": status,
	})
}

// HandleUpgradeToPremium starts the checkout flow for an upgrade. The response
// carries the checkout reference; entitlement flips when the webhook lands.
func HandleUpgradeToPremium(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req struct {
		BillingCycle string `json:"billing_cycle"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	checkoutRef, err := getServices().Resolver.UpgradeToPremium(c.UserContext(), userID, strings.TrimSpace(req.BillingCycle))
	if err != nil {
		if errors.Is(err, entitlements.ErrAlreadyPremium) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_premium", "message": "You already have an active premium subscription"})
		}
		if strings.Contains(err.Error(), "unsupported billing cycle") {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "billing_cycle must be monthly or yearly"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to start checkout"})
	}

	return c.JSON(fiber.Map{"checkout_url": checkoutRef})
}

// HandleDowngradeToFree downgrades the user to the Free tier immediately.
func HandleDowngradeToFree(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	if err := getServices().Resolver.DowngradeToFree(c.UserContext(), userID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to downgrade"})
	}

	return c.JSON(fiber.Map{"ok": true, "plan": "free"})
}

// HandleRefreshEntitlements drops cached entitlement state and re-resolves
// after upstream writes settle. The client calls this right after returning
// from a checkout or purchase flow.
func HandleRefreshEntitlements(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	tier, premium, err := getServices().Resolver.RefreshTierInfo(c.UserContext(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to refresh entitlements"})
	}

	return c.JSON(fiber.Map{
		"tier":       tier,
		"is_premium": premium,
	})
}
