package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/subtrack-app/subtrack/internal/pkg/env"
	"github.com/subtrack-app/subtrack/internal/pkg/purchases"
	"github.com/subtrack-app/subtrack/internal/pkg/security"
	"github.com/subtrack-app/subtrack/internal/pkg/usercontext"
)

const relayTokenTTL = 24 * time.Hour

// HandleListProducts returns the purchasable subscription products.
func HandleListProducts(c *fiber.Ctx) error {
	if _, err := usercontext.RequireUserID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	products, err := getServices().Engine.Products(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "store_unavailable", "message": "Failed to load products"})
	}

	return c.JSON(fiber.Map{"products": products})
}

// HandleStartPurchase kicks off the purchase flow for one product. The
// entitlement itself flips asynchronously when the store event lands.
func HandleStartPurchase(c *fiber.Ctx) error {
	if _, err := usercontext.RequireUserID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req struct {
		ProductID string `json:"product_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	result, err := getServices().Engine.PurchaseSubscription(c.UserContext(), strings.TrimSpace(req.ProductID))
	if err != nil {
		if strings.Contains(err.Error(), "not purchasable") {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_product", "message": err.Error()})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "store_unavailable", "message": "Failed to start purchase"})
	}

	return c.JSON(result)
}

// HandleRestorePurchases replays the user's store transaction history.
// Restore never fails the request; failures come back as a result payload.
func HandleRestorePurchases(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	result := getServices().Engine.RestorePurchases(c.UserContext(), userID)
	return c.JSON(result)
}

// HandleSyncPurchases re-checks the subscription status against the store.
func HandleSyncPurchases(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	active := getServices().Engine.SyncSubscriptionStatus(c.UserContext(), userID)
	return c.JSON(fiber.Map{"active": active})
}

// HandleIssueRelayToken hands the device a signed token so it can relay
// completed store transactions after the session expires.
func HandleIssueRelayToken(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": "device_id is required"})
	}

	secret := env.GetEnv("RELAY_TOKEN_SECRET", "")
	token, err := security.GenerateRelayToken(userID, deviceID, relayTokenTTL, secret)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to issue relay token"})
	}

	return c.JSON(fiber.Map{
		"token":      token,
		"expires_in": int(relayTokenTTL.Seconds()),
	})
}

// HandleRelayTransaction accepts a signed store transaction relayed by the
// device and feeds it into the reconciliation engine. Processing is
// asynchronous; the response only acknowledges receipt.
func HandleRelayTransaction(c *fiber.Ctx) error {
	userID, err := usercontext.RequireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req struct {
		SignedTransaction string `json:"signed_transaction"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	purchase, err := purchases.DecodeSignedTransaction(strings.TrimSpace(req.SignedTransaction))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid signed transaction"})
	}
	purchase.UserID = userID

	if !getServices().Store.Dispatch(*purchase) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store_unavailable", "message": "Reconciliation engine not ready, retry shortly"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"ok":             true,
		"transaction_id": purchase.TransactionID,
	})
}
