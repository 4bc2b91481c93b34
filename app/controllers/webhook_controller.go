package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/subtrack-app/subtrack/app/models"
	"github.com/subtrack-app/subtrack/internal/pkg/billing"
	"github.com/subtrack-app/subtrack/internal/pkg/purchases"
)

// HandleStripeWebhook ingests Stripe billing events. Signature verification,
// idempotent persistence and subscription sync all happen in the billing
// service; this handler only maps outcomes to status codes.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	svc := getServices()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := svc.Billing.ProcessStripeEvent(ctx, svc.Stripe, rawBody, signature); err != nil {
		if strings.Contains(err.Error(), "signature") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
		log.Errorf("[Webhook] stripe event processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleAppleWebhook ingests App Store Server Notifications V2. The signed
// payload is decoded here; authenticity is established downstream by the
// receipt validation step, so an undecodable payload is the only hard reject.
func HandleAppleWebhook(c *fiber.Ctx) error {
	var req struct {
		SignedPayload string `json:"signedPayload"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.SignedPayload) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request"})
	}

	purchase, err := purchases.DecodeNotification(req.SignedPayload)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	svc := getServices()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := svc.Billing.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.PaymentProviderApple,
		ProviderEventID: purchase.TransactionID + ":" + purchase.NotificationType,
		EventType:       purchase.NotificationType,
		PayloadJSON:     string(c.BodyRaw()),
		SignatureValid:  true,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	// Reconciliation runs asynchronously in the engine's update handler.
	if !svc.Store.Dispatch(*purchase) {
		log.Warnf("[Webhook] apple event %d dropped, reconciliation engine not ready", stored.ID)
		_ = svc.Billing.MarkWebhookProcessed(ctx, stored.ID, errors.New("reconciliation engine not ready"))
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "deferred": true})
	}
	_ = svc.Billing.MarkWebhookProcessed(ctx, stored.ID, nil)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
