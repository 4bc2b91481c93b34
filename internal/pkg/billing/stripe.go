package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/subtrack-app/subtrack/app/models"
	"github.com/subtrack-app/subtrack/internal/pkg/env"
)

// StripeClient wraps the Stripe SDK pieces the billing rail needs: webhook
// verification, event normalization and checkout session creation.
type StripeClient struct {
	webhookSecret string
	priceMonthly  string
	priceYearly   string
	successURL    string
	cancelURL     string
}

// NewStripeClientFromEnv configures the SDK key and reads the STRIPE_*
// settings.
func NewStripeClientFromEnv() *StripeClient {
	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")
	return &StripeClient{
		webhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		priceMonthly:  env.GetEnv("STRIPE_PRICE_MONTHLY", ""),
		priceYearly:   env.GetEnv("STRIPE_PRICE_YEARLY", ""),
		successURL:    env.GetEnv("STRIPE_CHECKOUT_SUCCESS_URL", "https://app.subtrack.example/upgrade/success"),
		cancelURL:     env.GetEnv("STRIPE_CHECKOUT_CANCEL_URL", "https://app.subtrack.example/upgrade/cancelled"),
	}
}

// VerifyAndParseEvent checks the Stripe-Signature header and decodes the
// event envelope.
func (c *StripeClient) VerifyAndParseEvent(payload []byte, signatureHeader string) (*stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, c.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook signature: %w", err)
	}
	return &event, nil
}

// StartCheckout creates a subscription checkout session and returns its URL.
// Implements the payment initiator used by the entitlement resolver.
func (c *StripeClient) StartCheckout(ctx context.Context, userID uint, cycle string) (string, error) {
	priceID := c.priceMonthly
	if cycle == models.BillingCycleYearly {
		priceID = c.priceYearly
	}
	if priceID == "" {
		return "", fmt.Errorf("no stripe price configured for cycle %q", cycle)
	}

	userRef := strconv.FormatUint(uint64(userID), 10)
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(userRef),
		SuccessURL:        stripe.String(c.successURL),
		CancelURL:         stripe.String(c.cancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id": userRef,
			},
		},
	}
	params.Context = ctx
	// The SDK reuses the key across its internal retries.
	params.SetIdempotencyKey(uuid.NewString())

	s, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("error creating checkout session: %w", err)
	}
	return s.URL, nil
}

// stripeSubscriptionPayload is the slice of the subscription object the
// normalizer reads. Decoding into a narrow struct keeps the handler
// independent of SDK object churn.
type stripeSubscriptionPayload struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			Price struct {
				ID        string `json:"id"`
				Recurring struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoicePayload struct {
	Subscription string `json:"subscription"`
}

// NormalizeEvent converts a verified Stripe event into the provider-neutral
// subscription shape. The second return is false for event types the billing
// rail does not act on.
func (c *StripeClient) NormalizeEvent(event *stripe.Event) (*NormalizedSubscription, bool, error) {
	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		return c.normalizeSubscriptionEvent(event)
	case "invoice.paid", "invoice.payment_failed":
		return c.normalizeInvoiceEvent(event)
	default:
		return nil, false, nil
	}
}

func (c *StripeClient) normalizeSubscriptionEvent(event *stripe.Event) (*NormalizedSubscription, bool, error) {
	var payload stripeSubscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return nil, false, fmt.Errorf("error decoding subscription payload: %w", err)
	}

	userID, err := userIDFromMetadata(payload.Metadata)
	if err != nil {
		return nil, false, err
	}

	status := normalizeStripeStatus(payload.Status)
	if event.Type == "customer.subscription.deleted" {
		status = models.SubscriptionStatusCanceled
	}

	cycle := models.BillingCycleUnknown
	planRef := ""
	if len(payload.Items.Data) > 0 {
		planRef = payload.Items.Data[0].Price.ID
		cycle = normalizeCycle(payload.Items.Data[0].Price.Recurring.Interval)
	}

	return &NormalizedSubscription{
		UserID:                 userID,
		Provider:               models.PaymentProviderStripe,
		ProviderSubscriptionID: payload.ID,
		ProviderPlanRef:        planRef,
		BillingCycle:           cycle,
		Status:                 status,
		CurrentPeriodStart:     unixTime(payload.CurrentPeriodStart),
		CurrentPeriodEnd:       unixTime(payload.CurrentPeriodEnd),
		CancelAtPeriodEnd:      payload.CancelAtPeriodEnd,
		RawPayloadJSON:         string(event.Data.Raw),
	}, true, nil
}

// normalizeInvoiceEvent yields a partial update keyed by the provider
// subscription id; the service merges it into the stored row.
func (c *StripeClient) normalizeInvoiceEvent(event *stripe.Event) (*NormalizedSubscription, bool, error) {
	var payload stripeInvoicePayload
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return nil, false, fmt.Errorf("error decoding invoice payload: %w", err)
	}
	if payload.Subscription == "" {
		return nil, false, nil
	}

	status := models.SubscriptionStatusActive
	if event.Type == "invoice.payment_failed" {
		status = models.SubscriptionStatusPastDue
	}

	return &NormalizedSubscription{
		Provider:               models.PaymentProviderStripe,
		ProviderSubscriptionID: payload.Subscription,
		Status:                 status,
		RawPayloadJSON:         string(event.Data.Raw),
	}, true, nil
}

func userIDFromMetadata(metadata map[string]string) (uint, error) {
	raw := metadata["user_id"]
	if raw == "" {
		// The subscription row lookup by provider id can still resolve the
		// user; a zero id marks the event as partial.
		return 0, nil
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user_id metadata %q: %w", raw, err)
	}
	return uint(parsed), nil
}

func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0)
	return &t
}
