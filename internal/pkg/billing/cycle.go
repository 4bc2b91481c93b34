package billing

import (
	"strings"

	"github.com/subtrack-app/subtrack/app/models"
)

func normalizeCycle(interval string) string {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "month", models.BillingCycleMonthly:
		return models.BillingCycleMonthly
	case "year", models.BillingCycleYearly:
		return models.BillingCycleYearly
	default:
		return models.BillingCycleUnknown
	}
}

// normalizeStripeStatus maps Stripe subscription statuses onto the local
// status vocabulary.
func normalizeStripeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return models.SubscriptionStatusActive
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "incomplete":
		return models.SubscriptionStatusIncomplete
	case "past_due", "unpaid":
		return models.SubscriptionStatusPastDue
	case "paused":
		return models.SubscriptionStatusPaused
	case "canceled":
		return models.SubscriptionStatusCanceled
	case "incomplete_expired":
		return models.SubscriptionStatusExpired
	default:
		return models.SubscriptionStatusActive
	}
}

func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubscriptionStatusActive,
		models.SubscriptionStatusTrialing,
		models.SubscriptionStatusIncomplete,
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusPaused:
		return true
	default:
		return false
	}
}
