package entitlements

import (
	"errors"
	"strings"
	"time"

	"github.com/subtrack-app/subtrack/app/models"
)

type Plan string

const (
	PlanFree    Plan = models.TierFree
	PlanPremium Plan = models.TierPremium
)

// ErrTierNotFound is returned when the tier lookup fails and no sane Free
// default applies.
var ErrTierNotFound = errors.New("subscription tier not found")

// ErrAlreadyPremium rejects an upgrade for a user who is already entitled.
var ErrAlreadyPremium = errors.New("user already has an active premium subscription")

// IsEntitlingStatus reports whether a subscription status grants premium
// access without consulting the provider grace window. Canceled is the one
// status that defers to the provider.
func IsEntitlingStatus(status string) bool {
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

// graceWindow is the provider-specific paid-through window consulted for
// canceled subscriptions. The provider branching is resolved once, here,
// instead of string comparisons scattered through the resolver.
type graceWindow interface {
	validAt(now time.Time) bool
}

// stripeWindow covers Stripe and unknown card providers: access remains valid
// through the already-paid period when the user canceled at period end.
type stripeWindow struct {
	periodEnd         *time.Time
	cancelAtPeriodEnd bool
}

func (w stripeWindow) validAt(now time.Time) bool {
	return w.cancelAtPeriodEnd && w.periodEnd != nil && w.periodEnd.After(now)
}

// appleWindow defers to the most recent App Store transaction's expiry.
type appleWindow struct {
	expiration *time.Time
}

func (w appleWindow) validAt(now time.Time) bool {
	return w.expiration != nil && w.expiration.After(now)
}

// noWindow means no authoritative source is available; access has ended.
type noWindow struct{}

func (noWindow) validAt(time.Time) bool { return false }

// HasActiveGraceWindow reports whether a canceled subscription is still
// inside its provider paid-through window. appleTx may be nil.
func HasActiveGraceWindow(sub *models.UserSubscription, appleTx *models.AppleTransaction, now time.Time) bool {
	return resolveGraceWindow(sub, appleTx).validAt(now)
}

// resolveGraceWindow picks the authoritative window for a canceled
// subscription. appleTx may be nil when the audit trail has no row.
func resolveGraceWindow(sub *models.UserSubscription, appleTx *models.AppleTransaction) graceWindow {
	switch strings.ToLower(strings.TrimSpace(sub.PaymentProvider)) {
	case models.PaymentProviderApple:
		if appleTx == nil {
			return noWindow{}
		}
		return appleWindow{expiration: appleTx.ExpirationDate}
	case models.PaymentProviderStripe, models.PaymentProviderOther:
		return stripeWindow{periodEnd: sub.CurrentPeriodEnd, cancelAtPeriodEnd: sub.CancelAtPeriodEnd}
	default:
		return noWindow{}
	}
}
