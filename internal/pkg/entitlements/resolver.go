package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/subtrack-app/subtrack/app/models"
	"github.com/subtrack-app/subtrack/internal/pkg/cache"
)

// PaymentInitiator starts a purchase flow for an upgrade. Entitlement itself
// only flips once a later webhook or IAP event confirms payment.
type PaymentInitiator interface {
	StartCheckout(ctx context.Context, userID uint, cycle string) (string, error)
}

// GateRefresher invalidates the limit gate's cached state for a user.
type GateRefresher interface {
	Refresh(userID uint)
	ClearAll()
}

// TierInfo is the caller-facing view of the user's current tier.
type TierInfo struct {
	ID                      uint   `json:"id"`
	Name                    string `json:"name"`
	MaxTrackedSubscriptions *int   `json:"max_tracked_subscriptions"`
	MaxReminders            *int   `json:"max_reminders"`
	MonthlyPriceCents       int    `json:"monthly_price_cents"`
	YearlyPriceCents        int    `json:"yearly_price_cents"`
}

// Resolver computes the authoritative current tier and premium entitlement.
// Collaborators are injected; the resolver never talks to the billing
// gateway directly.
type Resolver struct {
	repo     Repository
	cache    *cache.Memory
	payments PaymentInitiator
	gate     GateRefresher

	// RefreshTierInfo timing; fields so tests can shrink them.
	settleDelay    time.Duration
	refreshRetries int
	backoffBase    time.Duration
}

// NewResolver wires the resolver with its collaborators.
func NewResolver(repo Repository, mem *cache.Memory, payments PaymentInitiator, gate GateRefresher) *Resolver {
	return &Resolver{
		repo:           repo,
		cache:          mem,
		payments:       payments,
		gate:           gate,
		settleDelay:    2 * time.Second,
		refreshRetries: 3,
		backoffBase:    500 * time.Millisecond,
	}
}

// CurrentTier returns the user's tier from cache or the subscription⋈tier
// join. Absence of a subscription row is not an error: it maps to the Free
// tier. Other lookup errors surface as ErrTierNotFound.
func (r *Resolver) CurrentTier(ctx context.Context, userID uint) (*TierInfo, error) {
	key := cache.TierKey(userID)
	if cached, ok := cache.Get[TierInfo](r.cache, key); ok {
		return &cached, nil
	}

	info, err := r.fetchTier(userID)
	if err != nil {
		return nil, err
	}

	r.cache.Set(key, *info, cache.TTLLong)
	return info, nil
}

func (r *Resolver) fetchTier(userID uint) (*TierInfo, error) {
	sub, err := r.repo.GetSubscriptionWithTier(userID)
	if err == nil {
		return tierInfoFromModel(&sub.Tier), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrTierNotFound, err)
	}

	// No subscription row: the user never paid, default to Free.
	free, err := r.repo.GetTierByName(models.TierFree)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultFreeTier(), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrTierNotFound, err)
	}
	return tierInfoFromModel(free), nil
}

// IsPremiumUser is the single source of truth for premium entitlement.
func (r *Resolver) IsPremiumUser(ctx context.Context, userID uint) (bool, error) {
	key := cache.PremiumKey(userID)
	if cached, ok := cache.Get[bool](r.cache, key); ok {
		return cached, nil
	}

	premium, err := r.computePremium(userID)
	if err != nil {
		return false, err
	}

	// Medium TTL, shorter than tier caching: grace-period expiry is
	// time-critical.
	r.cache.Set(key, premium, cache.TTLMedium)
	return premium, nil
}

func (r *Resolver) computePremium(userID uint) (bool, error) {
	sub, err := r.repo.GetSubscriptionWithTier(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	if !models.IsPremiumTier(sub.Tier.Name) {
		return false, nil
	}
	if IsEntitlingStatus(sub.Status) {
		return true, nil
	}
	if strings.ToLower(strings.TrimSpace(sub.Status)) != models.SubscriptionStatusCanceled {
		return false, nil
	}

	// Canceled: defer to the authoritative provider window.
	var appleTx *models.AppleTransaction
	if strings.EqualFold(sub.PaymentProvider, models.PaymentProviderApple) {
		appleTx, err = r.repo.LatestAppleTransaction(userID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			// Audit lookup failed; treat the grace window as unavailable.
			log.Warnf("[Entitlements] apple transaction lookup failed for user %d: %v", userID, err)
		}
	}
	return resolveGraceWindow(sub, appleTx).validAt(time.Now()), nil
}

// SubscriptionStatus returns the raw subscription status for a user, cached.
// Users without a subscription row report an empty status.
func (r *Resolver) SubscriptionStatus(ctx context.Context, userID uint) (string, error) {
	key := cache.SubscriptionStatusKey(userID)
	if cached, ok := cache.Get[string](r.cache, key); ok {
		return cached, nil
	}

	sub, err := r.repo.GetSubscriptionWithTier(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	r.cache.Set(key, sub.Status, cache.TTLMedium)
	return sub.Status, nil
}

// UpgradeToPremium starts the purchase flow for an upgrade. It only initiates
// payment; the entitlement flips once the webhook/IAP event lands.
func (r *Resolver) UpgradeToPremium(ctx context.Context, userID uint, cycle string) (string, error) {
	switch cycle {
	case models.BillingCycleMonthly, models.BillingCycleYearly:
	default:
		return "", fmt.Errorf("unsupported billing cycle: %q", cycle)
	}

	premium, err := r.IsPremiumUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if premium {
		return "", ErrAlreadyPremium
	}

	checkoutRef, err := r.payments.StartCheckout(ctx, userID, cycle)
	if err != nil {
		return "", err
	}

	r.cache.InvalidateUser(userID)
	return checkoutRef, nil
}

// DowngradeToFree invokes the atomic server-side downgrade, then drops every
// cached view of the user's entitlement state.
func (r *Resolver) DowngradeToFree(ctx context.Context, userID uint) error {
	if err := r.repo.DowngradeToFree(userID); err != nil {
		return err
	}
	r.cache.InvalidateUser(userID)
	if r.gate != nil {
		r.gate.Refresh(userID)
	}
	return nil
}

// RefreshTierInfo invalidates the cache group, waits for upstream writes to
// settle, then re-fetches with bounded escalating backoff. Needed because
// webhook and IAP finalization writes are asynchronous relative to this call.
func (r *Resolver) RefreshTierInfo(ctx context.Context, userID uint) (*TierInfo, bool, error) {
	r.cache.InvalidateUser(userID)
	if r.gate != nil {
		r.gate.Refresh(userID)
	}

	if r.settleDelay > 0 {
		select {
		case <-time.After(r.settleDelay):
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	var (
		tier    *TierInfo
		premium bool
		err     error
	)
	backoff := r.backoffBase
	for attempt := 0; attempt < r.refreshRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, false, ctx.Err()
			}
			backoff *= 2
			r.cache.InvalidateUser(userID)
		}

		tier, err = r.CurrentTier(ctx, userID)
		if err != nil {
			continue
		}
		premium, err = r.IsPremiumUser(ctx, userID)
		if err == nil {
			return tier, premium, nil
		}
	}
	return nil, false, err
}

func tierInfoFromModel(tier *models.SubscriptionTier) *TierInfo {
	return &TierInfo{
		ID:                      tier.ID,
		Name:                    tier.Name,
		MaxTrackedSubscriptions: tier.MaxTrackedSubscriptions,
		MaxReminders:            tier.MaxReminders,
		MonthlyPriceCents:       tier.MonthlyPriceCents,
		YearlyPriceCents:        tier.YearlyPriceCents,
	}
}

// defaultFreeTier is the built-in fallback when the tier reference table has
// not been seeded yet.
func defaultFreeTier() *TierInfo {
	maxSubs := 3
	maxReminders := 3
	return &TierInfo{
		Name:                    models.TierFree,
		MaxTrackedSubscriptions: &maxSubs,
		MaxReminders:            &maxReminders,
	}
}
