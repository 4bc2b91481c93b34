package sweeper

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/subtrack-app/subtrack/app/models"
	"github.com/subtrack-app/subtrack/internal/pkg/cache"
	"github.com/subtrack-app/subtrack/internal/pkg/entitlements"
	"github.com/subtrack-app/subtrack/internal/pkg/mail"
	"github.com/subtrack-app/subtrack/internal/pkg/purchases"
)

// Store provides the DB operations the sweeps need.
type Store interface {
	LocalFallbackSubscriptions() ([]models.UserSubscription, error)
	ClearFallbackFlag(userID uint) error
	CanceledSubscriptions() ([]models.UserSubscription, error)
	LatestAppleTransaction(userID uint) (*models.AppleTransaction, error)
	ExpireSubscription(userID uint) error
	DowngradeToFree(userID uint) error
	UserEmail(userID uint) (string, error)
	ExpiringSoon(within time.Duration) ([]models.UserSubscription, error)
}

// Refresher invalidates the limit gate's cached state for a user.
type Refresher interface {
	Refresh(userID uint)
	ClearAll()
}

// Sweeper runs the periodic reconciliation jobs: correcting local fallback
// grants once the validation channel recovers, and expiring canceled
// subscriptions whose grace window lapsed.
type Sweeper struct {
	store     Store
	validator purchases.Validator
	cache     *cache.Memory
	gate      Refresher

	// DisputeWindow is how long a conclusively rejected fallback grant is
	// left standing before the downgrade, giving support a chance to step in.
	DisputeWindow time.Duration
}

// NewSweeper wires the sweeper. validator may be nil; the correction sweep
// then leaves fallback grants untouched.
func NewSweeper(store Store, validator purchases.Validator, mem *cache.Memory, gate Refresher) *Sweeper {
	return &Sweeper{
		store:         store,
		validator:     validator,
		cache:         mem,
		gate:          gate,
		DisputeWindow: 48 * time.Hour,
	}
}

// RunCorrectionSweep re-validates every local fallback grant. Successful
// validation clears the flag; a conclusive rejection past the dispute window
// downgrades the user. Channel failures leave the row for the next sweep.
func (s *Sweeper) RunCorrectionSweep(ctx context.Context) {
	if s.validator == nil {
		return
	}

	subs, err := s.store.LocalFallbackSubscriptions()
	if err != nil {
		log.Errorf("[Sweeper] error listing fallback grants: %v", err)
		return
	}
	if len(subs) == 0 {
		return
	}
	log.Infof("[Sweeper] correction sweep over %d fallback grants", len(subs))

	for _, sub := range subs {
		receipt := receiptFromRawPayload(sub.RawPayloadJSON)
		if receipt == "" {
			continue
		}

		ok, err := s.validator.ValidateReceipt(ctx, receipt, sub.UserID)
		if err != nil {
			log.Warnf("[Sweeper] validation still unavailable for user %d: %v", sub.UserID, err)
			continue
		}

		if ok {
			if err := s.store.ClearFallbackFlag(sub.UserID); err != nil {
				log.Errorf("[Sweeper] error clearing fallback flag for user %d: %v", sub.UserID, err)
				continue
			}
			log.Infof("[Sweeper] fallback grant confirmed for user %d", sub.UserID)
			continue
		}

		if time.Since(sub.UpdatedAt) < s.DisputeWindow {
			log.Warnf("[Sweeper] rejected fallback grant for user %d still inside dispute window", sub.UserID)
			continue
		}
		if err := s.store.DowngradeToFree(sub.UserID); err != nil {
			log.Errorf("[Sweeper] error downgrading user %d: %v", sub.UserID, err)
			continue
		}
		s.invalidate(sub.UserID)
		log.Warnf("[Sweeper] fallback grant rejected, user %d downgraded", sub.UserID)
	}
}

// RunGraceExpirySweep expires canceled subscriptions whose authoritative
// paid-through window has passed.
func (s *Sweeper) RunGraceExpirySweep(ctx context.Context) {
	_ = ctx
	subs, err := s.store.CanceledSubscriptions()
	if err != nil {
		log.Errorf("[Sweeper] error listing canceled subscriptions: %v", err)
		return
	}

	now := time.Now()
	for _, sub := range subs {
		var appleTx *models.AppleTransaction
		if sub.PaymentProvider == models.PaymentProviderApple {
			appleTx, err = s.store.LatestAppleTransaction(sub.UserID)
			if err != nil {
				appleTx = nil
			}
		}
		if entitlements.HasActiveGraceWindow(&sub, appleTx, now) {
			continue
		}

		if err := s.store.ExpireSubscription(sub.UserID); err != nil {
			log.Errorf("[Sweeper] error expiring subscription for user %d: %v", sub.UserID, err)
			continue
		}
		s.invalidate(sub.UserID)
		log.Infof("[Sweeper] grace window lapsed, subscription expired for user %d", sub.UserID)
	}
}

// RunExpiryWarnings mails users whose paid-through window ends within three
// days.
func (s *Sweeper) RunExpiryWarnings(ctx context.Context) {
	_ = ctx
	subs, err := s.store.ExpiringSoon(3 * 24 * time.Hour)
	if err != nil {
		log.Errorf("[Sweeper] error listing expiring subscriptions: %v", err)
		return
	}

	for _, sub := range subs {
		email, err := s.store.UserEmail(sub.UserID)
		if err != nil || email == "" {
			continue
		}
		body := "<p>Your premium access ends soon. Renew to keep tracking unlimited subscriptions and reminders.</p>"
		if err := mail.SendMail(email, "Your premium access is about to end", body); err != nil {
			log.Warnf("[Sweeper] error sending expiry warning to user %d: %v", sub.UserID, err)
		}
	}
}

func (s *Sweeper) invalidate(userID uint) {
	if s.cache != nil {
		s.cache.InvalidateUser(userID)
	}
	if s.gate != nil {
		s.gate.Refresh(userID)
	}
}

// receiptFromRawPayload recovers the stored receipt from the raw purchase
// payload written at grant time.
func receiptFromRawPayload(rawPayload string) string {
	if rawPayload == "" {
		return ""
	}
	var purchase purchases.Purchase
	if err := json.Unmarshal([]byte(rawPayload), &purchase); err != nil {
		return ""
	}
	return purchase.Receipt
}
