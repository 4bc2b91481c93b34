package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/subtrack-app/subtrack/app/models"
	"github.com/subtrack-app/subtrack/internal/pkg/cache"
	"github.com/subtrack-app/subtrack/internal/pkg/metrics/counter"
)

// Refresher invalidates the limit gate's cached state after an entitlement
// write.
type Refresher interface {
	Refresh(userID uint)
	ClearAll()
}

// Service synchronizes provider subscription state into the local tables and
// keeps the user profile mirror consistent.
type Service struct {
	repo  Repository
	cache *cache.Memory
	gate  Refresher
}

// NewService creates a billing service from injected collaborators. cache and
// gate may be nil in contexts that only persist events.
func NewService(repo Repository, mem *cache.Memory, gate Refresher) *Service {
	return &Service{repo: repo, cache: mem, gate: gate}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, mem *cache.Memory, gate Refresher) *Service {
	return NewService(NewRepository(db), mem, gate)
}

// RecordWebhookEvent persists webhook payloads idempotently. The bool result
// reports whether this delivery was the first one.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		UserID:          in.UserID,
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// SyncSubscription upserts provider subscription data and reconciles the user
// profile mirror. Partial updates (user id unknown) are resolved through the
// provider subscription id.
func (s *Service) SyncSubscription(ctx context.Context, in NormalizedSubscription) (*models.UserSubscription, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	providerSubID := strings.TrimSpace(in.ProviderSubscriptionID)
	if provider == "" || providerSubID == "" {
		return nil, errors.New("provider and provider_subscription_id are required")
	}

	existing, err := s.repo.GetSubscriptionByProviderRef(provider, providerSubID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	userID := in.UserID
	if userID == 0 {
		if existing == nil {
			return nil, fmt.Errorf("no user for provider subscription %s/%s", provider, providerSubID)
		}
		userID = existing.UserID
	}

	status := strings.ToLower(strings.TrimSpace(in.Status))
	if status == "" {
		status = models.SubscriptionStatusActive
	}

	premium, err := s.repo.GetTierByName(models.TierPremium)
	if err != nil {
		return nil, fmt.Errorf("premium tier lookup failed: %w", err)
	}

	sub := &models.UserSubscription{
		UserID:                 userID,
		TierID:                 premium.ID,
		BillingCycle:           normalizeCycle(in.BillingCycle),
		Status:                 status,
		CurrentPeriodStart:     in.CurrentPeriodStart,
		CurrentPeriodEnd:       in.CurrentPeriodEnd,
		CancelAtPeriodEnd:      in.CancelAtPeriodEnd,
		PaymentProvider:        provider,
		ProviderSubscriptionID: providerSubID,
		LocalFallback:          false,
		RawPayloadJSON:         in.RawPayloadJSON,
	}

	// Partial events keep the stored cycle and period when the payload
	// carries none.
	if existing != nil {
		if sub.BillingCycle == models.BillingCycleUnknown {
			sub.BillingCycle = existing.BillingCycle
		}
		if sub.CurrentPeriodStart == nil {
			sub.CurrentPeriodStart = existing.CurrentPeriodStart
		}
		if sub.CurrentPeriodEnd == nil {
			sub.CurrentPeriodEnd = existing.CurrentPeriodEnd
			sub.CancelAtPeriodEnd = existing.CancelAtPeriodEnd
		}
	}

	if err := s.repo.UpsertSubscription(sub); err != nil {
		return nil, err
	}

	if err := s.ReconcileUserMirror(ctx, userID); err != nil {
		return sub, err
	}

	s.invalidateEntitlementCaches(userID)
	return sub, nil
}

// ReconcileUserMirror recomputes and writes the profile plan mirror from the
// stored subscription row.
func (s *Service) ReconcileUserMirror(ctx context.Context, userID uint) error {
	_ = ctx
	if userID == 0 {
		return errors.New("user_id is required")
	}

	sub, err := s.repo.GetSubscriptionByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.repo.SetUserPlanMirror(userID, models.TierFree, false)
		}
		return err
	}

	premium := models.IsPremiumTier(sub.Tier.Name) && isEntitlingStatus(sub.Status)
	plan := models.TierFree
	if premium {
		plan = models.TierPremium
	}
	return s.repo.SetUserPlanMirror(userID, plan, premium)
}

// ProcessStripeEvent runs the full webhook pipeline: verify, persist, decode,
// sync, mark processed. Duplicate deliveries are acknowledged without a
// second sync.
func (s *Service) ProcessStripeEvent(ctx context.Context, client *StripeClient, payload []byte, signatureHeader string) error {
	event, err := client.VerifyAndParseEvent(payload, signatureHeader)
	if err != nil {
		return err
	}

	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.PaymentProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		return err
	}
	if !created {
		log.Infof("[Billing] duplicate stripe event %s, skipping", event.ID)
		return nil
	}
	_ = counter.AddWebhookProcessed()

	normalized, actionable, err := client.NormalizeEvent(event)
	if err == nil && actionable {
		_, err = s.SyncSubscription(ctx, *normalized)
	}

	if markErr := s.MarkWebhookProcessed(ctx, stored.ID, err); markErr != nil {
		log.Errorf("[Billing] error marking webhook %d processed: %v", stored.ID, markErr)
	}
	return err
}

func (s *Service) invalidateEntitlementCaches(userID uint) {
	if s.cache != nil {
		s.cache.InvalidateUser(userID)
	}
	if s.gate != nil {
		s.gate.Refresh(userID)
	}
}
