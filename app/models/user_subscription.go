package models

import "time"

const (
	BillingCycleMonthly = "monthly"
	BillingCycleYearly  = "yearly"
	BillingCycleUnknown = "unknown"
)

const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusPaused     = "paused"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusExpired    = "expired"
)

// Payment provider constants used across billing-related models.
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderApple  = "apple"
	PaymentProviderOther  = "other"
)

// UserSubscription mirrors provider subscription state for exactly one user.
// It is created on the first successful payment event, mutated by webhook and
// IAP reconciliation, and never deleted except on full account deletion.
type UserSubscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	TierID                 uint       `gorm:"not null;index" json:"tier_id"`
	BillingCycle           string     `gorm:"type:varchar(16);not null;default:'unknown'" json:"billing_cycle"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	PausedAt               *time.Time `gorm:"type:timestamp;default:null" json:"paused_at,omitempty"`
	ResumeAt               *time.Time `gorm:"type:timestamp;default:null" json:"resume_at,omitempty"`
	PaymentProvider        string     `gorm:"type:varchar(20);not null;default:'other';index" json:"payment_provider"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_subscription_id"`
	// LocalFallback marks entitlements granted by the availability fallback
	// while the validation channel was unavailable; cleared once server-side
	// validation confirms or corrects the grant.
	LocalFallback  bool      `gorm:"default:false;index" json:"local_fallback"`
	RawPayloadJSON string    `gorm:"type:longtext" json:"raw_payload_json"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Tier SubscriptionTier `gorm:"foreignKey:TierID" json:"tier"`
}
