package models

import (
	"strings"
	"time"
)

// Tier name constants used across entitlements and billing.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// SubscriptionTier is read-mostly reference data describing what a plan
// allows. A nil limit means unlimited.
type SubscriptionTier struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	Name                    string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"name"`
	MaxTrackedSubscriptions *int      `gorm:"default:null" json:"max_tracked_subscriptions"`
	MaxReminders            *int      `gorm:"default:null" json:"max_reminders"`
	MonthlyPriceCents       int       `gorm:"not null;default:0" json:"monthly_price_cents"`
	YearlyPriceCents        int       `gorm:"not null;default:0" json:"yearly_price_cents"`
	FeaturesJSON            string    `gorm:"type:text" json:"features_json"`
	IsActive                bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPremiumTier reports whether the tier name denotes the paid tier.
func IsPremiumTier(name string) bool {
	return strings.ToLower(strings.TrimSpace(name)) == TierPremium
}
