package models

import "time"

// TrackedSubscription is a subscription the user tracks inside the app
// (Netflix, gym, ...). It is one of the two resource kinds counted against
// the user's tier limit.
type TrackedSubscription struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	Name          string     `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=1,max=150"`
	ServiceURL    string     `gorm:"type:varchar(255);default:''" json:"service_url" validate:"max=255"`
	AmountCents   int        `gorm:"not null;default:0" json:"amount_cents" validate:"gte=0"`
	Currency      string     `gorm:"type:varchar(3);not null;default:'USD'" json:"currency" validate:"len=3"`
	BillingCycle  string     `gorm:"type:varchar(16);not null;default:'monthly'" json:"billing_cycle" validate:"oneof=monthly yearly weekly"`
	NextRenewalAt *time.Time `gorm:"type:timestamp;default:null;index" json:"next_renewal_at,omitempty"`
	Archived      bool       `gorm:"default:false;index" json:"archived"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
