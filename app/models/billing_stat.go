package models

import "time"

// BillingDailyStat aggregates reconciliation activity per day. Rows are
// incremented in batches by the metrics counter flusher.
type BillingDailyStat struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Date               string    `gorm:"type:varchar(10);not null;uniqueIndex" json:"date"` // YYYY-MM-DD
	WebhooksProcessed  int64     `gorm:"not null;default:0" json:"webhooks_processed"`
	PurchasesValidated int64     `gorm:"not null;default:0" json:"purchases_validated"`
	FallbackGrants     int64     `gorm:"not null;default:0" json:"fallback_grants"`
	ValidationFailures int64     `gorm:"not null;default:0" json:"validation_failures"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
