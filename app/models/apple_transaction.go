package models

import (
	"time"

	"gorm.io/gorm"
)

// AppleTransaction is an append-only audit row per App Store transaction.
// The most recent row per user is the authoritative expiry source when a
// subscription is canceled and the provider is Apple.
type AppleTransaction struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	UserID                uint       `gorm:"not null;index" json:"user_id"`
	TransactionID         string     `gorm:"type:varchar(100);not null;uniqueIndex" json:"transaction_id"`
	OriginalTransactionID string     `gorm:"type:varchar(100);not null;default:'';index" json:"original_transaction_id"`
	ProductID             string     `gorm:"type:varchar(100);not null;default:''" json:"product_id"`
	PurchaseDate          *time.Time `gorm:"type:timestamp;default:null" json:"purchase_date,omitempty"`
	ExpirationDate        *time.Time `gorm:"type:timestamp;default:null;index" json:"expiration_date,omitempty"`
	NotificationType      string     `gorm:"type:varchar(64);not null;default:''" json:"notification_type"`
	Environment           string     `gorm:"type:varchar(20);not null;default:''" json:"environment"`
	Validated             bool       `gorm:"default:false" json:"validated"`
	CreatedAt             time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

// LatestAppleTransaction returns the most recent audit row for a user, or
// gorm.ErrRecordNotFound when the user has none.
func LatestAppleTransaction(db *gorm.DB, userID uint) (*AppleTransaction, error) {
	var tx AppleTransaction
	err := db.Where("user_id = ?", userID).
		Order("purchase_date DESC, id DESC").
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
