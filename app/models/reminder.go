package models

import "time"

// Reminder is a renewal reminder attached to a tracked subscription. It is
// the second resource kind counted against the user's tier limit.
type Reminder struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	UserID                uint       `gorm:"not null;index" json:"user_id"`
	TrackedSubscriptionID uint       `gorm:"not null;index" json:"tracked_subscription_id"`
	RemindAt              time.Time  `gorm:"type:timestamp;not null;index" json:"remind_at"`
	Channel               string     `gorm:"type:varchar(20);not null;default:'push'" json:"channel" validate:"oneof=push email"`
	SentAt                *time.Time `gorm:"type:timestamp;default:null" json:"sent_at,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
