package repository

import (
	"time"

	"github.com/subtrack-app/subtrack/app/models"
	"gorm.io/gorm"
)

// trackedSubscriptionRepository implements the TrackedSubscriptionRepository interface
type trackedSubscriptionRepository struct {
	db *gorm.DB
}

// NewTrackedSubscriptionRepository creates a new tracked subscription repository instance
func NewTrackedSubscriptionRepository(db *gorm.DB) TrackedSubscriptionRepository {
	return &trackedSubscriptionRepository{db: db}
}

// Create creates a new tracked subscription
func (r *trackedSubscriptionRepository) Create(sub *models.TrackedSubscription) error {
	return r.db.Create(sub).Error
}

// GetByID retrieves a tracked subscription by its ID
func (r *trackedSubscriptionRepository) GetByID(id uint) (*models.TrackedSubscription, error) {
	var sub models.TrackedSubscription
	err := r.db.First(&sub, id).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByIDForUser retrieves a tracked subscription scoped to its owner.
func (r *trackedSubscriptionRepository) GetByIDForUser(id, userID uint) (*models.TrackedSubscription, error) {
	var sub models.TrackedSubscription
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByUserID lists a user's tracked subscriptions, newest first.
func (r *trackedSubscriptionRepository) ListByUserID(userID uint, includeArchived bool) ([]models.TrackedSubscription, error) {
	var subs []models.TrackedSubscription
	query := r.db.Where("user_id = ?", userID)
	if !includeArchived {
		query = query.Where("archived = ?", false)
	}
	err := query.Order("created_at DESC").Find(&subs).Error
	return subs, err
}

// CountActiveByUserID counts non-archived tracked subscriptions. This is the
// figure the limit gate compares against the tier limit.
func (r *trackedSubscriptionRepository) CountActiveByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.TrackedSubscription{}).
		Where("user_id = ? AND archived = ?", userID, false).
		Count(&count).Error
	return count, err
}

// Update updates an existing tracked subscription
func (r *trackedSubscriptionRepository) Update(sub *models.TrackedSubscription) error {
	return r.db.Save(sub).Error
}

// Delete deletes a tracked subscription by its ID
func (r *trackedSubscriptionRepository) Delete(id uint) error {
	return r.db.Delete(&models.TrackedSubscription{}, id).Error
}

// UpcomingRenewals returns non-archived subscriptions renewing within the window.
func (r *trackedSubscriptionRepository) UpcomingRenewals(userID uint, within time.Duration) ([]models.TrackedSubscription, error) {
	var subs []models.TrackedSubscription
	now := time.Now()
	err := r.db.Where("user_id = ? AND archived = ? AND next_renewal_at IS NOT NULL AND next_renewal_at BETWEEN ? AND ?",
		userID, false, now, now.Add(within)).
		Order("next_renewal_at ASC").
		Find(&subs).Error
	return subs, err
}
