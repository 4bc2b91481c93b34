package repository

import (
	"time"

	"github.com/subtrack-app/subtrack/app/models"
	"gorm.io/gorm"
)

// reminderRepository implements the ReminderRepository interface
type reminderRepository struct {
	db *gorm.DB
}

// NewReminderRepository creates a new reminder repository instance
func NewReminderRepository(db *gorm.DB) ReminderRepository {
	return &reminderRepository{db: db}
}

// Create creates a new reminder
func (r *reminderRepository) Create(reminder *models.Reminder) error {
	return r.db.Create(reminder).Error
}

// GetByID retrieves a reminder by its ID
func (r *reminderRepository) GetByID(id uint) (*models.Reminder, error) {
	var reminder models.Reminder
	err := r.db.First(&reminder, id).Error
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

// GetByIDForUser retrieves a reminder scoped to its owner.
func (r *reminderRepository) GetByIDForUser(id, userID uint) (*models.Reminder, error) {
	var reminder models.Reminder
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&reminder).Error
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

// ListByUserID lists a user's reminders ordered by due time.
func (r *reminderRepository) ListByUserID(userID uint) ([]models.Reminder, error) {
	var reminders []models.Reminder
	err := r.db.Where("user_id = ?", userID).Order("remind_at ASC").Find(&reminders).Error
	return reminders, err
}

// ListBySubscriptionID lists the reminders attached to one tracked subscription.
func (r *reminderRepository) ListBySubscriptionID(subscriptionID uint) ([]models.Reminder, error) {
	var reminders []models.Reminder
	err := r.db.Where("tracked_subscription_id = ?", subscriptionID).Order("remind_at ASC").Find(&reminders).Error
	return reminders, err
}

// CountActiveByUserID counts unsent reminders. This is the figure the limit
// gate compares against the tier limit.
func (r *reminderRepository) CountActiveByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Reminder{}).
		Where("user_id = ? AND sent_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

// Update updates an existing reminder
func (r *reminderRepository) Update(reminder *models.Reminder) error {
	return r.db.Save(reminder).Error
}

// Delete deletes a reminder by its ID
func (r *reminderRepository) Delete(id uint) error {
	return r.db.Delete(&models.Reminder{}, id).Error
}

// MarkSent records that a reminder went out.
func (r *reminderRepository) MarkSent(id uint, at time.Time) error {
	return r.db.Model(&models.Reminder{}).Where("id = ?", id).Update("sent_at", at).Error
}

// DeleteBySubscriptionID removes all reminders attached to a tracked subscription.
func (r *reminderRepository) DeleteBySubscriptionID(subscriptionID uint) error {
	return r.db.Where("tracked_subscription_id = ?", subscriptionID).Delete(&models.Reminder{}).Error
}
