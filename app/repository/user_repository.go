package repository

import (
	"github.com/subtrack-app/subtrack/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetStatsByUserID returns aggregate counts for the given user. Monthly spend
// normalizes yearly amounts to a per-month figure and ignores archived rows.
func (r *userRepository) GetStatsByUserID(userID uint) (*UserStats, error) {
	stats := &UserStats{}

	err := r.db.Model(&models.TrackedSubscription{}).
		Where("user_id = ? AND archived = ?", userID, false).
		Count(&stats.TrackedSubscriptionCount).Error
	if err != nil {
		return nil, err
	}

	err = r.db.Model(&models.Reminder{}).
		Where("user_id = ?", userID).
		Count(&stats.ReminderCount).Error
	if err != nil {
		return nil, err
	}

	var spend struct {
		Total int64
	}
	err = r.db.Model(&models.TrackedSubscription{}).
		Select("COALESCE(SUM(CASE WHEN billing_cycle = 'yearly' THEN amount_cents DIV 12 WHEN billing_cycle = 'weekly' THEN amount_cents * 4 ELSE amount_cents END), 0) AS total").
		Where("user_id = ? AND archived = ?", userID, false).
		Scan(&spend).Error
	if err != nil {
		return nil, err
	}
	stats.MonthlySpendCents = spend.Total

	return stats, nil
}

// Update updates an existing user in the database
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// Delete soft deletes a user by their ID
func (r *userRepository) Delete(id uint) error {
	return r.db.Delete(&models.User{}, id).Error
}

// List retrieves a paginated list of users
func (r *userRepository) List(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}
