package repository

import (
	"time"

	"github.com/subtrack-app/subtrack/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetStatsByUserID(userID uint) (*UserStats, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// TrackedSubscriptionRepository defines the interface for the subscriptions a
// user tracks inside the app
type TrackedSubscriptionRepository interface {
	Create(sub *models.TrackedSubscription) error
	GetByID(id uint) (*models.TrackedSubscription, error)
	GetByIDForUser(id, userID uint) (*models.TrackedSubscription, error)
	ListByUserID(userID uint, includeArchived bool) ([]models.TrackedSubscription, error)
	CountActiveByUserID(userID uint) (int64, error)
	Update(sub *models.TrackedSubscription) error
	Delete(id uint) error
	UpcomingRenewals(userID uint, within time.Duration) ([]models.TrackedSubscription, error)
}

// ReminderRepository defines the interface for renewal reminders
type ReminderRepository interface {
	Create(reminder *models.Reminder) error
	GetByID(id uint) (*models.Reminder, error)
	GetByIDForUser(id, userID uint) (*models.Reminder, error)
	ListByUserID(userID uint) ([]models.Reminder, error)
	ListBySubscriptionID(subscriptionID uint) ([]models.Reminder, error)
	CountActiveByUserID(userID uint) (int64, error)
	Update(reminder *models.Reminder) error
	Delete(id uint) error
	MarkSent(id uint, at time.Time) error
	DeleteBySubscriptionID(subscriptionID uint) error
}

// UserStats provides aggregated counts for a single user.
type UserStats struct {
	TrackedSubscriptionCount int64
	ReminderCount            int64
	MonthlySpendCents        int64
}

// Repositories struct holds all repository instances
type Repositories struct {
	User                UserRepository
	TrackedSubscription TrackedSubscriptionRepository
	Reminder            ReminderRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:                NewUserRepository(db),
		TrackedSubscription: NewTrackedSubscriptionRepository(db),
		Reminder:            NewReminderRepository(db),
	}
}
