package sweeper

import (
	"time"

	"gorm.io/gorm"

	"github.com/subtrack-app/subtrack/app/models"
)

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a sweeper store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) LocalFallbackSubscriptions() ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := s.db.Preload("Tier").Where("local_fallback = ?", true).Find(&subs).Error
	return subs, err
}

func (s *gormStore) ClearFallbackFlag(userID uint) error {
	return s.db.Model(&models.UserSubscription{}).
		Where("user_id = ?", userID).
		Update("local_fallback", false).Error
}

func (s *gormStore) CanceledSubscriptions() ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := s.db.Preload("Tier").
		Where("status = ?", models.SubscriptionStatusCanceled).
		Find(&subs).Error
	return subs, err
}

func (s *gormStore) LatestAppleTransaction(userID uint) (*models.AppleTransaction, error) {
	return models.LatestAppleTransaction(s.db, userID)
}

// ExpireSubscription marks a lapsed subscription expired and clears the
// profile mirror atomically.
func (s *gormStore) ExpireSubscription(userID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.UserSubscription{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"status":         models.SubscriptionStatusExpired,
				"local_fallback": false,
			}).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"plan":       models.TierFree,
				"is_premium": false,
			}).Error
	})
}

// DowngradeToFree moves a rejected fallback grant back to the Free tier.
func (s *gormStore) DowngradeToFree(userID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var free models.SubscriptionTier
		if err := tx.Where("name = ? AND is_active = ?", models.TierFree, true).First(&free).Error; err != nil {
			return err
		}

		err := tx.Model(&models.UserSubscription{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"tier_id":        free.ID,
				"status":         models.SubscriptionStatusCanceled,
				"local_fallback": false,
			}).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"plan":       models.TierFree,
				"is_premium": false,
			}).Error
	})
}

func (s *gormStore) UserEmail(userID uint) (string, error) {
	var user models.User
	if err := s.db.Select("email").First(&user, userID).Error; err != nil {
		return "", err
	}
	return user.Email, nil
}

func (s *gormStore) ExpiringSoon(within time.Duration) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	cutoff := time.Now().Add(within)
	err := s.db.Preload("Tier").
		Where("status = ? AND cancel_at_period_end = ? AND current_period_end IS NOT NULL AND current_period_end BETWEEN ? AND ?",
			models.SubscriptionStatusCanceled, true, time.Now(), cutoff).
		Find(&subs).Error
	return subs, err
}
