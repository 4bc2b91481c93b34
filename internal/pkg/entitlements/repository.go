package entitlements

import (
	"github.com/subtrack-app/subtrack/app/models"
	"gorm.io/gorm"
)

// Repository provides the DB operations the resolver needs.
type Repository interface {
	GetSubscriptionWithTier(userID uint) (*models.UserSubscription, error)
	GetTierByName(name string) (*models.SubscriptionTier, error)
	LatestAppleTransaction(userID uint) (*models.AppleTransaction, error)
	DowngradeToFree(userID uint) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an entitlements repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetSubscriptionWithTier(userID uint) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Preload("Tier").Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetTierByName(name string) (*models.SubscriptionTier, error) {
	var tier models.SubscriptionTier
	err := r.db.Where("name = ? AND is_active = ?", name, true).First(&tier).Error
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *gormRepository) LatestAppleTransaction(userID uint) (*models.AppleTransaction, error) {
	return models.LatestAppleTransaction(r.db, userID)
}

// DowngradeToFree atomically moves the user to the Free tier and clears the
// premium mirror on the user row.
func (r *gormRepository) DowngradeToFree(userID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var free models.SubscriptionTier
		if err := tx.Where("name = ? AND is_active = ?", models.TierFree, true).First(&free).Error; err != nil {
			return err
		}

		err := tx.Model(&models.UserSubscription{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"tier_id":              free.ID,
				"status":               models.SubscriptionStatusCanceled,
				"cancel_at_period_end": false,
				"local_fallback":       false,
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
