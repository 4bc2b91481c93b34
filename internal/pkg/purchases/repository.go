package purchases

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/subtrack-app/subtrack/app/models"
)

// Repository provides the DB operations the engine needs.
type Repository interface {
	UserIDByOriginalTransaction(originalTransactionID string) (uint, error)
	GetTierByName(name string) (*models.SubscriptionTier, error)
	UpsertSubscription(sub *models.UserSubscription) error
	RecordAppleTransaction(tx *models.AppleTransaction) error
	SetUserPlanMirror(userID uint, plan string, isPremium bool) error
	LocalFallbackUserIDs(olderThan time.Time) ([]uint, error)
	SubscriptionByUser(userID uint) (*models.UserSubscription, error)
	AppleTransactionsByUser(userID uint) ([]models.AppleTransaction, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a purchases repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// UserIDByOriginalTransaction maps a store transaction chain back to a user
// through the audit trail. gorm.ErrRecordNotFound when no row links them.
func (r *gormRepository) UserIDByOriginalTransaction(originalTransactionID string) (uint, error) {
	var tx models.AppleTransaction
	err := r.db.Where("original_transaction_id = ? OR transaction_id = ?", originalTransactionID, originalTransactionID).
		Order("id DESC").
		First(&tx).Error
	if err != nil {
		return 0, err
	}
	return tx.UserID, nil
}

func (r *gormRepository) GetTierByName(name string) (*models.SubscriptionTier, error) {
	var tier models.SubscriptionTier
	err := r.db.Where("name = ? AND is_active = ?", name, true).First(&tier).Error
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

// UpsertSubscription writes the one subscription row per user, replacing the
// reconciled fields on conflict.
func (r *gormRepository) UpsertSubscription(sub *models.UserSubscription) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tier_id", "billing_cycle", "status",
			"current_period_start", "current_period_end",
			"cancel_at_period_end", "payment_provider",
			"provider_subscription_id", "local_fallback",
			"raw_payload_json", "updated_at",
		}),
	}).Create(sub).Error
}

// RecordAppleTransaction appends an audit row; replays of the same
// transaction id are ignored.
func (r *gormRepository) RecordAppleTransaction(tx *models.AppleTransaction) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(tx).Error
}

func (r *gormRepository) SetUserPlanMirror(userID uint, plan string, isPremium bool) error {
	return r.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"plan":       plan,
			"is_premium": isPremium,
		}).Error
}

// LocalFallbackUserIDs lists users whose entitlement was granted locally
// before the cutoff and still awaits server-side confirmation.
func (r *gormRepository) LocalFallbackUserIDs(olderThan time.Time) ([]uint, error) {
	var userIDs []uint
	err := r.db.Model(&models.UserSubscription{}).
		Where("local_fallback = ? AND updated_at < ?", true, olderThan).
		Pluck("user_id", &userIDs).Error
	return userIDs, err
}

func (r *gormRepository) SubscriptionByUser(userID uint) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Preload("Tier").Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) AppleTransactionsByUser(userID uint) ([]models.AppleTransaction, error) {
	var txs []models.AppleTransaction
	err := r.db.Where("user_id = ?", userID).
		Order("purchase_date DESC, id DESC").
		Find(&txs).Error
	return txs, err
}
