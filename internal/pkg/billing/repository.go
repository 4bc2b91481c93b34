package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/subtrack-app/subtrack/app/models"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	GetTierByName(name string) (*models.SubscriptionTier, error)
	UpsertSubscription(sub *models.UserSubscription) error
	GetSubscriptionByProviderRef(provider, providerSubscriptionID string) (*models.UserSubscription, error)
	GetSubscriptionByUser(userID uint) (*models.UserSubscription, error)
	SetUserPlanMirror(userID uint, plan string, isPremium bool) error
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetTierByName(name string) (*models.SubscriptionTier, error) {
	var tier models.SubscriptionTier
	err := r.db.Where("name = ? AND is_active = ?", name, true).First(&tier).Error
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *gormRepository) UpsertSubscription(sub *models.UserSubscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"tier_id",
			"billing_cycle",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"payment_provider",
			"provider_subscription_id",
			"local_fallback",
			"raw_payload_json",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("user_id = ?", sub.UserID).First(sub).Error
}

func (r *gormRepository) GetSubscriptionByProviderRef(provider, providerSubscriptionID string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Preload("Tier").
		Where("payment_provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByUser(userID uint) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Preload("Tier").Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) SetUserPlanMirror(userID uint, plan string, isPremium bool) error {
	return r.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"plan":       plan,
			"is_premium": isPremium,
		}).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
