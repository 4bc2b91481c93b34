package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/subtrack-app/subtrack/app/models"
	"github.com/subtrack-app/subtrack/internal/pkg/cache"
	"github.com/subtrack-app/subtrack/internal/pkg/purchases"
)

type fakeStore struct {
	fallback []models.UserSubscription
	canceled []models.UserSubscription
	appleTx  map[uint]*models.AppleTransaction

	cleared    []uint
	downgraded []uint
	expired    []uint
}

func (f *fakeStore) LocalFallbackSubscriptions() ([]models.UserSubscription, error) {
	return f.fallback, nil
}

func (f *fakeStore) ClearFallbackFlag(userID uint) error {
	f.cleared = append(f.cleared, userID)
	return nil
}

func (f *fakeStore) CanceledSubscriptions() ([]models.UserSubscription, error) {
	return f.canceled, nil
}

func (f *fakeStore) LatestAppleTransaction(userID uint) (*models.AppleTransaction, error) {
	if tx, ok := f.appleTx[userID]; ok {
		return tx, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) ExpireSubscription(userID uint) error {
	f.expired = append(f.expired, userID)
	return nil
}

func (f *fakeStore) DowngradeToFree(userID uint) error {
	f.downgraded = append(f.downgraded, userID)
	return nil
}

func (f *fakeStore) UserEmail(userID uint) (string, error) { return "", gorm.ErrRecordNotFound }

func (f *fakeStore) ExpiringSoon(within time.Duration) ([]models.UserSubscription, error) {
	return nil, nil
}

type fakeValidator struct {
	ok  bool
	err error
}

func (f *fakeValidator) ValidateReceipt(ctx context.Context, receiptData string, userID uint) (bool, error) {
	return f.ok, f.err
}

func fallbackSub(userID uint, age time.Duration) models.UserSubscription {
	raw, _ := json.Marshal(purchases.Purchase{Receipt: "stored-receipt"})
	return models.UserSubscription{
		UserID:         userID,
		Status:         models.SubscriptionStatusActive,
		LocalFallback:  true,
		RawPayloadJSON: string(raw),
		UpdatedAt:      time.Now().Add(-age),
	}
}

func TestCorrectionSweepConfirmsGrant(t *testing.T) {
	store := &fakeStore{fallback: []models.UserSubscription{fallbackSub(1, time.Hour)}}
	s := NewSweeper(store, &fakeValidator{ok: true}, cache.NewMemory(), nil)

	s.RunCorrectionSweep(context.Background())

	assert.Equal(t, []uint{1}, store.cleared)
	assert.Empty(t, store.downgraded)
}

func TestCorrectionSweepDowngradesAfterDisputeWindow(t *testing.T) {
	store := &fakeStore{fallback: []models.UserSubscription{fallbackSub(2, 72 * time.Hour)}}
	mem := cache.NewMemory()
	mem.Set(cache.PremiumKey(2), true, cache.TTLMedium)
	s := NewSweeper(store, &fakeValidator{ok: false}, mem, nil)

	s.RunCorrectionSweep(context.Background())

	assert.Equal(t, []uint{2}, store.downgraded)
	_, cached := cache.Get[bool](mem, cache.PremiumKey(2))
	assert.False(t, cached, "stale entitlement dropped after downgrade")
}

func TestCorrectionSweepRespectsDisputeWindow(t *testing.T) {
	store := &fakeStore{fallback: []models.UserSubscription{fallbackSub(3, time.Hour)}}
	s := NewSweeper(store, &fakeValidator{ok: false}, cache.NewMemory(), nil)

	s.RunCorrectionSweep(context.Background())

	assert.Empty(t, store.downgraded, "recent rejection stays inside the dispute window")
	assert.Empty(t, store.cleared)
}

func TestCorrectionSweepLeavesRowOnChannelFailure(t *testing.T) {
	store := &fakeStore{fallback: []models.UserSubscription{fallbackSub(4, 72 * time.Hour)}}
	s := NewSweeper(store, &fakeValidator{err: errors.New("still down")}, cache.NewMemory(), nil)

	s.RunCorrectionSweep(context.Background())

	assert.Empty(t, store.downgraded)
	assert.Empty(t, store.cleared)
}

func TestGraceExpirySweep(t *testing.T) {
	past := time.Now().Add(-24 * time.Hour)
	future := time.Now().Add(24 * time.Hour)

	store := &fakeStore{
		canceled: []models.UserSubscription{
			{
				UserID:            10,
				Status:            models.SubscriptionStatusCanceled,
				PaymentProvider:   models.PaymentProviderStripe,
				CancelAtPeriodEnd: true,
				CurrentPeriodEnd:  &past,
			},
			{
				UserID:            11,
				Status:            models.SubscriptionStatusCanceled,
				PaymentProvider:   models.PaymentProviderStripe,
				CancelAtPeriodEnd: true,
				CurrentPeriodEnd:  &future,
			},
			{
				UserID:          12,
				Status:          models.SubscriptionStatusCanceled,
				PaymentProvider: models.PaymentProviderApple,
			},
		},
		appleTx: map[uint]*models.AppleTransaction{
			12: {UserID: 12, ExpirationDate: &past},
		},
	}
	s := NewSweeper(store, nil, cache.NewMemory(), nil)

	s.RunGraceExpirySweep(context.Background())

	require.Len(t, store.expired, 2)
	assert.Contains(t, store.expired, uint(10), "lapsed card window expires")
	assert.Contains(t, store.expired, uint(12), "lapsed store window expires")
	assert.NotContains(t, store.expired, uint(11), "active grace window survives")
}
