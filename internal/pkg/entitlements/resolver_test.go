package entitlements

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/subtrack-app/subtrack/app/models"
	"github.com/subtrack-app/subtrack/internal/pkg/cache"
)

type fakeRepo struct {
	sub      *models.UserSubscription
	subErr   error
	tier     *models.SubscriptionTier
	tierErr  error
	appleTx  *models.AppleTransaction
	appleErr error

	downgraded   []uint
	downgradeErr error
}

func (f *fakeRepo) GetSubscriptionWithTier(userID uint) (*models.UserSubscription, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	return f.sub, nil
}

func (f *fakeRepo) GetTierByName(name string) (*models.SubscriptionTier, error) {
	if f.tierErr != nil {
		return nil, f.tierErr
	}
	return f.tier, nil
}

func (f *fakeRepo) LatestAppleTransaction(userID uint) (*models.AppleTransaction, error) {
	if f.appleErr != nil {
		return nil, f.appleErr
	}
	return f.appleTx, nil
}

func (f *fakeRepo) DowngradeToFree(userID uint) error {
	if f.downgradeErr != nil {
		return f.downgradeErr
	}
	f.downgraded = append(f.downgraded, userID)
	return nil
}

type fakePayments struct {
	ref   string
	err   error
	calls int
}

func (f *fakePayments) StartCheckout(ctx context.Context, userID uint, cycle string) (string, error) {
	f.calls++
	return f.ref, f.err
}

type fakeGate struct {
	refreshed []uint
	cleared   int
}

func (f *fakeGate) Refresh(userID uint) { f.refreshed = append(f.refreshed, userID) }
func (f *fakeGate) ClearAll()           { f.cleared++ }

func newTestResolver(repo Repository) (*Resolver, *fakePayments, *fakeGate) {
	payments := &fakePayments{ref: "cs_test_123"}
	gate := &fakeGate{}
	r := NewResolver(repo, cache.NewMemory(), payments, gate)
	r.settleDelay = 0
	r.backoffBase = time.Millisecond
	return r, payments, gate
}

func premiumSub(status, provider string) *models.UserSubscription {
	return &models.UserSubscription{
		UserID:          1,
		Status:          status,
		PaymentProvider: provider,
		Tier:            models.SubscriptionTier{ID: 2, Name: models.TierPremium},
	}
}

func TestIsPremiumUserEntitlingStatuses(t *testing.T) {
	statuses := []string{
		models.SubscriptionStatusActive,
		models.SubscriptionStatusTrialing,
		models.SubscriptionStatusIncomplete,
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusPaused,
	}

	for _, status := range statuses {
		t.Run(status, func(t *testing.T) {
			r, _, _ := newTestResolver(&fakeRepo{sub: premiumSub(status, models.PaymentProviderStripe)})
			premium, err := r.IsPremiumUser(context.Background(), 1)
			require.NoError(t, err)
			assert.True(t, premium)
		})
	}
}

func TestIsPremiumUserFreeTier(t *testing.T) {
	sub := premiumSub(models.SubscriptionStatusActive, models.PaymentProviderStripe)
	sub.Tier = models.SubscriptionTier{ID: 1, Name: models.TierFree}
	r, _, _ := newTestResolver(&fakeRepo{sub: sub})

	premium, err := r.IsPremiumUser(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, premium)
}

func TestIsPremiumUserNoSubscription(t *testing.T) {
	r, _, _ := newTestResolver(&fakeRepo{subErr: gorm.ErrRecordNotFound})
	premium, err := r.IsPremiumUser(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, premium)
}

func TestIsPremiumUserCanceledAppleGrace(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)

	tests := []struct {
		name       string
		expiration *time.Time
		tx         bool
		want       bool
	}{
		{name: "expiration one day ahead", expiration: &future, tx: true, want: true},
		{name: "expiration one day past", expiration: &past, tx: true, want: false},
		{name: "no audit row", tx: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{sub: premiumSub(models.SubscriptionStatusCanceled, models.PaymentProviderApple)}
			if tt.tx {
				repo.appleTx = &models.AppleTransaction{UserID: 1, ExpirationDate: tt.expiration}
			} else {
				repo.appleErr = gorm.ErrRecordNotFound
			}
			r, _, _ := newTestResolver(repo)

			premium, err := r.IsPremiumUser(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, premium)
		})
	}
}

func TestIsPremiumUserCanceledStripeGrace(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)

	tests := []struct {
		name              string
		periodEnd         *time.Time
		cancelAtPeriodEnd bool
		want              bool
	}{
		{name: "cancel at period end, period end ahead", periodEnd: &future, cancelAtPeriodEnd: true, want: true},
		{name: "cancel at period end, period end past", periodEnd: &past, cancelAtPeriodEnd: true, want: false},
		{name: "immediate cancel", periodEnd: &future, cancelAtPeriodEnd: false, want: false},
		{name: "no period end", periodEnd: nil, cancelAtPeriodEnd: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := premiumSub(models.SubscriptionStatusCanceled, models.PaymentProviderStripe)
			sub.CurrentPeriodEnd = tt.periodEnd
			sub.CancelAtPeriodEnd = tt.cancelAtPeriodEnd
			r, _, _ := newTestResolver(&fakeRepo{sub: sub})

			premium, err := r.IsPremiumUser(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, premium)
		})
	}
}

func TestCurrentTierDefaultsToFree(t *testing.T) {
	maxSubs := 3
	repo := &fakeRepo{
		subErr: gorm.ErrRecordNotFound,
		tier: &models.SubscriptionTier{
			ID:                      1,
			Name:                    models.TierFree,
			MaxTrackedSubscriptions: &maxSubs,
		},
	}
	r, _, _ := newTestResolver(repo)

	tier, err := r.CurrentTier(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, tier.Name)
	require.NotNil(t, tier.MaxTrackedSubscriptions)
	assert.Equal(t, 3, *tier.MaxTrackedSubscriptions)
}

func TestCurrentTierUnseededTableStillFree(t *testing.T) {
	repo := &fakeRepo{subErr: gorm.ErrRecordNotFound, tierErr: gorm.ErrRecordNotFound}
	r, _, _ := newTestResolver(repo)

	tier, err := r.CurrentTier(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, tier.Name)
}

func TestCurrentTierQueryErrorRaisesTierNotFound(t *testing.T) {
	repo := &fakeRepo{subErr: errors.New("connection refused")}
	r, _, _ := newTestResolver(repo)

	_, err := r.CurrentTier(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTierNotFound)
}

func TestUpgradeToPremiumRejectsAlreadyPremium(t *testing.T) {
	r, payments, _ := newTestResolver(&fakeRepo{sub: premiumSub(models.SubscriptionStatusActive, models.PaymentProviderStripe)})

	_, err := r.UpgradeToPremium(context.Background(), 1, models.BillingCycleMonthly)
	assert.ErrorIs(t, err, ErrAlreadyPremium)
	assert.Zero(t, payments.calls)
}

func TestUpgradeToPremiumStartsCheckout(t *testing.T) {
	r, payments, _ := newTestResolver(&fakeRepo{subErr: gorm.ErrRecordNotFound, tierErr: gorm.ErrRecordNotFound})

	ref, err := r.UpgradeToPremium(context.Background(), 1, models.BillingCycleYearly)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", ref)
	assert.Equal(t, 1, payments.calls)
}

func TestUpgradeToPremiumRejectsBadCycle(t *testing.T) {
	r, _, _ := newTestResolver(&fakeRepo{subErr: gorm.ErrRecordNotFound})
	_, err := r.UpgradeToPremium(context.Background(), 1, "weekly")
	assert.Error(t, err)
}

func TestDowngradeToFreeRefreshesGate(t *testing.T) {
	repo := &fakeRepo{sub: premiumSub(models.SubscriptionStatusActive, models.PaymentProviderStripe)}
	r, _, gate := newTestResolver(repo)

	require.NoError(t, r.DowngradeToFree(context.Background(), 1))
	assert.Equal(t, []uint{1}, repo.downgraded)
	assert.Equal(t, []uint{1}, gate.refreshed)
}

func TestIsPremiumUserCachesResult(t *testing.T) {
	repo := &fakeRepo{sub: premiumSub(models.SubscriptionStatusActive, models.PaymentProviderStripe)}
	r, _, _ := newTestResolver(repo)

	_, err := r.IsPremiumUser(context.Background(), 1)
	require.NoError(t, err)

	// Flip the underlying row; the cached value must still be served.
	repo.sub = premiumSub(models.SubscriptionStatusExpired, models.PaymentProviderStripe)
	premium, err := r.IsPremiumUser(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, premium)
}

func TestRefreshTierInfoRetriesUntilFresh(t *testing.T) {
	repo := &fakeRepo{sub: premiumSub(models.SubscriptionStatusActive, models.PaymentProviderStripe)}
	r, _, gate := newTestResolver(repo)

	tier, premium, err := r.RefreshTierInfo(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, premium)
	assert.Equal(t, models.TierPremium, tier.Name)
	assert.NotEmpty(t, gate.refreshed)
}

func TestIsEntitlingStatus(t *testing.T) {
	for _, status := range []string{"active", "trialing", "incomplete", "past_due", "paused"} {
		assert.True(t, IsEntitlingStatus(status), status)
	}
	for _, status := range []string{"canceled", "expired", ""} {
		assert.False(t, IsEntitlingStatus(status), status)
	}
}
