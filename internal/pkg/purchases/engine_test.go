package purchases

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

const testProductMonthly = "com.subtrack.premium.monthly.v1"
const testProductYearly = "com.subtrack.premium.yearly.v1"

type fakeGateway struct {
	connectCalls    int
	disconnectCalls int
	finishCalls     []string

	requestErr   error
	available    []Purchase
	availableErr error

	modernReceipt    string
	modernReceiptErr error
	legacyReceipt    string
	legacyReceiptErr error

	onUpdate UpdateListener
	onError  ErrorListener
}

func (f *fakeGateway) Connect(ctx context.Context) error { f.connectCalls++; return nil }
func (f *fakeGateway) Disconnect() error                 { f.disconnectCalls++; return nil }

func (f *fakeGateway) Products(ctx context.Context, productIDs []string) ([]Product, error) {
	products := make([]Product, 0, len(productIDs))
	for _, id := range productIDs {
		products = append(products, Product{ID: id, Period: CycleFromProductID(id)})
	}
	return products, nil
}

func (f *fakeGateway) RequestPurchase(ctx context.Context, productID string) error {
	return f.requestErr
}

func (f *fakeGateway) AvailablePurchases(ctx context.Context) ([]Purchase, error) {
	if f.availableErr != nil {
		return nil, f.availableErr
	}
	return f.available, nil
}

func (f *fakeGateway) FinishTransaction(ctx context.Context, transactionID string) error {
	f.finishCalls = append(f.finishCalls, transactionID)
	return nil
}

func (f *fakeGateway) TransactionReceipt(ctx context.Context, transactionID string) (string, error) {
	return f.modernReceipt, f.modernReceiptErr
}

func (f *fakeGateway) LegacyReceipt(ctx context.Context) (string, error) {
	return f.legacyReceipt, f.legacyReceiptErr
}

func (f *fakeGateway) SetListeners(onUpdate UpdateListener, onError ErrorListener) {
	f.onUpdate = onUpdate
	f.onError = onError
}

type fakeValidator struct {
	ok    bool
	err   error
	calls int
}

func (f *fakeValidator) ValidateReceipt(ctx context.Context, receiptData string, userID uint) (bool, error) {
	f.calls++
	return f.ok, f.err
}

type fakeEngineRepo struct {
	userByTx    map[string]uint
	tier        *models.SubscriptionTier
	auditByUser map[uint][]models.AppleTransaction

	upserts []models.UserSubscription
	audits  []models.AppleTransaction
	mirrors []string
}

func newFakeEngineRepo() *fakeEngineRepo {
	return &fakeEngineRepo{
		userByTx:    map[string]uint{},
		tier:        &models.SubscriptionTier{ID: 2, Name: models.TierPremium},
		auditByUser: map[uint][]models.AppleTransaction{},
	}
}

func (f *fakeEngineRepo) UserIDByOriginalTransaction(id string) (uint, error) {
	if userID, ok := f.userByTx[id]; ok {
		return userID, nil
	}
	return 0, gorm.ErrRecordNotFound
}

func (f *fakeEngineRepo) GetTierByName(name string) (*models.SubscriptionTier, error) {
	return f.tier, nil
}

func (f *fakeEngineRepo) UpsertSubscription(sub *models.UserSubscription) error {
	f.upserts = append(f.upserts, *sub)
	return nil
}

func (f *fakeEngineRepo) RecordAppleTransaction(tx *models.AppleTransaction) error {
	f.audits = append(f.audits, *tx)
	return nil
}

func (f *fakeEngineRepo) SetUserPlanMirror(userID uint, plan string, isPremium bool) error {
	f.mirrors = append(f.mirrors, plan)
	return nil
}

func (f *fakeEngineRepo) LocalFallbackUserIDs(olderThan time.Time) ([]uint, error) {
	return nil, nil
}

func (f *fakeEngineRepo) SubscriptionByUser(userID uint) (*models.UserSubscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeEngineRepo) AppleTransactionsByUser(userID uint) ([]models.AppleTransaction, error) {
	return f.auditByUser[userID], nil
}

type fakeRefresher struct {
	refreshed []uint
	cleared   int
}

func (f *fakeRefresher) Refresh(userID uint) { f.refreshed = append(f.refreshed, userID) }
func (f *fakeRefresher) ClearAll()           { f.cleared++ }

func newTestEngine(gw *fakeGateway, v Validator, repo Repository) (*Engine, *cache.Memory, *fakeRefresher) {
	mem := cache.NewMemory()
	gate := &fakeRefresher{}
	engine := NewEngine(gw, v, repo, mem, gate, nil, Config{
		AllowedProducts: []string{testProductMonthly, testProductYearly},
		Supported:       true,
	})
	return engine, mem, gate
}

func TestInitializeIdempotent(t *testing.T) {
	gw := &fakeGateway{}
	engine, _, _ := newTestEngine(gw, nil, newFakeEngineRepo())

	h1, err := engine.Initialize(context.Background())
	require.NoError(t, err)
	h2, err := engine.Initialize(context.Background())
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, gw.connectCalls, "gateway connects once")
	require.NotNil(t, gw.onUpdate, "update listener registered")
	require.NotNil(t, gw.onError, "error listener registered")

	require.NoError(t, h1.Close())
	require.NoError(t, h1.Close())
	assert.Equal(t, 1, gw.disconnectCalls, "double close disconnects once")
}

func TestInitializeUnsupportedPlatform(t *testing.T) {
	gw := &fakeGateway{}
	engine := NewEngine(gw, nil, newFakeEngineRepo(), cache.NewMemory(), nil, nil, Config{
		AllowedProducts: []string{testProductMonthly},
		Supported:       false,
	})

	h, err := engine.Initialize(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Zero(t, gw.connectCalls)
	require.NoError(t, h.Close())
}

func TestPurchaseSubscriptionPending(t *testing.T) {
	engine, _, _ := newTestEngine(&fakeGateway{}, nil, newFakeEngineRepo())

	result, err := engine.PurchaseSubscription(context.Background(), testProductMonthly)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status)
}

func TestPurchaseSubscriptionRejectsUnknownProduct(t *testing.T) {
	engine, _, _ := newTestEngine(&fakeGateway{}, nil, newFakeEngineRepo())

	_, err := engine.PurchaseSubscription(context.Background(), "com.other.app.lifetime")
	assert.Error(t, err)
}

func TestPurchaseSubscriptionUserCancelIsNotAnError(t *testing.T) {
	gw := &fakeGateway{requestErr: &IAPError{Code: CodeUserCancelled, Message: "cancelled"}}
	engine, _, _ := newTestEngine(gw, nil, newFakeEngineRepo())

	result, err := engine.PurchaseSubscription(context.Background(), testProductMonthly)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, result.Status)
}

func TestPurchaseUpdateLocalFallbackGrant(t *testing.T) {
	gw := &fakeGateway{
		modernReceiptErr: errors.New("network unreachable"),
		legacyReceiptErr: errors.New("network unreachable"),
	}
	validator := &fakeValidator{}
	repo := newFakeEngineRepo()
	engine, mem, gate := newTestEngine(gw, validator, repo)

	// Pre-warm a cached tier view so invalidation is observable.
	mem.Set(cache.TierKey(7), "stale", cache.TTLLong)

	before := time.Now()
	engine.handlePurchaseUpdate(Purchase{
		TransactionID: "tx-1001",
		ProductID:     testProductMonthly,
		UserID:        7,
	})

	require.Len(t, repo.upserts, 1)
	sub := repo.upserts[0]
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, models.BillingCycleMonthly, sub.BillingCycle)
	assert.True(t, sub.LocalFallback, "unvalidated grant is flagged for the sweep")
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.WithinDuration(t, before.AddDate(0, 1, 0), *sub.CurrentPeriodEnd, time.Minute)

	assert.Equal(t, []string{"tx-1001"}, gw.finishCalls, "finished exactly once")
	assert.Zero(t, validator.calls, "no receipt means no validation call")

	_, cached := cache.Get[string](mem, cache.TierKey(7))
	assert.False(t, cached, "tier cache group invalidated")
	assert.Equal(t, []uint{7}, gate.refreshed)

	require.Len(t, repo.audits, 1)
	assert.False(t, repo.audits[0].Validated)
	assert.Equal(t, []string{models.TierPremium}, repo.mirrors)
}

func TestPurchaseUpdateValidationFailureStillGrants(t *testing.T) {
	gw := &fakeGateway{}
	validator := &fakeValidator{err: errors.New("function timed out")}
	repo := newFakeEngineRepo()
	engine, _, _ := newTestEngine(gw, validator, repo)

	engine.handlePurchaseUpdate(Purchase{
		TransactionID: "tx-1002",
		ProductID:     testProductYearly,
		UserID:        3,
		Receipt:       "base64-receipt",
	})

	require.Len(t, repo.upserts, 1)
	assert.True(t, repo.upserts[0].LocalFallback)
	assert.Equal(t, models.BillingCycleYearly, repo.upserts[0].BillingCycle)
	assert.Equal(t, 1, validator.calls)
}

func TestPurchaseUpdateValidatedGrant(t *testing.T) {
	gw := &fakeGateway{}
	validator := &fakeValidator{ok: true}
	repo := newFakeEngineRepo()
	engine, _, _ := newTestEngine(gw, validator, repo)

	expiry := time.Now().AddDate(0, 1, 0)
	engine.handlePurchaseUpdate(Purchase{
		TransactionID:         "tx-1003",
		OriginalTransactionID: "orig-1003",
		ProductID:             testProductMonthly,
		UserID:                5,
		Receipt:               "base64-receipt",
		ExpirationDate:        &expiry,
	})

	require.Len(t, repo.upserts, 1)
	sub := repo.upserts[0]
	assert.False(t, sub.LocalFallback)
	assert.Equal(t, "orig-1003", sub.ProviderSubscriptionID)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, sub.CurrentPeriodEnd.Equal(expiry))

	require.Len(t, repo.audits, 1)
	assert.True(t, repo.audits[0].Validated)
}

func TestPurchaseUpdateReceiptFallbackToModernFetch(t *testing.T) {
	gw := &fakeGateway{modernReceipt: "fetched-receipt"}
	validator := &fakeValidator{ok: true}
	repo := newFakeEngineRepo()
	engine, _, _ := newTestEngine(gw, validator, repo)

	engine.handlePurchaseUpdate(Purchase{
		TransactionID: "tx-1004",
		ProductID:     testProductMonthly,
		UserID:        4,
	})

	assert.Equal(t, 1, validator.calls, "fetched receipt reaches the validator")
	require.Len(t, repo.upserts, 1)
	assert.False(t, repo.upserts[0].LocalFallback)
}

func TestPurchaseUpdateUnknownUserFinishesAndAborts(t *testing.T) {
	gw := &fakeGateway{}
	repo := newFakeEngineRepo()
	engine, _, _ := newTestEngine(gw, nil, repo)

	engine.handlePurchaseUpdate(Purchase{
		TransactionID:         "tx-1005",
		OriginalTransactionID: "orig-unknown",
		ProductID:             testProductMonthly,
	})

	assert.Empty(t, repo.upserts, "no entitlement without a user")
	assert.Equal(t, []string{"tx-1005"}, gw.finishCalls, "still finished")
}

func TestPurchaseUpdateResolvesUserFromAuditTrail(t *testing.T) {
	gw := &fakeGateway{}
	repo := newFakeEngineRepo()
	repo.userByTx["orig-77"] = 77
	engine, _, _ := newTestEngine(gw, nil, repo)

	engine.handlePurchaseUpdate(Purchase{
		TransactionID:         "tx-1006",
		OriginalTransactionID: "orig-77",
		ProductID:             testProductMonthly,
	})

	require.Len(t, repo.upserts, 1)
	assert.Equal(t, uint(77), repo.upserts[0].UserID)
}

func TestRestorePurchasesEmpty(t *testing.T) {
	gw := &fakeGateway{available: []Purchase{}}
	engine, _, _ := newTestEngine(gw, nil, newFakeEngineRepo())

	result := engine.RestorePurchases(context.Background(), 9)
	assert.True(t, result.Success)
	assert.NotNil(t, result.Purchases)
	assert.Empty(t, result.Purchases)
	assert.Empty(t, result.Error)
}

func TestRestorePurchasesGatewayFailure(t *testing.T) {
	gw := &fakeGateway{availableErr: errors.New("store unreachable")}
	engine, _, _ := newTestEngine(gw, nil, newFakeEngineRepo())

	result := engine.RestorePurchases(context.Background(), 9)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, result.Purchases)
}

func TestRestorePurchasesReplaysOwnedTransactions(t *testing.T) {
	gw := &fakeGateway{available: []Purchase{
		{TransactionID: "tx-2001", ProductID: testProductMonthly, UserID: 9},
		{TransactionID: "tx-2002", ProductID: "com.other.app.consumable", UserID: 9},
	}}
	repo := newFakeEngineRepo()
	engine, _, _ := newTestEngine(gw, nil, repo)

	result := engine.RestorePurchases(context.Background(), 9)
	require.True(t, result.Success)
	assert.Len(t, result.Purchases, 1, "foreign products are skipped")
	assert.Len(t, repo.upserts, 1)
}

func TestRestorePurchasesMergesAuditRows(t *testing.T) {
	// Production gateway has no owned-purchases roundtrip; restores must come
	// from the audit trail.
	gw := &fakeGateway{available: []Purchase{}}
	repo := newFakeEngineRepo()
	expiry := time.Now().AddDate(0, 1, 0)
	repo.auditByUser[9] = []models.AppleTransaction{
		{UserID: 9, TransactionID: "tx-4001", OriginalTransactionID: "orig-4001", ProductID: testProductMonthly, ExpirationDate: &expiry},
		{UserID: 9, TransactionID: "tx-4002", ProductID: "com.other.app.consumable"},
	}
	engine, _, _ := newTestEngine(gw, nil, repo)

	result := engine.RestorePurchases(context.Background(), 9)
	require.True(t, result.Success)
	require.Len(t, result.Purchases, 1, "foreign audit products are skipped")
	assert.Equal(t, "tx-4001", result.Purchases[0].TransactionID)
	assert.Equal(t, "orig-4001", result.Purchases[0].OriginalTransactionID)
	assert.Equal(t, uint(9), result.Purchases[0].UserID)
	assert.Empty(t, repo.upserts, "audit rows are merged, not replayed")
}

func TestRestorePurchasesDeduplicatesAuditRows(t *testing.T) {
	gw := &fakeGateway{available: []Purchase{
		{TransactionID: "tx-5001", ProductID: testProductMonthly, UserID: 9},
	}}
	repo := newFakeEngineRepo()
	repo.auditByUser[9] = []models.AppleTransaction{
		{UserID: 9, TransactionID: "tx-5001", ProductID: testProductMonthly},
		{UserID: 9, TransactionID: "tx-5002", ProductID: testProductYearly},
	}
	engine, _, _ := newTestEngine(gw, nil, repo)

	result := engine.RestorePurchases(context.Background(), 9)
	require.True(t, result.Success)
	require.Len(t, result.Purchases, 2)
	assert.Equal(t, "tx-5001", result.Purchases[0].TransactionID)
	assert.Equal(t, "tx-5002", result.Purchases[1].TransactionID)
	assert.Len(t, repo.upserts, 1, "only the gateway delivery is replayed")
}

func TestRestorePurchasesWithoutUserSkipsAuditTrail(t *testing.T) {
	gw := &fakeGateway{available: []Purchase{}}
	repo := newFakeEngineRepo()
	repo.auditByUser[9] = []models.AppleTransaction{
		{UserID: 9, TransactionID: "tx-6001", ProductID: testProductMonthly},
	}
	engine, _, _ := newTestEngine(gw, nil, repo)

	result := engine.RestorePurchases(context.Background(), 0)
	require.True(t, result.Success)
	assert.Empty(t, result.Purchases, "no user scope, no audit merge")
}

func TestErrorHandlerAlreadyOwnedRestores(t *testing.T) {
	gw := &fakeGateway{available: []Purchase{
		{TransactionID: "tx-3001", ProductID: testProductMonthly, UserID: 11},
	}}
	repo := newFakeEngineRepo()
	engine, _, _ := newTestEngine(gw, nil, repo)

	engine.handlePurchaseError(&IAPError{Code: CodeAlreadyOwned, Message: "already owned"})

	require.Len(t, repo.upserts, 1, "already-owned triggers a silent restore")
	assert.Equal(t, uint(11), repo.upserts[0].UserID)
}

func TestCycleFromProductID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "com.subtrack.premium.monthly.v1", want: models.BillingCycleMonthly},
		{in: "com.subtrack.premium.yearly.v1", want: models.BillingCycleYearly},
		{in: "PREMIUM_MONTHLY", want: models.BillingCycleMonthly},
		{in: "com.subtrack.premium.lifetime", want: models.BillingCycleUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CycleFromProductID(tt.in), tt.in)
	}
}
