package purchases

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/subtrack-app/subtrack/app/models"
	"github.com/subtrack-app/subtrack/internal/pkg/cache"
	"github.com/subtrack-app/subtrack/internal/pkg/metrics/counter"
)

// Refresher invalidates the limit gate's cached state after an entitlement
// write.
type Refresher interface {
	Refresh(userID uint)
	ClearAll()
}

// Archiver stores raw payloads for audit. Failures are logged, never
// propagated; archival must not block reconciliation.
type Archiver interface {
	Archive(ctx context.Context, provider string, userID uint, payload []byte) error
}

// Engine owns the billing-gateway connection and turns store transactions
// into entitlement writes. Exactly one listener pair is registered per
// process; Initialize hands out the handle that owns it.
type Engine struct {
	gateway   Gateway
	validator Validator
	repo      Repository
	cache     *cache.Memory
	gate      Refresher
	archive   Archiver

	allowedProducts map[string]bool
	productOrder    []string
	supported       bool

	mu          sync.Mutex
	initialized bool
	handle      *Handle
}

// Config carries the engine's static settings.
type Config struct {
	// AllowedProducts is the purchasable product id allow-list.
	AllowedProducts []string
	// Supported disables the engine entirely on platforms without a billing
	// gateway; Initialize becomes a no-op.
	Supported bool
}

// NewEngine wires the engine with its collaborators. validator, gate and
// archive may be nil; the engine degrades to local grants, no gate refresh
// and no archival respectively.
func NewEngine(gateway Gateway, validator Validator, repo Repository, mem *cache.Memory, gate Refresher, archive Archiver, cfg Config) *Engine {
	allowed := make(map[string]bool, len(cfg.AllowedProducts))
	for _, id := range cfg.AllowedProducts {
		allowed[id] = true
	}
	return &Engine{
		gateway:         gateway,
		validator:       validator,
		repo:            repo,
		cache:           mem,
		gate:            gate,
		archive:         archive,
		allowedProducts: allowed,
		productOrder:    append([]string(nil), cfg.AllowedProducts...),
		supported:       cfg.Supported,
	}
}

// Handle scopes ownership of the gateway connection. Close disconnects;
// closing twice is safe.
type Handle struct {
	engine *Engine
}

// Close releases the gateway connection.
func (h *Handle) Close() error {
	if h == nil || h.engine == nil {
		return nil
	}
	return h.engine.Disconnect()
}

// Initialize opens the gateway connection and registers the listener pair.
// Calling it again returns the existing handle without reconnecting.
func (e *Engine) Initialize(ctx context.Context) (*Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.supported {
		log.Infof("[Purchases] billing gateway not supported on this platform, engine disabled")
		return &Handle{}, nil
	}
	if e.initialized {
		return e.handle, nil
	}

	if err := e.gateway.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting billing gateway: %w", err)
	}
	e.gateway.SetListeners(e.handlePurchaseUpdate, e.handlePurchaseError)

	e.initialized = true
	e.handle = &Handle{engine: e}
	log.Infof("[Purchases] billing gateway connected")
	return e.handle, nil
}

// Disconnect releases the gateway connection. Idempotent.
func (e *Engine) Disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil
	}
	e.initialized = false
	e.handle = nil
	return e.gateway.Disconnect()
}

// Products returns the normalized store products for the allow-list.
func (e *Engine) Products(ctx context.Context) ([]Product, error) {
	return e.gateway.Products(ctx, e.productOrder)
}

// PurchaseSubscription starts the purchase flow for a product. The returned
// status is pending; the entitlement flips when the transaction lands in the
// update handler. A user cancelling the payment sheet is a normal outcome.
func (e *Engine) PurchaseSubscription(ctx context.Context, productID string) (*Result, error) {
	if !e.allowedProducts[productID] {
		return nil, fmt.Errorf("product %q is not purchasable", productID)
	}

	if err := e.gateway.RequestPurchase(ctx, productID); err != nil {
		if IsUserCancelled(err) {
			return &Result{Status: StatusCancelled, ProductID: productID}, nil
		}
		return nil, err
	}
	return &Result{Status: StatusPending, ProductID: productID}, nil
}

// handlePurchaseUpdate reconciles one delivered transaction. The transaction
// is finished unconditionally so the store stops redelivering it; entitlement
// is granted even when the validation channel is down, flagged for the
// correction sweep.
func (e *Engine) handlePurchaseUpdate(purchase Purchase) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	defer func() {
		if err := e.gateway.FinishTransaction(ctx, purchase.TransactionID); err != nil {
			log.Errorf("[Purchases] error finishing transaction %s: %v", purchase.TransactionID, err)
		}
	}()

	userID, ok := e.resolveUser(&purchase)
	if !ok {
		log.Warnf("[Purchases] no user for transaction %s (original %s), skipping",
			purchase.TransactionID, purchase.OriginalTransactionID)
		return
	}

	rawPayload, err := json.Marshal(purchase)
	if err != nil {
		rawPayload = []byte("{}")
	}
	e.archivePayload(ctx, userID, rawPayload)

	receipt := e.fetchReceipt(ctx, &purchase)
	validated := e.validateReceipt(ctx, receipt, userID)

	if err := e.grantEntitlement(userID, &purchase, validated, rawPayload); err != nil {
		log.Errorf("[Purchases] error granting entitlement for user %d: %v", userID, err)
		return
	}

	e.invalidateEntitlementCaches(userID)

	if validated {
		_ = counter.AddPurchaseValidated()
	} else {
		_ = counter.AddFallbackGrant()
	}

	log.Infof("[Purchases] reconciled transaction %s for user %d (validated=%t)",
		purchase.TransactionID, userID, validated)
}

// handlePurchaseError reacts to gateway-side failures. An already-owned
// product triggers a silent restore; everything else is only logged.
func (e *Engine) handlePurchaseError(iapErr *IAPError) {
	if iapErr == nil {
		return
	}
	switch iapErr.Code {
	case CodeUserCancelled:
		log.Infof("[Purchases] purchase cancelled by user")
	case CodeAlreadyOwned:
		log.Infof("[Purchases] product already owned, restoring purchases")
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		// No session on this path; the replayed purchases resolve their user
		// through the audit trail.
		e.RestorePurchases(ctx, 0)
	default:
		log.Errorf("[Purchases] gateway error %s: %s", iapErr.Code, iapErr.Message)
	}
}

// RestorePurchases replays the store's owned transactions through the
// reconciliation path and merges the user's audit trail into the result; the
// App Store gateway has no owned-purchases roundtrip, so the trail is where
// production restores come from. It never returns an error; failures are
// reported in the result so clients can always render something.
func (e *Engine) RestorePurchases(ctx context.Context, userID uint) *RestoreResult {
	available, err := e.gateway.AvailablePurchases(ctx)
	if err != nil {
		log.Errorf("[Purchases] error listing available purchases: %v", err)
		return &RestoreResult{
			Success:   false,
			Purchases: []Purchase{},
			Error:     "could not reach the store, please try again later",
		}
	}

	seen := make(map[string]bool, len(available))
	restored := make([]Purchase, 0, len(available))
	for _, purchase := range available {
		if !e.allowedProducts[purchase.ProductID] {
			continue
		}
		e.handlePurchaseUpdate(purchase)
		seen[purchase.TransactionID] = true
		restored = append(restored, purchase)
	}

	restored = append(restored, e.auditPurchases(userID, seen)...)
	return &RestoreResult{Success: true, Purchases: restored}
}

// auditPurchases converts the user's audit rows into the purchase shape,
// skipping transactions the gateway already delivered. Audit rows were
// reconciled when they landed and are not replayed through the update
// handler.
func (e *Engine) auditPurchases(userID uint, seen map[string]bool) []Purchase {
	if userID == 0 {
		return nil
	}
	rows, err := e.repo.AppleTransactionsByUser(userID)
	if err != nil {
		log.Warnf("[Purchases] error loading audit trail for user %d: %v", userID, err)
		return nil
	}

	merged := make([]Purchase, 0, len(rows))
	for _, row := range rows {
		if seen[row.TransactionID] || !e.allowedProducts[row.ProductID] {
			continue
		}
		seen[row.TransactionID] = true
		merged = append(merged, Purchase{
			TransactionID:         row.TransactionID,
			OriginalTransactionID: row.OriginalTransactionID,
			ProductID:             row.ProductID,
			PurchaseDate:          row.PurchaseDate,
			ExpirationDate:        row.ExpirationDate,
			Environment:           row.Environment,
			NotificationType:      row.NotificationType,
			UserID:                userID,
		})
	}
	return merged
}

// SyncSubscriptionStatus refreshes entitlement state from the store. Reports
// whether the sync completed.
func (e *Engine) SyncSubscriptionStatus(ctx context.Context, userID uint) bool {
	result := e.RestorePurchases(ctx, userID)
	return result.Success
}

func (e *Engine) resolveUser(purchase *Purchase) (uint, bool) {
	if purchase.UserID != 0 {
		return purchase.UserID, true
	}

	lookupID := purchase.OriginalTransactionID
	if lookupID == "" {
		lookupID = purchase.TransactionID
	}
	if lookupID == "" {
		return 0, false
	}

	userID, err := e.repo.UserIDByOriginalTransaction(lookupID)
	if err != nil {
		return 0, false
	}
	return userID, true
}

// fetchReceipt tries the three receipt sources in order of cost: embedded
// payload, per-transaction server API, then the legacy whole-app receipt.
// Every tier is best-effort; an empty result means validation is skipped.
func (e *Engine) fetchReceipt(ctx context.Context, purchase *Purchase) string {
	if purchase.Receipt != "" {
		return purchase.Receipt
	}

	if purchase.TransactionID != "" {
		receipt, err := e.gateway.TransactionReceipt(ctx, purchase.TransactionID)
		if err == nil && receipt != "" {
			return receipt
		}
		if err != nil {
			log.Warnf("[Purchases] modern receipt fetch failed for %s: %v", purchase.TransactionID, err)
		}
	}

	receipt, err := e.gateway.LegacyReceipt(ctx)
	if err != nil {
		log.Warnf("[Purchases] legacy receipt fetch failed: %v", err)
		return ""
	}
	return receipt
}

func (e *Engine) validateReceipt(ctx context.Context, receipt string, userID uint) bool {
	if receipt == "" || e.validator == nil {
		return false
	}
	ok, err := e.validator.ValidateReceipt(ctx, receipt, userID)
	if err != nil {
		log.Warnf("[Purchases] receipt validation unavailable for user %d: %v", userID, err)
		_ = counter.AddValidationFailure()
		return false
	}
	if !ok {
		log.Warnf("[Purchases] receipt validation rejected for user %d", userID)
		_ = counter.AddValidationFailure()
	}
	return ok
}

// grantEntitlement upserts the premium subscription plus audit and mirror
// rows. An unvalidated grant is flagged LocalFallback for the correction
// sweep.
func (e *Engine) grantEntitlement(userID uint, purchase *Purchase, validated bool, rawPayload []byte) error {
	premium, err := e.repo.GetTierByName(models.TierPremium)
	if err != nil {
		return fmt.Errorf("premium tier lookup failed: %w", err)
	}

	cycle := CycleFromProductID(purchase.ProductID)

	periodStart := time.Now()
	if purchase.PurchaseDate != nil {
		periodStart = *purchase.PurchaseDate
	}
	periodEnd := fallbackPeriodEnd(periodStart, cycle)
	if purchase.ExpirationDate != nil {
		periodEnd = *purchase.ExpirationDate
	}

	providerSubID := purchase.OriginalTransactionID
	if providerSubID == "" {
		providerSubID = purchase.TransactionID
	}

	sub := &models.UserSubscription{
		UserID:                 userID,
		TierID:                 premium.ID,
		BillingCycle:           cycle,
		Status:                 models.SubscriptionStatusActive,
		CurrentPeriodStart:     &periodStart,
		CurrentPeriodEnd:       &periodEnd,
		CancelAtPeriodEnd:      false,
		PaymentProvider:        models.PaymentProviderApple,
		ProviderSubscriptionID: providerSubID,
		LocalFallback:          !validated,
		RawPayloadJSON:         string(rawPayload),
	}
	if err := e.repo.UpsertSubscription(sub); err != nil {
		return fmt.Errorf("subscription upsert failed: %w", err)
	}

	audit := &models.AppleTransaction{
		UserID:                userID,
		TransactionID:         purchase.TransactionID,
		OriginalTransactionID: purchase.OriginalTransactionID,
		ProductID:             purchase.ProductID,
		PurchaseDate:          &periodStart,
		ExpirationDate:        &periodEnd,
		NotificationType:      purchase.NotificationType,
		Environment:           purchase.Environment,
		Validated:             validated,
	}
	if err := e.repo.RecordAppleTransaction(audit); err != nil {
		return fmt.Errorf("audit insert failed: %w", err)
	}

	if err := e.repo.SetUserPlanMirror(userID, models.TierPremium, true); err != nil {
		return fmt.Errorf("profile mirror update failed: %w", err)
	}
	return nil
}

// invalidateEntitlementCaches drops the tier and limit views concurrently.
// Invalidation is not transactionally linked to the DB write; readers
// re-fetch on the next call.
func (e *Engine) invalidateEntitlementCaches(userID uint) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.cache.InvalidateUser(userID)
	}()

	if e.gate != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.gate.Refresh(userID)
		}()
	}
	wg.Wait()
}

func (e *Engine) archivePayload(ctx context.Context, userID uint, payload []byte) {
	if e.archive == nil {
		return
	}
	if err := e.archive.Archive(ctx, models.PaymentProviderApple, userID, payload); err != nil {
		log.Warnf("[Purchases] receipt archival failed for user %d: %v", userID, err)
	}
}
