package purchases

import "context"

// UpdateListener receives completed or renewed store transactions.
type UpdateListener func(purchase Purchase)

// ErrorListener receives gateway-side purchase failures.
type ErrorListener func(iapErr *IAPError)

// Gateway is the platform billing surface the engine drives. The concrete
// implementation is the App Store client; tests substitute a fake.
type Gateway interface {
	// Connect opens the gateway connection. Safe to call once per process.
	Connect(ctx context.Context) error
	// Disconnect releases the connection. Idempotent.
	Disconnect() error

	// Products fetches store metadata for the given product ids.
	Products(ctx context.Context, productIDs []string) ([]Product, error)

	// RequestPurchase starts the purchase flow for a product. The outcome
	// arrives through the registered listeners, not the return value; a
	// synchronous *IAPError is only returned when the flow could not start.
	RequestPurchase(ctx context.Context, productID string) error

	// AvailablePurchases lists transactions the store still considers owned.
	AvailablePurchases(ctx context.Context) ([]Purchase, error)

	// FinishTransaction acknowledges a delivered transaction so the store
	// stops redelivering it.
	FinishTransaction(ctx context.Context, transactionID string) error

	// TransactionReceipt fetches the signed payload for a single transaction
	// through the modern server API.
	TransactionReceipt(ctx context.Context, transactionID string) (string, error)

	// LegacyReceipt fetches the whole-app receipt for the legacy
	// verification endpoint.
	LegacyReceipt(ctx context.Context) (string, error)

	// SetListeners registers the single update and error listener pair.
	// Later calls replace the previous pair.
	SetListeners(onUpdate UpdateListener, onError ErrorListener)
}
