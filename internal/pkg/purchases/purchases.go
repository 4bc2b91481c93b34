package purchases

import (
	"fmt"
	"strings"
	"time"

	"github.com/subtrack-app/subtrack/app/models"
)

// IAP error codes as delivered by the store gateway.
const (
	CodeUserCancelled  = "E_USER_CANCELLED"
	CodeAlreadyOwned   = "E_ALREADY_OWNED"
	CodeNetworkError   = "E_NETWORK_ERROR"
	CodeItemUnavailabe = "E_ITEM_UNAVAILABLE"
	CodeUnknown        = "E_UNKNOWN"
)

// IAPError is a coded gateway error. A user cancelling the payment sheet is
// delivered through this type but is not treated as a failure by the engine.
type IAPError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *IAPError) Error() string {
	return fmt.Sprintf("iap error %s: %s", e.Code, e.Message)
}

// IsUserCancelled reports whether err is the user dismissing the payment
// sheet, which callers must treat as a normal outcome.
func IsUserCancelled(err error) bool {
	iapErr, ok := err.(*IAPError)
	return ok && iapErr.Code == CodeUserCancelled
}

// Purchase is one store transaction as delivered by the gateway. UserID is
// set when the event arrived through an authenticated relay; otherwise the
// engine resolves the user from the original transaction id.
type Purchase struct {
	TransactionID         string     `json:"transaction_id"`
	OriginalTransactionID string     `json:"original_transaction_id"`
	ProductID             string     `json:"product_id"`
	PurchaseDate          *time.Time `json:"purchase_date,omitempty"`
	ExpirationDate        *time.Time `json:"expiration_date,omitempty"`
	Environment           string     `json:"environment"`
	NotificationType      string     `json:"notification_type,omitempty"`
	// Receipt is the embedded receipt payload, when the event carried one.
	Receipt string `json:"receipt,omitempty"`
	UserID  uint   `json:"user_id,omitempty"`
}

// Product is the normalized store product view returned to clients.
type Product struct {
	ID             string `json:"id"`
	Price          string `json:"price"`
	Currency       string `json:"currency"`
	LocalizedPrice string `json:"localized_price"`
	Period         string `json:"period"`
}

// Purchase flow statuses returned by PurchaseSubscription. The actual
// entitlement flip happens asynchronously in the update handler.
const (
	StatusPending   = "pending"
	StatusCancelled = "cancelled"
)

// Result is the immediate outcome of a purchase request.
type Result struct {
	Status    string `json:"status"`
	ProductID string `json:"product_id"`
}

// RestoreResult is the never-failing outcome of a restore attempt. Error
// carries a display message when Success is false.
type RestoreResult struct {
	Success   bool       `json:"success"`
	Purchases []Purchase `json:"purchases"`
	Error     string     `json:"error,omitempty"`
}

// CycleFromProductID derives the billing cycle from the product id naming
// convention (segments containing "monthly" or "yearly").
func CycleFromProductID(productID string) string {
	lower := strings.ToLower(productID)
	switch {
	case strings.Contains(lower, models.BillingCycleMonthly):
		return models.BillingCycleMonthly
	case strings.Contains(lower, models.BillingCycleYearly):
		return models.BillingCycleYearly
	default:
		return models.BillingCycleUnknown
	}
}

// fallbackPeriodEnd computes the local grant window for a cycle when remote
// validation is unavailable.
func fallbackPeriodEnd(start time.Time, cycle string) time.Time {
	if cycle == models.BillingCycleYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
