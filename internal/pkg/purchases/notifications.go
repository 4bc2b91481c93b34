package purchases

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// App Store Server Notifications V2 deliver a JWS whose payload wraps a
// second JWS with the transaction itself. The payloads are decoded here;
// authenticity is established downstream by the receipt validation step, the
// same trust model as a device-relayed transaction.

type notificationClaims struct {
	NotificationType string `json:"notificationType"`
	Subtype          string `json:"subtype"`
	Data             struct {
		Environment           string `json:"environment"`
		SignedTransactionInfo string `json:"signedTransactionInfo"`
		SignedRenewalInfo     string `json:"signedRenewalInfo"`
	} `json:"data"`
	jwt.RegisteredClaims
}

type transactionClaims struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	ProductID             string `json:"productId"`
	PurchaseDateMs        int64  `json:"purchaseDate"`
	ExpiresDateMs         int64  `json:"expiresDate"`
	Environment           string `json:"environment"`
	AppAccountToken       string `json:"appAccountToken"`
	jwt.RegisteredClaims
}

// DecodeNotification unpacks a V2 signed payload into a Purchase ready for
// the reconciliation path.
func DecodeNotification(signedPayload string) (*Purchase, error) {
	var notification notificationClaims
	if _, _, err := jwt.NewParser().ParseUnverified(signedPayload, &notification); err != nil {
		return nil, fmt.Errorf("error decoding notification payload: %w", err)
	}
	if notification.Data.SignedTransactionInfo == "" {
		return nil, fmt.Errorf("notification %s carries no transaction", notification.NotificationType)
	}

	purchase, err := DecodeSignedTransaction(notification.Data.SignedTransactionInfo)
	if err != nil {
		return nil, err
	}
	purchase.NotificationType = notification.NotificationType
	if purchase.Environment == "" {
		purchase.Environment = notification.Data.Environment
	}
	// Carry the signed payload as the embedded receipt for validation.
	purchase.Receipt = notification.Data.SignedTransactionInfo
	return purchase, nil
}

// DecodeSignedTransaction unpacks a single signed transaction JWS, as
// delivered inside notifications or relayed from a device.
func DecodeSignedTransaction(signedTransaction string) (*Purchase, error) {
	var claims transactionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(signedTransaction, &claims); err != nil {
		return nil, fmt.Errorf("error decoding transaction payload: %w", err)
	}
	if claims.TransactionID == "" {
		return nil, fmt.Errorf("transaction payload has no transaction id")
	}

	purchase := &Purchase{
		TransactionID:         claims.TransactionID,
		OriginalTransactionID: claims.OriginalTransactionID,
		ProductID:             claims.ProductID,
		Environment:           claims.Environment,
		PurchaseDate:          msTime(claims.PurchaseDateMs),
		ExpirationDate:        msTime(claims.ExpiresDateMs),
	}
	return purchase, nil
}

func msTime(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}
