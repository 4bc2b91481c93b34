package purchases

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signClaims(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func TestDecodeNotification(t *testing.T) {
	purchaseAt := time.Now().Truncate(time.Millisecond)
	expiresAt := purchaseAt.AddDate(0, 1, 0)

	signedTx := signClaims(t, jwt.MapClaims{
		"transactionId":         "tx-5001",
		"originalTransactionId": "orig-5001",
		"productId":             "com.subtrack.premium.monthly.v1",
		"purchaseDate":          purchaseAt.UnixMilli(),
		"expiresDate":           expiresAt.UnixMilli(),
		"environment":           "Sandbox",
	})
	signedPayload := signClaims(t, jwt.MapClaims{
		"notificationType": "DID_RENEW",
		"data": map[string]any{
			"environment":           "Sandbox",
			"signedTransactionInfo": signedTx,
		},
	})

	purchase, err := DecodeNotification(signedPayload)
	require.NoError(t, err)

	assert.Equal(t, "tx-5001", purchase.TransactionID)
	assert.Equal(t, "orig-5001", purchase.OriginalTransactionID)
	assert.Equal(t, "com.subtrack.premium.monthly.v1", purchase.ProductID)
	assert.Equal(t, "DID_RENEW", purchase.NotificationType)
	assert.Equal(t, "Sandbox", purchase.Environment)
	assert.Equal(t, signedTx, purchase.Receipt, "inner payload doubles as the receipt")
	require.NotNil(t, purchase.ExpirationDate)
	assert.WithinDuration(t, expiresAt, *purchase.ExpirationDate, time.Second)
}

func TestDecodeNotificationWithoutTransaction(t *testing.T) {
	signedPayload := signClaims(t, jwt.MapClaims{
		"notificationType": "TEST",
	})
	_, err := DecodeNotification(signedPayload)
	assert.Error(t, err)
}

func TestDecodeSignedTransactionRejectsGarbage(t *testing.T) {
	_, err := DecodeSignedTransaction("not-a-jws")
	assert.Error(t, err)
}
