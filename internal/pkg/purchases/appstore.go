package purchases

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/subtrack-app/subtrack/internal/pkg/env"
)

const (
	appStoreProductionURL = "https://api.storekit.itunes.apple.com"
	appStoreSandboxURL    = "https://api.storekit-sandbox.itunes.apple.com"

	verifyReceiptProductionURL = "https://buy.itunes.apple.com/verifyReceipt"
	verifyReceiptSandboxURL    = "https://sandbox.itunes.apple.com/verifyReceipt"
)

// AppStoreClient implements Gateway over the App Store Server API plus the
// legacy verifyReceipt endpoint. Purchase events do not stream over a socket;
// they are pushed in through Dispatch by the notification receiver and the
// device relay endpoint.
type AppStoreClient struct {
	httpClient   *http.Client
	baseURL      string
	verifyURL    string
	bearerToken  string
	sharedSecret string

	mu        sync.Mutex
	connected bool
	onUpdate  UpdateListener
	onError   ErrorListener
}

// NewAppStoreClient builds a client from explicit settings.
func NewAppStoreClient(baseURL, verifyURL, bearerToken, sharedSecret string) *AppStoreClient {
	return &AppStoreClient{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL:      baseURL,
		verifyURL:    verifyURL,
		bearerToken:  bearerToken,
		sharedSecret: sharedSecret,
	}
}

// NewAppStoreClientFromEnv reads APPSTORE_* settings. The sandbox endpoints
// are used unless APPSTORE_ENVIRONMENT=production.
func NewAppStoreClientFromEnv() *AppStoreClient {
	baseURL := appStoreSandboxURL
	verifyURL := verifyReceiptSandboxURL
	if env.GetEnv("APPSTORE_ENVIRONMENT", "sandbox") == "production" {
		baseURL = appStoreProductionURL
		verifyURL = verifyReceiptProductionURL
	}
	return NewAppStoreClient(
		baseURL,
		verifyURL,
		env.GetEnv("APPSTORE_API_TOKEN", ""),
		env.GetEnv("APPSTORE_SHARED_SECRET", ""),
	)
}

func (c *AppStoreClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *AppStoreClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *AppStoreClient) SetListeners(onUpdate UpdateListener, onError ErrorListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = onUpdate
	c.onError = onError
}

// Dispatch feeds a purchase event into the registered update listener and
// reports whether it was delivered. Events arriving before Initialize
// completes are dropped; callers record the miss so the event can be
// replayed.
func (c *AppStoreClient) Dispatch(purchase Purchase) bool {
	c.mu.Lock()
	listener := c.onUpdate
	connected := c.connected
	c.mu.Unlock()
	if !connected || listener == nil {
		return false
	}
	listener(purchase)
	return true
}

// DispatchError feeds a gateway failure into the registered error listener.
func (c *AppStoreClient) DispatchError(iapErr *IAPError) {
	c.mu.Lock()
	listener := c.onError
	connected := c.connected
	c.mu.Unlock()
	if !connected || listener == nil {
		return
	}
	listener(iapErr)
}

// Products returns the configured product metadata. The App Store Server API
// has no product-listing endpoint; pricing display data lives in server
// configuration and is normalized here.
func (c *AppStoreClient) Products(ctx context.Context, productIDs []string) ([]Product, error) {
	products := make([]Product, 0, len(productIDs))
	for _, id := range productIDs {
		products = append(products, Product{
			ID:     id,
			Period: CycleFromProductID(id),
		})
	}
	return products, nil
}

// RequestPurchase cannot start a StoreKit payment sheet from the server. The
// flow is started on the device; this reports the request as accepted so the
// engine can answer pending.
func (c *AppStoreClient) RequestPurchase(ctx context.Context, productID string) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return &IAPError{Code: CodeNetworkError, Message: "billing gateway not connected"}
	}
	return nil
}

// AvailablePurchases returns an empty slice; the App Store Server API has no
// owned-purchases roundtrip. Restores are served from the audit rows the
// engine merges in. Kept on the interface so fakes can exercise restore logic.
func (c *AppStoreClient) AvailablePurchases(ctx context.Context) ([]Purchase, error) {
	return []Purchase{}, nil
}

// FinishTransaction acknowledges consumption through the server API.
func (c *AppStoreClient) FinishTransaction(ctx context.Context, transactionID string) error {
	// App Store server-side transactions need no explicit finish call; the
	// notification stream is the source of truth. Treated as a no-op.
	return nil
}

// TransactionReceipt fetches the signed transaction payload by id.
func (c *AppStoreClient) TransactionReceipt(ctx context.Context, transactionID string) (string, error) {
	url := fmt.Sprintf("%s/inApps/v1/transactions/%s", c.baseURL, transactionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("app store transaction lookup failed with status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		SignedTransactionInfo string `json:"signedTransactionInfo"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("error decoding app store response: %w", err)
	}
	if payload.SignedTransactionInfo == "" {
		return "", fmt.Errorf("app store returned no transaction payload for %s", transactionID)
	}
	return payload.SignedTransactionInfo, nil
}

// LegacyReceipt asks the legacy verifyReceipt endpoint to echo back the
// latest receipt for the shared secret's app.
func (c *AppStoreClient) LegacyReceipt(ctx context.Context) (string, error) {
	reqBody, err := json.Marshal(map[string]string{
		"password": c.sharedSecret,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("verifyReceipt failed with status %d", resp.StatusCode)
	}

	var payload struct {
		Status            int    `json:"status"`
		LatestReceipt     string `json:"latest_receipt"`
		LatestReceiptInfo any    `json:"latest_receipt_info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("error decoding verifyReceipt response: %w", err)
	}
	if payload.Status != 0 || payload.LatestReceipt == "" {
		return "", fmt.Errorf("verifyReceipt returned status %d", payload.Status)
	}
	return payload.LatestReceipt, nil
}
