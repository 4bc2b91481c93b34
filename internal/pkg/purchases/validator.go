package purchases

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/subtrack-app/subtrack/internal/pkg/env"
)

// Validator confirms a receipt server-side. A false result with a nil error
// is a conclusive rejection; an error means the channel was unavailable and
// the caller may fall back to a local grant.
type Validator interface {
	ValidateReceipt(ctx context.Context, receiptData string, userID uint) (bool, error)
}

// HTTPValidator calls the remote validation function.
type HTTPValidator struct {
	httpClient  *http.Client
	functionURL string
	bearerToken string
}

// NewHTTPValidator builds a validator against an explicit endpoint.
func NewHTTPValidator(functionURL, bearerToken string) *HTTPValidator {
	return &HTTPValidator{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		functionURL: functionURL,
		bearerToken: bearerToken,
	}
}

// NewHTTPValidatorFromEnv reads VALIDATE_FUNCTION_URL and
// VALIDATE_FUNCTION_TOKEN. Returns nil when no endpoint is configured.
func NewHTTPValidatorFromEnv() *HTTPValidator {
	url := env.GetEnv("VALIDATE_FUNCTION_URL", "")
	if url == "" {
		return nil
	}
	return NewHTTPValidator(url, env.GetEnv("VALIDATE_FUNCTION_TOKEN", ""))
}

type validateRequest struct {
	ReceiptData string `json:"receiptData"`
	UserID      uint   `json:"userId"`
}

type validateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (v *HTTPValidator) ValidateReceipt(ctx context.Context, receiptData string, userID uint) (bool, error) {
	reqBody, err := json.Marshal(validateRequest{
		ReceiptData: receiptData,
		UserID:      userID,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.functionURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if v.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+v.bearerToken)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return false, fmt.Errorf("validation function failed with status %d", resp.StatusCode)
	}

	var payload validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, fmt.Errorf("error decoding validation response: %w", err)
	}
	if payload.Success {
		return true, nil
	}
	// A structured rejection is conclusive, not a channel failure.
	return false, nil
}
