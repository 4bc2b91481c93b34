package limits

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/subtrack-app/subtrack/app/models"
	"github.com/subtrack-app/subtrack/internal/pkg/env"
)

// AuthorizationClient answers "may this user create one more <kind>". The
// remote implementation calls the authorization function; the DB
// implementation is used in-process when no function URL is configured.
type AuthorizationClient interface {
	CanUserAdd(ctx context.Context, userID uint, kind ResourceKind) (*Status, error)
}

// HTTPAuthorizationClient calls the remote authorization functions
// can_user_add_<kind> over HTTPS.
type HTTPAuthorizationClient struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
}

// NewAuthorizationClientFromEnv prefers the remote authorization functions
// when AUTHZ_FUNCTION_URL is configured and answers from the database
// otherwise.
func NewAuthorizationClientFromEnv(db *gorm.DB) AuthorizationClient {
	if c := NewHTTPAuthorizationClientFromEnv(); c != nil {
		return c
	}
	return NewDBAuthorizationClient(db)
}

// NewHTTPAuthorizationClientFromEnv builds the client from AUTHZ_FUNCTION_URL
// and AUTHZ_FUNCTION_TOKEN. Returns nil when no URL is configured.
func NewHTTPAuthorizationClientFromEnv() *HTTPAuthorizationClient {
	base := strings.TrimRight(strings.TrimSpace(env.GetEnv("AUTHZ_FUNCTION_URL", "")), "/")
	if base == "" {
		return nil
	}
	return &HTTPAuthorizationClient{
		BaseURL:   base,
		AuthToken: strings.TrimSpace(env.GetEnv("AUTHZ_FUNCTION_TOKEN", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *HTTPAuthorizationClient) CanUserAdd(ctx context.Context, userID uint, kind ResourceKind) (*Status, error) {
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}

	payload, err := json.Marshal(map[string]uint{"user_id": userID})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/can_user_add_%s", c.BaseURL, string(kind))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("authorization call failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out Status
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DBAuthorizationClient answers the can-add question directly against the
// database: tier from the subscription join (Free by default), count from the
// resource table.
type DBAuthorizationClient struct {
	db *gorm.DB
}

func NewDBAuthorizationClient(db *gorm.DB) *DBAuthorizationClient {
	return &DBAuthorizationClient{db: db}
}

func (c *DBAuthorizationClient) CanUserAdd(ctx context.Context, userID uint, kind ResourceKind) (*Status, error) {
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}
	db := c.db.WithContext(ctx)

	tierName := models.TierFree
	var limit *int

	var sub models.UserSubscription
	err := db.Preload("Tier").Where("user_id = ?", userID).First(&sub).Error
	switch {
	case err == nil && sub.Tier.ID != 0:
		tierName = sub.Tier.Name
		limit = tierLimitForKind(&sub.Tier, kind)
	case errors.Is(err, gorm.ErrRecordNotFound):
		// No subscription row: the user is on the Free tier.
		var free models.SubscriptionTier
		if ferr := db.Where("name = ? AND is_active = ?", models.TierFree, true).First(&free).Error; ferr == nil {
			limit = tierLimitForKind(&free, kind)
		}
	default:
		return nil, err
	}

	var count int64
	switch kind {
	case KindTrackedSubscriptions:
		err = db.Model(&models.TrackedSubscription{}).
			Where("user_id = ? AND archived = ?", userID, false).Count(&count).Error
	case KindReminders:
		err = db.Model(&models.Reminder{}).Where("user_id = ?", userID).Count(&count).Error
	default:
		return nil, fmt.Errorf("unknown resource kind: %q", kind)
	}
	if err != nil {
		return nil, err
	}

	status := &Status{
		CurrentCount: int(count),
		LimitCount:   UnlimitedSentinel,
		Tier:         tierName,
	}
	if limit != nil {
		status.LimitCount = *limit
	}
	status.Allowed = limit == nil || int(count) < *limit
	return status, nil
}

func tierLimitForKind(tier *models.SubscriptionTier, kind ResourceKind) *int {
	switch kind {
	case KindTrackedSubscriptions:
		return tier.MaxTrackedSubscriptions
	case KindReminders:
		return tier.MaxReminders
	default:
		return nil
	}
}
