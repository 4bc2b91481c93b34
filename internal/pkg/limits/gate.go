package limits

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/subtrack-app/subtrack/app/models"
	"github.com/subtrack-app/subtrack/internal/pkg/cache"
)

// Config controls gate behavior.
type Config struct {
	// FailOpen treats the action as allowed when the authorization channel
	// itself fails. This is a deliberate availability-over-strictness policy,
	// distinct from ordinary error propagation: a flaky authorization
	// function must not lock paying users out of the app.
	FailOpen bool
}

// Gate enforces per-tier resource limits. Both positive and negative check
// outcomes are cached; Refresh drops the user's whole entitlement cache group
// after any mutating action.
type Gate struct {
	authz AuthorizationClient
	cache *cache.Memory
	cfg   Config
}

// NewGate wires the gate with its collaborators.
func NewGate(authz AuthorizationClient, mem *cache.Memory, cfg Config) *Gate {
	return &Gate{authz: authz, cache: mem, cfg: cfg}
}

// CheckCanAdd reports whether the user may create one more resource of the
// given kind. On authorization-channel failure the gate fails open when
// configured to; the error never escapes in that mode.
func (g *Gate) CheckCanAdd(ctx context.Context, userID uint, kind ResourceKind) (CheckResult, error) {
	key := cache.LimitStatusKey(userID, string(kind))
	if cached, ok := cache.Get[CheckResult](g.cache, key); ok {
		return cached, nil
	}

	status, err := g.authz.CanUserAdd(ctx, userID, kind)
	if err != nil {
		if g.cfg.FailOpen {
			log.Warnf("[Limits] authorization check failed for user %d kind %s, failing open: %v", userID, kind, err)
			return CheckResult{CanAdd: true, Limit: nil, Tier: models.TierFree}, nil
		}
		return CheckResult{}, err
	}

	result := CheckResult{
		CanAdd:       status.Allowed,
		CurrentCount: status.CurrentCount,
		Limit:        normalizeLimit(status.LimitCount),
		Tier:         status.Tier,
	}
	if !result.CanAdd {
		limit := status.LimitCount
		result.Reason = fmt.Sprintf("%s limit reached (%d/%d) on the %s tier", kind, status.CurrentCount, limit, status.Tier)
	}

	g.cache.Set(key, result, cache.TTLMedium)
	g.cache.Set(cache.ResourceCountKey(userID, string(kind)), status.CurrentCount, cache.TTLMedium)
	return result, nil
}

// Enforce re-checks the limit and runs action only when allowed. A blocked
// action returns *LimitExceededError with the counts the paywall needs.
func (g *Gate) Enforce(ctx context.Context, userID uint, kind ResourceKind, action func() error) error {
	result, err := g.CheckCanAdd(ctx, userID, kind)
	if err != nil {
		return err
	}
	if !result.CanAdd {
		return &LimitExceededError{
			Reason:       result.Reason,
			CurrentCount: result.CurrentCount,
			Limit:        result.Limit,
			IsPremium:    models.IsPremiumTier(result.Tier),
		}
	}
	return action()
}

// RemainingSlots derives how many more resources of kind the user may create.
// nil denotes unlimited.
func (g *Gate) RemainingSlots(ctx context.Context, userID uint, kind ResourceKind) (*int, error) {
	result, err := g.CheckCanAdd(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	if result.Limit == nil {
		return nil, nil
	}
	remaining := *result.Limit - result.CurrentCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining, nil
}

// Refresh invalidates the user's full entitlement cache group (limit status,
// resource counts, tier, premium, subscription status). Call after any
// mutating action. Riskiest call sites additionally ClearAll; partial-group
// invalidation previously left a reproducible staleness window.
func (g *Gate) Refresh(userID uint) {
	g.cache.InvalidateUser(userID)
}

// ClearAll drops the entire cache, every user included.
func (g *Gate) ClearAll() {
	g.cache.Clear()
}
