package limits

import (
	"fmt"
)

// ResourceKind names a countable resource guarded by the tier limit. The gate
// is parameterized over kinds; adding a new countable resource means adding a
// constant here and a limit column on the tier.
type ResourceKind string

const (
	KindTrackedSubscriptions ResourceKind = "subscriptions"
	KindReminders            ResourceKind = "reminders"
)

// KnownKinds lists every resource kind the gate accepts.
var KnownKinds = []ResourceKind{KindTrackedSubscriptions, KindReminders}

// ParseKind maps a route segment to a resource kind.
func ParseKind(s string) (ResourceKind, error) {
	for _, k := range KnownKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown resource kind: %q", s)
}

// UnlimitedSentinel is the limit value the authorization function returns for
// tiers without a cap.
const UnlimitedSentinel = -1

// Status is the raw outcome of the remote authorization function.
type Status struct {
	Allowed      bool   `json:"allowed"`
	CurrentCount int    `json:"current_count"`
	LimitCount   int    `json:"limit_count"` // -1 means unlimited
	Tier         string `json:"tier"`
}

// CheckResult is the caller-facing outcome of a can-add check. Limit is nil
// for unlimited tiers.
type CheckResult struct {
	CanAdd       bool   `json:"can_add"`
	CurrentCount int    `json:"current_count"`
	Limit        *int   `json:"limit"`
	Tier         string `json:"tier"`
	Reason       string `json:"reason,omitempty"`
}

// LimitExceededError is raised by Enforce when the authoritative count/limit
// blocks the action. It carries everything the paywall UI needs.
type LimitExceededError struct {
	Reason       string
	CurrentCount int
	Limit        *int
	IsPremium    bool
}

func (e *LimitExceededError) Error() string {
	return e.Reason
}

func normalizeLimit(limitCount int) *int {
	if limitCount == UnlimitedSentinel {
		return nil
	}
	l := limitCount
	return &l
}
