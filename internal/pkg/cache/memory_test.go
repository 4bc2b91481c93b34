package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory()
	m.Set("k", "v", 100*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	got, ok := Get[string](m, "k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	time.Sleep(100 * time.Millisecond)
	_, ok = Get[string](m, "k")
	assert.False(t, ok, "expired entry must not be returned")
}

func TestMemoryGetMissing(t *testing.T) {
	m := NewMemory()
	_, ok := Get[int](m, "absent")
	assert.False(t, ok)
}

func TestMemoryTypeMismatch(t *testing.T) {
	m := NewMemory()
	m.Set("k", 42, time.Minute)
	_, ok := Get[string](m, "k")
	assert.False(t, ok)
}

func TestMemoryInvalidate(t *testing.T) {
	m := NewMemory()
	m.Set("k", "v", time.Hour)
	m.Invalidate("k")
	_, ok := Get[string](m, "k")
	assert.False(t, ok, "invalidate must win over remaining TTL")
}

func TestMemoryClear(t *testing.T) {
	m := NewMemory()
	m.Set("a", 1, time.Hour)
	m.Set("b", 2, time.Hour)
	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestInvalidateUserGroup(t *testing.T) {
	m := NewMemory()
	m.Set(TierKey(7), "premium", time.Hour)
	m.Set(PremiumKey(7), true, time.Hour)
	m.Set(LimitStatusKey(7, "reminders"), "x", time.Hour)
	m.Set(TierKey(8), "free", time.Hour)

	m.InvalidateUser(7)

	_, ok := Get[string](m, TierKey(7))
	assert.False(t, ok)
	_, ok = Get[bool](m, PremiumKey(7))
	assert.False(t, ok)
	_, ok = Get[string](m, LimitStatusKey(7, "reminders"))
	assert.False(t, ok)

	got, ok := Get[string](m, TierKey(8))
	require.True(t, ok, "other users must be untouched")
	assert.Equal(t, "free", got)
}

func TestKeyBuildersAreDeterministic(t *testing.T) {
	assert.Equal(t, "entitlements:user:12:tier", TierKey(12))
	assert.Equal(t, "entitlements:user:12:is_premium", PremiumKey(12))
	assert.Equal(t, "entitlements:user:12:subscription_status", SubscriptionStatusKey(12))
	assert.Equal(t, "entitlements:user:12:limit_status:subscriptions", LimitStatusKey(12, "subscriptions"))
	assert.Equal(t, "entitlements:user:12:resource_count:reminders", ResourceCountKey(12, "reminders"))
}
