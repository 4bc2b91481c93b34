package cache

import "fmt"

// Deterministic namespaced key builders for per-user entitlement state. Every
// key for a user shares UserKeyPrefix so the whole group can be invalidated
// together.

func UserKeyPrefix(userID uint) string {
	return fmt.Sprintf("entitlements:user:%d:", userID)
}

func TierKey(userID uint) string {
	return UserKeyPrefix(userID) + "tier"
}

func PremiumKey(userID uint) string {
	return UserKeyPrefix(userID) + "is_premium"
}

func SubscriptionStatusKey(userID uint) string {
	return UserKeyPrefix(userID) + "subscription_status"
}

func LimitStatusKey(userID uint, kind string) string {
	return fmt.Sprintf("%slimit_status:%s", UserKeyPrefix(userID), kind)
}

func ResourceCountKey(userID uint, kind string) string {
	return fmt.Sprintf("%sresource_count:%s", UserKeyPrefix(userID), kind)
}
