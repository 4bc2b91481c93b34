package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// Pong is the health check response body.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface is the contract the v1 API surface implements. It mirrors
// public/docs/v1/openapi.yml; a handler per documented operation.
type ServerInterface interface {
	GetPing(c *fiber.Ctx) error
	GetUserProfile(c *fiber.Ctx) error

	GetTier(c *fiber.Ctx) error
	GetPremiumStatus(c *fiber.Ctx) error
	PostUpgrade(c *fiber.Ctx) error
	PostDowngrade(c *fiber.Ctx) error
	PostEntitlementsRefresh(c *fiber.Ctx) error

	GetLimit(c *fiber.Ctx) error

	GetTrackedSubscriptions(c *fiber.Ctx) error
	PostTrackedSubscription(c *fiber.Ctx) error
	GetTrackedSubscription(c *fiber.Ctx) error
	PutTrackedSubscription(c *fiber.Ctx) error
	PostArchiveTrackedSubscription(c *fiber.Ctx) error
	DeleteTrackedSubscription(c *fiber.Ctx) error

	GetReminders(c *fiber.Ctx) error
	PostReminder(c *fiber.Ctx) error
	PutReminder(c *fiber.Ctx) error
	DeleteReminder(c *fiber.Ctx) error

	GetProducts(c *fiber.Ctx) error
	PostPurchase(c *fiber.Ctx) error
	PostRestorePurchases(c *fiber.Ctx) error
	PostSyncPurchases(c *fiber.Ctx) error
	PostRelayToken(c *fiber.Ctx) error
	PostRelayTransaction(c *fiber.Ctx) error
}

// RouterOptions attaches per-group middleware during registration.
type RouterOptions struct {
	// SessionAuth guards every route except ping and the relay ingest.
	SessionAuth fiber.Handler
	// RelayAuth guards the relay transaction ingest; it accepts either a
	// session or a signed relay token.
	RelayAuth fiber.Handler
}

// RegisterHandlers wires the v1 routes to a ServerInterface implementation.
func RegisterHandlers(router fiber.Router, si ServerInterface, opts RouterOptions) {
	router.Get("/ping", si.GetPing)

	authed := router.Group("")
	if opts.SessionAuth != nil {
		authed = router.Group("", opts.SessionAuth)
	}

	authed.Get("/user/profile", si.GetUserProfile)

	authed.Get("/entitlements/tier", si.GetTier)
	authed.Get("/entitlements/premium", si.GetPremiumStatus)
	authed.Post("/entitlements/upgrade", si.PostUpgrade)
	authed.Post("/entitlements/downgrade", si.PostDowngrade)
	authed.Post("/entitlements/refresh", si.PostEntitlementsRefresh)

	authed.Get("/limits/:kind", si.GetLimit)

	authed.Get("/subscriptions", si.GetTrackedSubscriptions)
	authed.Post("/subscriptions", si.PostTrackedSubscription)
	authed.Get("/subscriptions/:id", si.GetTrackedSubscription)
	authed.Put("/subscriptions/:id", si.PutTrackedSubscription)
	authed.Post("/subscriptions/:id/archive", si.PostArchiveTrackedSubscription)
	authed.Delete("/subscriptions/:id", si.DeleteTrackedSubscription)

	authed.Get("/reminders", si.GetReminders)
	authed.Post("/reminders", si.PostReminder)
	authed.Put("/reminders/:id", si.PutReminder)
	authed.Delete("/reminders/:id", si.DeleteReminder)

	authed.Get("/purchases/products", si.GetProducts)
	authed.Post("/purchases", si.PostPurchase)
	authed.Post("/purchases/restore", si.PostRestorePurchases)
	authed.Post("/purchases/sync", si.PostSyncPurchases)
	authed.Post("/purchases/relay-token", si.PostRelayToken)

	relay := router.Group("")
	if opts.RelayAuth != nil {
		relay = router.Group("", opts.RelayAuth)
	}
	relay.Post("/purchases/transactions", si.PostRelayTransaction)
}
