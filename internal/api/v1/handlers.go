package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/subtrack-app/subtrack/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetUserProfile returns account information for the authenticated user.
// Security is enforced via session middleware attached in the router.
func (s *APIServer) GetUserProfile(c *fiber.Ctx) error {
	return controllers.HandleGetUserAccount(c)
}

// GetTier returns the user's current tier and its limits.
func (s *APIServer) GetTier(c *fiber.Ctx) error {
	return controllers.HandleGetTier(c)
}

// GetPremiumStatus reports the premium entitlement, grace windows included.
func (s *APIServer) GetPremiumStatus(c *fiber.Ctx) error {
	return controllers.HandleGetPremiumStatus(c)
}

// PostUpgrade starts the premium checkout flow.
func (s *APIServer) PostUpgrade(c *fiber.Ctx) error {
	return controllers.HandleUpgradeToPremium(c)
}

// PostDowngrade downgrades the user to the Free tier.
func (s *APIServer) PostDowngrade(c *fiber.Ctx) error {
	return controllers.HandleDowngradeToFree(c)
}

// PostEntitlementsRefresh re-resolves entitlements after a purchase flow.
func (s *APIServer) PostEntitlementsRefresh(c *fiber.Ctx) error {
	return controllers.HandleRefreshEntitlements(c)
}

// GetLimit reports whether one more resource of :kind may be created.
func (s *APIServer) GetLimit(c *fiber.Ctx) error {
	return controllers.HandleGetLimit(c)
}

// Tracked subscription CRUD.

func (s *APIServer) GetTrackedSubscriptions(c *fiber.Ctx) error {
	return controllers.HandleListTrackedSubscriptions(c)
}

func (s *APIServer) PostTrackedSubscription(c *fiber.Ctx) error {
	return controllers.HandleCreateTrackedSubscription(c)
}

func (s *APIServer) GetTrackedSubscription(c *fiber.Ctx) error {
	return controllers.HandleGetTrackedSubscription(c)
}

func (s *APIServer) PutTrackedSubscription(c *fiber.Ctx) error {
	return controllers.HandleUpdateTrackedSubscription(c)
}

func (s *APIServer) PostArchiveTrackedSubscription(c *fiber.Ctx) error {
	return controllers.HandleArchiveTrackedSubscription(c)
}

func (s *APIServer) DeleteTrackedSubscription(c *fiber.Ctx) error {
	return controllers.HandleDeleteTrackedSubscription(c)
}

// Reminder CRUD.

func (s *APIServer) GetReminders(c *fiber.Ctx) error {
	return controllers.HandleListReminders(c)
}

func (s *APIServer) PostReminder(c *fiber.Ctx) error {
	return controllers.HandleCreateReminder(c)
}

func (s *APIServer) PutReminder(c *fiber.Ctx) error {
	return controllers.HandleUpdateReminder(c)
}

func (s *APIServer) DeleteReminder(c *fiber.Ctx) error {
	return controllers.HandleDeleteReminder(c)
}

// Purchases.

func (s *APIServer) GetProducts(c *fiber.Ctx) error {
	return controllers.HandleListProducts(c)
}

func (s *APIServer) PostPurchase(c *fiber.Ctx) error {
	return controllers.HandleStartPurchase(c)
}

func (s *APIServer) PostRestorePurchases(c *fiber.Ctx) error {
	return controllers.HandleRestorePurchases(c)
}

func (s *APIServer) PostSyncPurchases(c *fiber.Ctx) error {
	return controllers.HandleSyncPurchases(c)
}

func (s *APIServer) PostRelayToken(c *fiber.Ctx) error {
	return controllers.HandleIssueRelayToken(c)
}

// PostRelayTransaction ingests a signed store transaction relayed by the
// device. Security is the relay token middleware attached in the router.
func (s *APIServer) PostRelayTransaction(c *fiber.Ctx) error {
	return controllers.HandleRelayTransaction(c)
}
