package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/subtrack-app/subtrack/app/controllers"
	"github.com/subtrack-app/subtrack/internal/pkg/constants"
)

// registerPublicRoutes wires the unauthenticated surface: account lifecycle
// and the billing provider webhooks. Webhooks authenticate themselves by
// signature, never by session.
func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Post(constants.RegisterRoute, controllers.HandleAuthRegister)
	app.Post(constants.LoginRoute, controllers.HandleAuthLogin)
	app.Post(constants.LogoutRoute, controllers.HandleAuthLogout)

	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)
	app.Post(constants.AppleWebhookRoute, controllers.HandleAppleWebhook)
}
