package constants

// Static route constants
const (
	LoginRoute    = "/login"
	LogoutRoute   = "/logout"
	RegisterRoute = "/register"

	// Webhook ingest paths; authenticated by provider signature, not session
	StripeWebhookRoute = "/webhooks/stripe"
	AppleWebhookRoute  = "/webhooks/apple"

	APIRoute   = "/api"
	APIv1Route = "/v1"
)
