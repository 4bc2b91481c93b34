package apiv1

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubServer records which operation handled the request.
type stubServer struct {
	called string
}

func (s *stubServer) handle(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s.called = name
		return c.JSON(fiber.Map{"op": name})
	}
}

func (s *stubServer) GetPing(c *fiber.Ctx) error        { return s.handle("ping")(c) }
func (s *stubServer) GetUserProfile(c *fiber.Ctx) error { return s.handle("profile")(c) }

func (s *stubServer) GetTier(c *fiber.Ctx) error                 { return s.handle("tier")(c) }
func (s *stubServer) GetPremiumStatus(c *fiber.Ctx) error        { return s.handle("premium")(c) }
func (s *stubServer) PostUpgrade(c *fiber.Ctx) error             { return s.handle("upgrade")(c) }
func (s *stubServer) PostDowngrade(c *fiber.Ctx) error           { return s.handle("downgrade")(c) }
func (s *stubServer) PostEntitlementsRefresh(c *fiber.Ctx) error { return s.handle("refresh")(c) }

func (s *stubServer) GetLimit(c *fiber.Ctx) error {
	s.called = "limit:" + c.Params("kind")
	return c.JSON(fiber.Map{"op": s.called})
}

func (s *stubServer) GetTrackedSubscriptions(c *fiber.Ctx) error { return s.handle("subs.list")(c) }
func (s *stubServer) PostTrackedSubscription(c *fiber.Ctx) error { return s.handle("subs.create")(c) }
func (s *stubServer) GetTrackedSubscription(c *fiber.Ctx) error  { return s.handle("subs.get")(c) }
func (s *stubServer) PutTrackedSubscription(c *fiber.Ctx) error  { return s.handle("subs.update")(c) }
func (s *stubServer) PostArchiveTrackedSubscription(c *fiber.Ctx) error {
	return s.handle("subs.archive")(c)
}
func (s *stubServer) DeleteTrackedSubscription(c *fiber.Ctx) error { return s.handle("subs.delete")(c) }

func (s *stubServer) GetReminders(c *fiber.Ctx) error   { return s.handle("rem.list")(c) }
func (s *stubServer) PostReminder(c *fiber.Ctx) error   { return s.handle("rem.create")(c) }
func (s *stubServer) PutReminder(c *fiber.Ctx) error    { return s.handle("rem.update")(c) }
func (s *stubServer) DeleteReminder(c *fiber.Ctx) error { return s.handle("rem.delete")(c) }

func (s *stubServer) GetProducts(c *fiber.Ctx) error          { return s.handle("iap.products")(c) }
func (s *stubServer) PostPurchase(c *fiber.Ctx) error         { return s.handle("iap.purchase")(c) }
func (s *stubServer) PostRestorePurchases(c *fiber.Ctx) error { return s.handle("iap.restore")(c) }
func (s *stubServer) PostSyncPurchases(c *fiber.Ctx) error    { return s.handle("iap.sync")(c) }
func (s *stubServer) PostRelayToken(c *fiber.Ctx) error       { return s.handle("iap.token")(c) }
func (s *stubServer) PostRelayTransaction(c *fiber.Ctx) error { return s.handle("iap.relay")(c) }

func newTestApp(si ServerInterface, opts RouterOptions) *fiber.App {
	app := fiber.New()
	RegisterHandlers(app.Group("/api/v1"), si, opts)
	return app
}

func TestRegisterHandlersRouting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		path   string
		want   string
	}{
		{"ping", http.MethodGet, "/api/v1/ping", "ping"},
		{"profile", http.MethodGet, "/api/v1/user/profile", "profile"},
		{"tier", http.MethodGet, "/api/v1/entitlements/tier", "tier"},
		{"premium", http.MethodGet, "/api/v1/entitlements/premium", "premium"},
		{"upgrade", http.MethodPost, "/api/v1/entitlements/upgrade", "upgrade"},
		{"downgrade", http.MethodPost, "/api/v1/entitlements/downgrade", "downgrade"},
		{"refresh", http.MethodPost, "/api/v1/entitlements/refresh", "refresh"},
		{"limit kind", http.MethodGet, "/api/v1/limits/reminders", "limit:reminders"},
		{"list subscriptions", http.MethodGet, "/api/v1/subscriptions", "subs.list"},
		{"create subscription", http.MethodPost, "/api/v1/subscriptions", "subs.create"},
		{"get subscription", http.MethodGet, "/api/v1/subscriptions/7", "subs.get"},
		{"update subscription", http.MethodPut, "/api/v1/subscriptions/7", "subs.update"},
		{"archive subscription", http.MethodPost, "/api/v1/subscriptions/7/archive", "subs.archive"},
		{"delete subscription", http.MethodDelete, "/api/v1/subscriptions/7", "subs.delete"},
		{"list reminders", http.MethodGet, "/api/v1/reminders", "rem.list"},
		{"create reminder", http.MethodPost, "/api/v1/reminders", "rem.create"},
		{"update reminder", http.MethodPut, "/api/v1/reminders/3", "rem.update"},
		{"delete reminder", http.MethodDelete, "/api/v1/reminders/3", "rem.delete"},
		{"products", http.MethodGet, "/api/v1/purchases/products", "iap.products"},
		{"purchase", http.MethodPost, "/api/v1/purchases", "iap.purchase"},
		{"restore", http.MethodPost, "/api/v1/purchases/restore", "iap.restore"},
		{"sync", http.MethodPost, "/api/v1/purchases/sync", "iap.sync"},
		{"relay token", http.MethodPost, "/api/v1/purchases/relay-token", "iap.token"},
		{"relay transaction", http.MethodPost, "/api/v1/purchases/transactions", "iap.relay"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubServer{}
			app := newTestApp(stub, RouterOptions{})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.want, stub.called)
		})
	}
}

func TestSessionAuthGuardsProtectedRoutes(t *testing.T) {
	t.Parallel()

	deny := func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	stub := &stubServer{}
	app := newTestApp(stub, RouterOptions{SessionAuth: deny})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/entitlements/tier", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, stub.called)

	// ping stays public
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ping", stub.called)
}

func TestRelayAuthGuardsTransactionIngest(t *testing.T) {
	t.Parallel()

	relay := func(c *fiber.Ctx) error {
		if c.Get("X-Relay-Token") == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		return c.Next()
	}

	stub := &stubServer{}
	app := newTestApp(stub, RouterOptions{RelayAuth: relay})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/purchases/transactions", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases/transactions", nil)
	req.Header.Set("X-Relay-Token", "token")
	resp, err = app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "iap.relay")
}
