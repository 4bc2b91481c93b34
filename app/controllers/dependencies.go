package controllers

import (
	"sync"

	"github.com/subtrack-app/subtrack/internal/pkg/billing"
	"github.com/subtrack-app/subtrack/internal/pkg/entitlements"
	"github.com/subtrack-app/subtrack/internal/pkg/limits"
	"github.com/subtrack-app/subtrack/internal/pkg/purchases"
)

// Services holds the wired domain services the handlers dispatch into.
// Handlers never construct these themselves; main wires them once at boot.
type Services struct {
	Resolver *entitlements.Resolver
	Gate     *limits.Gate
	Engine   *purchases.Engine
	Store    *purchases.AppStoreClient
	Billing  *billing.Service
	Stripe   *billing.StripeClient
}

var (
	services     Services
	servicesOnce sync.Once
)

// InitializeServices registers the domain services for all handlers.
func InitializeServices(s Services) {
	servicesOnce.Do(func() {
		services = s
	})
}

func getServices() *Services {
	if services.Resolver == nil {
		panic("Controller services not initialized. Call InitializeServices first.")
	}
	return &services
}
