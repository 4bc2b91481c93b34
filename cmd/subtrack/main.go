package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/subtrack-app/subtrack/app/controllers"
	"github.com/subtrack-app/subtrack/app/repository"
	"github.com/subtrack-app/subtrack/internal/pkg/billing"
	"github.com/subtrack-app/subtrack/internal/pkg/cache"
	"github.com/subtrack-app/subtrack/internal/pkg/database"
	"github.com/subtrack-app/subtrack/internal/pkg/entitlements"
	"github.com/subtrack-app/subtrack/internal/pkg/env"
	"github.com/subtrack-app/subtrack/internal/pkg/limits"
	"github.com/subtrack-app/subtrack/internal/pkg/purchases"
	"github.com/subtrack-app/subtrack/internal/pkg/receiptarchive"
	"github.com/subtrack-app/subtrack/internal/pkg/router"
	"github.com/subtrack-app/subtrack/internal/pkg/sweeper"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupClient()

	db := database.GetDB()
	repository.InitializeFactory(db)

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/subtrack to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1048576, // 1 MiB, JSON only
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// DOMAIN SERVICES
	wireServices(db)

	// ROUTER
	router.InstallRouter(app)

	return app
}

// wireServices builds the entitlement, limit, billing and reconciliation
// services, registers them with the controllers and starts the background
// machinery (store gateway connection, sweep cron).
func wireServices(db *gorm.DB) {
	mem := cache.NewMemory()

	gate := limits.NewGate(limits.NewAuthorizationClientFromEnv(db), mem, limits.Config{FailOpen: true})

	stripeClient := billing.NewStripeClientFromEnv()
	billingSvc := billing.NewServiceFromDB(db, mem, gate)
	resolver := entitlements.NewResolver(entitlements.NewRepository(db), mem, stripeClient, gate)

	var archive purchases.Archiver
	if cfg, err := receiptarchive.LoadConfig(); err == nil && cfg.IsEnabled() {
		client, err := receiptarchive.NewClient(cfg)
		if err != nil {
			log.Printf("receipt archive unavailable: %v", err)
		} else {
			archive = client
		}
	}

	// Keep the interface nil when no endpoint is configured; a typed nil
	// would defeat the engine's nil checks.
	var iapValidator purchases.Validator
	if v := purchases.NewHTTPValidatorFromEnv(); v != nil {
		iapValidator = v
	}

	store := purchases.NewAppStoreClientFromEnv()
	engine := purchases.NewEngine(
		store,
		iapValidator,
		purchases.NewRepository(db),
		mem,
		gate,
		archive,
		purchases.Config{
			AllowedProducts: []string{
				env.GetEnv("IAP_PRODUCT_MONTHLY", "com.subtrack.premium.monthly"),
				env.GetEnv("IAP_PRODUCT_YEARLY", "com.subtrack.premium.yearly"),
			},
			Supported: env.GetEnvBool("IAP_ENABLED", true),
		},
	)
	if _, err := engine.Initialize(context.Background()); err != nil {
		log.Printf("billing gateway connection failed: %v", err)
	}

	controllers.InitializeServices(controllers.Services{
		Resolver: resolver,
		Gate:     gate,
		Engine:   engine,
		Store:    store,
		Billing:  billingSvc,
		Stripe:   stripeClient,
	})

	// reconciliation sweeps; InitCron starts the scheduler
	sw := sweeper.NewSweeper(sweeper.NewStore(db), iapValidator, mem, gate)
	sw.InitCron()
}
