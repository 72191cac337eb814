package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	apiv1 "github.com/binsaleem99/kwapps-sub001/internal/api/v1"

	"github.com/binsaleem99/kwapps-sub001/app/controllers"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/cache"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/constants"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/env"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Initialize admin queue controller with repository
	controllers.InitializeAdminQueueController()

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
		Next: func(c *fiber.Ctx) bool {
			// Gateway webhook retries must never be throttled
			return c.Path() == constants.APIBillingWebhookRoute
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer()

	// Gateway-facing webhook path, as configured on charges via NotifyURL.
	// Mounted outside the /api group so gateway retries bypass the limiter.
	app.Post(constants.BillingWebhookRoute, apiServer.PostBillingWebhook)
	app.Get(constants.BillingWebhookRoute, apiServer.GetBillingWebhook)

	// Public: no auth beyond the webhook's own HMAC signature
	v1.Get("/ping", apiServer.GetPing)
	v1.Post("/billing/webhook", apiServer.PostBillingWebhook)
	v1.Get("/billing/webhook", apiServer.GetBillingWebhook)
	v1.Get("/billing/tiers", apiServer.GetBillingTiers)

	// API key protected
	protected := v1.Group("", middleware.APIKeyAuthMiddleware())
	protected.Post("/billing/checkout", apiServer.PostBillingCheckout)
	protected.Get("/billing/subscription", apiServer.GetBillingSubscription)
	protected.Get("/billing/credits", apiServer.GetBillingCredits)
	protected.Post("/billing/resync", apiServer.PostBillingResync)
	protected.Get("/user/account", apiServer.GetUserProfile)
	protected.Post("/user/apikey", apiServer.PostUserAPIKey)
	protected.Delete("/user/apikey", apiServer.DeleteUserAPIKey)
	protected.Get("/user/notifications", apiServer.GetUserNotifications)
	protected.Post("/user/notifications/:id/read", apiServer.PostUserNotificationRead)

	h.registerAdminRoutes(v1)
}

func (h ApiRouter) registerAdminRoutes(v1 fiber.Router) {
	admin := v1.Group("/admin", middleware.APIKeyAuthMiddleware(), middleware.RequireAdmin)

	admin.Get("/stats/billing", controllers.HandleAdminBillingStats)
	admin.Post("/billing/bonus-sweep", controllers.HandleAdminRunBonusSweep)

	admin.Get("/users", controllers.HandleAdminListUsers)
	admin.Post("/users/:id/apikey", controllers.HandleAdminIssueUserAPIKey)

	admin.Get("/tiers", controllers.HandleAdminListTiers)
	admin.Post("/tiers", controllers.HandleAdminCreateTier)
	admin.Put("/tiers/:id", controllers.HandleAdminUpdateTier)
	admin.Delete("/tiers/:id", controllers.HandleAdminDeactivateTier)

	admin.Get("/settings", controllers.HandleAdminGetSettings)
	admin.Put("/settings", controllers.HandleAdminUpdateSettings)

	queueController := controllers.GetAdminQueueController()
	admin.Get("/queues", queueController.HandleAdminQueues)
	admin.Get("/queues/stats", queueController.HandleAdminJobStats)
	admin.Delete("/queues/:key", queueController.HandleAdminQueueDelete)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// instances. Reuses the cache connection settings, database 1.
func newLimiterStorage() *redisstorage.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
