package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/binsaleem99/kwapps-sub001/app/controllers"
)

// APIServer implements the public v1 API surface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// Pong is the ping endpoint response body
type Pong struct {
	Ping string `json:"ping"`
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostBillingWebhook receives payment gateway callbacks. Unauthenticated by
// design; the HMAC signature over the raw body is the auth.
func (s *APIServer) PostBillingWebhook(c *fiber.Ctx) error {
	return controllers.HandleBillingWebhook(c)
}

// GetBillingWebhook is the gateway-facing health check.
func (s *APIServer) GetBillingWebhook(c *fiber.Ctx) error {
	return controllers.HandleBillingWebhookInfo(c)
}

// GetBillingTiers lists the purchasable tier catalog. Public, no auth.
func (s *APIServer) GetBillingTiers(c *fiber.Ctx) error {
	return controllers.HandleListTiers(c)
}

// PostBillingCheckout starts a hosted checkout (API key protected).
// Security is enforced via API key middleware attached in the router.
func (s *APIServer) PostBillingCheckout(c *fiber.Ctx) error {
	return controllers.HandleCreateCheckout(c)
}

// GetBillingSubscription returns the caller's subscription and entitlements.
func (s *APIServer) GetBillingSubscription(c *fiber.Ctx) error {
	return controllers.HandleGetSubscription(c)
}

// GetBillingCredits returns the caller's credit ledger.
func (s *APIServer) GetBillingCredits(c *fiber.Ctx) error {
	return controllers.HandleListCredits(c)
}

// PostBillingResync recomputes the caller's plan projection.
func (s *APIServer) PostBillingResync(c *fiber.Ctx) error {
	return controllers.HandleBillingResync(c)
}

// GetUserProfile returns account information for the authenticated user (API key).
func (s *APIServer) GetUserProfile(c *fiber.Ctx) error {
	return controllers.HandleGetUserAccount(c)
}

// PostUserAPIKey rotates the caller's API key.
func (s *APIServer) PostUserAPIKey(c *fiber.Ctx) error {
	return controllers.HandleIssueAPIKey(c)
}

// DeleteUserAPIKey revokes the caller's API key.
func (s *APIServer) DeleteUserAPIKey(c *fiber.Ctx) error {
	return controllers.HandleRevokeAPIKey(c)
}

// GetUserNotifications lists the caller's billing notifications.
func (s *APIServer) GetUserNotifications(c *fiber.Ctx) error {
	return controllers.HandleListNotifications(c)
}

// PostUserNotificationRead marks one notification as read.
func (s *APIServer) PostUserNotificationRead(c *fiber.Ctx) error {
	return controllers.HandleMarkNotificationRead(c)
}
