package constants

// Static route constants
const (
	PublicRoute = "/"

	// Gateway-facing webhook path; charges carry it as their NotifyURL
	BillingWebhookRoute = "/billing/webhook"

	// Same handler mounted inside the versioned API, exempt from rate limiting
	APIBillingWebhookRoute = "/api/v1" + BillingWebhookRoute
)
