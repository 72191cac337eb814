package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/binsaleem99/kwapps-sub001/app/models"
	"github.com/binsaleem99/kwapps-sub001/app/repository"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/billing"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/database"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/entitlements"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/env"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/jobqueue"
	metrics "github.com/binsaleem99/kwapps-sub001/internal/pkg/metrics/counter"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/usercontext"
)

// HandleBillingWebhook receives payment outcome callbacks from UPayments.
// The signature is verified over the raw body before anything is parsed or
// written; an invalid signature produces no datastore writes at all. Every
// outcome after a successful claim answers 200 so the gateway stops retrying.
func HandleBillingWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-UPayments-Signature"))
	secret := env.GetEnv("UPAYMENTS_WEBHOOK_SECRET", "")

	_ = metrics.AddWebhookReceived()

	if !billing.VerifyWebhookSignature(rawBody, signature, secret) {
		log.Warnf("[Billing] rejected webhook with invalid signature from %s", GetClientIP(c))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "webhook signature verification failed",
			"code":    "INVALID_SIGNATURE",
		})
	}

	payload, err := billing.ParseWebhookPayload(rawBody)
	if err != nil {
		_ = metrics.AddWebhookFailed()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "webhook payload could not be parsed",
			"code":    "INVALID_PAYLOAD",
		})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	out, err := svc.ProcessWebhook(ctx, payload, rawBody)
	if err != nil {
		_ = metrics.AddWebhookFailed()
		log.Errorf("[Billing] webhook processing failed for track %s: %v", payload.TrackID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "webhook processing failed",
		})
	}

	switch {
	case out.Duplicate:
		_ = metrics.AddWebhookDuplicate()
	case out.Success:
		_ = metrics.AddWebhookProcessed()
		if out.CreditsAllocated > 0 {
			_ = metrics.AddCreditsAllocated(out.CreditsAllocated)
		}
	default:
		_ = metrics.AddWebhookFailed()
	}

	if !out.Duplicate && out.UserID != 0 {
		enqueueBillingNotification(out)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":   out.Success,
		"status":    out.Status,
		"duplicate": out.Duplicate,
	})
}

// HandleBillingWebhookInfo is the webhook health check used by gateway setup.
func HandleBillingWebhookInfo(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":           "ok",
		"supported_events": billing.SupportedGatewayResults(),
	})
}

// enqueueBillingNotification hands the user-facing side of a webhook outcome
// to the job queue. Failures are logged only; the payment itself is already
// committed and must be acknowledged regardless.
func enqueueBillingNotification(out billing.Outcome) {
	payload, ok := notificationForOutcome(out)
	if !ok {
		return
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	user, err := userRepo.GetByID(out.UserID)
	if err != nil {
		log.Errorf("[Billing] notification user lookup failed for user %d: %v", out.UserID, err)
		return
	}

	settings, err := models.GetOrCreateUserSettings(database.GetDB(), out.UserID)
	if err == nil && settings.PrefEmailBilling {
		payload.Email = user.Email
		payload.SendEmail = true
	}

	if _, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeBillingNotification, payload.ToMap()); err != nil {
		log.Errorf("[Billing] failed to enqueue notification for user %d: %v", out.UserID, err)
	}
}

func notificationForOutcome(out billing.Outcome) (jobqueue.BillingNotificationJobPayload, bool) {
	p := jobqueue.BillingNotificationJobPayload{UserID: out.UserID}
	switch out.Status {
	case "subscription activated":
		p.NotificationType = models.NotificationTypeSubscription
		p.Content = fmt.Sprintf("Your subscription is active. %d credits have been added to your balance.", out.CreditsAllocated)
		p.ContentAr = fmt.Sprintf("تم تفعيل اشتراكك. تمت إضافة %d نقطة إلى رصيدك.", out.CreditsAllocated)
		p.EmailSubject = "KwApps - Subscription activated"
	case "trial activated":
		p.NotificationType = models.NotificationTypeTrial
		p.Content = fmt.Sprintf("Your trial has started. %d credits have been added to your balance.", out.CreditsAllocated)
		p.ContentAr = fmt.Sprintf("بدأت فترتك التجريبية. تمت إضافة %d نقطة إلى رصيدك.", out.CreditsAllocated)
		p.EmailSubject = "KwApps - Trial started"
	case "payment failure recorded":
		p.NotificationType = models.NotificationTypePayment
		p.Content = "Your payment could not be processed. Please check your payment method."
		p.ContentAr = "تعذر معالجة دفعتك. يرجى التحقق من وسيلة الدفع."
		p.EmailSubject = "KwApps - Payment failed"
	default:
		return p, false
	}
	return p, true
}

// HandleCreateCheckout starts a hosted checkout for the authenticated user.
func HandleCreateCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	appSettings := models.GetAppSettings()
	if !appSettings.IsCheckoutEnabled() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "checkout_disabled", "message": "Checkout is currently disabled"})
	}

	var req struct {
		Tier string `json:"tier"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Tier) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Field 'tier' is required"})
	}

	tierSlug := strings.TrimSpace(req.Tier)
	tier, err := repository.GetGlobalFactory().GetTierRepository().GetBySlug(tierSlug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "tier_not_found", "message": "Unknown tier"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load tier"})
	}
	if tier.IsTrial && !appSettings.IsTrialEnabled() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "trial_disabled", "message": "Trials are currently disabled"})
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	user, err := userRepo.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := svc.CreateCheckout(ctx, userCtx.UserID, tierSlug, user.Name, user.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "tier_not_found", "message": "Unknown or inactive tier"})
		}
		log.Errorf("[Billing] checkout failed for user %d tier %s: %v", userCtx.UserID, tierSlug, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout_failed", "message": "Payment provider did not accept the checkout"})
	}

	return c.JSON(fiber.Map{
		"payment_link": result.PaymentLink,
		"order_id":     result.OrderID,
	})
}

// HandleGetSubscription returns the caller's subscription, credit balance and
// the feature set their current plan grants.
func HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sub, err := svc.GetSubscription(ctx, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	now := time.Now()
	features := entitlements.ForSubscription(sub, now)

	response := fiber.Map{
		"features": fiber.Map{
			"max_sites":     features.MaxSites,
			"custom_domain": features.CustomDomain,
			"ai_boost":      features.AIBoost,
		},
	}
	if sub == nil {
		response["subscription"] = nil
		response["plan"] = string(entitlements.PlanFree)
		return c.JSON(response)
	}

	plan := string(entitlements.PlanFree)
	if sub.IsEntitling(now) && sub.Tier.Slug != "" {
		plan = sub.Tier.Slug
	}
	response["plan"] = plan
	response["subscription"] = fiber.Map{
		"status":                  sub.Status,
		"tier":                    sub.Tier.Slug,
		"is_trial":                sub.IsTrial,
		"trial_ends_at":           formatTimePtr(sub.TrialEndsAt),
		"current_period_start":    sub.CurrentPeriodStart.UTC().Format(time.RFC3339),
		"current_period_end":      sub.CurrentPeriodEnd.UTC().Format(time.RFC3339),
		"credits_balance":         sub.CreditsBalance,
		"credits_bonus_earned":    sub.CreditsBonusEarned,
		"failed_payment_attempts": sub.FailedPaymentAttempts,
		"last_payment_date":       formatTimePtr(sub.LastPaymentDate),
	}
	return c.JSON(response)
}

// HandleListCredits returns the caller's credit ledger, newest first.
func HandleListCredits(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	entries, err := svc.ListCreditHistory(ctx, userCtx.UserID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load credit history"})
	}

	items := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		items = append(items, fiber.Map{
			"type":           e.TransactionType,
			"amount":         e.Amount,
			"balance_after":  e.BalanceAfter,
			"description":    e.Description,
			"description_ar": e.DescriptionAr,
			"created_at":     e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(fiber.Map{"credits": items, "count": len(items)})
}

// HandleListTiers lists the purchasable tier catalog. Public, no auth.
func HandleListTiers(c *fiber.Ctx) error {
	tierRepo := repository.GetGlobalFactory().GetTierRepository()
	tiers, err := tierRepo.GetActive()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load tiers"})
	}

	items := make([]fiber.Map, 0, len(tiers))
	for _, t := range tiers {
		items = append(items, fiber.Map{
			"slug":              t.Slug,
			"name":              t.Name,
			"name_ar":           t.NameAr,
			"price_kwd":         t.PriceKWD,
			"credits_per_month": t.CreditsPerMonth,
			"daily_bonus":       t.DailyBonusCredits,
			"is_trial":          t.IsTrial,
			"trial_days":        t.TrialDays,
			"max_sites":         t.MaxSites,
			"custom_domain":     t.CustomDomain,
			"ai_boost":          t.AIBoost,
		})
	}
	return c.JSON(fiber.Map{"tiers": items})
}

// HandleBillingResync recomputes the caller's denormalized plan projection
// from the subscription row.
func HandleBillingResync(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	plan, err := svc.ResyncPlanProjection(ctx, userCtx.UserID)
	if err != nil {
		log.Errorf("[Billing] plan resync failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Plan resync failed"})
	}
	return c.JSON(fiber.Map{"plan": plan})
}
