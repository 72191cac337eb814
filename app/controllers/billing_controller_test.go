package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binsaleem99/kwapps-sub001/app/models"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/billing"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/constants"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/jobqueue"
)

func TestNotificationForOutcome(t *testing.T) {
	t.Run("SubscriptionActivated", func(t *testing.T) {
		out := billing.Outcome{Success: true, Status: "subscription activated", UserID: 7, CreditsAllocated: 1000}

		payload, ok := notificationForOutcome(out)
		require.True(t, ok)
		assert.Equal(t, uint(7), payload.UserID)
		assert.Equal(t, models.NotificationTypeSubscription, payload.NotificationType)
		assert.Contains(t, payload.Content, "1000 credits")
		assert.Contains(t, payload.ContentAr, "1000")
		assert.NotEmpty(t, payload.EmailSubject)
	})

	t.Run("TrialActivated", func(t *testing.T) {
		out := billing.Outcome{Success: true, Status: "trial activated", UserID: 7, CreditsAllocated: 500}

		payload, ok := notificationForOutcome(out)
		require.True(t, ok)
		assert.Equal(t, models.NotificationTypeTrial, payload.NotificationType)
		assert.Contains(t, payload.Content, "trial")
	})

	t.Run("PaymentFailure", func(t *testing.T) {
		out := billing.Outcome{Success: true, Status: "payment failure recorded", UserID: 7}

		payload, ok := notificationForOutcome(out)
		require.True(t, ok)
		assert.Equal(t, models.NotificationTypePayment, payload.NotificationType)
	})

	t.Run("NoNotificationForAcknowledgements", func(t *testing.T) {
		for _, status := range []string{
			"payment cancellation acknowledged",
			"transaction not found",
			"already processed",
		} {
			_, ok := notificationForOutcome(billing.Outcome{Status: status, UserID: 7})
			assert.False(t, ok, "status %q should not notify", status)
		}
	})
}

func TestHandleBillingWebhookRejectsBadSignature(t *testing.T) {
	t.Setenv("UPAYMENTS_WEBHOOK_SECRET", "test-secret")

	app := fiber.New()
	app.Post(constants.BillingWebhookRoute, HandleBillingWebhook)

	post := func(t *testing.T, headers map[string]string) (int, map[string]interface{}) {
		t.Helper()
		body := []byte(`{"order_id":"kwapps-order-1","track_id":"TRK-1","result":"CAPTURED"}`)
		req := httptest.NewRequest("POST", constants.BillingWebhookRoute, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req, 10000)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp.StatusCode, out
	}

	t.Run("CorruptedSignature", func(t *testing.T) {
		status, out := post(t, map[string]string{"X-UPayments-Signature": "deadbeef"})
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, false, out["success"])
		assert.Equal(t, "INVALID_SIGNATURE", out["code"])
	})

	t.Run("MissingSignature", func(t *testing.T) {
		status, out := post(t, nil)
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, "INVALID_SIGNATURE", out["code"])
	})
}

func TestClassifyQueueKey(t *testing.T) {
	cases := map[string]string{
		jobqueue.JobKeyPrefix + "abc":    "job",
		jobqueue.JobQueueKey:             "job_queue",
		jobqueue.JobProcessingKey:        "job_processing",
		jobqueue.JobStatsKey:             "job_stats",
		"billing:counters:daily":         "billing_counters",
		"billing:bonus:granted:2026-08-31": "bonus_guard",
		"something:else":                 "unknown",
	}
	for key, want := range cases {
		assert.Equal(t, want, classifyQueueKey(key), "key %q", key)
	}
}

func TestGetClientIP(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(GetClientIP(c))
	})

	fetch := func(t *testing.T, headers map[string]string) string {
		t.Helper()
		req := httptest.NewRequest("GET", "/", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	t.Run("CloudflareHeader", func(t *testing.T) {
		ip := fetch(t, map[string]string{"CF-Connecting-IP": "203.0.113.9"})
		assert.Equal(t, "203.0.113.9", ip)
	})

	t.Run("CloudflareWinsOverForwardedFor", func(t *testing.T) {
		ip := fetch(t, map[string]string{
			"CF-Connecting-IP": "203.0.113.9",
			"X-Forwarded-For":  "198.51.100.4",
		})
		assert.Equal(t, "203.0.113.9", ip)
	})

	t.Run("ForwardedForFirstEntry", func(t *testing.T) {
		ip := fetch(t, map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.1"})
		assert.Equal(t, "198.51.100.4", ip)
	})
}

func TestFormatTimePtr(t *testing.T) {
	assert.Nil(t, formatTimePtr(nil))

	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-01T12:30:00Z", formatTimePtr(&ts))
}
