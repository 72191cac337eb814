package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/binsaleem99/kwapps-sub001/app/models"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/billing"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/cache"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/database"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/mail"
	metrics "github.com/binsaleem99/kwapps-sub001/internal/pkg/metrics/counter"
)

const bonusGuardKeyPrefix = "billing:bonus:granted:"

// processBillingNotificationJob writes the in-app notification row and
// optionally sends the email copy. The email is best-effort: a retry after a
// mail failure would duplicate the notification row, so mail errors are only
// logged.
func (q *Queue) processBillingNotificationJob(ctx context.Context, job *Job) error {
	_ = ctx
	payload, err := BillingNotificationJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid notification payload: %w", err)
	}
	if payload.UserID == 0 || payload.NotificationType == "" {
		return fmt.Errorf("notification payload missing user_id or type")
	}

	db := database.GetDB()
	if err := models.CreateNotification(db, payload.UserID, payload.NotificationType, payload.Content, payload.ContentAr, payload.ReferenceID); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if payload.SendEmail && payload.Email != "" {
		subject := payload.EmailSubject
		if subject == "" {
			subject = "KwApps Billing"
		}
		if err := mail.SendMail(payload.Email, subject, payload.Content); err != nil {
			log.Errorf("[JobQueue] Notification email to user %d failed: %v", payload.UserID, err)
		}
	}

	return nil
}

// processDailyBonusJob runs one bonus sweep. A Redis SETNX guard keyed by the
// bonus date makes the sweep once-per-day even when the trigger fires on
// several instances.
func (q *Queue) processDailyBonusJob(ctx context.Context, job *Job) error {
	payload, err := DailyBonusJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid daily bonus payload: %w", err)
	}
	bonusDate := payload.BonusDate
	if bonusDate == "" {
		bonusDate = time.Now().UTC().Format("2006-01-02")
	}

	guardKey := bonusGuardKeyPrefix + bonusDate
	ok, err := cache.GetClient().SetNX(ctx, guardKey, "1", 48*time.Hour).Result()
	if err != nil {
		return fmt.Errorf("bonus guard check failed: %w", err)
	}
	if !ok {
		log.Debugf("[JobQueue] Daily bonus for %s already granted, skipping", bonusDate)
		return nil
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	granted, credits, err := svc.GrantDailyBonuses(ctx, time.Now())
	if err != nil {
		// Release the guard so a retry can run the sweep.
		_ = cache.GetClient().Del(ctx, guardKey).Err()
		return fmt.Errorf("daily bonus sweep failed: %w", err)
	}

	if credits > 0 {
		if merr := metrics.AddCreditsBonus(credits); merr != nil {
			log.Errorf("[JobQueue] Failed to count bonus credits: %v", merr)
		}
	}

	log.Infof("[JobQueue] Daily bonus sweep for %s credited %d subscriptions (%d credits)", bonusDate, granted, credits)
	return nil
}

// processPlanResyncJob re-derives the denormalized plan fields for one user.
func (q *Queue) processPlanResyncJob(ctx context.Context, job *Job) error {
	payload, err := PlanResyncJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid plan resync payload: %w", err)
	}
	if payload.UserID == 0 {
		return fmt.Errorf("plan resync payload missing user_id")
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	plan, err := svc.ResyncPlanProjection(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("plan resync for user %d failed: %w", payload.UserID, err)
	}
	log.Infof("[JobQueue] Plan resync for user %d -> %s", payload.UserID, plan)
	return nil
}
