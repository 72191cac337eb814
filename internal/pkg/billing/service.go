package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/binsaleem99/kwapps-sub001/app/models"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/constants"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// billingPeriodDays is the fixed paid billing period length.
	billingPeriodDays = 30
	// defaultTrialDays applies when neither the frozen metadata nor the tier
	// carries a trial duration.
	defaultTrialDays = 7
	// maxFailedPaymentAttempts is the threshold at which a subscription with
	// repeated payment failures transitions to expired.
	maxFailedPaymentAttempts = 3
)

// Charger creates hosted-checkout charges on the payment gateway.
type Charger interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (string, error)
}

// Service implements the webhook-driven subscription and credit-ledger
// engine. All state lives in the database; the service itself is stateless
// and safe for concurrent use.
type Service struct {
	repo    Repository
	charger Charger
}

// NewService creates a billing service from an injected repository and
// gateway client.
func NewService(repo Repository, charger Charger) *Service {
	return &Service{repo: repo, charger: charger}
}

// NewServiceFromDB creates a billing service from a GORM DB handle using the
// env-configured gateway client.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), NewUPaymentsClientFromEnv())
}

// ProcessWebhook runs the full webhook pipeline for an already
// signature-verified delivery: claim, transaction lookup, result mapping,
// terminal transaction update, then the outcome-specific state changes.
//
// Every recoverable condition returns a nil error with an Outcome the handler
// answers with HTTP 200 (the gateway must not retry). A non-nil error means
// processing died unexpectedly and the handler should answer 500; note that
// if the claim row was already committed, the gateway's retry for the same
// track id will be swallowed as a duplicate (known gap, see DESIGN.md).
func (s *Service) ProcessWebhook(ctx context.Context, payload WebhookPayload, rawBody []byte) (Outcome, error) {
	_ = ctx
	now := time.Now()

	claim, delivery, err := s.claimDelivery(payload, rawBody)
	if err != nil {
		return Outcome{}, err
	}
	switch claim {
	case ClaimDuplicate:
		return Outcome{Success: true, Duplicate: true, Status: "already processed"}, nil
	case ClaimRaceLost:
		return Outcome{Success: true, Status: "being processed by another request"}, nil
	}

	txn, err := s.repo.FindTransactionByOrderID(payload.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// A transaction the platform never initiated; retrying cannot fix
			// this, so answer 200 and keep the trace in logs + the ledger row.
			log.Warnf("[Billing] Webhook for unknown order %s (track %s)", payload.OrderID, payload.TrackID)
			_ = s.repo.MarkDeliveryProcessed(delivery.ID, "transaction not found for order "+payload.OrderID)
			return Outcome{Success: false, Status: "transaction not found"}, nil
		}
		return Outcome{}, err
	}

	// A transaction settles exactly once. A later delivery for the same order
	// under a fresh track id passes the dedup claim, but must not re-mutate a
	// settled transaction or re-run the state machine.
	if txn.IsTerminal() {
		log.Warnf("[Billing] Order %s already settled as %s; ignoring track %s", payload.OrderID, txn.Status, payload.TrackID)
		_ = s.repo.MarkDeliveryProcessed(delivery.ID, "transaction already settled as "+txn.Status)
		return Outcome{Success: false, Status: "already processed"}, nil
	}

	result := MapGatewayResult(payload.Result)
	if result == ResultUnknown {
		log.Warnf("[Billing] Unknown gateway result %q for order %s", payload.Result, payload.OrderID)
		_ = s.repo.MarkDeliveryProcessed(delivery.ID, "unknown gateway result "+payload.Result)
		return Outcome{Success: false, Status: "unknown payment result"}, nil
	}

	meta, err := txn.Metadata()
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to decode transaction metadata: %w", err)
	}

	// The transaction record gets the gateway's final word first, before any
	// branching, so it stays correct even if a later step fails.
	if err := s.repo.UpdateTransactionOutcome(txn.ID, transactionStatusFor(result), payload.TranID, payload.PaymentType, payload.CardLastFour, now); err != nil {
		return Outcome{}, fmt.Errorf("failed to update transaction status: %w", err)
	}

	switch result {
	case ResultCanceled:
		// Gateway-reported cancellation; user-initiated cancellation is a
		// separate flow that never passes through here.
		log.Infof("[Billing] Payment canceled for order %s (user %d)", payload.OrderID, txn.UserID)
		_ = s.repo.MarkDeliveryProcessed(delivery.ID, "")
		return Outcome{Success: true, Status: "payment cancellation acknowledged", UserID: txn.UserID}, nil

	case ResultFailed:
		if err := s.repo.Transaction(func(tx Repository) error {
			return s.applyFailure(tx, txn.UserID, meta.IsTrial)
		}); err != nil {
			return Outcome{}, fmt.Errorf("failed to record payment failure: %w", err)
		}
		_ = s.repo.MarkDeliveryProcessed(delivery.ID, "")
		return Outcome{Success: true, Status: "payment failure recorded", UserID: txn.UserID}, nil
	}

	// ResultSuccess from here on.
	tier, err := s.repo.FindTierBySlug(meta.TierSlug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// A migration may have removed a tier still referenced by an
			// in-flight payment; fail soft rather than crash.
			log.Warnf("[Billing] Tier %q not found for order %s", meta.TierSlug, payload.OrderID)
			_ = s.repo.MarkDeliveryProcessed(delivery.ID, "tier not found: "+meta.TierSlug)
			return Outcome{Success: false, Status: "tier not found"}, nil
		}
		return Outcome{}, err
	}

	var allocated int
	if err := s.repo.Transaction(func(tx Repository) error {
		var txErr error
		allocated, txErr = s.applySuccess(tx, txn, meta, tier, payload, now)
		return txErr
	}); err != nil {
		return Outcome{}, fmt.Errorf("failed to apply successful payment: %w", err)
	}

	_ = s.repo.MarkDeliveryProcessed(delivery.ID, "")

	status := "subscription activated"
	if meta.IsTrial {
		status = "trial activated"
	}
	return Outcome{Success: true, Status: status, UserID: txn.UserID, CreditsAllocated: allocated}, nil
}

// claimDelivery implements the two-phase claim protocol. The existence check
// catches gateway retries of finished deliveries cheaply; the insert with the
// unique constraint is the actual race arbiter, because the check alone is a
// check-then-act race under concurrent deliveries.
func (s *Service) claimDelivery(payload WebhookPayload, rawBody []byte) (ClaimStatus, *models.WebhookDelivery, error) {
	existing, err := s.repo.FindDeliveryByTrackID(payload.TrackID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil, err
	}
	if existing != nil {
		return ClaimDuplicate, existing, nil
	}

	delivery := &models.WebhookDelivery{
		TrackID:     payload.TrackID,
		OrderID:     payload.OrderID,
		PaymentID:   payload.PaymentID,
		TranID:      payload.TranID,
		Result:      payload.Result,
		PayloadJSON: string(rawBody),
	}
	if err := s.repo.CreateDelivery(delivery); err != nil {
		if errors.Is(err, ErrDuplicateDelivery) {
			return ClaimRaceLost, nil, nil
		}
		return 0, nil, err
	}
	return ClaimOwned, delivery, nil
}

// applySuccess runs the success branch of the state machine inside one
// database transaction: subscription upsert, ledger allocation, transaction
// link, trial bookkeeping and the plan projection.
func (s *Service) applySuccess(tx Repository, txn *models.PaymentTransaction, meta models.TransactionMetadata, tier *models.SubscriptionTier, payload WebhookPayload, now time.Time) (int, error) {
	periodDays := billingPeriodDays
	if meta.IsTrial {
		periodDays = meta.TrialDays
		if periodDays <= 0 {
			periodDays = tier.TrialDays
		}
		if periodDays <= 0 {
			periodDays = defaultTrialDays
		}
	}
	periodEnd := now.AddDate(0, 0, periodDays)

	// Prefer the credits frozen at checkout; tier edits must not change an
	// in-flight payment retroactively.
	credits := meta.CreditsPerMonth
	if credits <= 0 {
		credits = tier.CreditsPerMonth
	}

	amount := payload.AmountKWD()
	if amount <= 0 {
		amount = txn.Amount
	}

	sub, err := tx.FindSubscriptionByUser(txn.UserID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
		sub = &models.UserSubscription{UserID: txn.UserID}
	}

	status := models.SubscriptionStatusActive
	if meta.IsTrial {
		status = models.SubscriptionStatusTrial
	}

	sub.TierID = tier.ID
	sub.Status = status
	sub.IsTrial = meta.IsTrial
	if meta.IsTrial {
		sub.TrialEndsAt = &periodEnd
	} else {
		sub.TrialEndsAt = nil
	}
	sub.CurrentPeriodStart = now
	sub.CurrentPeriodEnd = periodEnd
	// Each period payment is a fresh allocation, not an additive top-up;
	// rollover and bonus live in their own explicit fields.
	sub.CreditsBalance = credits
	sub.CreditsAllocatedThisPeriod = credits
	sub.CreditsBonusEarned = 0
	sub.CreditsRollover = 0
	sub.FailedPaymentAttempts = 0
	sub.LastPaymentAmount = amount
	sub.LastPaymentDate = &now
	if payload.PaymentType != "" {
		sub.PaymentMethod = payload.PaymentType
	}

	if err := tx.SaveSubscription(sub); err != nil {
		return 0, err
	}

	// balance_after derives from the allocation just computed, never from a
	// re-read balance that could be stale under a concurrent writer.
	if err := tx.AppendCreditEntry(&models.CreditTransaction{
		UserID:          txn.UserID,
		SubscriptionID:  sub.ID,
		TransactionType: models.CreditTypeAllocation,
		Amount:          credits,
		BalanceAfter:    credits,
		Description:     fmt.Sprintf("Monthly credit allocation for %s plan", tier.Name),
		DescriptionAr:   fmt.Sprintf("إضافة الرصيد الشهري لباقة %s", tier.NameAr),
	}); err != nil {
		return 0, err
	}

	if err := tx.LinkTransactionSubscription(txn.ID, sub.ID); err != nil {
		return 0, err
	}

	if meta.IsTrial {
		rec, err := tx.FindTrialByUser(txn.UserID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, err
			}
			rec = &models.TrialRecord{UserID: txn.UserID}
		}
		rec.SubscriptionID = &sub.ID
		rec.TrialPrice = amount
		rec.TrialDurationDays = periodDays
		rec.StartedAt = &now
		rec.EndsAt = &periodEnd
		rec.PaymentStatus = models.TrialPaymentPaid
		rec.PaymentTransactionID = &txn.ID
		if err := tx.SaveTrialRecord(rec); err != nil {
			return 0, err
		}
	}

	us, err := tx.GetOrCreateUserSettings(txn.UserID)
	if err != nil {
		return 0, err
	}
	us.Plan = tier.Slug
	us.PaymentStatus = status
	us.PaymentVerifiedAt = &now
	if err := tx.SaveUserSettings(us); err != nil {
		return 0, err
	}
	return credits, nil
}

// applyFailure increments the failure counter on an existing subscription,
// expiring it at the threshold, and marks trial payment failure when the
// originating transaction was a trial purchase.
func (s *Service) applyFailure(tx Repository, userID uint, isTrial bool) error {
	sub, err := tx.FindSubscriptionByUser(userID)
	switch {
	case err == nil:
		sub.FailedPaymentAttempts++
		if sub.FailedPaymentAttempts >= maxFailedPaymentAttempts {
			sub.Status = models.SubscriptionStatusExpired
		}
		if err := tx.SaveSubscription(sub); err != nil {
			return err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// First payment failed before any subscription existed; nothing to
		// escalate.
	default:
		return err
	}

	if isTrial {
		rec, err := tx.FindTrialByUser(userID)
		switch {
		case err == nil:
			rec.PaymentStatus = models.TrialPaymentFailed
			if err := tx.SaveTrialRecord(rec); err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}
	}
	return nil
}

func transactionStatusFor(result PaymentResult) string {
	switch result {
	case ResultSuccess:
		return models.TransactionStatusSuccess
	case ResultCanceled:
		return models.TransactionStatusCanceled
	default:
		return models.TransactionStatusFailed
	}
}

// CheckoutResult is returned by CreateCheckout.
type CheckoutResult struct {
	PaymentLink string                     `json:"payment_link"`
	OrderID     string                     `json:"order_id"`
	Transaction *models.PaymentTransaction `json:"transaction"`
}

// CreateCheckout freezes the tier's billing values onto a pending payment
// transaction and asks the gateway for a hosted payment link. The webhook
// later resolves the transaction by its gateway order id.
func (s *Service) CreateCheckout(ctx context.Context, userID uint, tierSlug, customerName, customerEmail string) (*CheckoutResult, error) {
	if userID == 0 || strings.TrimSpace(tierSlug) == "" {
		return nil, errors.New("user_id and tier are required")
	}
	if s.charger == nil {
		return nil, errors.New("payment gateway is not configured")
	}

	// Lookup is restricted to active tiers; callers can map
	// gorm.ErrRecordNotFound to their own not-found response.
	tier, err := s.repo.FindTierBySlug(strings.TrimSpace(tierSlug))
	if err != nil {
		return nil, err
	}

	orderID := "kwapps-" + uuid.New().String()
	txn := &models.PaymentTransaction{
		UserID:         userID,
		Amount:         tier.PriceKWD,
		Status:         models.TransactionStatusPending,
		GatewayOrderID: orderID,
	}
	if err := txn.SetMetadata(models.TransactionMetadata{
		TierSlug:          tier.Slug,
		TierName:          tier.Name,
		TierNameAr:        tier.NameAr,
		IsTrial:           tier.IsTrial,
		CreditsPerMonth:   tier.CreditsPerMonth,
		DailyBonusCredits: tier.DailyBonusCredits,
		TrialDays:         tier.TrialDays,
	}); err != nil {
		return nil, err
	}
	if err := s.repo.CreateTransaction(txn); err != nil {
		return nil, err
	}

	publicURL := strings.TrimRight(env.GetEnv("APP_PUBLIC_URL", "http://localhost:4000"), "/")
	link, err := s.charger.CreateCharge(ctx, ChargeRequest{
		OrderID:       orderID,
		Amount:        tier.PriceKWD,
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		ProductName:   tier.Name,
		ReturnURL:     publicURL + "/billing/return",
		CancelURL:     publicURL + "/billing/cancel",
		NotifyURL:     publicURL + constants.BillingWebhookRoute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway charge: %w", err)
	}

	return &CheckoutResult{PaymentLink: link, OrderID: orderID, Transaction: txn}, nil
}

// GetSubscription returns the user's subscription row, or nil when none
// exists yet.
func (s *Service) GetSubscription(ctx context.Context, userID uint) (*models.UserSubscription, error) {
	_ = ctx
	sub, err := s.repo.FindSubscriptionByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// ListCreditHistory returns the most recent credit ledger entries for a user.
func (s *Service) ListCreditHistory(ctx context.Context, userID uint, limit int) ([]models.CreditTransaction, error) {
	_ = ctx
	return s.repo.ListCreditEntries(userID, limit)
}

// ResyncPlanProjection recomputes the denormalized plan fields on the user
// settings row from the subscription state.
func (s *Service) ResyncPlanProjection(ctx context.Context, userID uint) (string, error) {
	_ = ctx
	if userID == 0 {
		return "", errors.New("user_id is required")
	}

	plan := "free"
	paymentStatus := ""
	sub, err := s.repo.FindSubscriptionByUser(userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	if err == nil && sub.IsEntitling(time.Now()) && sub.Tier.Slug != "" {
		plan = sub.Tier.Slug
		paymentStatus = sub.Status
	}

	us, err := s.repo.GetOrCreateUserSettings(userID)
	if err != nil {
		return "", err
	}
	if us.Plan == plan && us.PaymentStatus == paymentStatus {
		return plan, nil
	}
	us.Plan = plan
	us.PaymentStatus = paymentStatus
	if err := s.repo.SaveUserSettings(us); err != nil {
		return "", err
	}
	return plan, nil
}

// GrantDailyBonuses appends a bonus ledger entry for every entitled
// subscription whose tier grants daily bonus credits. Returns the number of
// subscriptions credited and the total credits granted. Each grant runs in
// its own transaction so one bad row does not starve the rest.
func (s *Service) GrantDailyBonuses(ctx context.Context, now time.Time) (int, int, error) {
	_ = ctx
	subs, err := s.repo.ListBonusEligibleSubscriptions(now)
	if err != nil {
		return 0, 0, err
	}

	granted := 0
	totalCredits := 0
	for i := range subs {
		bonus := subs[i].Tier.DailyBonusCredits
		userID := subs[i].UserID
		if bonus <= 0 {
			continue
		}
		err := s.repo.Transaction(func(tx Repository) error {
			sub, err := tx.FindSubscriptionByUser(userID)
			if err != nil {
				return err
			}
			sub.CreditsBalance += bonus
			sub.CreditsBonusEarned += bonus
			if err := tx.SaveSubscription(sub); err != nil {
				return err
			}
			return tx.AppendCreditEntry(&models.CreditTransaction{
				UserID:          userID,
				SubscriptionID:  sub.ID,
				TransactionType: models.CreditTypeBonus,
				Amount:          bonus,
				BalanceAfter:    sub.CreditsBalance,
				Description:     "Daily bonus credits",
				DescriptionAr:   "رصيد المكافأة اليومية",
			})
		})
		if err != nil {
			log.Errorf("[Billing] Daily bonus grant failed for user %d: %v", userID, err)
			continue
		}
		granted++
		totalCredits += bonus
	}
	return granted, totalCredits, nil
}
