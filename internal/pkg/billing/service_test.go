package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/binsaleem99/kwapps-sub001/app/models"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeRepo is an in-memory Repository used to test the service's state
// machine without a database. The mutex plays the role of the unique index:
// CreateDelivery rejects a second insert for the same track id atomically.
type fakeRepo struct {
	mu sync.Mutex

	deliveries    map[string]*models.WebhookDelivery
	transactions  map[string]*models.PaymentTransaction
	tiers         map[string]*models.SubscriptionTier
	subscriptions map[uint]*models.UserSubscription
	credits       []models.CreditTransaction
	trials        map[uint]*models.TrialRecord
	settings      map[uint]*models.UserSettings

	nextID uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		deliveries:    make(map[string]*models.WebhookDelivery),
		transactions:  make(map[string]*models.PaymentTransaction),
		tiers:         make(map[string]*models.SubscriptionTier),
		subscriptions: make(map[uint]*models.UserSubscription),
		trials:        make(map[uint]*models.TrialRecord),
		settings:      make(map[uint]*models.UserSettings),
	}
}

func (f *fakeRepo) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) FindDeliveryByTrackID(trackID string) (*models.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.deliveries[trackID]; ok {
		c := *d
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) CreateDelivery(d *models.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.deliveries[d.TrackID]; ok {
		return ErrDuplicateDelivery
	}
	d.ID = f.id()
	f.deliveries[d.TrackID] = d
	return nil
}

func (f *fakeRepo) MarkDeliveryProcessed(id uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, d := range f.deliveries {
		if d.ID == id {
			d.ProcessedAt = &now
			d.ProcessingError = processingError
		}
	}
	return nil
}

func (f *fakeRepo) CreateTransaction(t *models.PaymentTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = f.id()
	f.transactions[t.GatewayOrderID] = t
	return nil
}

func (f *fakeRepo) FindTransactionByOrderID(orderID string) (*models.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.transactions[orderID]; ok {
		c := *t
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) UpdateTransactionOutcome(id uint, status, gatewayTranID, paymentMethod, cardLastFour string, receivedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transactions {
		if t.ID == id {
			t.Status = status
			t.GatewayTransactionID = gatewayTranID
			t.PaymentMethod = paymentMethod
			t.CardLastFour = cardLastFour
			t.WebhookReceivedAt = &receivedAt
		}
	}
	return nil
}

func (f *fakeRepo) LinkTransactionSubscription(transactionID, subscriptionID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transactions {
		if t.ID == transactionID {
			t.SubscriptionID = &subscriptionID
		}
	}
	return nil
}

func (f *fakeRepo) FindTierBySlug(slug string) (*models.SubscriptionTier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tier, ok := f.tiers[slug]; ok {
		c := *tier
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindSubscriptionByUser(userID uint) (*models.UserSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subscriptions[userID]; ok {
		c := *s
		for _, tier := range f.tiers {
			if tier.ID == c.TierID {
				c.Tier = *tier
			}
		}
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) SaveSubscription(sub *models.UserSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub.ID == 0 {
		sub.ID = f.id()
	}
	c := *sub
	f.subscriptions[sub.UserID] = &c
	return nil
}

func (f *fakeRepo) ListBonusEligibleSubscriptions(now time.Time) ([]models.UserSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.UserSubscription
	for _, s := range f.subscriptions {
		c := *s
		for _, tier := range f.tiers {
			if tier.ID == c.TierID {
				c.Tier = *tier
			}
		}
		eligible := c.Status == models.SubscriptionStatusActive || c.Status == models.SubscriptionStatusTrial
		if eligible && c.Tier.DailyBonusCredits > 0 && c.CurrentPeriodEnd.After(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRepo) AppendCreditEntry(entry *models.CreditTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = f.id()
	entry.CreatedAt = time.Now()
	f.credits = append(f.credits, *entry)
	return nil
}

func (f *fakeRepo) ListCreditEntries(userID uint, limit int) ([]models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CreditTransaction
	for i := len(f.credits) - 1; i >= 0 && len(out) < limit; i-- {
		if f.credits[i].UserID == userID {
			out = append(out, f.credits[i])
		}
	}
	return out, nil
}

func (f *fakeRepo) FindTrialByUser(userID uint) (*models.TrialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.trials[userID]; ok {
		c := *r
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) SaveTrialRecord(rec *models.TrialRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = f.id()
	}
	c := *rec
	f.trials[rec.UserID] = &c
	return nil
}

func (f *fakeRepo) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.settings[userID]; ok {
		c := *s
		return &c, nil
	}
	s := &models.UserSettings{UserID: userID, Plan: "free"}
	s.ID = f.id()
	f.settings[userID] = s
	c := *s
	return &c, nil
}

func (f *fakeRepo) SaveUserSettings(us *models.UserSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *us
	f.settings[us.UserID] = &c
	return nil
}

func (f *fakeRepo) Transaction(fn func(Repository) error) error {
	return fn(f)
}

func seedTier(f *fakeRepo, tier models.SubscriptionTier) *models.SubscriptionTier {
	f.mu.Lock()
	defer f.mu.Unlock()
	tier.ID = f.id()
	tier.IsActive = true
	f.tiers[tier.Slug] = &tier
	return &tier
}

func seedPendingTransaction(t *testing.T, f *fakeRepo, userID uint, orderID string, tier *models.SubscriptionTier) *models.PaymentTransaction {
	t.Helper()
	txn := &models.PaymentTransaction{
		UserID:         userID,
		Amount:         tier.PriceKWD,
		Status:         models.TransactionStatusPending,
		GatewayOrderID: orderID,
	}
	require.NoError(t, txn.SetMetadata(models.TransactionMetadata{
		TierSlug:          tier.Slug,
		TierName:          tier.Name,
		TierNameAr:        tier.NameAr,
		IsTrial:           tier.IsTrial,
		CreditsPerMonth:   tier.CreditsPerMonth,
		DailyBonusCredits: tier.DailyBonusCredits,
		TrialDays:         tier.TrialDays,
	}))
	require.NoError(t, f.CreateTransaction(txn))
	return txn
}

func capturedPayload(orderID, trackID string) WebhookPayload {
	return WebhookPayload{
		OrderID:     orderID,
		TrackID:     trackID,
		PaymentID:   "PAY-" + trackID,
		TranID:      "TX-" + trackID,
		Result:      "CAPTURED",
		PaymentType: "knet",
		Amount:      json.Number("10.000"),
	}
}

func proTier() models.SubscriptionTier {
	return models.SubscriptionTier{
		Slug:              "pro",
		Name:              "Pro",
		NameAr:            "برو",
		PriceKWD:          10,
		CreditsPerMonth:   1000,
		DailyBonusCredits: 10,
		MaxSites:          5,
	}
}

func trialTier() models.SubscriptionTier {
	return models.SubscriptionTier{
		Slug:            "trial-week",
		Name:            "Trial Week",
		NameAr:          "أسبوع تجريبي",
		PriceKWD:        1,
		CreditsPerMonth: 500,
		IsTrial:         true,
		TrialDays:       7,
	}
}

func TestProcessWebhookCapturedActivatesSubscription(t *testing.T) {
	repo := newFakeRepo()
	tier := seedTier(repo, proTier())
	txn := seedPendingTransaction(t, repo, 42, "kwapps-order-1", tier)
	svc := NewService(repo, nil)

	out, err := svc.ProcessWebhook(context.Background(), capturedPayload("kwapps-order-1", "TRK-1"), []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.False(t, out.Duplicate)
	assert.Equal(t, "subscription activated", out.Status)
	assert.Equal(t, uint(42), out.UserID)
	assert.Equal(t, 1000, out.CreditsAllocated)

	sub, err := repo.FindSubscriptionByUser(42)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, tier.ID, sub.TierID)
	assert.Equal(t, 1000, sub.CreditsBalance)
	assert.Equal(t, 1000, sub.CreditsAllocatedThisPeriod)
	assert.Equal(t, 0, sub.FailedPaymentAttempts)
	assert.Equal(t, "knet", sub.PaymentMethod)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), sub.CurrentPeriodEnd, 5*time.Second)

	stored, err := repo.FindTransactionByOrderID("kwapps-order-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusSuccess, stored.Status)
	assert.Equal(t, "TX-TRK-1", stored.GatewayTransactionID)
	require.NotNil(t, stored.SubscriptionID)
	assert.Equal(t, sub.ID, *stored.SubscriptionID)
	_ = txn

	entries, err := repo.ListCreditEntries(42, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.CreditTypeAllocation, entries[0].TransactionType)
	assert.Equal(t, 1000, entries[0].Amount)
	assert.Equal(t, 1000, entries[0].BalanceAfter)
	assert.Contains(t, entries[0].Description, "Pro")
	assert.NotEmpty(t, entries[0].DescriptionAr)

	settings, err := repo.GetOrCreateUserSettings(42)
	require.NoError(t, err)
	assert.Equal(t, "pro", settings.Plan)
	assert.Equal(t, models.SubscriptionStatusActive, settings.PaymentStatus)
	require.NotNil(t, settings.PaymentVerifiedAt)

	delivery, err := repo.FindDeliveryByTrackID("TRK-1")
	require.NoError(t, err)
	require.NotNil(t, delivery.ProcessedAt)
	assert.Empty(t, delivery.ProcessingError)
}

func TestProcessWebhookDuplicateDelivery(t *testing.T) {
	repo := newFakeRepo()
	tier := seedTier(repo, proTier())
	seedPendingTransaction(t, repo, 42, "kwapps-order-1", tier)
	svc := NewService(repo, nil)

	_, err := svc.ProcessWebhook(context.Background(), capturedPayload("kwapps-order-1", "TRK-1"), []byte(`{}`))
	require.NoError(t, err)

	out, err := svc.ProcessWebhook(context.Background(), capturedPayload("kwapps-order-1", "TRK-1"), []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.True(t, out.Duplicate)
	assert.Equal(t, "already processed", out.Status)

	entries, err := repo.ListCreditEntries(42, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcessWebhookConcurrentSameTrackID(t *testing.T) {
	repo := newFakeRepo()
	tier := seedTier(repo, proTier())
	seedPendingTransaction(t, repo, 42, "kwapps-order-1", tier)
	svc := NewService(repo, nil)

	const n = 16
	var wg sync.WaitGroup
	outcomes := make([]Outcome, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = svc.ProcessWebhook(context.Background(), capturedPayload("kwapps-order-1", "TRK-RACE"), []byte(`{}`))
		}(i)
	}
	wg.Wait()

	owned := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.True(t, outcomes[i].Success)
		if outcomes[i].Status == "subscription activated" {
			owned++
		}
	}
	assert.Equal(t, 1, owned)

	entries, err := repo.ListCreditEntries(42, 100)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	sub, err := repo.FindSubscriptionByUser(42)
	require.NoError(t, err)
	assert.Equal(t, 1000, sub.CreditsBalance)
}

func TestProcessWebhookRenewalResetsCredits(t *testing.T) {
	repo := newFakeRepo()
	tier := seedTier(repo, proTier())
	seedPendingTransaction(t, repo, 42, "kwapps-order-1", tier)
	seedPendingTransaction(t, repo, 42, "kwapps-order-2", tier)
	svc := NewService(repo, nil)

	_, err := svc.ProcessWebhook(context.Background(), capturedPayload("kwapps-order-1", "TRK-1"), []byte(`{}`))
	require.NoError(t, err)

	// Simulate mid-period usage and earned bonuses.
	sub, err := repo.FindSubscriptionByUser(42)
	require.NoError(t, err)
	sub.CreditsBalance = 37
	sub.CreditsBonusEarned = 80
	sub.FailedPaymentAttempts = 2
	require.NoError(t, repo.SaveSubscription(sub))

	_, err = svc.ProcessWebhook(context.Background(), capturedPayload("kwapps-order-2", "TRK-2"), []byte(`{}`))
	require.NoError(t, err)

	sub, err = repo.FindSubscriptionByUser(42)
	require.NoError(t, err)
	assert.Equal(t, 1000, sub.CreditsBalance, "renewal resets, never accumulates")
	assert.Equal(t, 0, sub.CreditsBonusEarned)
	assert.Equal(t, 0, sub.FailedPaymentAttempts)

	entries, err := repo.ListCreditEntries(42, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1000, entries[0].BalanceAfter)
}

func TestProcessWebhookSettledOrderNewTrackID(t *testing.T) {
	repo := newFakeRepo()
	tier := seedTier(repo, proTier())
	seedPendingTransaction(t, repo, 42, "kwapps-order-1", tier)
	svc := NewService(repo, nil)

	_, err := svc.ProcessWebhook(context.Background(), capturedPayload("kwapps-order-1", "TRK-1"), []byte(`{}`))
	require.NoError(t, err)

	// Same order, fresh track id: passes dedup, but the settled transaction
	// must keep its first outcome and no second allocation may happen.
	payload := capturedPayload("kwapps-order-1", "TRK-2")
	payload.Result = "NOT CAPTURED"
	out, err := svc.ProcessWebhook(context.Background(), payload, []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "already processed", out.Status)

	stored, err := repo.FindTransactionByOrderID("kwapps-order-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusSuccess, stored.Status)
	assert.Equal(t, "TX-TRK-1", stored.GatewayTransactionID)

	entries, err := repo.ListCreditEntries(42, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	sub, err := repo.FindSubscriptionByUser(42)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.FailedPaymentAttempts)

	delivery, err := repo.FindDeliveryByTrackID("TRK-2")
	require.NoError(t, err)
	require.NotNil(t, delivery.ProcessedAt)
	assert.Contains(t, delivery.ProcessingError, "already settled")
}

func TestProcessWebhookFailureEscalation(t *testing.T) {
	repo := newFakeRepo()
	tier := seedTier(repo, proTier())
	seedPendingTransaction(t, repo, 42, "kwapps-order-0", tier)
	svc := NewService(repo, nil)

	_, err := svc.ProcessWebhook(context.Background(), capturedPayload("kwapps-order-0", "TRK-0"), []byte(`{}`))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		orderID := fmt.Sprintf("kwapps-order-%d", i)
		seedPendingTransaction(t, repo, 42, orderID, tier)
		payload := capturedPayload(orderID, fmt.Sprintf("TRK-%d", i))
		payload.Result = "NOT CAPTURED"

		out, err := svc.ProcessWebhook(context.Background(), payload, []byte(`{}`))
		require.NoError(t, err)
		assert.True(t, out.Success)
		assert.Equal(t, "payment failure recorded", out.Status)

		sub, err := repo.FindSubscriptionByUser(42)
		require.NoError(t, err)
		assert.Equal(t, i, sub.FailedPaymentAttempts)
		if i < 3 {
			assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
		} else {
			assert.Equal(t, models.SubscriptionStatusExpired, sub.Status)
		}
	}

	// A later successful payment reactivates and clears the counter.
	seedPendingTransaction(t, repo, 42, "kwapps-order-9", tier)
	_, err = svc.ProcessWebhook(context.Background(), capturedPayload("kwapps-order-9", "TRK-9"), []byte(`{}`))
	require.NoError(t, err)

	sub, err := repo.FindSubscriptionByUser(42)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, 0, sub.FailedPaymentAttempts)
}

func TestProcessWebhookTrialActivation(t *testing.T) {
	repo := newFakeRepo()
	tier := seedTier(repo, trialTier())
	txn := seedPendingTransaction(t, repo, 7, "kwapps-trial-1", tier)
	svc := NewService(repo, nil)

	payload := capturedPayload("kwapps-trial-1", "TRK-T1")
	payload.Amount = json.Number("1.000")
	out, err := svc.ProcessWebhook(context.Background(), payload, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "trial activated", out.Status)

	sub, err := repo.FindSubscriptionByUser(7)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusTrial, sub.Status)
	assert.True(t, sub.IsTrial)
	require.NotNil(t, sub.TrialEndsAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), *sub.TrialEndsAt, 5*time.Second)
	assert.Equal(t, 500, sub.CreditsBalance)

	rec, err := repo.FindTrialByUser(7)
	require.NoError(t, err)
	assert.Equal(t, models.TrialPaymentPaid, rec.PaymentStatus)
	assert.Equal(t, 7, rec.TrialDurationDays)
	require.NotNil(t, rec.PaymentTransactionID)
	assert.Equal(t, txn.ID, *rec.PaymentTransactionID)
	assert.InDelta(t, 1.0, rec.TrialPrice, 0.0001)
}

func TestProcessWebhookTrialPaymentFailure(t *testing.T) {
	repo := newFakeRepo()
	tier := seedTier(repo, trialTier())
	seedPendingTransaction(t, repo, 7, "kwapps-trial-1", tier)
	require.NoError(t, repo.SaveTrialRecord(&models.TrialRecord{UserID: 7, PaymentStatus: models.TrialPaymentPending}))
	svc := NewService(repo, nil)

	payload := capturedPayload("kwapps-trial-1", "TRK-T1")
	payload.Result = "DECLINED"
	out, err := svc.ProcessWebhook(context.Background(), payload, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, out.Success)

	rec, err := repo.FindTrialByUser(7)
	require.NoError(t, err)
	assert.Equal(t, models.TrialPaymentFailed, rec.PaymentStatus)
}

func TestProcessWebhookCanceled(t *testing.T) {
	repo := newFakeRepo()
	tier := seedTier(repo, proTier())
	seedPendingTransaction(t, repo, 42, "kwapps-order-1", tier)
	svc := NewService(repo, nil)

	payload := capturedPayload("kwapps-order-1", "TRK-1")
	payload.Result = "VOIDED"
	out, err := svc.ProcessWebhook(context.Background(), payload, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "payment cancellation acknowledged", out.Status)

	stored, err := repo.FindTransactionByOrderID("kwapps-order-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCanceled, stored.Status)

	_, err = repo.FindSubscriptionByUser(42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestProcessWebhookUnknownResult(t *testing.T) {
	repo := newFakeRepo()
	tier := seedTier(repo, proTier())
	seedPendingTransaction(t, repo, 42, "kwapps-order-1", tier)
	svc := NewService(repo, nil)

	payload := capturedPayload("kwapps-order-1", "TRK-1")
	payload.Result = "SOMETHING_NEW"
	out, err := svc.ProcessWebhook(context.Background(), payload, []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "unknown payment result", out.Status)

	stored, err := repo.FindTransactionByOrderID("kwapps-order-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, stored.Status, "unknown results leave the transaction untouched")

	delivery, err := repo.FindDeliveryByTrackID("TRK-1")
	require.NoError(t, err)
	require.NotNil(t, delivery.ProcessedAt)
	assert.Contains(t, delivery.ProcessingError, "SOMETHING_NEW")
}

func TestProcessWebhookUnknownOrder(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	out, err := svc.ProcessWebhook(context.Background(), capturedPayload("kwapps-nope", "TRK-1"), []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "transaction not found", out.Status)

	delivery, err := repo.FindDeliveryByTrackID("TRK-1")
	require.NoError(t, err)
	require.NotNil(t, delivery.ProcessedAt)
	assert.Contains(t, delivery.ProcessingError, "kwapps-nope")
}

func TestProcessWebhookUnknownTier(t *testing.T) {
	repo := newFakeRepo()
	tier := proTier()
	tier.ID = 999
	txn := &models.PaymentTransaction{UserID: 42, Amount: 10, Status: models.TransactionStatusPending, GatewayOrderID: "kwapps-order-1"}
	require.NoError(t, txn.SetMetadata(models.TransactionMetadata{TierSlug: "removed-tier", CreditsPerMonth: 100}))
	require.NoError(t, repo.CreateTransaction(txn))
	svc := NewService(repo, nil)

	out, err := svc.ProcessWebhook(context.Background(), capturedPayload("kwapps-order-1", "TRK-1"), []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "tier not found", out.Status)
}

type fakeCharger struct {
	lastReq ChargeRequest
	link    string
	err     error
}

func (f *fakeCharger) CreateCharge(_ context.Context, req ChargeRequest) (string, error) {
	f.lastReq = req
	return f.link, f.err
}

func TestCreateCheckout(t *testing.T) {
	repo := newFakeRepo()
	seedTier(repo, proTier())
	charger := &fakeCharger{link: "https://pay.example.com/p/abc"}
	svc := NewService(repo, charger)

	res, err := svc.CreateCheckout(context.Background(), 42, "pro", "Ahmed", "ahmed@example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/p/abc", res.PaymentLink)
	assert.True(t, strings.HasPrefix(res.OrderID, "kwapps-"))

	txn, err := repo.FindTransactionByOrderID(res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, txn.Status)
	assert.InDelta(t, 10.0, txn.Amount, 0.0001)

	meta, err := txn.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "pro", meta.TierSlug)
	assert.Equal(t, 1000, meta.CreditsPerMonth)
	assert.False(t, meta.IsTrial)

	assert.Equal(t, res.OrderID, charger.lastReq.OrderID)
	assert.Equal(t, "ahmed@example.com", charger.lastReq.CustomerEmail)

	// The NotifyURL handed to the gateway must point at the path the webhook
	// handler is actually mounted on.
	notify, err := url.Parse(charger.lastReq.NotifyURL)
	require.NoError(t, err)
	assert.Equal(t, constants.BillingWebhookRoute, notify.Path)
}

func TestCreateCheckoutUnknownTier(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, &fakeCharger{})
	_, err := svc.CreateCheckout(context.Background(), 42, "no-such-tier", "", "")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestGrantDailyBonuses(t *testing.T) {
	repo := newFakeRepo()
	pro := seedTier(repo, proTier())
	seedPendingTransaction(t, repo, 42, "kwapps-order-1", pro)
	svc := NewService(repo, nil)

	_, err := svc.ProcessWebhook(context.Background(), capturedPayload("kwapps-order-1", "TRK-1"), []byte(`{}`))
	require.NoError(t, err)

	// An expired subscription for another user must not receive bonuses.
	require.NoError(t, repo.SaveSubscription(&models.UserSubscription{
		UserID: 99, TierID: pro.ID, Status: models.SubscriptionStatusExpired,
		CurrentPeriodEnd: time.Now().AddDate(0, 0, 10),
	}))

	granted, totalCredits, err := svc.GrantDailyBonuses(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, granted)
	assert.Equal(t, 10, totalCredits)

	sub, err := repo.FindSubscriptionByUser(42)
	require.NoError(t, err)
	assert.Equal(t, 1010, sub.CreditsBalance)
	assert.Equal(t, 10, sub.CreditsBonusEarned)

	entries, err := repo.ListCreditEntries(42, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.CreditTypeBonus, entries[0].TransactionType)
	assert.Equal(t, 1010, entries[0].BalanceAfter)
}

func TestResyncPlanProjection(t *testing.T) {
	repo := newFakeRepo()
	pro := seedTier(repo, proTier())
	seedPendingTransaction(t, repo, 42, "kwapps-order-1", pro)
	svc := NewService(repo, nil)

	_, err := svc.ProcessWebhook(context.Background(), capturedPayload("kwapps-order-1", "TRK-1"), []byte(`{}`))
	require.NoError(t, err)

	plan, err := svc.ResyncPlanProjection(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "pro", plan)

	// Expire the subscription; the projection must fall back to free.
	sub, err := repo.FindSubscriptionByUser(42)
	require.NoError(t, err)
	sub.Status = models.SubscriptionStatusExpired
	require.NoError(t, repo.SaveSubscription(sub))

	plan, err = svc.ResyncPlanProjection(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "free", plan)

	settings, err := repo.GetOrCreateUserSettings(42)
	require.NoError(t, err)
	assert.Equal(t, "free", settings.Plan)

	// A user with no subscription at all is also free.
	plan, err = svc.ResyncPlanProjection(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, "free", plan)
}
