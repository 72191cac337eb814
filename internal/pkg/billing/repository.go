package billing

import (
	"errors"
	"time"

	"github.com/binsaleem99/kwapps-sub001/app/models"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ErrDuplicateDelivery is returned by CreateDelivery when the dedup ledger's
// uniqueness constraint rejects the insert: a concurrent request (or an
// earlier one) already claimed the track id. The database, not application
// logic, is the arbiter here.
var ErrDuplicateDelivery = errors.New("webhook delivery already claimed")

// Repository provides DB operations used by the billing service.
type Repository interface {
	FindDeliveryByTrackID(trackID string) (*models.WebhookDelivery, error)
	CreateDelivery(d *models.WebhookDelivery) error
	MarkDeliveryProcessed(id uint, processingError string) error

	CreateTransaction(t *models.PaymentTransaction) error
	FindTransactionByOrderID(orderID string) (*models.PaymentTransaction, error)
	UpdateTransactionOutcome(id uint, status, gatewayTranID, paymentMethod, cardLastFour string, receivedAt time.Time) error
	LinkTransactionSubscription(transactionID, subscriptionID uint) error

	FindTierBySlug(slug string) (*models.SubscriptionTier, error)

	FindSubscriptionByUser(userID uint) (*models.UserSubscription, error)
	SaveSubscription(sub *models.UserSubscription) error
	ListBonusEligibleSubscriptions(now time.Time) ([]models.UserSubscription, error)

	AppendCreditEntry(entry *models.CreditTransaction) error
	ListCreditEntries(userID uint, limit int) ([]models.CreditTransaction, error)

	FindTrialByUser(userID uint) (*models.TrialRecord, error)
	SaveTrialRecord(rec *models.TrialRecord) error

	GetOrCreateUserSettings(userID uint) (*models.UserSettings, error)
	SaveUserSettings(us *models.UserSettings) error

	// Transaction runs fn against a repository bound to a single database
	// transaction; the webhook success path uses it to keep the subscription
	// upsert, ledger append, trial upsert and plan projection atomic.
	Transaction(fn func(Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindDeliveryByTrackID(trackID string) (*models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	if err := r.db.Where("track_id = ?", trackID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *gormRepository) CreateDelivery(d *models.WebhookDelivery) error {
	if err := r.db.Create(d).Error; err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateDelivery
		}
		return err
	}
	return nil
}

func (r *gormRepository) MarkDeliveryProcessed(id uint, processingError string) error {
	now := time.Now()
	return r.db.Model(&models.WebhookDelivery{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}).Error
}

func (r *gormRepository) CreateTransaction(t *models.PaymentTransaction) error {
	return r.db.Create(t).Error
}

func (r *gormRepository) FindTransactionByOrderID(orderID string) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	if err := r.db.Where("gateway_order_id = ?", orderID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) UpdateTransactionOutcome(id uint, status, gatewayTranID, paymentMethod, cardLastFour string, receivedAt time.Time) error {
	return r.db.Model(&models.PaymentTransaction{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":                 status,
		"gateway_transaction_id": gatewayTranID,
		"payment_method":         paymentMethod,
		"card_last_four":         cardLastFour,
		"webhook_received_at":    &receivedAt,
	}).Error
}

func (r *gormRepository) LinkTransactionSubscription(transactionID, subscriptionID uint) error {
	return r.db.Model(&models.PaymentTransaction{}).Where("id = ?", transactionID).
		Update("subscription_id", subscriptionID).Error
}

func (r *gormRepository) FindTierBySlug(slug string) (*models.SubscriptionTier, error) {
	var tier models.SubscriptionTier
	if err := r.db.Where("slug = ? AND is_active = ?", slug, true).First(&tier).Error; err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *gormRepository) FindSubscriptionByUser(userID uint) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	if err := r.db.Preload("Tier").Where("user_id = ?", userID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) SaveSubscription(sub *models.UserSubscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) ListBonusEligibleSubscriptions(now time.Time) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.
		Joins("JOIN subscription_tiers ON subscription_tiers.id = user_subscriptions.tier_id").
		Where("subscription_tiers.daily_bonus_credits > 0").
		Where("user_subscriptions.status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusTrial}).
		Where("user_subscriptions.current_period_end > ?", now).
		Preload("Tier").
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) AppendCreditEntry(entry *models.CreditTransaction) error {
	return r.db.Create(entry).Error
}

func (r *gormRepository) ListCreditEntries(userID uint, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.CreditTransaction
	err := r.db.Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

func (r *gormRepository) FindTrialByUser(userID uint) (*models.TrialRecord, error) {
	var rec models.TrialRecord
	if err := r.db.Where("user_id = ?", userID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *gormRepository) SaveTrialRecord(rec *models.TrialRecord) error {
	return r.db.Save(rec).Error
}

func (r *gormRepository) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	return models.GetOrCreateUserSettings(r.db, userID)
}

func (r *gormRepository) SaveUserSettings(us *models.UserSettings) error {
	return r.db.Save(us).Error
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

// isDuplicateKeyError detects a uniqueness-constraint violation across GORM's
// translated error and the raw MySQL 1062 code.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
