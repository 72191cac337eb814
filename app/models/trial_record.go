package models

import "time"

const (
	TrialPaymentPending = "pending"
	TrialPaymentPaid    = "paid"
	TrialPaymentFailed  = "failed"
)

// TrialRecord tracks trial-specific dates and payment state, one row per user
// who has ever purchased a trial. Upserted by the webhook path when the
// originating transaction carries the is_trial flag.
type TrialRecord struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;uniqueIndex:ux_trial_records_user_id" json:"user_id"`
	SubscriptionID       *uint      `gorm:"index" json:"subscription_id,omitempty"`
	TrialPrice           float64    `gorm:"type:decimal(10,3);default:0" json:"trial_price"`
	TrialDurationDays    int        `gorm:"not null;default:0" json:"trial_duration_days"`
	StartedAt            *time.Time `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	EndsAt               *time.Time `gorm:"type:timestamp;default:null" json:"ends_at,omitempty"`
	PaymentStatus        string     `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	PaymentTransactionID *uint      `gorm:"index" json:"payment_transaction_id,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
