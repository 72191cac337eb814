package models

import "time"

const (
	SubscriptionStatusTrial    = "trial"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusExpired  = "expired"
	SubscriptionStatusCanceled = "canceled"
)

// UserSubscription holds the single subscription row per user. Created on the
// first successful payment, updated on every later payment outcome, never
// hard-deleted (cancellation is a status transition handled outside the
// webhook path).
//
// CreditsBalance is a cached projection of the credit ledger; every ledger
// write updates it in the same transaction.
type UserSubscription struct {
	ID                         uint             `gorm:"primaryKey" json:"id"`
	UserID                     uint             `gorm:"not null;uniqueIndex:ux_user_subscriptions_user_id" json:"user_id"`
	TierID                     uint             `gorm:"not null;index" json:"tier_id"`
	Tier                       SubscriptionTier `gorm:"foreignKey:TierID" json:"tier,omitempty"`
	Status                     string           `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	IsTrial                    bool             `gorm:"default:false" json:"is_trial"`
	TrialEndsAt                *time.Time       `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`
	CurrentPeriodStart         time.Time        `gorm:"type:timestamp;not null" json:"current_period_start"`
	CurrentPeriodEnd           time.Time        `gorm:"type:timestamp;not null" json:"current_period_end"`
	CreditsBalance             int              `gorm:"not null;default:0" json:"credits_balance"`
	CreditsAllocatedThisPeriod int              `gorm:"not null;default:0" json:"credits_allocated_this_period"`
	CreditsBonusEarned         int              `gorm:"not null;default:0" json:"credits_bonus_earned"`
	CreditsRollover            int              `gorm:"not null;default:0" json:"credits_rollover"`
	FailedPaymentAttempts      int              `gorm:"not null;default:0" json:"failed_payment_attempts"`
	LastPaymentAmount          float64          `gorm:"type:decimal(10,3);default:0" json:"last_payment_amount"`
	LastPaymentDate            *time.Time       `gorm:"type:timestamp;default:null" json:"last_payment_date,omitempty"`
	PaymentMethod              string           `gorm:"type:varchar(32);default:''" json:"payment_method"`
	CreatedAt                  time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                  time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitling reports whether the subscription currently grants builder access.
func (s *UserSubscription) IsEntitling(now time.Time) bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrial, SubscriptionStatusPastDue:
		return now.Before(s.CurrentPeriodEnd)
	default:
		return false
	}
}
