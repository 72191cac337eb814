package models

import (
	"encoding/json"
	"time"
)

const (
	TransactionStatusPending  = "pending"
	TransactionStatusSuccess  = "success"
	TransactionStatusFailed   = "failed"
	TransactionStatusCanceled = "canceled"
)

// TransactionMetadata is frozen onto the transaction at checkout time so later
// tier edits cannot retroactively change an in-flight payment.
type TransactionMetadata struct {
	TierSlug          string `json:"tier_slug"`
	TierName          string `json:"tier_name"`
	TierNameAr        string `json:"tier_name_ar"`
	IsTrial           bool   `json:"is_trial"`
	CreditsPerMonth   int    `json:"credits_per_month"`
	DailyBonusCredits int    `json:"daily_bonus_credits"`
	TrialDays         int    `json:"trial_days"`
}

// PaymentTransaction is one row per payment attempt initiated by the platform.
// Created as "pending" by the checkout flow; moved exactly once to a terminal
// status when the gateway webhook arrives.
type PaymentTransaction struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;index" json:"user_id"`
	SubscriptionID       *uint      `gorm:"index" json:"subscription_id,omitempty"`
	Amount               float64    `gorm:"type:decimal(10,3);not null" json:"amount"`
	Status               string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	GatewayOrderID       string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"gateway_order_id"`
	GatewayTransactionID string     `gorm:"type:varchar(191);default:''" json:"gateway_transaction_id"`
	PaymentMethod        string     `gorm:"type:varchar(32);default:''" json:"payment_method"`
	CardLastFour         string     `gorm:"type:varchar(4);default:''" json:"card_last_four"`
	MetadataJSON         string     `gorm:"type:text" json:"-"`
	WebhookReceivedAt    *time.Time `gorm:"type:timestamp;default:null" json:"webhook_received_at,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Metadata decodes the frozen tier metadata.
func (t *PaymentTransaction) Metadata() (TransactionMetadata, error) {
	var m TransactionMetadata
	if t.MetadataJSON == "" {
		return m, nil
	}
	err := json.Unmarshal([]byte(t.MetadataJSON), &m)
	return m, err
}

// SetMetadata encodes and freezes the tier metadata on the transaction.
func (t *PaymentTransaction) SetMetadata(m TransactionMetadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	t.MetadataJSON = string(data)
	return nil
}

// IsTerminal reports whether the transaction already carries a final status.
func (t *PaymentTransaction) IsTerminal() bool {
	return t.Status != TransactionStatusPending
}
