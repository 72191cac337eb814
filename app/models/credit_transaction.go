package models

import "time"

const (
	CreditTypeAllocation = "allocation"
	CreditTypeDeduction  = "deduction"
	CreditTypeBonus      = "bonus"
	CreditTypeRollover   = "rollover"
)

// CreditTransaction is one append-only ledger row per credit movement.
// Entries are immutable once written; corrections are new offsetting entries.
// The model intentionally has no update helpers and no soft-delete column.
type CreditTransaction struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	SubscriptionID  uint      `gorm:"not null;index" json:"subscription_id"`
	TransactionType string    `gorm:"type:varchar(20);not null;index" json:"transaction_type"`
	Amount          int       `gorm:"not null" json:"amount"`
	BalanceAfter    int       `gorm:"not null" json:"balance_after"`
	Description     string    `gorm:"type:varchar(255);default:''" json:"description"`
	DescriptionAr   string    `gorm:"type:varchar(255);default:''" json:"description_ar"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// SignedAmount returns the ledger delta: deductions count negative, all other
// entry types positive.
func (c *CreditTransaction) SignedAmount() int {
	if c.TransactionType == CreditTypeDeduction {
		return -c.Amount
	}
	return c.Amount
}
