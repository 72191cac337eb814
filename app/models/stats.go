package models

import "time"

// DailyStats is the JSON shape used by stats endpoints
type DailyStats struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// BillingDailyStat aggregates billing activity per day. Rows are written by
// the counter flush worker draining Redis counters; see metrics/counter.
type BillingDailyStat struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	StatDate          string    `gorm:"type:varchar(10);not null;uniqueIndex:ux_billing_daily_stats_date" json:"stat_date"`
	WebhooksReceived  int       `gorm:"not null;default:0" json:"webhooks_received"`
	WebhooksDuplicate int       `gorm:"not null;default:0" json:"webhooks_duplicate"`
	WebhooksProcessed int       `gorm:"not null;default:0" json:"webhooks_processed"`
	WebhooksFailed    int       `gorm:"not null;default:0" json:"webhooks_failed"`
	CreditsAllocated  int       `gorm:"not null;default:0" json:"credits_allocated"`
	CreditsBonus      int       `gorm:"not null;default:0" json:"credits_bonus"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
