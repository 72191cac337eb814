package models

import "time"

// WebhookDelivery is the deduplication ledger for gateway webhook deliveries.
// One row per delivery attempt, keyed by the gateway's track id. The unique
// index is the claim mechanism: at most one insert per track id succeeds,
// even under concurrent requests. Rows are never deleted.
type WebhookDelivery struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	TrackID         string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_deliveries_track_id" json:"track_id"`
	OrderID         string     `gorm:"type:varchar(191);not null;index" json:"order_id"`
	PaymentID       string     `gorm:"type:varchar(191);default:''" json:"payment_id"`
	TranID          string     `gorm:"type:varchar(191);default:''" json:"tran_id"`
	Result          string     `gorm:"type:varchar(32);not null;default:''" json:"result"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
