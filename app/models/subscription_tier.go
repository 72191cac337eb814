package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// SubscriptionTier is a catalog entry defining price, bilingual names and the
// monthly credit grant for a plan. Tier values relevant to an in-flight
// payment are frozen into the transaction metadata at checkout, so edits here
// never change a pending payment retroactively.
type SubscriptionTier struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Slug              string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"slug" validate:"required,min=2,max=50"`
	Name              string    `gorm:"type:varchar(100);not null" json:"name" validate:"required,max=100"`
	NameAr            string    `gorm:"type:varchar(100);default:''" json:"name_ar" validate:"max=100"`
	PriceKWD          float64   `gorm:"type:decimal(10,3);not null" json:"price_kwd" validate:"gte=0"`
	CreditsPerMonth   int       `gorm:"not null;default:0" json:"credits_per_month" validate:"gte=0"`
	DailyBonusCredits int       `gorm:"not null;default:0" json:"daily_bonus_credits" validate:"gte=0"`
	IsTrial           bool      `gorm:"default:false" json:"is_trial"`
	TrialDays         int       `gorm:"not null;default:0" json:"trial_days" validate:"gte=0"`
	MaxSites          int       `gorm:"not null;default:1" json:"max_sites" validate:"gte=1"`
	CustomDomain      bool      `gorm:"default:false" json:"custom_domain"`
	AIBoost           bool      `gorm:"default:false" json:"ai_boost"`
	IsActive          bool      `gorm:"default:true;index" json:"is_active"`
	SortOrder         int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *SubscriptionTier) Validate() error {
	v := validator.New()

	return v.Struct(t)
}
