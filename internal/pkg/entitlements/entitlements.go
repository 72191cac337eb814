package entitlements

import (
	"strings"
	"time"

	"github.com/binsaleem99/kwapps-sub001/app/models"
)

type Plan string

const (
	PlanFree  Plan = "free"
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
)

// Features is the feature set a plan unlocks in the builder.
type Features struct {
	MaxSites     int
	CustomDomain bool
	AIBoost      bool
}

// PlanFeatures returns the baseline feature set for a plan slug when no tier
// row is available (the free plan has no tier row at all).
func PlanFeatures(plan Plan) Features {
	switch plan {
	case PlanPro:
		return Features{MaxSites: 10, CustomDomain: true, AIBoost: true}
	case PlanBasic:
		return Features{MaxSites: 3, CustomDomain: true, AIBoost: false}
	default:
		return Features{MaxSites: 1, CustomDomain: false, AIBoost: false}
	}
}

// ForSubscription derives the effective feature set from a subscription and
// its tier. A subscription that no longer entitles falls back to free.
func ForSubscription(sub *models.UserSubscription, now time.Time) Features {
	if sub == nil || !sub.IsEntitling(now) {
		return PlanFeatures(PlanFree)
	}
	if sub.Tier.ID == 0 {
		// Tier not preloaded; the slug-based baseline is all we can offer.
		return PlanFeatures(Plan(strings.ToLower(sub.Tier.Slug)))
	}
	return Features{
		MaxSites:     sub.Tier.MaxSites,
		CustomDomain: sub.Tier.CustomDomain,
		AIBoost:      sub.Tier.AIBoost,
	}
}

// ForSettings derives the feature set from the denormalized plan projection
// on the user settings row; used on hot paths that must not join the
// subscription table.
func ForSettings(us *models.UserSettings) Features {
	if us == nil {
		return PlanFeatures(PlanFree)
	}
	return PlanFeatures(Plan(strings.ToLower(us.Plan)))
}

// CanUseCredits reports whether the subscription permits spending credits.
func CanUseCredits(sub *models.UserSubscription, now time.Time) bool {
	return sub != nil && sub.IsEntitling(now) && sub.CreditsBalance > 0
}
