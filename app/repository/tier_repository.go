package repository

import (
	"github.com/binsaleem99/kwapps-sub001/app/models"
	"gorm.io/gorm"
)

// tierRepository implements the TierRepository interface
type tierRepository struct {
	db *gorm.DB
}

// NewTierRepository creates a new subscription tier repository instance
func NewTierRepository(db *gorm.DB) TierRepository {
	return &tierRepository{db: db}
}

// Create creates a new tier in the catalog
func (r *tierRepository) Create(tier *models.SubscriptionTier) error {
	if err := tier.Validate(); err != nil {
		return err
	}
	return r.db.Create(tier).Error
}

// GetByID retrieves a tier by its ID
func (r *tierRepository) GetByID(id uint) (*models.SubscriptionTier, error) {
	var tier models.SubscriptionTier
	if err := r.db.First(&tier, id).Error; err != nil {
		return nil, err
	}
	return &tier, nil
}

// GetBySlug retrieves a tier by its slug, active or not
func (r *tierRepository) GetBySlug(slug string) (*models.SubscriptionTier, error) {
	var tier models.SubscriptionTier
	if err := r.db.Where("slug = ?", slug).First(&tier).Error; err != nil {
		return nil, err
	}
	return &tier, nil
}

// GetActive lists purchasable tiers ordered for display
func (r *tierRepository) GetActive() ([]models.SubscriptionTier, error) {
	var tiers []models.SubscriptionTier
	err := r.db.Where("is_active = ?", true).Order("sort_order ASC, price_kwd ASC").Find(&tiers).Error
	return tiers, err
}

// GetAll lists every tier including deactivated ones
func (r *tierRepository) GetAll() ([]models.SubscriptionTier, error) {
	var tiers []models.SubscriptionTier
	err := r.db.Order("sort_order ASC, price_kwd ASC").Find(&tiers).Error
	return tiers, err
}

// Update saves changes to an existing tier
func (r *tierRepository) Update(tier *models.SubscriptionTier) error {
	if err := tier.Validate(); err != nil {
		return err
	}
	return r.db.Save(tier).Error
}

// Deactivate hides a tier from the catalog without deleting it; in-flight
// payments keep their frozen metadata.
func (r *tierRepository) Deactivate(id uint) error {
	return r.db.Model(&models.SubscriptionTier{}).Where("id = ?", id).Update("is_active", false).Error
}

// SlugExists reports whether a tier with the slug already exists
func (r *tierRepository) SlugExists(slug string) (bool, error) {
	var count int64
	err := r.db.Model(&models.SubscriptionTier{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}
