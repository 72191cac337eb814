package repository

import (
	"time"

	"github.com/binsaleem99/kwapps-sub001/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
	GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error)
}

// TierRepository defines the interface for subscription tier catalog operations
type TierRepository interface {
	Create(tier *models.SubscriptionTier) error
	GetByID(id uint) (*models.SubscriptionTier, error)
	GetBySlug(slug string) (*models.SubscriptionTier, error)
	GetActive() ([]models.SubscriptionTier, error)
	GetAll() ([]models.SubscriptionTier, error)
	Update(tier *models.SubscriptionTier) error
	Deactivate(id uint) error
	SlugExists(slug string) (bool, error)
}

// SettingRepository defines the interface for application settings
type SettingRepository interface {
	Get() (*models.AppSettings, error)
	Save(settings *models.AppSettings) error
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}

// QueueRepository defines the interface for cache/queue operations
type QueueRepository interface {
	GetAllKeys() ([]string, error)
	GetValue(key string) (string, error)
	GetTTL(key string) (time.Duration, error)
	DeleteKey(key string) (int64, error)
	GetListLength(key string) (int64, error)
	FindKeysByPatterns(patterns []string) ([]string, error)
	DeleteKeys(keys []string) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User    UserRepository
	Tier    TierRepository
	Setting SettingRepository
	Queue   QueueRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Tier:    NewTierRepository(db),
		Setting: NewSettingRepository(db),
		Queue:   NewQueueRepository(),
	}
}
