package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/binsaleem99/kwapps-sub001/app/models"
	"github.com/binsaleem99/kwapps-sub001/app/repository"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/database"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/jobqueue"
)

// HandleAdminBillingStats returns the aggregated daily billing counters plus
// user signups for a date range. Defaults to the last 30 days.
func HandleAdminBillingStats(c *fiber.Ctx) error {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	if v := strings.TrimSpace(c.Query("start")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid 'start' date, expected YYYY-MM-DD"})
		}
		start = t
	}
	if v := strings.TrimSpace(c.Query("end")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid 'end' date, expected YYYY-MM-DD"})
		}
		end = t.Add(24*time.Hour - time.Second)
	}
	if end.Before(start) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "'end' must not be before 'start'"})
	}

	var stats []models.BillingDailyStat
	err := database.GetDB().
		Where("stat_date BETWEEN ? AND ?", start.Format("2006-01-02"), end.Format("2006-01-02")).
		Order("stat_date ASC").
		Find(&stats).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load billing stats"})
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	signups, err := userRepo.GetDailyStats(start, end)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load signup stats"})
	}

	return c.JSON(fiber.Map{
		"start":   start.Format("2006-01-02"),
		"end":     end.Format("2006-01-02"),
		"billing": stats,
		"signups": signups,
	})
}

// HandleAdminRunBonusSweep triggers the daily bonus sweep out of schedule.
// The per-date Redis guard still applies, so re-triggering on a day that has
// already been swept is a no-op inside the job.
func HandleAdminRunBonusSweep(c *fiber.Ctx) error {
	if err := jobqueue.GetManager().RunDailyBonusSweepNow(); err != nil {
		log.Errorf("[Admin] manual bonus sweep enqueue failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to enqueue bonus sweep"})
	}
	return c.JSON(fiber.Map{"enqueued": true})
}

// HandleAdminListUsers returns a paginated user list, optionally filtered.
func HandleAdminListUsers(c *fiber.Ctx) error {
	userRepo := repository.GetGlobalFactory().GetUserRepository()

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		users, err := userRepo.Search(q)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "User search failed"})
		}
		return c.JSON(fiber.Map{"users": adminUserList(users), "count": len(users)})
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := c.QueryInt("per_page", 25)
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}

	users, err := userRepo.List((page-1)*perPage, perPage)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load users"})
	}
	total, err := userRepo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count users"})
	}

	return c.JSON(fiber.Map{
		"users":    adminUserList(users),
		"page":     page,
		"per_page": perPage,
		"total":    total,
	})
}

func adminUserList(users []models.User) []fiber.Map {
	items := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		items = append(items, fiber.Map{
			"id":            u.ID,
			"name":          u.Name,
			"email":         u.Email,
			"role":          u.Role,
			"status":        u.Status,
			"created_at":    u.CreatedAt.UTC().Format(time.RFC3339),
			"last_login_at": formatTimePtr(u.LastLoginAt),
		})
	}
	return items
}

// HandleAdminIssueUserAPIKey issues an API key on behalf of a user. This is
// the bootstrap path for accounts that have no key yet.
func HandleAdminIssueUserAPIKey(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("id")
	if err != nil || userID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid user id"})
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := userRepo.GetByID(uint(userID)); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
	}

	db := database.GetDB()
	settings, err := models.GetOrCreateUserSettings(db, uint(userID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user settings"})
	}

	rawKey, err := settings.IssueAPIKey()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key generation failed"})
	}
	if err := db.Save(settings).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to store API key"})
	}

	return c.JSON(fiber.Map{"user_id": userID, "api_key": rawKey, "prefix": settings.APIKeyPrefix})
}

// HandleAdminListTiers returns the full tier catalog including deactivated tiers.
func HandleAdminListTiers(c *fiber.Ctx) error {
	tiers, err := repository.GetGlobalFactory().GetTierRepository().GetAll()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load tiers"})
	}
	return c.JSON(fiber.Map{"tiers": tiers})
}

// HandleAdminCreateTier adds a new tier to the catalog.
func HandleAdminCreateTier(c *fiber.Ctx) error {
	var tier models.SubscriptionTier
	if err := c.BodyParser(&tier); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid tier payload"})
	}
	tier.ID = 0
	tier.Slug = strings.ToLower(strings.TrimSpace(tier.Slug))

	tierRepo := repository.GetGlobalFactory().GetTierRepository()
	exists, err := tierRepo.SlugExists(tier.Slug)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to check tier slug"})
	}
	if exists {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "slug_exists", "message": "A tier with this slug already exists"})
	}

	if err := tierRepo.Create(&tier); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(tier)
}

// HandleAdminUpdateTier updates a catalog tier. In-flight payments keep the
// metadata frozen at checkout time and are not affected.
func HandleAdminUpdateTier(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid tier id"})
	}

	tierRepo := repository.GetGlobalFactory().GetTierRepository()
	tier, err := tierRepo.GetByID(uint(id))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Tier not found"})
	}

	if err := c.BodyParser(tier); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid tier payload"})
	}
	tier.ID = uint(id)

	if err := tierRepo.Update(tier); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	return c.JSON(tier)
}

// HandleAdminDeactivateTier hides a tier from the purchasable catalog.
func HandleAdminDeactivateTier(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid tier id"})
	}

	tierRepo := repository.GetGlobalFactory().GetTierRepository()
	if _, err := tierRepo.GetByID(uint(id)); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Tier not found"})
	}
	if err := tierRepo.Deactivate(uint(id)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to deactivate tier"})
	}
	return c.JSON(fiber.Map{"id": id, "is_active": false})
}

// HandleAdminGetSettings returns the current application settings.
func HandleAdminGetSettings(c *fiber.Ctx) error {
	return c.JSON(models.GetAppSettings())
}

// HandleAdminUpdateSettings validates and persists application settings.
func HandleAdminUpdateSettings(c *fiber.Ctx) error {
	var settings models.AppSettings
	if err := c.BodyParser(&settings); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid settings payload"})
	}
	if err := settings.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := models.SaveSettings(database.GetDB(), &settings); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to save settings"})
	}
	return c.JSON(models.GetAppSettings())
}
