package controllers

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/binsaleem99/kwapps-sub001/app/repository"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/jobqueue"
)

// AdminQueueController handles admin queue-related HTTP requests using repository pattern
type AdminQueueController struct {
	queueRepo repository.QueueRepository
}

// NewAdminQueueController creates a new admin queue controller with repository
func NewAdminQueueController(queueRepo repository.QueueRepository) *AdminQueueController {
	return &AdminQueueController{
		queueRepo: queueRepo,
	}
}

// QueueItem describes one Redis entry in the admin queue monitor.
type QueueItem struct {
	Key  string        `json:"key"`
	Type string        `json:"type"`
	TTL  time.Duration `json:"ttl_seconds"`
	Size int64         `json:"size_bytes"`
}

// HandleAdminQueues returns the current Redis queue and cache entries.
func (aqc *AdminQueueController) HandleAdminQueues(c *fiber.Ctx) error {
	items, err := aqc.getQueueItems()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load queue entries"})
	}
	return c.JSON(fiber.Map{"items": items, "count": len(items)})
}

// HandleAdminJobStats returns job counts per status from the stats hash.
func (aqc *AdminQueueController) HandleAdminJobStats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := jobqueue.GetManager().GetQueue().GetJobStats(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load job stats"})
	}

	queueLen, _ := aqc.queueRepo.GetListLength(jobqueue.JobQueueKey)
	processingLen, _ := aqc.queueRepo.GetListLength(jobqueue.JobProcessingKey)

	return c.JSON(fiber.Map{
		"stats":      stats,
		"queued":     queueLen,
		"processing": processingLen,
	})
}

// HandleAdminQueueDelete deletes a specific cache entry.
func (aqc *AdminQueueController) HandleAdminQueueDelete(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Key is required"})
	}

	result, err := aqc.queueRepo.DeleteKey(key)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to delete key"})
	}
	if result == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Key not found"})
	}
	return c.JSON(fiber.Map{"key": key, "deleted": true})
}

// getQueueItems retrieves all cache entries with their metadata.
func (aqc *AdminQueueController) getQueueItems() ([]QueueItem, error) {
	keys, err := aqc.queueRepo.GetAllKeys()
	if err != nil {
		return nil, err
	}

	items := make([]QueueItem, 0, len(keys))
	for _, key := range keys {
		value, err := aqc.queueRepo.GetValue(key)
		if err != nil && err != redis.Nil {
			continue
		}
		ttl, err := aqc.queueRepo.GetTTL(key)
		if err != nil {
			ttl = -1
		}

		items = append(items, QueueItem{
			Key:  key,
			Type: classifyQueueKey(key),
			TTL:  ttl / time.Second,
			Size: int64(len(value)),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Type != items[j].Type {
			return items[i].Type < items[j].Type
		}
		return items[i].Key < items[j].Key
	})

	return items, nil
}

func classifyQueueKey(key string) string {
	switch {
	case strings.HasPrefix(key, jobqueue.JobKeyPrefix):
		return "job"
	case key == jobqueue.JobQueueKey:
		return "job_queue"
	case key == jobqueue.JobProcessingKey:
		return "job_processing"
	case key == jobqueue.JobStatsKey:
		return "job_stats"
	case strings.HasPrefix(key, "billing:counters:"):
		return "billing_counters"
	case strings.HasPrefix(key, "billing:bonus:granted:"):
		return "bonus_guard"
	default:
		return "unknown"
	}
}

var adminQueueController *AdminQueueController

// InitializeAdminQueueController initializes the global admin queue controller
func InitializeAdminQueueController() {
	queueRepo := repository.GetGlobalFactory().GetQueueRepository()
	adminQueueController = NewAdminQueueController(queueRepo)
}

// GetAdminQueueController returns the global admin queue controller instance
func GetAdminQueueController() *AdminQueueController {
	if adminQueueController == nil {
		InitializeAdminQueueController()
	}
	return adminQueueController
}
