package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/binsaleem99/kwapps-sub001/internal/pkg/cache"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/database"
)

const billingCountersKey = "billing:counters:daily"

// Columns of billing_daily_stats a counter may flush into.
const (
	ColWebhooksReceived  = "webhooks_received"
	ColWebhooksDuplicate = "webhooks_duplicate"
	ColWebhooksProcessed = "webhooks_processed"
	ColWebhooksFailed    = "webhooks_failed"
	ColCreditsAllocated  = "credits_allocated"
	ColCreditsBonus      = "credits_bonus"
)

var allowedColumns = map[string]bool{
	ColWebhooksReceived:  true,
	ColWebhooksDuplicate: true,
	ColWebhooksProcessed: true,
	ColWebhooksFailed:    true,
	ColCreditsAllocated:  true,
	ColCreditsBonus:      true,
}

// field encodes date and column into one hash field, e.g. "2026-08-31|webhooks_received".
func field(column string) string {
	return time.Now().UTC().Format("2006-01-02") + "|" + column
}

// Add increments the pending counter for the given column in Redis.
func Add(column string, delta int64) error {
	if !allowedColumns[column] || delta == 0 {
		return nil
	}
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, billingCountersKey, field(column), delta).Err()
}

// AddWebhookReceived counts one incoming webhook delivery.
func AddWebhookReceived() error { return Add(ColWebhooksReceived, 1) }

// AddWebhookDuplicate counts one deduplicated delivery.
func AddWebhookDuplicate() error { return Add(ColWebhooksDuplicate, 1) }

// AddWebhookProcessed counts one delivery that ran side effects.
func AddWebhookProcessed() error { return Add(ColWebhooksProcessed, 1) }

// AddWebhookFailed counts one delivery that soft-failed.
func AddWebhookFailed() error { return Add(ColWebhooksFailed, 1) }

// AddCreditsAllocated counts credits granted by period allocations.
func AddCreditsAllocated(credits int) error { return Add(ColCreditsAllocated, int64(credits)) }

// AddCreditsBonus counts credits granted by daily bonuses.
func AddCreditsBonus(credits int) error { return Add(ColCreditsBonus, int64(credits)) }

// FlushAll drains pending billing counters from Redis into billing_daily_stats.
func FlushAll() error {
	return flushHashToDailyStats(billingCountersKey)
}

// flushHashToDailyStats drains a Redis hash atomically and applies batched
// upserts to billing_daily_stats. Uses RENAME to a temporary key for atomic
// drain without losing in-flight increments.
func flushHashToDailyStats(redisKey string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		// Some Redis libs return redis.Nil; treat as empty
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	// Group increments per stat date
	type rowDelta map[string]int64
	byDate := make(map[string]rowDelta)
	for k, v := range data {
		parts := strings.SplitN(k, "|", 2)
		if len(parts) != 2 || !allowedColumns[parts[1]] {
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		if byDate[parts[0]] == nil {
			byDate[parts[0]] = make(rowDelta)
		}
		byDate[parts[0]][parts[1]] += inc
	}
	if len(byDate) == 0 {
		return nil
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	db := database.GetDB()
	for _, date := range dates {
		deltas := byDate[date]
		cols := make([]string, 0, len(deltas))
		for c := range deltas {
			cols = append(cols, c)
		}
		sort.Strings(cols)

		// INSERT ... ON DUPLICATE KEY UPDATE col = col + VALUES(col)
		var builder strings.Builder
		args := make([]interface{}, 0, len(cols)+1)
		builder.WriteString("INSERT INTO billing_daily_stats (stat_date")
		for _, c := range cols {
			builder.WriteString(", ")
			builder.WriteString(c)
		}
		builder.WriteString(") VALUES (?")
		args = append(args, date)
		for _, c := range cols {
			builder.WriteString(", ?")
			args = append(args, deltas[c])
		}
		builder.WriteString(") ON DUPLICATE KEY UPDATE ")
		for i, c := range cols {
			if i > 0 {
				builder.WriteString(", ")
			}
			builder.WriteString(c)
			builder.WriteString(" = ")
			builder.WriteString(c)
			builder.WriteString(" + VALUES(")
			builder.WriteString(c)
			builder.WriteString(")")
		}

		if err := db.Exec(builder.String(), args...).Error; err != nil {
			return err
		}
	}
	return nil
}
