package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/subtrack-app/subtrack/internal/pkg/cache"
	"github.com/subtrack-app/subtrack/internal/pkg/database"
)

// Redis hash per metric, field = YYYY-MM-DD, value = pending increment.
const (
	webhooksProcessedKey  = "billing:counters:webhooks_processed"
	purchasesValidatedKey = "billing:counters:purchases_validated"
	fallbackGrantsKey     = "billing:counters:fallback_grants"
	validationFailuresKey = "billing:counters:validation_failures"
)

func today() string {
	return time.Now().Format("2006-01-02")
}

// AddWebhookProcessed increments the pending webhook counter in Redis
func AddWebhookProcessed() error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhooksProcessedKey, today(), 1).Err()
}

// AddPurchaseValidated increments the pending validated-purchase counter in Redis
func AddPurchaseValidated() error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, purchasesValidatedKey, today(), 1).Err()
}

// AddFallbackGrant increments the pending fallback-grant counter in Redis
func AddFallbackGrant() error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, fallbackGrantsKey, today(), 1).Err()
}

// AddValidationFailure increments the pending validation-failure counter in Redis
func AddValidationFailure() error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, validationFailuresKey, today(), 1).Err()
}

// FlushAll flushes every pending counter to the billing_daily_stats table
func FlushAll() error {
	if err := flushHashToColumn(webhooksProcessedKey, "webhooks_processed"); err != nil {
		return err
	}
	if err := flushHashToColumn(purchasesValidatedKey, "purchases_validated"); err != nil {
		return err
	}
	if err := flushHashToColumn(fallbackGrantsKey, "fallback_grants"); err != nil {
		return err
	}
	return flushHashToColumn(validationFailuresKey, "validation_failures")
}

// flushHashToColumn drains a Redis hash atomically and applies the batched
// increments to billing_daily_stats. Uses RENAME to a temporary key for an
// atomic drain without losing in-flight increments.
func flushHashToColumn(redisKey, column string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
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

	db := database.GetDB()
	for date, raw := range data {
		inc, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil || inc == 0 {
			continue
		}
		sql := fmt.Sprintf(
			"INSERT INTO billing_daily_stats (date, %s, created_at, updated_at) VALUES (?, ?, NOW(), NOW()) "+
				"ON DUPLICATE KEY UPDATE %s = %s + VALUES(%s), updated_at = NOW()",
			column, column, column, column,
		)
		if err := db.Exec(sql, date, inc).Error; err != nil {
			return err
		}
	}
	return nil
}
