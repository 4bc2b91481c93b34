package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/subtrack-app/subtrack/internal/pkg/limits"
)

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

// limitExceededResponse renders the 403 paywall payload for a blocked action.
func limitExceededResponse(c *fiber.Ctx, limitErr *limits.LimitExceededError) error {
	var limitValue interface{}
	if limitErr.Limit != nil {
		limitValue = *limitErr.Limit
	}
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error":         "limit_exceeded",
		"message":       limitErr.Reason,
		"current_count": limitErr.CurrentCount,
		"limit":         limitValue,
		"is_premium":    limitErr.IsPremium,
	})
}
