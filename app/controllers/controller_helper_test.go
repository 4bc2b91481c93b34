package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtrack-app/subtrack/app/models"
)

func TestFormatTimePtr(t *testing.T) {
	t.Parallel()

	assert.Nil(t, formatTimePtr(nil))

	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	assert.Equal(t, "2026-03-14T09:26:53Z", formatTimePtr(&ts))
}

func TestParseIDParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		param   string
		want    uint
		wantErr bool
	}{
		{"valid id", "42", 42, false},
		{"zero rejected", "0", 0, true},
		{"negative rejected", "-1", 0, true},
		{"non-numeric rejected", "abc", 0, true},
		{"empty rejected", "", 0, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := fiber.New()
			var gotID uint
			var gotErr error
			app.Get("/items/:id?", func(c *fiber.Ctx) error {
				gotID, gotErr = parseIDParam(c, "id")
				return c.SendStatus(fiber.StatusOK)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items/"+tt.param, nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			if tt.wantErr {
				assert.Error(t, gotErr)
				return
			}
			require.NoError(t, gotErr)
			assert.Equal(t, tt.want, gotID)
		})
	}
}

func TestNormalizeCurrency(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "USD", normalizeCurrency(""))
	assert.Equal(t, "USD", normalizeCurrency("  "))
	assert.Equal(t, "EUR", normalizeCurrency("eur"))
	assert.Equal(t, "GBP", normalizeCurrency(" gbp "))
}

func TestNormalizeBillingCycle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, models.BillingCycleMonthly, normalizeBillingCycle(""))
	assert.Equal(t, models.BillingCycleYearly, normalizeBillingCycle(" Yearly "))
	assert.Equal(t, "weekly", normalizeBillingCycle("WEEKLY"))
}
