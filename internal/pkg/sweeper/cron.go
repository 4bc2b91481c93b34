package sweeper

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/subtrack-app/subtrack/internal/pkg/metrics/counter"
)

// InitCron schedules the reconciliation jobs and returns the running
// scheduler so the caller can stop it on shutdown.
func (s *Sweeper) InitCron() *cron.Cron {
	c := cron.New()

	// Hourly correction sweep for fallback grants.
	if _, err := c.AddFunc("0 * * * *", func() {
		s.RunCorrectionSweep(context.Background())
	}); err != nil {
		log.Errorf("[Sweeper] could not schedule correction sweep: %v", err)
	}

	// Daily grace expiry sweep.
	if _, err := c.AddFunc("30 3 * * *", func() {
		s.RunGraceExpirySweep(context.Background())
	}); err != nil {
		log.Errorf("[Sweeper] could not schedule grace expiry sweep: %v", err)
	}

	// Daily expiry warning mails.
	if _, err := c.AddFunc("0 9 * * *", func() {
		s.RunExpiryWarnings(context.Background())
	}); err != nil {
		log.Errorf("[Sweeper] could not schedule expiry warnings: %v", err)
	}

	// Flush pending billing counters every five minutes.
	if _, err := c.AddFunc("*/5 * * * *", func() {
		if err := counter.FlushAll(); err != nil {
			log.Warnf("[Sweeper] counter flush failed: %v", err)
		}
	}); err != nil {
		log.Errorf("[Sweeper] could not schedule counter flush: %v", err)
	}

	c.Start()
	log.Infof("[Sweeper] reconciliation jobs scheduled")
	return c
}
