package xfallback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/leftonspace/CampoTech-sub005/pkg/observability/xlog"
)

// DefaultSweepSchedule runs the expiry sweep at the top of every hour.
const DefaultSweepSchedule = "0 * * * *"

// ErrNilCron signals a missing cron scheduler.
var ErrNilCron = errors.New("xfallback: cron scheduler cannot be nil")

// SweepConfig configures a scheduled expiry sweep.
type SweepConfig struct {
	// Schedule is a cron expression; DefaultSweepSchedule when empty.
	Schedule string
	// TTL is the pending-record lifetime; DefaultExpiry when zero.
	TTL time.Duration
	// Timeout bounds each sweep run; 30s when zero.
	Timeout time.Duration
	// Logger for sweep outcomes; a no-op logger when nil.
	Logger xlog.Logger
}

// RegisterSweep schedules Store.ExpireStale on the given cron scheduler
// and returns the entry ID for later removal. The scheduler's lifecycle
// (Start/Stop) stays with the caller.
func RegisterSweep(c *cron.Cron, store *Store, cfg SweepConfig) (cron.EntryID, error) {
	if c == nil {
		return 0, ErrNilCron
	}
	if store == nil {
		return 0, errors.New("xfallback: store cannot be nil")
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = xlog.Nop()
	}

	return c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if _, err := store.ExpireStale(ctx, cfg.TTL); err != nil {
			logger.Error(ctx, "fallback expiry sweep failed", slog.Any("error", err))
		}
	})
}
