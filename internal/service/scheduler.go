package service

import (
	"context"
	"log/slog"
	"time"
)

// CycleScheduler periodically runs one matching cycle for every user
// with an open session.
type CycleScheduler struct {
	interval time.Duration
	trading  *TradingService
	logger   *slog.Logger
}

// NewCycleScheduler creates a scheduler ticking at interval.
func NewCycleScheduler(interval time.Duration, trading *TradingService, logger *slog.Logger) *CycleScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CycleScheduler{
		interval: interval,
		trading:  trading,
		logger:   logger,
	}
}

// Start launches a background goroutine that ticks at the configured
// interval. It stops when ctx is cancelled.
func (c *CycleScheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.tick(ctx)
			}
		}
	}()
}

// tick runs one cycle per user with an open session. Users holding
// several sessions share one matcher, so only their earliest session is
// cycled. A session closed between listing and running is skipped.
func (c *CycleScheduler) tick(ctx context.Context) {
	seen := make(map[string]bool)
	for _, sess := range c.trading.Sessions() {
		if ctx.Err() != nil {
			return
		}
		if seen[sess.Username] {
			continue
		}
		seen[sess.Username] = true
		if _, err := c.trading.RunCycle(ctx, sess); err != nil {
			c.logger.Debug("scheduled cycle skipped",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
