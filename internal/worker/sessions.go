package worker

import (
	"context"
	"log/slog"
	"time"

	"storefront-checkout/internal/service"
)

// SessionSweeper periodically drops shopper sessions nobody has used for
// the session service's idle timeout.
type SessionSweeper struct {
	sessions service.SessionService
	interval time.Duration
	logger   *slog.Logger
}

func NewSessionSweeper(sessions service.SessionService, interval time.Duration, logger *slog.Logger) *SessionSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSweeper{
		sessions: sessions,
		interval: interval,
		logger:   logger.With("component", "session_sweeper"),
	}
}

func (sw *SessionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.logger.Info("session sweeper started", "interval", sw.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.sweep(ctx)
		}
	}
}

func (sw *SessionSweeper) sweep(ctx context.Context) int {
	n := sw.sessions.EvictIdle(ctx)
	if n > 0 {
		sw.logger.Debug("swept idle sessions", "count", n)
	}
	return n
}
