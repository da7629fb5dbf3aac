package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/service"
)

type Config struct {
	Interval time.Duration
	// StuckAfter is how long an attempt may await its capture result before
	// the processor is asked directly.
	StuckAfter time.Duration
	// CaptureTimeout fails attempts whose charge is still unknown.
	CaptureTimeout time.Duration
	// Retention is how long settled attempts stay queryable in memory.
	Retention time.Duration
	BatchSize int
}

type ReconciliationWorker struct {
	checkout service.CheckoutService
	gateway  service.PaymentProcessor
	ledger   service.CaptureLedger
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewReconciliationWorker builds a worker. ledger may be nil.
func NewReconciliationWorker(
	checkout service.CheckoutService,
	gateway service.PaymentProcessor,
	ledger service.CaptureLedger,
	cfg Config,
	logger *slog.Logger,
) *ReconciliationWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 30 * time.Second
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 5 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconciliationWorker{
		checkout: checkout,
		gateway:  gateway,
		ledger:   ledger,
		cfg:      cfg,
		logger:   logger.With("component", "reconciliation"),
		now:      time.Now,
	}
}

func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.cfg.Interval)
	defer ticker.Stop()

	rw.logger.Info("reconciliation worker started", "interval", rw.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rw.process(ctx); err != nil {
				rw.logger.Error("reconciliation failed", "err", err)
			}
		}
	}
}

func (rw *ReconciliationWorker) process(ctx context.Context) error {
	rw.reconcileStuck(ctx)

	var err error
	if rw.ledger != nil {
		err = rw.reconcileLedger(ctx)
	}

	if n := rw.checkout.Prune(rw.cfg.Retention); n > 0 {
		rw.logger.Debug("pruned settled attempts", "count", n)
	}
	return err
}

// reconcileStuck asks the processor about attempts whose result never
// arrived and applies any real outcome. Attempts past the capture timeout
// are expired whenever no outcome is known, including when the processor
// cannot be reached.
func (rw *ReconciliationWorker) reconcileStuck(ctx context.Context) {
	stuck := rw.checkout.Stuck(rw.cfg.StuckAfter)
	if len(stuck) == 0 {
		return
	}
	rw.logger.Info("found stuck checkouts", "count", len(stuck))

	now := rw.now().UTC()
	for _, a := range stuck {
		res, err := rw.gateway.CheckStatus(ctx, a.Order.CaptureHandle)
		if err != nil {
			rw.logger.Warn("check capture status", "order_id", a.Order.ID, "err", err)
		}

		if err == nil && res.Status != domain.CaptureUnknown {
			if res.HandleID == "" {
				res.HandleID = a.Order.CaptureHandle
			}
			rw.logger.Warn("applying lost capture result",
				"order_id", a.Order.ID,
				"status", res.Status,
			)
			if err := rw.checkout.HandleCapture(ctx, res); err != nil {
				rw.logger.Error("apply capture result", "order_id", a.Order.ID, "err", err)
			}
			continue
		}

		if now.Sub(a.AwaitingSince) >= rw.cfg.CaptureTimeout {
			if _, err := rw.checkout.Expire(ctx, a.Order.ID); err != nil {
				rw.logger.Error("expire checkout", "order_id", a.Order.ID, "err", err)
			}
		}
	}
}

// reconcileLedger settles ledger rows nobody is waiting on any more, such as
// captures that completed after their attempt was canceled or expired.
func (rw *ReconciliationWorker) reconcileLedger(ctx context.Context) error {
	before := rw.now().UTC().Add(-rw.cfg.CaptureTimeout)
	captures, err := rw.ledger.Unsettled(ctx, before, rw.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, c := range captures {
		a, err := rw.checkout.Get(c.OrderID)
		if err == nil && !a.State.IsTerminal() {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrAttemptNotFound) {
			rw.logger.Warn("lookup attempt", "order_id", c.OrderID, "err", err)
			continue
		}

		res, err := rw.gateway.CheckStatus(ctx, c.ID)
		if err != nil {
			rw.logger.Warn("check capture status", "handle_id", c.ID, "err", err)
			continue
		}
		if res.Status == domain.CaptureUnknown {
			continue
		}
		if res.HandleID == "" {
			res.HandleID = c.ID
		}

		if res.Status == domain.CaptureSucceeded {
			rw.logger.Warn("ghost charge: captured without a live checkout",
				"handle_id", c.ID,
				"order_id", c.OrderID,
				"amount", c.Amount.StringFixed(2),
			)
		}
		if err := rw.ledger.Settled(ctx, res); err != nil {
			rw.logger.Error("settle ledger capture", "handle_id", c.ID, "err", err)
		}
	}
	return nil
}
