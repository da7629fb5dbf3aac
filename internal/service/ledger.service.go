package service

import (
	"context"
	"database/sql"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/repo"
)

// CaptureLedger records every capture handed to the processor so charges
// without a delivered result can be found later.
type CaptureLedger interface {
	Opened(ctx context.Context, order *domain.CheckoutOrder, handle domain.CaptureHandle) error
	Settled(ctx context.Context, result domain.CaptureResult) error
	// Unsettled lists captures still processing that were opened before t.
	Unsettled(ctx context.Context, before time.Time, limit int) ([]domain.Capture, error)
}

type captureLedger struct {
	db          *sql.DB
	captureRepo repo.CaptureRepo
	now         func() time.Time
}

func NewCaptureLedger(db *sql.DB, captureRepo repo.CaptureRepo) CaptureLedger {
	return &captureLedger{db: db, captureRepo: captureRepo, now: time.Now}
}

func (l *captureLedger) Opened(ctx context.Context, order *domain.CheckoutOrder, handle domain.CaptureHandle) error {
	now := l.now().UTC()
	capture := &domain.Capture{
		ID:        handle.ID,
		OrderID:   order.ID,
		Amount:    handle.Amount,
		Currency:  handle.Currency,
		Status:    domain.PaymentProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := l.captureRepo.CreateCapture(ctx, tx, capture); err != nil {
		return err
	}
	return tx.Commit()
}

func (l *captureLedger) Settled(ctx context.Context, result domain.CaptureResult) error {
	status := domain.PaymentFailed
	if result.Status == domain.CaptureSucceeded {
		status = domain.PaymentSucceeded
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := l.captureRepo.UpdateCaptureStatus(ctx, tx, result.HandleID, status, result.PayerReference); err != nil {
		return err
	}
	return tx.Commit()
}

func (l *captureLedger) Unsettled(ctx context.Context, before time.Time, limit int) ([]domain.Capture, error) {
	return l.captureRepo.FindProcessingBefore(ctx, before, limit)
}
