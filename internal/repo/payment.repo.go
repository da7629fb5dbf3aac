package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront-checkout/internal/domain"
)

// CaptureRepo is the ledger of captures handed to the payment processor.
type CaptureRepo interface {
	CreateCapture(ctx context.Context, tx *sql.Tx, capture *domain.Capture) error
	FindById(ctx context.Context, id string) (*domain.Capture, error)
	UpdateCaptureStatus(ctx context.Context, tx *sql.Tx, id string, status domain.PaymentStatus, payerReference string) error
	FindProcessingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Capture, error)
}

type captureRepo struct {
	db *sql.DB
}

func NewCaptureRepo(db *sql.DB) CaptureRepo {
	return &captureRepo{db: db}
}

const captureColumns = `id, order_id, amount, currency, status, payer_reference, created_at, updated_at`

func (r *captureRepo) CreateCapture(ctx context.Context, tx *sql.Tx, c *domain.Capture) error {
	query := `INSERT INTO captures (` + captureColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.ExecContext(
		ctx, query, c.ID, c.OrderID, c.Amount, c.Currency, c.Status, c.PayerReference, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}

// FindById returns nil, nil when the capture is not in the ledger.
func (r *captureRepo) FindById(ctx context.Context, id string) (*domain.Capture, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+captureColumns+` FROM captures WHERE id = $1`, id)
	c, err := scanCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select capture: %w", err)
	}
	return c, nil
}

// UpdateCaptureStatus keeps the stored payer reference when payerReference
// is empty.
func (r *captureRepo) UpdateCaptureStatus(ctx context.Context, tx *sql.Tx, id string, status domain.PaymentStatus, payerReference string) error {
	query := `
		UPDATE captures
		SET status = $2,
		    payer_reference = COALESCE(NULLIF($3, ''), payer_reference),
		    updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, query, id, status, payerReference); err != nil {
		return fmt.Errorf("update capture status: %w", err)
	}
	return nil
}

func (r *captureRepo) FindProcessingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Capture, error) {
	query := `
		SELECT ` + captureColumns + ` FROM captures
		WHERE status = $1
		AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, domain.PaymentProcessing, before, limit)
	if err != nil {
		return nil, fmt.Errorf("select processing captures: %w", err)
	}
	defer rows.Close()

	var captures []domain.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		captures = append(captures, *c)
	}
	return captures, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapture(row rowScanner) (*domain.Capture, error) {
	var c domain.Capture
	err := row.Scan(
		&c.ID,
		&c.OrderID,
		&c.Amount,
		&c.Currency,
		&c.Status,
		&c.PayerReference,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
