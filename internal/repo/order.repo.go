package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"storefront-checkout/internal/domain"
)

type OrderRepo interface {
	FindById(ctx context.Context, id uuid.UUID) (*domain.CheckoutOrder, error)
	CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.CheckoutOrder) error
	CreateOrderItems(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, items []domain.CartLineItem) error
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, status, submitted_amount, captured_amount, currency, payer_reference,
	capture_handle, client_id, user_id, failure_reason, created_at, updated_at`

// FindById returns nil, nil when the order does not exist.
func (r *orderRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.CheckoutOrder, error) {
	var o domain.CheckoutOrder
	err := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id).Scan(
		&o.ID,
		&o.Status,
		&o.SubmittedAmount,
		&o.CapturedAmount,
		&o.Currency,
		&o.PayerReference,
		&o.CaptureHandle,
		&o.ClientID,
		&o.UserID,
		&o.FailureReason,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT line_item_id, product_id, name, unit_price, quantity, image_ref
		 FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.CartLineItem
		if err := rows.Scan(&it.LineItemID, &it.ProductID, &it.Name, &it.UnitPrice, &it.Quantity, &it.ImageRef); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.LineItemsSnapshot = append(o.LineItemsSnapshot, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, o *domain.CheckoutOrder) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO orders ("+orderColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
		o.ID, o.Status, o.SubmittedAmount, o.CapturedAmount, o.Currency, o.PayerReference,
		o.CaptureHandle, o.ClientID, o.UserID, o.FailureReason, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepo) CreateOrderItems(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, items []domain.CartLineItem) error {
	for i, it := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, position, line_item_id, product_id, name, unit_price, quantity, image_ref)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			orderID, i, it.LineItemID, it.ProductID, it.Name, it.UnitPrice, it.Quantity, it.ImageRef,
		)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", it.LineItemID, err)
		}
	}
	return nil
}
