package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/repo"
)

type OrderService interface {
	RecordOrder(ctx context.Context, order *domain.CheckoutOrder) error
	FindOrder(ctx context.Context, id uuid.UUID) (*domain.CheckoutOrder, error)
}

type orderService struct {
	db        *sql.DB
	orderRepo repo.OrderRepo
}

func NewOrderService(db *sql.DB, orderRepo repo.OrderRepo) OrderService {
	return &orderService{
		db:        db,
		orderRepo: orderRepo,
	}
}

// RecordOrder stores a completed order and its line items in one
// transaction.
func (s *orderService) RecordOrder(ctx context.Context, order *domain.CheckoutOrder) error {
	if order.Status != domain.OrderCompleted {
		return fmt.Errorf("record order %s: status is %s", order.ID, order.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		return err
	}
	if err := s.orderRepo.CreateOrderItems(ctx, tx, order.ID, order.LineItemsSnapshot); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *orderService) FindOrder(ctx context.Context, id uuid.UUID) (*domain.CheckoutOrder, error) {
	order, err := s.orderRepo.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}
