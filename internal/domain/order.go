package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderFailed    OrderStatus = "FAILED"
	OrderCanceled  OrderStatus = "CANCELED"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderFailed || s == OrderCanceled
}

// CanTransitionTo only allows PENDING to move to one of the terminal states.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderPending && next.IsTerminal()
}

type CheckoutOrder struct {
	ID                uuid.UUID       `json:"orderId"`
	Status            OrderStatus     `json:"status"`
	SubmittedAmount   decimal.Decimal `json:"submittedAmount"`
	CapturedAmount    decimal.Decimal `json:"capturedAmount"`
	Currency          string          `json:"currency"`
	PayerReference    string          `json:"payerReference,omitempty"`
	CaptureHandle     string          `json:"-"`
	FailureReason     string          `json:"failureReason,omitempty"`
	ClientID          string          `json:"clientId,omitempty"`
	UserID            string          `json:"userId,omitempty"`
	LineItemsSnapshot []CartLineItem  `json:"lineItemsSnapshot"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func NewCheckoutOrder(items []CartLineItem, amount decimal.Decimal, currency string, now time.Time) *CheckoutOrder {
	return &CheckoutOrder{
		ID:                uuid.New(),
		Status:            OrderPending,
		SubmittedAmount:   amount,
		CapturedAmount:    decimal.Zero,
		Currency:          currency,
		LineItemsSnapshot: CloneItems(items),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Transition moves the order to next and stamps UpdatedAt.
func (o *CheckoutOrder) Transition(next OrderStatus, at time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return ErrIllegalTransition
	}
	o.Status = next
	o.UpdatedAt = at
	return nil
}

// Complete freezes the capture result onto the order.
func (o *CheckoutOrder) Complete(result CaptureResult, at time.Time) error {
	if err := o.Transition(OrderCompleted, at); err != nil {
		return err
	}
	o.CapturedAmount = result.CapturedAmount
	o.PayerReference = result.PayerReference
	if result.Currency != "" {
		o.Currency = result.Currency
	}
	return nil
}

func (o *CheckoutOrder) Fail(reason string, at time.Time) error {
	if err := o.Transition(OrderFailed, at); err != nil {
		return err
	}
	o.FailureReason = reason
	return nil
}

// VerifyCapture reports why a successful result does not pay for o, or nil
// when the captured amount and currency match what was submitted.
func (o *CheckoutOrder) VerifyCapture(result CaptureResult) error {
	if !result.CapturedAmount.Equal(o.SubmittedAmount) {
		return fmt.Errorf("%w: captured %s, submitted %s",
			ErrCaptureMismatch, result.CapturedAmount.StringFixed(2), o.SubmittedAmount.StringFixed(2))
	}
	if result.Currency != "" && result.Currency != o.Currency {
		return fmt.Errorf("%w: captured in %s, submitted in %s", ErrCaptureMismatch, result.Currency, o.Currency)
	}
	return nil
}

func (o *CheckoutOrder) Clone() *CheckoutOrder {
	c := *o
	c.LineItemsSnapshot = CloneItems(o.LineItemsSnapshot)
	return &c
}
