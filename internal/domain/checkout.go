package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttemptState is the orchestrator's view of one checkout attempt.
type AttemptState string

const (
	AttemptIdle            AttemptState = "IDLE"
	AttemptSubmitted       AttemptState = "SUBMITTED"
	AttemptAwaitingCapture AttemptState = "AWAITING_CAPTURE"
	AttemptCompleted       AttemptState = "COMPLETED"
	AttemptFailed          AttemptState = "FAILED"
	AttemptCanceled        AttemptState = "CANCELED"
)

func (s AttemptState) IsTerminal() bool {
	return s == AttemptCompleted || s == AttemptFailed || s == AttemptCanceled
}

// CheckoutEvent is emitted on every attempt state transition.
type CheckoutEvent struct {
	OrderID   uuid.UUID    `json:"orderId"`
	SessionID string       `json:"sessionId"`
	State     AttemptState `json:"state"`
	Status    OrderStatus  `json:"status"`
	Error     string       `json:"error,omitempty"`
	At        time.Time    `json:"at"`
}

func (e CheckoutEvent) IsTerminal() bool {
	return e.State.IsTerminal()
}
