package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CaptureStatus string

const (
	CaptureSucceeded CaptureStatus = "success"
	CaptureFailed    CaptureStatus = "failure"
	// CaptureUnknown is only returned by status checks when the processor has
	// no record of the charge yet.
	CaptureUnknown CaptureStatus = "unknown"
)

// PaymentStatus tracks a submitted capture in the ledger.
type PaymentStatus string

const (
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentSucceeded  PaymentStatus = "SUCCEEDED"
	PaymentFailed     PaymentStatus = "FAILED"
)

type CaptureRequest struct {
	OrderID  uuid.UUID
	Amount   decimal.Decimal
	Currency string
	Items    []CartLineItem
}

type CaptureHandle struct {
	ID          string          `json:"id"`
	OrderID     uuid.UUID       `json:"orderId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

type CaptureResult struct {
	HandleID       string          `json:"handleId"`
	OrderID        uuid.UUID       `json:"orderId"`
	Status         CaptureStatus   `json:"status"`
	PayerReference string          `json:"payerReference,omitempty"`
	CapturedAmount decimal.Decimal `json:"capturedAmount"`
	Currency       string          `json:"currency,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// Capture is one row of the capture ledger.
type Capture struct {
	ID             string
	OrderID        uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	Status         PaymentStatus
	PayerReference string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
