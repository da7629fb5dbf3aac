package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
)

var (
	ErrUnknownHandle = errors.New("unknown capture handle")
	ErrUnavailable   = errors.New("payment processor unavailable")
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeDecline
	// OutcomeLostCallback charges the payer but never delivers the result.
	OutcomeLostCallback
	// OutcomeUnavailable rejects the submission outright.
	OutcomeUnavailable
)

// Gateway is a fake hosted payment processor. Results are delivered
// asynchronously to the callback registered with OnCapture.
type Gateway interface {
	Submit(ctx context.Context, req domain.CaptureRequest) (domain.CaptureHandle, error)
	CheckStatus(ctx context.Context, handleID string) (domain.CaptureResult, error)
	OnCapture(fn func(domain.CaptureResult))
	Wait()
}

type Option func(*paymentGateway)

// WithOutcome replaces the random outcome draw.
func WithOutcome(fn func(domain.CaptureRequest) Outcome) Option {
	return func(pg *paymentGateway) { pg.decide = fn }
}

func WithLatency(d time.Duration) Option {
	return func(pg *paymentGateway) { pg.latency = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(pg *paymentGateway) { pg.logger = l }
}

type charge struct {
	handle domain.CaptureHandle
	result *domain.CaptureResult
}

type paymentGateway struct {
	mu       sync.RWMutex
	byHandle map[string]*charge
	byOrder  map[uuid.UUID]string
	callback func(domain.CaptureResult)

	decide  func(domain.CaptureRequest) Outcome
	latency time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewPaymentGateway(opts ...Option) Gateway {
	pg := &paymentGateway{
		byHandle: make(map[string]*charge),
		byOrder:  make(map[uuid.UUID]string),
		decide:   randomOutcome,
		latency:  100 * time.Millisecond,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(pg)
	}
	return pg
}

// randomOutcome: 70% success, 20% decline, 10% charged without callback.
func randomOutcome(domain.CaptureRequest) Outcome {
	chance := rand.IntN(100)
	switch {
	case chance < 70:
		return OutcomeSuccess
	case chance < 90:
		return OutcomeDecline
	default:
		return OutcomeLostCallback
	}
}

func (pg *paymentGateway) OnCapture(fn func(domain.CaptureResult)) {
	pg.mu.Lock()
	pg.callback = fn
	pg.mu.Unlock()
}

// Submit is idempotent per order id: a second submission returns the
// original handle without charging again.
func (pg *paymentGateway) Submit(ctx context.Context, req domain.CaptureRequest) (domain.CaptureHandle, error) {
	if err := ctx.Err(); err != nil {
		return domain.CaptureHandle{}, err
	}

	pg.mu.RLock()
	if id, exists := pg.byOrder[req.OrderID]; exists {
		h := pg.byHandle[id].handle
		pg.mu.RUnlock()
		return h, nil
	}
	pg.mu.RUnlock()

	outcome := pg.decide(req)
	if outcome == OutcomeUnavailable {
		return domain.CaptureHandle{}, ErrUnavailable
	}

	handle := domain.CaptureHandle{
		ID:          "cap_" + uuid.NewString(),
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		SubmittedAt: time.Now().UTC(),
	}

	pg.mu.Lock()
	if id, exists := pg.byOrder[req.OrderID]; exists {
		h := pg.byHandle[id].handle
		pg.mu.Unlock()
		return h, nil
	}
	pg.byHandle[handle.ID] = &charge{handle: handle}
	pg.byOrder[req.OrderID] = handle.ID
	pg.mu.Unlock()

	pg.wg.Add(1)
	go pg.settle(handle, outcome)

	return handle, nil
}

func (pg *paymentGateway) settle(handle domain.CaptureHandle, outcome Outcome) {
	defer pg.wg.Done()
	if pg.latency > 0 {
		time.Sleep(pg.latency)
	}

	result := domain.CaptureResult{
		HandleID: handle.ID,
		OrderID:  handle.OrderID,
		Currency: handle.Currency,
	}
	switch outcome {
	case OutcomeDecline:
		result.Status = domain.CaptureFailed
		result.CapturedAmount = decimal.Zero
		result.Reason = "card declined"
	default:
		result.Status = domain.CaptureSucceeded
		result.CapturedAmount = handle.Amount
		result.PayerReference = "payer_" + uuid.NewString()[:8]
	}

	pg.mu.Lock()
	pg.byHandle[handle.ID].result = &result
	cb := pg.callback
	pg.mu.Unlock()

	if outcome == OutcomeLostCallback {
		pg.logger.Warn("charged without delivering result",
			"handle_id", handle.ID,
			"order_id", handle.OrderID,
		)
		return
	}
	if cb != nil {
		cb(result)
	}
}

// CheckStatus reports CaptureUnknown while the charge is still settling.
func (pg *paymentGateway) CheckStatus(ctx context.Context, handleID string) (domain.CaptureResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.CaptureResult{}, err
	}

	pg.mu.RLock()
	defer pg.mu.RUnlock()

	c, exists := pg.byHandle[handleID]
	if !exists {
		return domain.CaptureResult{}, fmt.Errorf("%w: %s", ErrUnknownHandle, handleID)
	}
	if c.result == nil {
		return domain.CaptureResult{
			HandleID: handleID,
			OrderID:  c.handle.OrderID,
			Status:   domain.CaptureUnknown,
		}, nil
	}
	return *c.result, nil
}

// Wait blocks until every submitted charge has settled.
func (pg *paymentGateway) Wait() {
	pg.wg.Wait()
}
