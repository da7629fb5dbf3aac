package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront-checkout/internal/cart"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/events"
)

type PaymentProcessor interface {
	Submit(ctx context.Context, req domain.CaptureRequest) (domain.CaptureHandle, error)
	CheckStatus(ctx context.Context, handleID string) (domain.CaptureResult, error)
}

type OrderRecorder interface {
	RecordOrder(ctx context.Context, order *domain.CheckoutOrder) error
}

// Attempt is a read-only view of one checkout attempt.
type Attempt struct {
	Order         *domain.CheckoutOrder
	SessionID     string
	State         domain.AttemptState
	Err           error
	AwaitingSince time.Time
}

type CheckoutService interface {
	// Submit snapshots the session cart and hands it to the processor.
	Submit(ctx context.Context, sess *Session) (Attempt, error)
	// HandleCapture applies an asynchronous capture result. Results for
	// settled attempts are ignored.
	HandleCapture(ctx context.Context, result domain.CaptureResult) error
	Cancel(ctx context.Context, orderID uuid.UUID) (Attempt, error)
	// Await blocks until the attempt settles or ctx is done.
	Await(ctx context.Context, orderID uuid.UUID) (Attempt, error)
	Get(orderID uuid.UUID) (Attempt, error)
	// Stuck lists attempts awaiting capture for longer than olderThan.
	Stuck(olderThan time.Duration) []Attempt
	// Expire fails an attempt still awaiting capture with ErrCaptureTimeout.
	Expire(ctx context.Context, orderID uuid.UUID) (bool, error)
	// Prune forgets settled attempts older than olderThan.
	Prune(olderThan time.Duration) int
}

type CheckoutConfig struct {
	Processor PaymentProcessor
	Recorder  OrderRecorder

	// Ledger and Events are optional.
	Ledger   CaptureLedger
	Events   events.Sink
	Currency string
	Logger   *slog.Logger
	Now      func() time.Time
}

type attempt struct {
	order         *domain.CheckoutOrder
	session       *Session
	state         domain.AttemptState
	err           error
	pending       *domain.CaptureResult
	resolving     bool
	awaitingSince time.Time
	settledAt     time.Time
	done          chan struct{}
}

type checkoutService struct {
	processor PaymentProcessor
	recorder  OrderRecorder
	ledger    CaptureLedger
	sink      events.Sink
	currency  string
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	attempts map[uuid.UUID]*attempt
	byHandle map[string]uuid.UUID
	inFlight map[string]uuid.UUID
}

func NewCheckoutService(cfg CheckoutConfig) CheckoutService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &checkoutService{
		processor: cfg.Processor,
		recorder:  cfg.Recorder,
		ledger:    cfg.Ledger,
		sink:      cfg.Events,
		currency:  cfg.Currency,
		logger:    cfg.Logger,
		now:       cfg.Now,
		attempts:  make(map[uuid.UUID]*attempt),
		byHandle:  make(map[string]uuid.UUID),
		inFlight:  make(map[string]uuid.UUID),
	}
}

func (s *checkoutService) Submit(ctx context.Context, sess *Session) (Attempt, error) {
	s.mu.Lock()
	if id, busy := s.inFlight[sess.ID]; busy {
		s.mu.Unlock()
		return Attempt{}, fmt.Errorf("%w: order %s", domain.ErrCheckoutInProgress, id)
	}

	snap := sess.Store.Snapshot()
	if snap.IsEmpty() {
		s.mu.Unlock()
		return Attempt{}, domain.ErrEmptyCart
	}

	proj := cart.Project(snap)
	now := s.now().UTC()
	order := domain.NewCheckoutOrder(snap.Items, proj.RoundedSubtotal(), s.currency, now)
	order.ClientID = sess.ClientID
	order.UserID = sess.Identity.Current().UserID

	a := &attempt{
		order:   order,
		session: sess,
		state:   domain.AttemptSubmitted,
		done:    make(chan struct{}),
	}
	s.attempts[order.ID] = a
	s.inFlight[sess.ID] = order.ID
	submitted := s.eventLocked(a)
	req := domain.CaptureRequest{
		OrderID:  order.ID,
		Amount:   order.SubmittedAmount,
		Currency: order.Currency,
		Items:    domain.CloneItems(order.LineItemsSnapshot),
	}
	s.mu.Unlock()

	s.emit(ctx, submitted)
	s.logger.Info("checkout submitted",
		"order_id", order.ID,
		"session_id", sess.ID,
		"amount", order.SubmittedAmount.StringFixed(2),
		"items", len(req.Items),
	)

	handle, err := s.processor.Submit(ctx, req)
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrPaymentSubmission, err)
		s.mu.Lock()
		_ = a.order.Fail(err.Error(), s.now().UTC())
		a.state = domain.AttemptFailed
		a.err = err
		s.finishLocked(a)
		failed := s.eventLocked(a)
		view := s.viewLocked(a)
		s.mu.Unlock()

		s.emit(ctx, failed)
		s.logger.Warn("checkout submission failed", "order_id", order.ID, "err", err)
		return view, err
	}

	if s.ledger != nil {
		if lerr := s.ledger.Opened(ctx, order.Clone(), handle); lerr != nil {
			s.logger.Error("ledger open capture", "order_id", order.ID, "handle_id", handle.ID, "err", lerr)
		}
	}

	s.mu.Lock()
	a.order.CaptureHandle = handle.ID
	s.byHandle[handle.ID] = order.ID
	a.state = domain.AttemptAwaitingCapture
	a.awaitingSince = s.now().UTC()
	awaiting := s.eventLocked(a)
	early := a.pending
	a.pending = nil
	if early != nil {
		a.resolving = true
	}
	s.mu.Unlock()

	s.emit(ctx, awaiting)

	if early != nil {
		s.resolve(ctx, a, *early)
	}
	return s.snapshot(a), nil
}

func (s *checkoutService) HandleCapture(ctx context.Context, result domain.CaptureResult) error {
	s.mu.Lock()
	a := s.lookupLocked(result)
	if a == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: handle %q", domain.ErrAttemptNotFound, result.HandleID)
	}

	switch {
	case a.state.IsTerminal() || a.resolving:
		s.mu.Unlock()
		s.logger.Debug("duplicate capture result ignored", "order_id", a.order.ID, "handle_id", result.HandleID)
		return nil
	case result.Status == domain.CaptureUnknown:
		s.mu.Unlock()
		return nil
	case a.state == domain.AttemptSubmitted:
		if a.pending == nil {
			r := result
			a.pending = &r
		}
		s.mu.Unlock()
		return nil
	}

	a.resolving = true
	s.mu.Unlock()

	s.resolve(ctx, a, result)
	return nil
}

func (s *checkoutService) lookupLocked(result domain.CaptureResult) *attempt {
	if id, ok := s.byHandle[result.HandleID]; ok {
		return s.attempts[id]
	}
	// Results can beat the handle registration; fall back to the order id.
	if a, ok := s.attempts[result.OrderID]; ok && a.state == domain.AttemptSubmitted {
		return a
	}
	return nil
}

// resolve settles an attempt whose resolving flag is already set.
func (s *checkoutService) resolve(ctx context.Context, a *attempt, result domain.CaptureResult) {
	ctx = context.WithoutCancel(ctx)

	if s.ledger != nil {
		if err := s.ledger.Settled(ctx, result); err != nil {
			s.logger.Error("ledger settle capture", "order_id", a.order.ID, "handle_id", result.HandleID, "err", err)
		}
	}

	if result.Status == domain.CaptureSucceeded {
		s.mu.Lock()
		err := a.order.VerifyCapture(result)
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("capture does not pay for order",
				"order_id", a.order.ID,
				"handle_id", result.HandleID,
				"err", err,
			)
			result.Status = domain.CaptureFailed
			result.Reason = err.Error()
		}
	}

	if result.Status != domain.CaptureSucceeded {
		reason := result.Reason
		if reason == "" {
			reason = string(result.Status)
		}
		s.mu.Lock()
		_ = a.order.Fail(reason, s.now().UTC())
		a.state = domain.AttemptFailed
		a.err = fmt.Errorf("%w: %s", domain.ErrCaptureFailed, reason)
		s.finishLocked(a)
		ev := s.eventLocked(a)
		s.mu.Unlock()

		s.emit(ctx, ev)
		s.logger.Info("capture failed", "order_id", a.order.ID, "reason", reason)
		return
	}

	s.mu.Lock()
	_ = a.order.Complete(result, s.now().UTC())
	recorded := a.order.Clone()
	s.mu.Unlock()

	if err := s.recorder.RecordOrder(ctx, recorded); err != nil {
		s.mu.Lock()
		a.state = domain.AttemptFailed
		a.err = fmt.Errorf("%w: %w", domain.ErrOrderNotRecorded, err)
		s.finishLocked(a)
		ev := s.eventLocked(a)
		s.mu.Unlock()

		s.emit(ctx, ev)
		s.logger.Error("paid but unconfirmed",
			"order_id", a.order.ID,
			"handle_id", result.HandleID,
			"payer_reference", result.PayerReference,
			"err", err,
		)
		return
	}

	if err := a.session.ClearCart(ctx); err != nil {
		s.logger.Warn("clear cart after order", "order_id", a.order.ID, "err", err)
	}

	s.mu.Lock()
	a.state = domain.AttemptCompleted
	s.finishLocked(a)
	ev := s.eventLocked(a)
	s.mu.Unlock()

	s.emit(ctx, ev)
	s.logger.Info("checkout completed",
		"order_id", a.order.ID,
		"captured", a.order.CapturedAmount.StringFixed(2),
	)
}

func (s *checkoutService) Cancel(ctx context.Context, orderID uuid.UUID) (Attempt, error) {
	s.mu.Lock()
	a, ok := s.attempts[orderID]
	if !ok {
		s.mu.Unlock()
		return Attempt{}, domain.ErrAttemptNotFound
	}
	if a.state != domain.AttemptAwaitingCapture || a.resolving {
		view := s.viewLocked(a)
		s.mu.Unlock()
		return view, domain.ErrNotCancelable
	}

	_ = a.order.Transition(domain.OrderCanceled, s.now().UTC())
	a.state = domain.AttemptCanceled
	a.err = domain.ErrCheckoutCanceled
	s.finishLocked(a)
	ev := s.eventLocked(a)
	view := s.viewLocked(a)
	s.mu.Unlock()

	s.emit(ctx, ev)
	s.logger.Info("checkout canceled", "order_id", orderID)
	return view, nil
}

func (s *checkoutService) Await(ctx context.Context, orderID uuid.UUID) (Attempt, error) {
	s.mu.Lock()
	a, ok := s.attempts[orderID]
	s.mu.Unlock()
	if !ok {
		return Attempt{}, domain.ErrAttemptNotFound
	}

	select {
	case <-a.done:
		return s.snapshot(a), nil
	case <-ctx.Done():
		return s.snapshot(a), ctx.Err()
	}
}

func (s *checkoutService) Get(orderID uuid.UUID) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[orderID]
	if !ok {
		return Attempt{}, domain.ErrAttemptNotFound
	}
	return s.viewLocked(a), nil
}

func (s *checkoutService) Stuck(olderThan time.Duration) []Attempt {
	cutoff := s.now().UTC().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Attempt
	for _, a := range s.attempts {
		if a.state == domain.AttemptAwaitingCapture && !a.resolving && a.awaitingSince.Before(cutoff) {
			out = append(out, s.viewLocked(a))
		}
	}
	return out
}

func (s *checkoutService) Expire(ctx context.Context, orderID uuid.UUID) (bool, error) {
	s.mu.Lock()
	a, ok := s.attempts[orderID]
	if !ok {
		s.mu.Unlock()
		return false, domain.ErrAttemptNotFound
	}
	if a.state != domain.AttemptAwaitingCapture || a.resolving {
		s.mu.Unlock()
		return false, nil
	}

	_ = a.order.Fail(domain.ErrCaptureTimeout.Error(), s.now().UTC())
	a.state = domain.AttemptFailed
	a.err = domain.ErrCaptureTimeout
	s.finishLocked(a)
	ev := s.eventLocked(a)
	s.mu.Unlock()

	s.emit(ctx, ev)
	s.logger.Warn("capture wait expired", "order_id", orderID, "handle_id", a.order.CaptureHandle)
	return true, nil
}

func (s *checkoutService) Prune(olderThan time.Duration) int {
	cutoff := s.now().UTC().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, a := range s.attempts {
		if a.state.IsTerminal() && a.settledAt.Before(cutoff) {
			delete(s.attempts, id)
			delete(s.byHandle, a.order.CaptureHandle)
			n++
		}
	}
	return n
}

func (s *checkoutService) finishLocked(a *attempt) {
	a.resolving = false
	a.settledAt = s.now().UTC()
	if s.inFlight[a.session.ID] == a.order.ID {
		delete(s.inFlight, a.session.ID)
	}
	close(a.done)
}

func (s *checkoutService) viewLocked(a *attempt) Attempt {
	return Attempt{
		Order:         a.order.Clone(),
		SessionID:     a.session.ID,
		State:         a.state,
		Err:           a.err,
		AwaitingSince: a.awaitingSince,
	}
}

func (s *checkoutService) snapshot(a *attempt) Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(a)
}

func (s *checkoutService) eventLocked(a *attempt) domain.CheckoutEvent {
	ev := domain.CheckoutEvent{
		OrderID:   a.order.ID,
		SessionID: a.session.ID,
		State:     a.state,
		Status:    a.order.Status,
		At:        s.now().UTC(),
	}
	if a.err != nil {
		ev.Error = a.err.Error()
	}
	return ev
}

func (s *checkoutService) emit(ctx context.Context, ev domain.CheckoutEvent) {
	if s.sink == nil {
		return
	}
	_ = s.sink.Publish(context.WithoutCancel(ctx), ev)
}
