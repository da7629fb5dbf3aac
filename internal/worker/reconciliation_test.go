package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/identity"
	"storefront-checkout/internal/repo"
	"storefront-checkout/internal/service"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type gateway struct {
	mu     sync.Mutex
	status map[string]domain.CaptureResult
	err    error
}

func (g *gateway) Submit(_ context.Context, req domain.CaptureRequest) (domain.CaptureHandle, error) {
	return domain.CaptureHandle{ID: "cap_" + req.OrderID.String(), OrderID: req.OrderID, Amount: req.Amount}, nil
}

func (g *gateway) CheckStatus(_ context.Context, handleID string) (domain.CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return domain.CaptureResult{}, g.err
	}
	if r, ok := g.status[handleID]; ok {
		return r, nil
	}
	return domain.CaptureResult{HandleID: handleID, Status: domain.CaptureUnknown}, nil
}

func (g *gateway) set(handleID string, r domain.CaptureResult) {
	g.mu.Lock()
	g.status[handleID] = r
	g.mu.Unlock()
}

type recorder struct{}

func (recorder) RecordOrder(context.Context, *domain.CheckoutOrder) error { return nil }

type ledger struct {
	unsettled []domain.Capture
	settled   []domain.CaptureResult
}

func (l *ledger) Opened(context.Context, *domain.CheckoutOrder, domain.CaptureHandle) error {
	return nil
}

func (l *ledger) Settled(_ context.Context, r domain.CaptureResult) error {
	l.settled = append(l.settled, r)
	return nil
}

func (l *ledger) Unsettled(context.Context, time.Time, int) ([]domain.Capture, error) {
	return l.unsettled, nil
}

type fixture struct {
	clock    *clock
	gw       *gateway
	checkout service.CheckoutService
	worker   *ReconciliationWorker
	attempt  service.Attempt
}

func newFixture(t *testing.T, l service.CaptureLedger) *fixture {
	t.Helper()
	f := &fixture{
		clock: &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		gw:    &gateway{status: map[string]domain.CaptureResult{}},
	}
	f.checkout = service.NewCheckoutService(service.CheckoutConfig{
		Processor: f.gw,
		Recorder:  recorder{},
		Now:       f.clock.Now,
	})
	f.worker = NewReconciliationWorker(f.checkout, f.gw, l, Config{
		StuckAfter:     time.Minute,
		CaptureTimeout: 5 * time.Minute,
	}, nil)
	f.worker.now = f.clock.Now

	sessions := service.NewSessionService(service.SessionConfig{
		LongLived:   repo.NewMemoryTier(),
		SessionTier: repo.NewMemoryTier(),
	})
	sess, err := sessions.Open(context.Background(), "c1", "s1", identity.Anonymous())
	require.NoError(t, err)
	_, err = sess.Store.Add(domain.CartLineItem{ProductID: "p", Name: "Lamp", UnitPrice: decimal.RequireFromString("12.00"), Quantity: 1})
	require.NoError(t, err)

	f.attempt, err = f.checkout.Submit(context.Background(), sess)
	require.NoError(t, err)
	return f
}

func TestProcess_AppliesLostResult(t *testing.T) {
	f := newFixture(t, nil)
	f.gw.set(f.attempt.Order.CaptureHandle, domain.CaptureResult{
		OrderID:        f.attempt.Order.ID,
		Status:         domain.CaptureSucceeded,
		CapturedAmount: decimal.RequireFromString("12.00"),
	})

	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.worker.process(context.Background()))

	got, err := f.checkout.Get(f.attempt.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptCompleted, got.State)
}

func TestProcess_UnknownWithinTimeoutKeepsWaiting(t *testing.T) {
	f := newFixture(t, nil)

	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.worker.process(context.Background()))

	got, _ := f.checkout.Get(f.attempt.Order.ID)
	assert.Equal(t, domain.AttemptAwaitingCapture, got.State)
}

func TestProcess_ExpiresAfterTimeout(t *testing.T) {
	f := newFixture(t, nil)

	f.clock.Advance(6 * time.Minute)
	require.NoError(t, f.worker.process(context.Background()))

	got, _ := f.checkout.Get(f.attempt.Order.ID)
	assert.Equal(t, domain.AttemptFailed, got.State)
	assert.ErrorIs(t, got.Err, domain.ErrCaptureTimeout)
}

func TestProcess_ExpiresWhenProcessorUnreachable(t *testing.T) {
	f := newFixture(t, nil)
	f.gw.mu.Lock()
	f.gw.err = errors.New("processor unreachable")
	f.gw.mu.Unlock()

	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.worker.process(context.Background()))
	got, _ := f.checkout.Get(f.attempt.Order.ID)
	assert.Equal(t, domain.AttemptAwaitingCapture, got.State)

	f.clock.Advance(4 * time.Minute)
	require.NoError(t, f.worker.process(context.Background()))
	got, _ = f.checkout.Get(f.attempt.Order.ID)
	assert.Equal(t, domain.AttemptFailed, got.State)
	assert.ErrorIs(t, got.Err, domain.ErrCaptureTimeout)
	assert.Empty(t, f.checkout.Stuck(time.Minute))
}

func TestProcess_SettlesGhostCharges(t *testing.T) {
	orphan := domain.Capture{ID: "cap_orphan", OrderID: uuid.New(), Amount: decimal.RequireFromString("3.00"), Status: domain.PaymentProcessing}
	l := &ledger{unsettled: []domain.Capture{orphan}}
	f := newFixture(t, l)
	f.gw.set("cap_orphan", domain.CaptureResult{OrderID: orphan.OrderID, Status: domain.CaptureSucceeded})

	require.NoError(t, f.worker.process(context.Background()))

	require.Len(t, l.settled, 1)
	assert.Equal(t, "cap_orphan", l.settled[0].HandleID)
	assert.Equal(t, domain.CaptureSucceeded, l.settled[0].Status)
}

func TestProcess_LedgerSkipsLiveAttempts(t *testing.T) {
	l := &ledger{}
	f := newFixture(t, l)
	l.unsettled = []domain.Capture{{ID: f.attempt.Order.CaptureHandle, OrderID: f.attempt.Order.ID, Status: domain.PaymentProcessing}}
	f.gw.set(f.attempt.Order.CaptureHandle, domain.CaptureResult{Status: domain.CaptureFailed})

	require.NoError(t, f.worker.process(context.Background()))
	assert.Empty(t, l.settled)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	f.worker.cfg.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.worker.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
