package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/identity"
	"storefront-checkout/internal/repo"
)

// flakyTier is an in-memory tier whose writes can be made to fail.
type flakyTier struct {
	*repo.MemoryTier
	tier       domain.Tier
	failWrites atomic.Bool
	failReads  atomic.Bool
	writes     atomic.Int32
}

func newFlakyTier(tier domain.Tier) *flakyTier {
	return &flakyTier{MemoryTier: repo.NewMemoryTier(), tier: tier}
}

func (f *flakyTier) Write(ctx context.Context, key string, blob []byte) error {
	f.writes.Add(1)
	if f.failWrites.Load() {
		return errors.New("tier unavailable")
	}
	return f.MemoryTier.Write(ctx, key, blob)
}

func (f *flakyTier) Read(ctx context.Context, key string) ([]byte, error) {
	if f.failReads.Load() {
		return nil, errors.New("tier unavailable")
	}
	return f.MemoryTier.Read(ctx, key)
}

func (f *flakyTier) items(t *testing.T, key string) []domain.CartLineItem {
	t.Helper()
	blob, err := f.MemoryTier.Read(context.Background(), key)
	require.NoError(t, err)
	rec, err := domain.DecodeRecord(blob, f.tier)
	require.NoError(t, err)
	return rec.Items
}

func (f *flakyTier) has(key string) bool {
	_, err := f.MemoryTier.Read(context.Background(), key)
	return err == nil
}

type fakeProcessor struct {
	mu       sync.Mutex
	requests []domain.CaptureRequest
	err      error
	status   map[string]domain.CaptureResult
	onSubmit func(domain.CaptureRequest, domain.CaptureHandle)
}

func (p *fakeProcessor) Submit(_ context.Context, req domain.CaptureRequest) (domain.CaptureHandle, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	err := p.err
	hook := p.onSubmit
	p.mu.Unlock()
	if err != nil {
		return domain.CaptureHandle{}, err
	}
	h := domain.CaptureHandle{ID: "cap_" + uuid.NewString(), OrderID: req.OrderID, Amount: req.Amount, Currency: req.Currency}
	if hook != nil {
		hook(req, h)
	}
	return h, nil
}

func (p *fakeProcessor) CheckStatus(_ context.Context, handleID string) (domain.CaptureResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.status[handleID]; ok {
		return r, nil
	}
	return domain.CaptureResult{HandleID: handleID, Status: domain.CaptureUnknown}, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	err      error
	recorded []*domain.CheckoutOrder
}

func (r *fakeRecorder) RecordOrder(_ context.Context, o *domain.CheckoutOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.recorded = append(r.recorded, o)
	return nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recorded)
}

type eventLog struct {
	mu  sync.Mutex
	got []domain.CheckoutEvent
}

func (e *eventLog) Publish(_ context.Context, ev domain.CheckoutEvent) error {
	e.mu.Lock()
	e.got = append(e.got, ev)
	e.mu.Unlock()
	return nil
}

func (e *eventLog) states() []domain.AttemptState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.AttemptState, 0, len(e.got))
	for _, ev := range e.got {
		out = append(out, ev.State)
	}
	return out
}

func lineItem(productID, price string, qty int) domain.CartLineItem {
	return domain.CartLineItem{
		ProductID: productID,
		Name:      "Product " + productID,
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

type tiers struct {
	long    *flakyTier
	session *flakyTier
}

func newTiers() tiers {
	return tiers{long: newFlakyTier(domain.TierLongLived), session: newFlakyTier(domain.TierSession)}
}

func openSession(t *testing.T, tt tiers, clientID, sessionID string, id identity.State) *Session {
	t.Helper()
	svc := NewSessionService(SessionConfig{LongLived: tt.long, SessionTier: tt.session})
	sess, err := svc.Open(context.Background(), clientID, sessionID, id)
	require.NoError(t, err)
	return sess
}

// assertSameItems compares line items with decimal-aware price equality.
func assertSameItems(t *testing.T, want, got []domain.CartLineItem) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		require.True(t, w.UnitPrice.Equal(g.UnitPrice), "item %d price %s != %s", i, w.UnitPrice, g.UnitPrice)
		w.UnitPrice, g.UnitPrice = decimal.Zero, decimal.Zero
		require.Equal(t, w, g, "item %d", i)
	}
}
