package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/identity"
)

func TestSessionService_OpenValidates(t *testing.T) {
	tt := newTiers()
	svc := NewSessionService(SessionConfig{LongLived: tt.long, SessionTier: tt.session})

	_, err := svc.Open(context.Background(), "", "", identity.Anonymous())
	require.Error(t, err)
	var v *domain.ValidationError
	require.ErrorAs(t, err, &v)
	assert.Contains(t, v.Fields, "clientId")
	assert.Contains(t, v.Fields, "sessionId")
}

func TestSessionService_ConcurrentOpenSharesSession(t *testing.T) {
	tt := newTiers()
	svc := NewSessionService(SessionConfig{LongLived: tt.long, SessionTier: tt.session})

	const n = 16
	got := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := svc.Open(context.Background(), "c1", "s1", identity.Anonymous())
			assert.NoError(t, err)
			got[i] = sess
		}()
	}
	wg.Wait()

	for _, sess := range got {
		assert.Same(t, got[0], sess)
	}
	found, ok := svc.Get("s1")
	require.True(t, ok)
	assert.Same(t, got[0], found)
}

func TestSessionService_ReopenUpdatesIdentity(t *testing.T) {
	tt := newTiers()
	svc := NewSessionService(SessionConfig{LongLived: tt.long, SessionTier: tt.session})
	ctx := context.Background()

	sess, err := svc.Open(ctx, "c1", "s1", identity.Anonymous())
	require.NoError(t, err)
	_, _ = sess.Store.Add(lineItem("A", "2", 1))

	again, err := svc.Open(ctx, "c1", "s1", identity.Recognized("u1"))
	require.NoError(t, err)
	assert.Same(t, sess, again)
	assert.Equal(t, identity.Recognized("u1"), sess.Identity.Current())
	assert.True(t, tt.session.has(SessionKey("s1")))
}

func TestSessionService_FlushAll(t *testing.T) {
	tt := newTiers()
	svc := NewSessionService(SessionConfig{LongLived: tt.long, SessionTier: tt.session, Debounce: time.Hour})
	ctx := context.Background()

	sess, err := svc.Open(ctx, "c1", "s1", identity.Anonymous())
	require.NoError(t, err)
	_, _ = sess.Store.Add(lineItem("A", "2", 1))
	assert.False(t, tt.long.has(LongLivedKey("c1")))

	require.NoError(t, svc.FlushAll(ctx))
	assert.True(t, tt.long.has(LongLivedKey("c1")))
}

func TestSession_ClearCart(t *testing.T) {
	tt := newTiers()
	sess := openSession(t, tt, "c1", "s1", identity.Recognized("u1"))
	_, _ = sess.Store.Add(lineItem("A", "2", 1))

	require.NoError(t, sess.ClearCart(context.Background()))
	assert.True(t, sess.Store.Snapshot().IsEmpty())
	assert.False(t, tt.long.has(LongLivedKey("c1")))
	assert.False(t, tt.session.has(SessionKey("s1")))
}

func TestSessionService_OpenRejectsOtherClient(t *testing.T) {
	tt := newTiers()
	svc := NewSessionService(SessionConfig{LongLived: tt.long, SessionTier: tt.session})
	ctx := context.Background()

	sess, err := svc.Open(ctx, "c1", "s1", identity.Recognized("u1"))
	require.NoError(t, err)
	_, _ = sess.Store.Add(lineItem("A", "2", 1))

	_, err = svc.Open(ctx, "intruder", "s1", identity.Recognized("u2"))
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, identity.Recognized("u1"), sess.Identity.Current())
	assert.Len(t, sess.Store.Snapshot().Items, 1)
}

func TestSessionService_EvictIdle(t *testing.T) {
	tt := newTiers()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	svc := NewSessionService(SessionConfig{
		LongLived:   tt.long,
		SessionTier: tt.session,
		Debounce:    time.Hour,
		IdleTimeout: 10 * time.Minute,
		Now:         clock.Now,
	})
	ctx := context.Background()

	idle, err := svc.Open(ctx, "c1", "s1", identity.Anonymous())
	require.NoError(t, err)
	_, _ = idle.Store.Add(lineItem("A", "2", 1))

	clock.Advance(6 * time.Minute)
	busy, err := svc.Open(ctx, "c2", "s2", identity.Anonymous())
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 1, svc.EvictIdle(ctx))
	assert.True(t, tt.long.has(LongLivedKey("c1")))

	_, ok := svc.Get("s2")
	assert.True(t, ok)
	_, ok = svc.Get("s1")
	assert.False(t, ok)

	reopened, err := svc.Open(ctx, "c1", "s1", identity.Anonymous())
	require.NoError(t, err)
	assert.NotSame(t, idle, reopened)
	assert.Len(t, reopened.Store.Snapshot().Items, 1)

	found, _ := svc.Get("s2")
	assert.Same(t, busy, found)
	assert.Equal(t, 0, svc.EvictIdle(ctx))
}
