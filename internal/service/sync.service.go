package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront-checkout/internal/cart"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/identity"
	"storefront-checkout/internal/repo"
)

// TiersFor is the identity policy table: which tiers hold the cart.
func TiersFor(id identity.State) []domain.Tier {
	if id.Recognized {
		return []domain.Tier{domain.TierLongLived, domain.TierSession}
	}
	return []domain.Tier{domain.TierLongLived}
}

func LongLivedKey(clientID string) string {
	return "cart:client:" + clientID
}

func SessionKey(sessionID string) string {
	return "cart:session:" + sessionID
}

type SyncConfig struct {
	Store     *cart.Store
	Identity  *identity.Watcher
	LongLived repo.TierStore
	Session   repo.TierStore
	ClientID  string
	SessionID string

	// Debounce <= 0 persists inline on every change.
	Debounce     time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Synchronizer mirrors one cart store into its storage tiers. Memory is
// always authoritative: failed writes are logged and retried by the next
// change.
type Synchronizer struct {
	store    *cart.Store
	identity *identity.Watcher
	tiers    map[domain.Tier]repo.TierStore
	keys     map[domain.Tier]string
	debounce time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	timer      *time.Timer
	pending    bool
	generation uint64

	// writeMu orders tier writes against purges.
	writeMu sync.Mutex
}

func NewSynchronizer(cfg SyncConfig) *Synchronizer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Synchronizer{
		store:    cfg.Store,
		identity: cfg.Identity,
		tiers: map[domain.Tier]repo.TierStore{
			domain.TierLongLived: cfg.LongLived,
			domain.TierSession:   cfg.Session,
		},
		keys: map[domain.Tier]string{
			domain.TierLongLived: LongLivedKey(cfg.ClientID),
			domain.TierSession:   SessionKey(cfg.SessionID),
		},
		debounce: cfg.Debounce,
		timeout:  cfg.WriteTimeout,
		logger:   cfg.Logger.With("client_id", cfg.ClientID, "session_id", cfg.SessionID),
		now:      cfg.Now,
	}
}

// Start subscribes to store and identity changes. Call it after Restore so
// the restored cart is not written straight back.
func (s *Synchronizer) Start() {
	s.store.OnChange(func(domain.CartSnapshot) { s.schedule() })
	s.identity.Subscribe(s.onIdentityChange)
}

// Restore loads the first readable record for id into the store. It
// reports the tier used and false when nothing was found.
func (s *Synchronizer) Restore(ctx context.Context, id identity.State) (domain.Tier, bool) {
	order := []domain.Tier{domain.TierLongLived}
	if id.Recognized {
		order = []domain.Tier{domain.TierSession, domain.TierLongLived}
	}

	for _, tier := range order {
		blob, err := s.tiers[tier].Read(ctx, s.keys[tier])
		if errors.Is(err, domain.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("restore cart: read failed", "tier", tier, "err", err)
			continue
		}
		rec, err := domain.DecodeRecord(blob, tier)
		if err != nil {
			s.logger.Warn("restore cart: bad record", "tier", tier, "err", err)
			continue
		}
		s.store.ReplaceAll(domain.CartSnapshot{Items: rec.Items})
		s.logger.Debug("cart restored", "tier", tier, "items", len(rec.Items))
		return tier, true
	}
	return "", false
}

// Persist writes snap to every tier the policy selects for id. Each failed
// tier yields a *domain.StorageWriteError in the joined result.
func (s *Synchronizer) Persist(ctx context.Context, snap domain.CartSnapshot, id identity.State) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.persistLocked(ctx, snap, id)
}

func (s *Synchronizer) persistLocked(ctx context.Context, snap domain.CartSnapshot, id identity.State) error {
	tiers := TiersFor(id)
	errs := make([]error, len(tiers))
	savedAt := s.now().UTC()

	var g errgroup.Group
	for i, tier := range tiers {
		g.Go(func() error {
			key := s.keys[tier]
			blob, err := domain.EncodeRecord(tier, snap, savedAt)
			if err == nil {
				err = s.tiers[tier].Write(ctx, key, blob)
			}
			if err != nil {
				errs[i] = &domain.StorageWriteError{Tier: tier, Key: key, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			s.logger.Error("persist cart", "err", err)
		}
	}
	return errors.Join(errs...)
}

// Flush writes a pending debounced change now.
func (s *Synchronizer) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	pending := s.pending
	s.pending = false
	gen := s.generation
	s.mu.Unlock()

	if !pending {
		return nil
	}
	return s.writeIfCurrent(ctx, gen)
}

// Purge drops any pending write and deletes the cart from every tier.
func (s *Synchronizer) Purge(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
	s.generation++
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tiers := []domain.Tier{domain.TierLongLived, domain.TierSession}
	errs := make([]error, len(tiers))
	var g errgroup.Group
	for i, tier := range tiers {
		g.Go(func() error {
			if err := s.tiers[tier].Delete(ctx, s.keys[tier]); err != nil {
				errs[i] = &domain.StorageWriteError{Tier: tier, Key: s.keys[tier], Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error("purge cart", "err", err)
	}
	return err
}

func (s *Synchronizer) schedule() {
	s.mu.Lock()
	s.pending = true
	gen := s.generation
	if s.debounce <= 0 {
		s.pending = false
		s.mu.Unlock()
		_ = s.writeIfCurrent(context.Background(), gen)
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.fire)
	} else {
		s.timer.Reset(s.debounce)
	}
	s.mu.Unlock()
}

func (s *Synchronizer) fire() {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = false
	gen := s.generation
	s.mu.Unlock()

	_ = s.writeIfCurrent(context.Background(), gen)
}

// writeIfCurrent persists the latest snapshot unless a purge happened since
// gen was read.
func (s *Synchronizer) writeIfCurrent(ctx context.Context, gen uint64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	stale := gen != s.generation
	s.mu.Unlock()
	if stale {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.persistLocked(ctx, s.store.Snapshot(), s.identity.Current())
}

func (s *Synchronizer) onIdentityChange(prev, next identity.State) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	switch {
	case !prev.Recognized && next.Recognized:
		// The in-memory cart wins; the session tier just gets a copy.
		_ = s.Persist(ctx, s.store.Snapshot(), next)
	case prev.Recognized && !next.Recognized:
		key := s.keys[domain.TierSession]
		if err := s.tiers[domain.TierSession].Delete(ctx, key); err != nil {
			s.logger.Error("drop session cart",
				"err", &domain.StorageWriteError{Tier: domain.TierSession, Key: key, Err: err})
		}
	}
}
