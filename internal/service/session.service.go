package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"storefront-checkout/internal/cart"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/identity"
	"storefront-checkout/internal/repo"
)

// Session bundles the cart state owned by one browser session.
type Session struct {
	ID        string
	ClientID  string
	Store     *cart.Store
	Projector *cart.Projector
	Identity  *identity.Watcher
	Sync      *Synchronizer
	OpenedAt  time.Time

	lastUsed atomic.Int64
}

func (s *Session) touch(at time.Time) {
	s.lastUsed.Store(at.UnixNano())
}

// LastUsed is when the session was last opened or looked up.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load()).UTC()
}

func (s *Session) Projection() cart.Projection {
	return s.Projector.Project(s.Store.Snapshot())
}

// ClearCart empties the store and deletes the cart from every tier.
func (s *Session) ClearCart(ctx context.Context) error {
	s.Store.Clear()
	return s.Sync.Purge(ctx)
}

type SessionService interface {
	// Open returns the session for sessionID, creating and restoring it on
	// first use. An existing session adopts id as its current identity.
	// A session held by another client reports ErrSessionNotFound.
	Open(ctx context.Context, clientID, sessionID string, id identity.State) (*Session, error)
	Get(sessionID string) (*Session, bool)
	// EvictIdle flushes and drops sessions unused for IdleTimeout and
	// returns how many were dropped.
	EvictIdle(ctx context.Context) int
	FlushAll(ctx context.Context) error
}

type SessionConfig struct {
	LongLived    repo.TierStore
	SessionTier  repo.TierStore
	Debounce     time.Duration
	WriteTimeout time.Duration
	// IdleTimeout bounds how long an unused session stays in memory.
	// Zero defaults to 30 minutes.
	IdleTimeout time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

type sessionService struct {
	cfg    SessionConfig
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group
}

func NewSessionService(cfg SessionConfig) SessionService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &sessionService{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
	}
}

func (s *sessionService) Get(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if ok {
		// Touched under the read lock so EvictIdle never drops a session
		// that was just handed out.
		sess.touch(s.cfg.Now())
	}
	return sess, ok
}

func (s *sessionService) Open(ctx context.Context, clientID, sessionID string, id identity.State) (*Session, error) {
	if clientID == "" || sessionID == "" {
		v := domain.ValidationError{}
		if clientID == "" {
			v.Add("clientId", "client id is required")
		}
		if sessionID == "" {
			v.Add("sessionId", "session id is required")
		}
		return nil, &v
	}

	if sess, ok := s.Get(sessionID); ok {
		if sess.ClientID != clientID {
			return nil, s.foreignSession(sess, clientID)
		}
		sess.Identity.Set(id)
		return sess, nil
	}

	v, err, _ := s.group.Do(sessionID, func() (any, error) {
		if sess, ok := s.Get(sessionID); ok {
			return sess, nil
		}
		sess := s.create(ctx, clientID, sessionID, id)
		sess.touch(s.cfg.Now())

		s.mu.Lock()
		s.sessions[sessionID] = sess
		s.mu.Unlock()
		return sess, nil
	})
	if err != nil {
		return nil, err
	}

	sess := v.(*Session)
	if sess.ClientID != clientID {
		return nil, s.foreignSession(sess, clientID)
	}
	sess.Identity.Set(id)
	return sess, nil
}

func (s *sessionService) foreignSession(sess *Session, clientID string) error {
	s.logger.Warn("session claimed by another client",
		"session_id", sess.ID,
		"client_id", clientID,
	)
	return domain.ErrSessionNotFound
}

func (s *sessionService) create(ctx context.Context, clientID, sessionID string, id identity.State) *Session {
	store := cart.NewStore()
	watcher := identity.NewWatcher(id)
	syncer := NewSynchronizer(SyncConfig{
		Store:        store,
		Identity:     watcher,
		LongLived:    s.cfg.LongLived,
		Session:      s.cfg.SessionTier,
		ClientID:     clientID,
		SessionID:    sessionID,
		Debounce:     s.cfg.Debounce,
		WriteTimeout: s.cfg.WriteTimeout,
		Logger:       s.logger,
	})

	// A canceled request must not leave the session half restored.
	tier, ok := syncer.Restore(context.WithoutCancel(ctx), id)
	syncer.Start()

	s.logger.Info("session opened",
		"session_id", sessionID,
		"client_id", clientID,
		"identity", id.String(),
		"restored", ok,
		"tier", tier,
	)

	return &Session{
		ID:        sessionID,
		ClientID:  clientID,
		Store:     store,
		Projector: cart.NewProjector(),
		Identity:  watcher,
		Sync:      syncer,
		OpenedAt:  time.Now().UTC(),
	}
}

func (s *sessionService) EvictIdle(ctx context.Context) int {
	cutoff := s.cfg.Now().Add(-s.cfg.IdleTimeout)

	s.mu.RLock()
	var idle []*Session
	for _, sess := range s.sessions {
		if sess.LastUsed().Before(cutoff) {
			idle = append(idle, sess)
		}
	}
	s.mu.RUnlock()

	evicted := 0
	for _, sess := range idle {
		if err := sess.Sync.Flush(ctx); err != nil {
			s.logger.Warn("flush idle session", "session_id", sess.ID, "err", err)
			continue
		}

		s.mu.Lock()
		// A request may have picked the session up while it was flushing.
		if cur, ok := s.sessions[sess.ID]; ok && cur == sess && sess.LastUsed().Before(cutoff) {
			delete(s.sessions, sess.ID)
			evicted++
		}
		s.mu.Unlock()
	}
	if evicted > 0 {
		s.logger.Info("idle sessions evicted", "count", evicted, "idle_timeout", s.cfg.IdleTimeout)
	}
	return evicted
}

// FlushAll writes every pending debounced change. Used on shutdown.
func (s *sessionService) FlushAll(ctx context.Context) error {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	var errs []error
	for _, sess := range sessions {
		if err := sess.Sync.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
