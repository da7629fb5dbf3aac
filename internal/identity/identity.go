// Package identity tracks whether a shopper session is anonymous or tied to
// a recognized account.
package identity

import (
	"strings"
	"sync"
)

type State struct {
	Recognized bool   `json:"recognized"`
	UserID     string `json:"userId,omitempty"`
}

func Anonymous() State {
	return State{}
}

func Recognized(userID string) State {
	return State{Recognized: true, UserID: userID}
}

// FromUserID maps an X-User-Id header value to a State.
func FromUserID(userID string) State {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Anonymous()
	}
	return Recognized(userID)
}

func (s State) String() string {
	if s.Recognized {
		return "recognized"
	}
	return "anonymous"
}

// Watcher holds the current identity of one session and notifies
// subscribers when it changes.
type Watcher struct {
	mu      sync.RWMutex
	current State
	subs    []func(prev, next State)
}

func NewWatcher(initial State) *Watcher {
	return &Watcher{current: initial}
}

func (w *Watcher) Current() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Set replaces the identity. Subscribers run after the lock is released and
// only when the state actually changed.
func (w *Watcher) Set(next State) bool {
	w.mu.Lock()
	prev := w.current
	if prev == next {
		w.mu.Unlock()
		return false
	}
	w.current = next
	subs := w.subs
	w.mu.Unlock()

	for _, fn := range subs {
		fn(prev, next)
	}
	return true
}

func (w *Watcher) Subscribe(fn func(prev, next State)) {
	w.mu.Lock()
	w.subs = append(w.subs, fn)
	w.mu.Unlock()
}
