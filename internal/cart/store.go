package cart

import (
	"sync"

	"storefront-checkout/internal/domain"
)

// Store owns the line items of one cart. All reads return copies and all
// writes go through its methods.
type Store struct {
	mu        sync.RWMutex
	items     []domain.CartLineItem
	version   uint64
	observers []func(domain.CartSnapshot)
}

func NewStore() *Store {
	return &Store{}
}

// OnChange registers fn to run after every effective mutation. fn runs on the
// mutating goroutine after the lock is released.
func (s *Store) OnChange(fn func(domain.CartSnapshot)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Add appends item as a new line item, even when the product is already in
// the cart.
func (s *Store) Add(item domain.CartLineItem) (domain.CartLineItem, error) {
	if err := item.Validate(); err != nil {
		return domain.CartLineItem{}, err
	}
	if item.LineItemID == "" {
		item.LineItemID = domain.NewLineItemID()
	}
	item.Quantity = domain.ClampQuantity(item.Quantity)

	s.mutate(func() bool {
		s.items = append(s.items, item)
		return true
	})
	return item, nil
}

// SetQuantity clamps q to 1. Unknown ids are ignored.
func (s *Store) SetQuantity(lineItemID string, q int) bool {
	q = domain.ClampQuantity(q)
	return s.mutate(func() bool {
		i := s.indexOf(lineItemID)
		if i < 0 || s.items[i].Quantity == q {
			return false
		}
		s.items[i].Quantity = q
		return true
	})
}

func (s *Store) Increment(lineItemID string) bool {
	return s.mutate(func() bool {
		i := s.indexOf(lineItemID)
		if i < 0 {
			return false
		}
		s.items[i].Quantity++
		return true
	})
}

// Decrement never takes a line below 1 and never removes it.
func (s *Store) Decrement(lineItemID string) bool {
	return s.mutate(func() bool {
		i := s.indexOf(lineItemID)
		if i < 0 || s.items[i].Quantity <= 1 {
			return false
		}
		s.items[i].Quantity--
		return true
	})
}

func (s *Store) Remove(lineItemID string) bool {
	return s.mutate(func() bool {
		i := s.indexOf(lineItemID)
		if i < 0 {
			return false
		}
		s.items = append(s.items[:i:i], s.items[i+1:]...)
		return true
	})
}

// ReplaceAll swaps in snap's items. Missing ids are generated, duplicate ids
// dropped and quantities clamped.
func (s *Store) ReplaceAll(snap domain.CartSnapshot) {
	items := make([]domain.CartLineItem, 0, len(snap.Items))
	seen := make(map[string]struct{}, len(snap.Items))
	for _, it := range snap.Items {
		if it.LineItemID == "" {
			it.LineItemID = domain.NewLineItemID()
		}
		if _, dup := seen[it.LineItemID]; dup {
			continue
		}
		seen[it.LineItemID] = struct{}{}
		it.Quantity = domain.ClampQuantity(it.Quantity)
		items = append(items, it)
	}

	s.mutate(func() bool {
		s.items = items
		return true
	})
}

func (s *Store) Clear() {
	s.mutate(func() bool {
		if len(s.items) == 0 {
			return false
		}
		s.items = nil
		return true
	})
}

func (s *Store) Snapshot() domain.CartSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CartSnapshot{Version: s.version, Items: domain.CloneItems(s.items)}
}

func (s *Store) Get(lineItemID string) (domain.CartLineItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(lineItemID)
	if i < 0 {
		return domain.CartLineItem{}, false
	}
	return s.items[i], true
}

func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// mutate applies fn under the write lock and notifies observers when fn
// reports a change.
func (s *Store) mutate(fn func() bool) bool {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return false
	}
	s.version++
	snap := domain.CartSnapshot{Version: s.version, Items: domain.CloneItems(s.items)}
	observers := s.observers
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
	return true
}

func (s *Store) indexOf(lineItemID string) int {
	for i := range s.items {
		if s.items[i].LineItemID == lineItemID {
			return i
		}
	}
	return -1
}
