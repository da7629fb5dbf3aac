package events

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"storefront-checkout/internal/domain"
)

const subscriberBuffer = 16

// Broadcaster delivers events to subscribers of a single order. Slow
// subscribers miss events rather than block the publisher.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[uuid.UUID]map[int]chan domain.CheckoutEvent
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uuid.UUID]map[int]chan domain.CheckoutEvent)}
}

// Subscribe returns a channel of events for orderID and a cancel func that
// closes it.
func (b *Broadcaster) Subscribe(orderID uuid.UUID) (<-chan domain.CheckoutEvent, func()) {
	ch := make(chan domain.CheckoutEvent, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[orderID] == nil {
		b.subs[orderID] = make(map[int]chan domain.CheckoutEvent)
	}
	b.subs[orderID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[orderID]; ok {
				if c, ok := set[id]; ok {
					delete(set, id)
					close(c)
				}
				if len(set) == 0 {
					delete(b.subs, orderID)
				}
			}
		})
	}
	return ch, cancel
}

func (b *Broadcaster) Publish(_ context.Context, ev domain.CheckoutEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[ev.OrderID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *Broadcaster) Subscribers(orderID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[orderID])
}
