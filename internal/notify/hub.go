// Package notify fans payment events out to subscribers. Delivery is
// best-effort: events published to a key nobody holds are dropped, and a
// subscriber that cannot keep up loses events rather than blocking the
// payment path.
package notify

import (
	"sync"

	"go.uber.org/zap"

	"stablepay/internal/domain"
)

const subscriptionBuffer = 16

// Subscription receives events for one key until unsubscribed. C is closed
// by Unsubscribe.
type Subscription struct {
	Key string
	C   chan domain.PaymentEvent
}

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
	log  *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]struct{}),
		log:  log,
	}
}

func (h *Hub) Subscribe(key string) *Subscription {
	sub := &Subscription{
		Key: key,
		C:   make(chan domain.PaymentEvent, subscriptionBuffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*Subscription]struct{})
	}
	h.subs[key][sub] = struct{}{}
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.Key]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.Key)
	}
	close(sub.C)
}

// Publish delivers the event to every subscriber of the key without
// blocking. Slow subscribers drop the event.
func (h *Hub) Publish(key string, event domain.PaymentEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[key] {
		select {
		case sub.C <- event:
		default:
			h.log.Warn("subscriber buffer full, dropping event",
				zap.String("key", key),
				zap.String("type", string(event.Type)))
		}
	}
}
