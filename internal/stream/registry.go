// Package stream implements the live observer registry: fan-out of location
// points to every subscriber watching an order. Delivery is message-passing
// over buffered channels so one slow or dead subscriber can never fail the
// others or the ingest path.
package stream

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/roadsync/tracking-system/internal/core/domain"
)

// subscriptionBuffer bounds how many undelivered points a subscriber may lag
// behind before updates are dropped for it.
const subscriptionBuffer = 16

// Subscription is one observer's handle on an order's location feed. The
// channel is closed when the subscription is cancelled.
type Subscription struct {
	orderID string
	ch      chan *domain.LocationPoint
	closed  bool
}

// Events returns the channel location points are delivered on.
func (s *Subscription) Events() <-chan *domain.LocationPoint {
	return s.ch
}

// OrderID returns the order this subscription watches.
func (s *Subscription) OrderID() string {
	return s.orderID
}

// Registry maps order ids to their active subscribers. Purely in-process:
// subscriptions do not survive a restart, clients reconnect and re-subscribe.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
	log  zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		subs: make(map[string]map[*Subscription]struct{}),
		log:  log,
	}
}

// Subscribe registers a new observer for the order and returns its handle.
func (r *Registry) Subscribe(orderID string) *Subscription {
	sub := &Subscription{
		orderID: orderID,
		ch:      make(chan *domain.LocationPoint, subscriptionBuffer),
	}

	r.mu.Lock()
	set, ok := r.subs[orderID]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.subs[orderID] = set
	}
	set[sub] = struct{}{}
	r.mu.Unlock()

	return sub
}

// Unsubscribe removes the observer and closes its channel. Idempotent:
// cancelling twice, or after the order completed, is a no-op.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true

	if set, ok := r.subs[sub.orderID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.subs, sub.orderID)
		}
	}
	close(sub.ch)
}

// Notify delivers the point to every subscriber of its order, best-effort.
// The send is non-blocking: a subscriber whose buffer is full misses this
// point (logged) and catches up on the next one. Holding the read lock for
// the whole dispatch gives snapshot semantics — a concurrent subscribe or
// unsubscribe applies to the next notification, not this one.
func (r *Registry) Notify(p *domain.LocationPoint) {
	if p.OrderID == "" {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for sub := range r.subs[p.OrderID] {
		select {
		case sub.ch <- p:
		default:
			r.log.Warn().
				Str("order_id", p.OrderID).
				Str("driver_id", p.DriverID).
				Msg("observer buffer full, dropping location update")
		}
	}
}

// SubscriberCount reports how many observers currently watch the order.
func (r *Registry) SubscriberCount(orderID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[orderID])
}
