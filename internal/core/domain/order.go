package domain

// OrderStatus represents the lifecycle state of an order. The authoritative
// status record lives in the order service; the transition rules live here and
// are the single source of truth for every caller.
type OrderStatus string

const (
	OrderCreated        OrderStatus = "created"
	OrderProcessing     OrderStatus = "processing"
	OrderAwaitingPickup OrderStatus = "awaiting_pickup"
	OrderInTransit      OrderStatus = "in_transit"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
)

// validTransitions defines the allowed state machine transitions. Terminal
// states allow only the no-op self-transition.
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderCreated:        {OrderAwaitingPickup, OrderCancelled},
	OrderProcessing:     {OrderAwaitingPickup, OrderCancelled},
	OrderAwaitingPickup: {OrderInTransit, OrderCancelled},
	OrderInTransit:      {OrderDelivered, OrderCancelled},
	OrderDelivered:      {OrderDelivered},
	OrderCancelled:      {OrderCancelled},
}

// CanTransitionTo reports whether a transition from the current status to next
// is valid.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further progress.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}
