package ports

import "context"

// Topics published by the platform. The core emits all but TopicOrderCreated,
// which belongs to the order service and is listed here to keep the topic
// namespace in one place.
const (
	TopicStatusChanged       = "status-changed"
	TopicOrderCreated        = "order-created"
	TopicOrderCancelled      = "order-cancelled"
	TopicIncidentAlert       = "incident-alert"
	TopicDriverStatusChanged = "driver-status-changed"
)

// EventBus publishes outbound events, fire-and-forget. Implementations must
// bound the publish attempt; the core logs and drops on failure and never
// blocks a location-ingest caller on delivery.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload any) error
}
