package domain

import "github.com/bytedance/sonic"

// Board event types published to the domain event queue.
const (
	EventCardCreated = "card-created"
	EventCardUpdated = "card-updated"
	EventCardDeleted = "card-deleted"
	EventCardsMoved  = "cards-moved"
)

// Event records a committed board mutation for downstream consumers.
type Event struct {
	ID         string                 `json:"id"`
	EntityID   string                 `json:"entityId"`
	EntityType string                 `json:"entityType"`
	Type       string                 `json:"type"`
	Data       sonic.NoCopyRawMessage `json:"data,omitempty"`
	Time       int64                  `json:"time"`
}

// EventEnvelope wraps an event with the scope tag it belongs to.
type EventEnvelope struct {
	ScopeTag string `json:"scopeTag"`
	Event    Event  `json:"event"`
}
