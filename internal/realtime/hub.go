// Package realtime delivers row-change events to connected clients. It is the
// in-process stand-in for the change-feed collaborator: writers publish after
// committing, and per-user SSE streams fan events out.
package realtime

import (
	"sync"
	"time"
)

// Event types published by the handlers.
const (
	EventMessageCreated  = "message.created"
	EventMessageEdited   = "message.edited"
	EventMessageDeleted  = "message.deleted"
	EventReactionAdded   = "reaction.added"
	EventReactionRemoved = "reaction.removed"
	EventReceiptUpdated  = "receipt.updated"
	EventPresenceChanged = "presence.changed"
	EventFriendRequested = "friend.requested"
	EventFriendAccepted  = "friend.accepted"
	EventFileShared      = "file.shared"
)

// Event is one change notification.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

const subscriberBuffer = 64

// Hub routes events to per-user subscriber channels. Slow subscribers drop
// events rather than blocking writers.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint64]map[chan Event]struct{}
}

// NewHub constructs a Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]map[chan Event]struct{})}
}

// Subscribe registers a channel for one user's events. The returned cancel
// func must be called when the consumer goes away.
func (h *Hub) Subscribe(userID uint64) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	set := h.subs[userID]
	if set == nil {
		set = make(map[chan Event]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[userID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, userID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every listed user's subscribers.
func (h *Hub) Publish(userIDs []uint64, eventType string, payload any) {
	if h == nil || len(userIDs) == 0 {
		return
	}
	event := Event{Type: eventType, Payload: payload, At: time.Now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, userID := range userIDs {
		for ch := range h.subs[userID] {
			select {
			case ch <- event:
			default:
			}
		}
	}
}
