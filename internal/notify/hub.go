package notify

import (
	"sync"
	"time"
)

// Event types published by the agent for UI shells listening on the
// WebSocket stream.
const (
	EventQueueUpdated       = "queue.updated"
	EventSyncStarted        = "sync.started"
	EventSyncFinished       = "sync.finished"
	EventSnapshotRefreshed  = "snapshot.refreshed"
	EventConnectivityChange = "connectivity.changed"
)

// Event is a single notification pushed to subscribers.
type Event struct {
	Type    string      `json:"type"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload,omitempty"`
}

// Hub fans events out to any number of subscribers. Slow subscribers keep
// only the most recent events; publishing never blocks.
type Hub struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[int]chan Event),
	}
}

// Publish delivers the event to every current subscriber.
func (h *Hub) Publish(eventType string, payload interface{}) {
	event := Event{
		Type:    eventType,
		At:      time.Now().UTC(),
		Payload: payload,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// Subscribe registers a listener. The returned function tears the
// subscription down and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 16)
	h.subscribers[id] = ch

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}
