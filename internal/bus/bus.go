// ABOUTME: In-process named-event publish/subscribe bus with handle-based unsubscribe
// ABOUTME: Fan-out is synchronous, in subscription order, with per-handler panic isolation

package bus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Event names published by the messaging engine.
const (
	EventConversationNew     = "conversation:new"
	EventConversationUpdated = "conversation:updated"
	EventMessageNew          = "message:new"
	EventTypingUpdated       = "typing:updated"
	EventNotificationNew     = "notification:new"
)

// Handler receives the payload published for an event name.
type Handler func(payload any)

// Subscription identifies a registered handler for later removal.
type Subscription struct {
	event string
	id    string
}

// Event is the subscribed event name, useful for multiplexed observers.
func (s Subscription) Event() string { return s.event }

type entry struct {
	id      string
	handler Handler
}

// Bus is an in-process publish/subscribe register keyed by event name.
// Publish invokes all handlers registered for that name synchronously,
// in subscription order. There is no persistence and no replay: a
// subscriber that joins after an event fired never receives it.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]entry
	logger   *slog.Logger
}

// New creates a bus. Pass nil logger for the default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[string][]entry),
		logger:   logger.With("component", "bus"),
	}
}

// Subscribe registers a handler for the given event name and returns a
// handle for Unsubscribe.
func (b *Bus) Subscribe(event string, handler Handler) Subscription {
	sub := Subscription{event: event, id: uuid.New().String()}

	b.mu.Lock()
	b.handlers[event] = append(b.handlers[event], entry{id: sub.id, handler: handler})
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "event", event, "sub_id", sub.id)
	return sub
}

// Unsubscribe removes a previously registered handler. Unknown handles
// are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, ok := b.handlers[sub.event]
	if !ok {
		return
	}
	for i, e := range entries {
		if e.id == sub.id {
			b.handlers[sub.event] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(b.handlers[sub.event]) == 0 {
		delete(b.handlers, sub.event)
	}
	b.logger.Debug("subscriber removed", "event", sub.event, "sub_id", sub.id)
}

// Publish delivers payload to every handler currently registered for the
// event name. A panicking handler is logged and skipped; it must not
// prevent delivery to subsequent handlers.
func (b *Bus) Publish(event string, payload any) {
	b.mu.RLock()
	entries := b.handlers[event]
	// Copy under read lock so handlers can subscribe/unsubscribe reentrantly.
	targets := make([]entry, len(entries))
	copy(targets, entries)
	b.mu.RUnlock()

	for _, e := range targets {
		b.invoke(event, e, payload)
	}
}

func (b *Bus) invoke(event string, e entry, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", event,
				"sub_id", e.id,
				"panic", r)
		}
	}()
	e.handler(payload)
}
