// ABOUTME: Per-user unread total aggregation over the message log
// ABOUTME: Cache is an optimization only; every bus event triggers a recount from ground truth

package unread

import (
	"log/slog"
	"sync"

	"github.com/lessonloop/messaging/internal/bus"
	"github.com/lessonloop/messaging/internal/store"
)

// Aggregator derives per-user aggregate unread counts from the message
// log. It subscribes to message:new and conversation:updated and keeps a
// per-user cache that is recomputed from the log on every event — the
// log is the source of truth, the cache never drifts from it.
type Aggregator struct {
	mu    sync.RWMutex
	cache map[string]int // userID -> unread total

	log    *store.MessageLog
	logger *slog.Logger
	subs   []bus.Subscription
	bus    *bus.Bus
}

// New creates an aggregator and subscribes it to b. Pass nil logger for
// the default.
func New(log *store.MessageLog, b *bus.Bus, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		cache:  make(map[string]int),
		log:    log,
		logger: logger.With("component", "unread"),
		bus:    b,
	}
	a.subs = append(a.subs,
		b.Subscribe(bus.EventMessageNew, a.onMessageNew),
		b.Subscribe(bus.EventConversationUpdated, a.onConversationUpdated),
	)
	return a
}

// Close detaches the aggregator from the bus.
func (a *Aggregator) Close() {
	for _, s := range a.subs {
		a.bus.Unsubscribe(s)
	}
}

// CountFor returns the aggregate unread total for the user: the sum over
// all conversations of messages addressed to the user that are still
// unread.
func (a *Aggregator) CountFor(userID string) int {
	a.mu.RLock()
	n, ok := a.cache[userID]
	a.mu.RUnlock()
	if ok {
		return n
	}
	return a.refresh(userID)
}

func (a *Aggregator) onMessageNew(payload any) {
	ev, ok := payload.(*store.MessageEvent)
	if !ok || ev.Message == nil {
		return
	}
	a.refresh(ev.Message.ReceiverID)
}

func (a *Aggregator) onConversationUpdated(payload any) {
	conv, ok := payload.(*store.Conversation)
	if !ok {
		return
	}
	// Read-state changes arrive here without saying which side flipped,
	// so recount both participants.
	for i := range conv.Participants {
		a.refresh(conv.Participants[i].UserID)
	}
}

// refresh recomputes the user's total from the message log and stores it
// in the cache.
func (a *Aggregator) refresh(userID string) int {
	n := a.log.UnreadTotal(userID)
	a.mu.Lock()
	a.cache[userID] = n
	a.mu.Unlock()

	a.logger.Debug("unread recomputed", "user_id", userID, "total", n)
	return n
}
