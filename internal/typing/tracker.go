// ABOUTME: Ephemeral per-conversation set of currently-typing participants
// ABOUTME: Every change publishes the full list; silent entries expire after a TTL

package typing

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lessonloop/messaging/internal/bus"
)

// DefaultTTL is how long an indicator stays live without a refreshing
// SetTyping(true) call. A client that goes silent reads as not typing.
const DefaultTTL = 7 * time.Second

// Indicator is one participant's live typing state in a conversation.
type Indicator struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name"`
	IsTyping       bool   `json:"is_typing"`
}

// Event is the payload of bus.EventTypingUpdated: the full current list
// for the conversation, not a delta. Observers replace their local view
// wholesale.
type Event struct {
	ConversationID string      `json:"conversation_id"`
	Typing         []Indicator `json:"typing"`
}

type liveEntry struct {
	indicator Indicator
	expiresAt time.Time
}

// Tracker maintains at most one live entry per (conversation, user).
// Nothing is persisted beyond the process lifetime.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]map[string]liveEntry // conversationID -> userID -> entry

	ttl    time.Duration
	bus    *bus.Bus
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker publishing on b. A non-positive ttl
// falls back to DefaultTTL. Pass nil logger for the default.
func NewTracker(b *bus.Bus, ttl time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		entries: make(map[string]map[string]liveEntry),
		ttl:     ttl,
		bus:     b,
		logger:  logger.With("component", "typing"),
		now:     time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (t *Tracker) SetNow(now func() time.Time) { t.now = now }

// SetTyping upserts or removes the (conversationID, userID) entry and
// publishes typing:updated with the conversation's full current list.
// SetTyping(false) on an absent entry still publishes; observers treat
// the list as authoritative either way.
func (t *Tracker) SetTyping(conversationID, userID, displayName string, isTyping bool) {
	t.mu.Lock()
	t.expireLocked(conversationID)

	if isTyping {
		if _, ok := t.entries[conversationID]; !ok {
			t.entries[conversationID] = make(map[string]liveEntry)
		}
		t.entries[conversationID][userID] = liveEntry{
			indicator: Indicator{
				ConversationID: conversationID,
				UserID:         userID,
				DisplayName:    displayName,
				IsTyping:       true,
			},
			expiresAt: t.now().Add(t.ttl),
		}
	} else if conv, ok := t.entries[conversationID]; ok {
		delete(conv, userID)
		if len(conv) == 0 {
			delete(t.entries, conversationID)
		}
	}

	list := t.listLocked(conversationID)
	t.mu.Unlock()

	t.logger.Debug("typing updated",
		"conversation_id", conversationID,
		"user_id", userID,
		"is_typing", isTyping,
		"live", len(list))

	t.bus.Publish(bus.EventTypingUpdated, &Event{ConversationID: conversationID, Typing: list})
}

// List returns the conversation's current typing participants, expired
// entries already pruned.
func (t *Tracker) List(conversationID string) []Indicator {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked(conversationID)
	return t.listLocked(conversationID)
}

// expireLocked drops entries whose dead-man's-switch window has passed.
func (t *Tracker) expireLocked(conversationID string) {
	conv, ok := t.entries[conversationID]
	if !ok {
		return
	}
	now := t.now()
	for userID, e := range conv {
		if now.After(e.expiresAt) {
			delete(conv, userID)
		}
	}
	if len(conv) == 0 {
		delete(t.entries, conversationID)
	}
}

func (t *Tracker) listLocked(conversationID string) []Indicator {
	conv := t.entries[conversationID]
	list := make([]Indicator, 0, len(conv))
	for _, e := range conv {
		list = append(list, e.indicator)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return list
}
