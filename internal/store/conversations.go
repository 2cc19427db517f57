// ABOUTME: ConversationStore owns conversation records keyed by id and by unordered user pair
// ABOUTME: Creation is idempotent per pair; listing is ordered by most recent activity

package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lessonloop/messaging/internal/bus"
)

// ConversationStore owns conversation records and participant metadata.
type ConversationStore struct {
	mu     sync.RWMutex
	convs  map[string]*Conversation // keyed by conversation ID
	byPair map[string]string        // keyed by pairKey(userA, userB) -> conversation ID
	bus    *bus.Bus
	logger *slog.Logger
	now    func() time.Time
}

// NewConversationStore creates a store publishing on b. Pass nil logger
// for the default.
func NewConversationStore(b *bus.Bus, logger *slog.Logger) *ConversationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationStore{
		convs:  make(map[string]*Conversation),
		byPair: make(map[string]string),
		bus:    b,
		logger: logger.With("component", "conversations"),
		now:    time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (s *ConversationStore) SetNow(now func() time.Time) { s.now = now }

// pairKey builds the unordered-pair index key for two user ids.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// CreateOrGet returns the existing conversation for the unordered pair
// (a.UserID, b.UserID) or creates a new one. Exactly one
// conversation:new event fires per pair regardless of call count.
// Returns ErrInvalidParticipants when both snapshots carry the same
// user id.
func (s *ConversationStore) CreateOrGet(a, b Participant, kind ConversationKind) (*Conversation, error) {
	if a.UserID == "" || b.UserID == "" || a.UserID == b.UserID {
		return nil, ErrInvalidParticipants
	}

	key := pairKey(a.UserID, b.UserID)

	s.mu.Lock()
	if id, ok := s.byPair[key]; ok {
		existing := *s.convs[id]
		s.mu.Unlock()
		return &existing, nil
	}

	conv := &Conversation{
		ID:           uuid.New().String(),
		Participants: [2]Participant{a, b},
		LastActivity: s.now(),
		UnreadCount:  0,
		IsActive:     true,
		Kind:         kind,
	}
	s.convs[conv.ID] = conv
	s.byPair[key] = conv.ID
	created := *conv
	s.mu.Unlock()

	s.logger.Debug("conversation created",
		"conversation_id", created.ID,
		"kind", kind,
		"pair", key)

	s.bus.Publish(bus.EventConversationNew, &created)
	return &created, nil
}

// Get retrieves a conversation by id. Returns ErrNotFound for unknown ids.
func (s *ConversationStore) Get(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *conv
	return &result, nil
}

// ListForUser returns every conversation the user participates in,
// ordered descending by last activity. Callers rely on most recently
// active conversations appearing first.
func (s *ConversationStore) ListForUser(userID string) []*Conversation {
	s.mu.RLock()
	result := make([]*Conversation, 0)
	for _, conv := range s.convs {
		if conv.Participant(userID) != nil {
			c := *conv
			result = append(result, &c)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].LastActivity.Equal(result[j].LastActivity) {
			return result[i].LastActivity.After(result[j].LastActivity)
		}
		// Stable fallback so equal timestamps keep a deterministic order.
		return strings.Compare(result[i].ID, result[j].ID) < 0
	})
	return result
}

// Touch records a new last message on the conversation, advances
// LastActivity to the message timestamp, and publishes
// conversation:updated. Returns ErrNotFound for unknown ids.
func (s *ConversationStore) Touch(conversationID string, last *Message) error {
	s.mu.Lock()
	conv, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if last != nil {
		msg := *last
		conv.LastMessage = &msg
		conv.LastActivity = msg.CreatedAt
	} else {
		conv.LastActivity = s.now()
	}
	updated := *conv
	s.mu.Unlock()

	s.bus.Publish(bus.EventConversationUpdated, &updated)
	return nil
}

// setCachedUnread updates the point-in-time unread snapshot on the
// conversation record. The snapshot reflects the last known receiving
// context; per-viewer counts are always re-derived from the message log.
func (s *ConversationStore) setCachedUnread(conversationID string, n int) {
	s.mu.Lock()
	if conv, ok := s.convs[conversationID]; ok {
		conv.UnreadCount = n
	}
	s.mu.Unlock()
}

// RefreshSnapshot replaces the embedded participant snapshot for
// p.UserID in every conversation containing that user.
func (s *ConversationStore) RefreshSnapshot(p Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.convs {
		if cur := conv.Participant(p.UserID); cur != nil {
			*cur = p
		}
	}
}
