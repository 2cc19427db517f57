// ABOUTME: MessageLog owns the append-only, time-ordered message sequence per conversation
// ABOUTME: Serializes append-then-touch-then-publish per conversation to preserve total order

package store

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lessonloop/messaging/internal/bus"
)

// MessageLog owns the ordered message sequence for every conversation.
type MessageLog struct {
	mu     sync.RWMutex
	byConv map[string][]*Message // keyed by conversation ID, insertion order
	seq    uint64

	convs  *ConversationStore
	bus    *bus.Bus
	logger *slog.Logger
	now    func() time.Time

	// convLocks serializes the append-touch-publish sequence per
	// conversation. Different conversations append concurrently.
	convLocks sync.Map // conversation ID -> *sync.Mutex
}

// NewMessageLog creates a log bound to the conversation store it touches
// and the bus it publishes on. Pass nil logger for the default.
func NewMessageLog(convs *ConversationStore, b *bus.Bus, logger *slog.Logger) *MessageLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageLog{
		byConv: make(map[string][]*Message),
		convs:  convs,
		bus:    b,
		logger: logger.With("component", "messages"),
		now:    time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (l *MessageLog) SetNow(now func() time.Time) { l.now = now }

func (l *MessageLog) lockConversation(id string) *sync.Mutex {
	mu, _ := l.convLocks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Append validates and appends a message to the conversation's log,
// derives the receiver as the other participant, updates the cached
// unread snapshot, touches the conversation, and publishes message:new.
//
// Errors: ErrNotFound for an unknown conversation, ErrInvalidSender when
// senderID is not a participant, ErrInvalidInput for empty content.
func (l *MessageLog) Append(conversationID, senderID, content string, kind MessageKind, attachments []AttachmentRef) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrInvalidInput
	}
	if kind == "" {
		kind = MessageText
	}

	mu := l.lockConversation(conversationID)
	mu.Lock()
	defer mu.Unlock()

	conv, err := l.convs.Get(conversationID)
	if err != nil {
		return nil, err
	}
	sender := conv.Participant(senderID)
	if sender == nil {
		return nil, ErrInvalidSender
	}
	receiver := conv.Other(senderID)

	l.mu.Lock()
	l.seq++
	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiver.UserID,
		Content:        content,
		CreatedAt:      l.now(),
		IsRead:         false,
		Kind:           kind,
		Attachments:    attachments,
		seq:            l.seq,
	}
	l.byConv[conversationID] = append(l.byConv[conversationID], msg)
	unread := l.unreadInConvLocked(conversationID, receiver.UserID)
	l.mu.Unlock()

	l.convs.setCachedUnread(conversationID, unread)

	if err := l.convs.Touch(conversationID, msg); err != nil {
		// Conversation vanished between Get and Touch; the store never
		// deletes, so this indicates a programming error.
		l.logger.Error("touch failed after append",
			"conversation_id", conversationID,
			"message_id", msg.ID,
			"error", err)
	}

	l.logger.Debug("message appended",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"sender_id", senderID,
		"kind", kind)

	published := *msg
	convSnapshot, _ := l.convs.Get(conversationID)
	l.bus.Publish(bus.EventMessageNew, &MessageEvent{Message: &published, Conversation: convSnapshot})

	result := *msg
	return &result, nil
}

// List returns messages for the conversation ordered ascending by
// CreatedAt (ties by insertion order), windowed to [offset, offset+limit).
// An out-of-range offset yields an empty slice, not an error. Negative
// bounds are ErrInvalidInput; an unknown conversation is ErrNotFound.
func (l *MessageLog) List(conversationID string, limit, offset int) ([]*Message, error) {
	if limit < 0 || offset < 0 {
		return nil, ErrInvalidInput
	}
	if _, err := l.convs.Get(conversationID); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	msgs := l.byConv[conversationID]
	if offset >= len(msgs) {
		return []*Message{}, nil
	}
	end := offset + limit
	if limit == 0 || end > len(msgs) {
		end = len(msgs)
	}

	result := make([]*Message, 0, end-offset)
	for _, m := range msgs[offset:end] {
		msg := *m
		result = append(result, &msg)
	}
	return result, nil
}

// MarkRead transitions every unread message addressed to readerID in the
// conversation to read, resets the cached unread snapshot, and publishes
// conversation:updated. Idempotent: when nothing is unread it is a no-op
// and no event fires. Returns the number of messages transitioned.
func (l *MessageLog) MarkRead(conversationID, readerID string) (int, error) {
	mu := l.lockConversation(conversationID)
	mu.Lock()
	defer mu.Unlock()

	conv, err := l.convs.Get(conversationID)
	if err != nil {
		return 0, err
	}
	if conv.Participant(readerID) == nil {
		return 0, ErrInvalidSender
	}

	l.mu.Lock()
	flipped := 0
	for _, m := range l.byConv[conversationID] {
		if m.ReceiverID == readerID && !m.IsRead {
			m.IsRead = true
			flipped++
		}
	}
	l.mu.Unlock()

	if flipped == 0 {
		return 0, nil
	}

	l.convs.setCachedUnread(conversationID, 0)

	l.logger.Debug("conversation marked read",
		"conversation_id", conversationID,
		"reader_id", readerID,
		"messages", flipped)

	if err := l.convs.Touch(conversationID, conv.LastMessage); err != nil {
		l.logger.Error("touch failed after mark read",
			"conversation_id", conversationID,
			"error", err)
	}
	return flipped, nil
}

// UnreadInConversation counts unread messages addressed to userID in one
// conversation, always derived from the log.
func (l *MessageLog) UnreadInConversation(conversationID, userID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.unreadInConvLocked(conversationID, userID)
}

func (l *MessageLog) unreadInConvLocked(conversationID, userID string) int {
	n := 0
	for _, m := range l.byConv[conversationID] {
		if m.ReceiverID == userID && !m.IsRead {
			n++
		}
	}
	return n
}

// UnreadTotal is the brute-force recount of unread messages addressed to
// userID across all conversations. This is the ground truth the unread
// cache must never drift from.
func (l *MessageLog) UnreadTotal(userID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, msgs := range l.byConv {
		for _, m := range msgs {
			if m.ReceiverID == userID && !m.IsRead {
				n++
			}
		}
	}
	return n
}
