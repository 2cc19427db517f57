// ABOUTME: Derives transient user-facing notifications from message:new events
// ABOUTME: Previews are truncated to 50 runes; at most 5 outstanding per recipient

package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lessonloop/messaging/internal/bus"
	"github.com/lessonloop/messaging/internal/store"
)

const (
	// previewLimit is the maximum preview length in runes before the
	// ellipsis marker is appended.
	previewLimit = 50

	// retentionCap is the maximum number of outstanding notifications
	// kept per recipient; inserting beyond it evicts the oldest.
	retentionCap = 5

	ellipsis = "..."
)

// Notification is a transient, user-facing summary of an unseen message.
type Notification struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	Preview        string    `json:"preview"`
	CreatedAt      time.Time `json:"created_at"`
	IsDismissed    bool      `json:"is_dismissed"`
}

// Generator subscribes to message:new and maintains a bounded set of
// outstanding notifications per recipient.
type Generator struct {
	mu      sync.Mutex
	pending map[string][]*Notification // recipient userID -> oldest first

	bus    *bus.Bus
	sub    bus.Subscription
	logger *slog.Logger
}

// New creates a generator and subscribes it to b. Pass nil logger for
// the default.
func New(b *bus.Bus, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{
		pending: make(map[string][]*Notification),
		bus:     b,
		logger:  logger.With("component", "notify"),
	}
	g.sub = b.Subscribe(bus.EventMessageNew, g.onMessageNew)
	return g
}

// Close detaches the generator from the bus.
func (g *Generator) Close() {
	g.bus.Unsubscribe(g.sub)
}

// Preview truncates content to the preview limit, appending an ellipsis
// marker when truncation occurred. Counts runes, not bytes.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit]) + ellipsis
}

func (g *Generator) onMessageNew(payload any) {
	ev, ok := payload.(*store.MessageEvent)
	if !ok || ev.Message == nil {
		return
	}
	msg := ev.Message

	senderName := msg.SenderID
	if ev.Conversation != nil {
		if p := ev.Conversation.Participant(msg.SenderID); p != nil {
			senderName = p.DisplayName
		}
	}

	n := &Notification{
		ID:             uuid.New().String(),
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     senderName,
		Preview:        Preview(msg.Content),
		CreatedAt:      msg.CreatedAt,
	}

	g.mu.Lock()
	queue := append(g.pending[msg.ReceiverID], n)
	if len(queue) > retentionCap {
		queue = queue[len(queue)-retentionCap:]
	}
	g.pending[msg.ReceiverID] = queue
	g.mu.Unlock()

	g.logger.Debug("notification generated",
		"notification_id", n.ID,
		"recipient_id", msg.ReceiverID,
		"conversation_id", msg.ConversationID)

	g.bus.Publish(bus.EventNotificationNew, n)
}

// For returns the outstanding notifications for the recipient, oldest
// first.
func (g *Generator) For(userID string) []*Notification {
	g.mu.Lock()
	defer g.mu.Unlock()

	queue := g.pending[userID]
	result := make([]*Notification, 0, len(queue))
	for _, n := range queue {
		copied := *n
		result = append(result, &copied)
	}
	return result
}

// Dismiss removes the notification with the given id from the
// recipient's outstanding set. Unknown ids are a no-op, not an error.
func (g *Generator) Dismiss(userID, notificationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	queue := g.pending[userID]
	for i, n := range queue {
		if n.ID == notificationID {
			n.IsDismissed = true
			g.pending[userID] = append(queue[:i:i], queue[i+1:]...)
			return
		}
	}
}
