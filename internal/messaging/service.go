// ABOUTME: Service is the public operation surface of the messaging engine
// ABOUTME: Composes the bus, stores, unread aggregator, notifier and typing tracker

package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/lessonloop/messaging/internal/bus"
	"github.com/lessonloop/messaging/internal/identity"
	"github.com/lessonloop/messaging/internal/notify"
	"github.com/lessonloop/messaging/internal/store"
	"github.com/lessonloop/messaging/internal/typing"
	"github.com/lessonloop/messaging/internal/unread"
)

// Options tune the assembled engine.
type Options struct {
	// Identity, when set, is used to refresh embedded participant
	// snapshots on each conversation retrieval. When nil the snapshots
	// keep whatever was captured at creation time (bounded staleness).
	Identity identity.Provider

	// TypingTTL is the silence window after which a typing indicator
	// expires. Zero selects typing.DefaultTTL.
	TypingTTL time.Duration
}

// Service wires the messaging components together and exposes one
// method per engine operation. All mutations publish on the service's
// bus; external observers subscribe through Subscribe/Unsubscribe.
type Service struct {
	bus      *bus.Bus
	convs    *store.ConversationStore
	log      *store.MessageLog
	unread   *unread.Aggregator
	notify   *notify.Generator
	typing   *typing.Tracker
	identity identity.Provider
	logger   *slog.Logger
}

// New assembles an engine on the given bus. Pass nil logger for the
// default.
func New(b *bus.Bus, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	convs := store.NewConversationStore(b, logger)
	log := store.NewMessageLog(convs, b, logger)
	return &Service{
		bus:      b,
		convs:    convs,
		log:      log,
		unread:   unread.New(log, b, logger),
		notify:   notify.New(b, logger),
		typing:   typing.NewTracker(b, opts.TypingTTL, logger),
		identity: opts.Identity,
		logger:   logger.With("component", "messaging"),
	}
}

// Close detaches the derived-state subscribers from the bus.
func (s *Service) Close() {
	s.unread.Close()
	s.notify.Close()
}

// Subscribe registers an observer for the named bus event.
func (s *Service) Subscribe(event string, handler bus.Handler) bus.Subscription {
	return s.bus.Subscribe(event, handler)
}

// Unsubscribe removes a previously registered observer.
func (s *Service) Unsubscribe(sub bus.Subscription) {
	s.bus.Unsubscribe(sub)
}

// CreateOrGetConversation returns the conversation for the unordered
// pair of participant snapshots, creating it when absent.
func (s *Service) CreateOrGetConversation(ctx context.Context, a, b store.Participant, kind store.ConversationKind) (*store.Conversation, error) {
	return s.convs.CreateOrGet(a, b, kind)
}

// ListConversationsForUser returns the user's conversations ordered by
// most recent activity. Participant snapshots are refreshed from the
// identity provider when one is configured, and the unread count on
// each record is re-derived for this viewer.
func (s *Service) ListConversationsForUser(ctx context.Context, userID string) []*store.Conversation {
	convs := s.convs.ListForUser(userID)

	if s.identity != nil {
		refreshed := map[string]bool{}
		for _, conv := range convs {
			for i := range conv.Participants {
				id := conv.Participants[i].UserID
				if refreshed[id] {
					continue
				}
				refreshed[id] = true
				if p, err := s.identity.Lookup(id); err == nil {
					s.convs.RefreshSnapshot(p)
				}
			}
		}
		convs = s.convs.ListForUser(userID)
	}

	for _, conv := range convs {
		conv.UnreadCount = s.log.UnreadInConversation(conv.ID, userID)
	}
	return convs
}

// GetConversation retrieves one conversation with the unread count
// derived for the given viewer.
func (s *Service) GetConversation(ctx context.Context, conversationID, viewerID string) (*store.Conversation, error) {
	conv, err := s.convs.Get(conversationID)
	if err != nil {
		return nil, err
	}
	conv.UnreadCount = s.log.UnreadInConversation(conversationID, viewerID)
	return conv, nil
}

// AppendMessage appends a message to the conversation's log. The
// receiver is derived as the other participant; on success the receiver
// gains an unread message, the conversation is touched, and message:new
// fires.
func (s *Service) AppendMessage(ctx context.Context, conversationID, senderID, content string, kind store.MessageKind, attachments []store.AttachmentRef) (*store.Message, error) {
	return s.log.Append(conversationID, senderID, content, kind, attachments)
}

// ListMessages returns the conversation's messages ascending by
// CreatedAt, windowed to [offset, offset+limit). A limit of zero means
// no limit.
func (s *Service) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*store.Message, error) {
	return s.log.List(conversationID, limit, offset)
}

// MarkConversationRead flips every unread message addressed to readerID
// in the conversation to read. Idempotent; a second call is a no-op and
// emits no event.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, readerID string) error {
	_, err := s.log.MarkRead(conversationID, readerID)
	return err
}

// UnreadCountForUser returns the user's aggregate unread total across
// all conversations.
func (s *Service) UnreadCountForUser(ctx context.Context, userID string) int {
	return s.unread.CountFor(userID)
}

// SetTypingIndicator records whether the user is composing a message in
// the conversation and publishes the conversation's full typing list.
// Returns ErrNotFound for an unknown conversation and ErrInvalidSender
// when the user is not a participant.
func (s *Service) SetTypingIndicator(ctx context.Context, conversationID, userID string, isTyping bool) error {
	conv, err := s.convs.Get(conversationID)
	if err != nil {
		return err
	}
	p := conv.Participant(userID)
	if p == nil {
		return store.ErrInvalidSender
	}
	s.typing.SetTyping(conversationID, userID, p.DisplayName, isTyping)
	return nil
}

// TypingIndicators returns the conversation's current typing list.
func (s *Service) TypingIndicators(ctx context.Context, conversationID string) []typing.Indicator {
	return s.typing.List(conversationID)
}

// Notifications returns the user's outstanding notifications, oldest
// first. At most five are retained.
func (s *Service) Notifications(ctx context.Context, userID string) []*notify.Notification {
	return s.notify.For(userID)
}

// DismissNotification removes one notification from the user's
// outstanding set. Unknown ids are a no-op.
func (s *Service) DismissNotification(ctx context.Context, userID, notificationID string) {
	s.notify.Dismiss(userID, notificationID)
}
