// ABOUTME: Domain types and sentinel errors for the messaging engine
// ABOUTME: Defines Participant, Conversation, Message, AttachmentRef and bus payloads

package store

import (
	"errors"
	"time"
)

// Sentinel errors returned by the conversation store and message log.
var (
	// ErrNotFound is returned when a requested conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidParticipants is returned when a conversation would pair a
	// user with themselves.
	ErrInvalidParticipants = errors.New("invalid participants")

	// ErrInvalidSender is returned when a message sender is not a
	// participant of the target conversation.
	ErrInvalidSender = errors.New("sender is not a participant")

	// ErrInvalidInput is returned for empty content or negative
	// pagination bounds.
	ErrInvalidInput = errors.New("invalid input")
)

// Role identifies what kind of account a participant is.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleSupport Role = "support"
)

// ConversationKind distinguishes lesson chats from support chats.
type ConversationKind string

const (
	KindStudentTeacher ConversationKind = "student_teacher"
	KindSupport        ConversationKind = "support"
)

// MessageKind categorizes message content.
type MessageKind string

const (
	MessageText           MessageKind = "text"
	MessageImage          MessageKind = "image"
	MessageFile           MessageKind = "file"
	MessageBookingRequest MessageKind = "booking_request"
	MessageSystem         MessageKind = "system"
)

// Participant is a snapshot of a user embedded in a conversation record.
// It is a copy taken at creation or last refresh time, not a live join;
// callers wanting current profile data refresh it through the identity
// provider.
type Participant struct {
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name"`
	AvatarRef   string     `json:"avatar_ref,omitempty"`
	Role        Role       `json:"role"`
	IsOnline    bool       `json:"is_online"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

// AttachmentRef is an opaque descriptor of externally stored file bytes.
// The engine never inspects or stores the bytes themselves.
type AttachmentRef struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	MimeType    string `json:"mime_type"`
	LocationRef string `json:"location_ref"`
}

// Conversation is a durable record of a two-party messaging relationship.
// Exactly two participants with distinct user ids; unique per unordered
// pair of user ids.
type Conversation struct {
	ID           string           `json:"id"`
	Participants [2]Participant   `json:"participants"`
	LastMessage  *Message         `json:"last_message,omitempty"`
	LastActivity time.Time        `json:"last_activity_at"`
	UnreadCount  int              `json:"unread_count"`
	IsActive     bool             `json:"is_active"`
	Kind         ConversationKind `json:"kind"`
}

// Participant returns the embedded snapshot for userID, or nil.
func (c *Conversation) Participant(userID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// Other returns the participant that is not userID, or nil when userID is
// not a participant.
func (c *Conversation) Other(userID string) *Participant {
	if c.Participant(userID) == nil {
		return nil
	}
	for i := range c.Participants {
		if c.Participants[i].UserID != userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// Message is one entry in a conversation's append-only log. Immutable
// except for IsRead, which transitions false to true exactly once.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	SenderID       string          `json:"sender_id"`
	ReceiverID     string          `json:"receiver_id"`
	Content        string          `json:"content"`
	CreatedAt      time.Time       `json:"created_at"`
	IsRead         bool            `json:"is_read"`
	Kind           MessageKind     `json:"kind"`
	Attachments    []AttachmentRef `json:"attachments,omitempty"`

	// seq breaks CreatedAt ties: appends within a conversation are
	// serialized, so seq order is insertion order.
	seq uint64
}

// MessageEvent is the payload of bus.EventMessageNew.
type MessageEvent struct {
	Message      *Message
	Conversation *Conversation
}
