// ABOUTME: Tests for MessageLog
// ABOUTME: Covers append validation, ordering, pagination, read-state transitions, unread counts

package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/messaging/internal/bus"
)

type fixture struct {
	bus   *bus.Bus
	convs *ConversationStore
	log   *MessageLog
	conv  *Conversation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := bus.New(nil)
	convs := NewConversationStore(b, nil)
	log := NewMessageLog(convs, b, nil)

	conv, err := convs.CreateOrGet(alice(), bob(), KindStudentTeacher)
	require.NoError(t, err)

	return &fixture{bus: b, convs: convs, log: log, conv: conv}
}

func TestAppend_DerivesReceiverAndPublishes(t *testing.T) {
	f := newFixture(t)

	var event *MessageEvent
	f.bus.Subscribe(bus.EventMessageNew, func(p any) { event = p.(*MessageEvent) })

	msg, err := f.log.Append(f.conv.ID, "u1", "hello", MessageText, nil)
	require.NoError(t, err)

	assert.Equal(t, "u1", msg.SenderID)
	assert.Equal(t, "u2", msg.ReceiverID)
	assert.False(t, msg.IsRead)
	assert.Equal(t, MessageText, msg.Kind)

	require.NotNil(t, event)
	assert.Equal(t, msg.ID, event.Message.ID)
	require.NotNil(t, event.Conversation)
	assert.Equal(t, f.conv.ID, event.Conversation.ID)
}

func TestAppend_TouchesConversation(t *testing.T) {
	f := newFixture(t)

	at := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	f.log.SetNow(func() time.Time { return at })

	msg, err := f.log.Append(f.conv.ID, "u2", "welcome", MessageText, nil)
	require.NoError(t, err)

	conv, err := f.convs.Get(f.conv.ID)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, msg.ID, conv.LastMessage.ID)
	assert.Equal(t, at, conv.LastActivity)
	assert.Equal(t, 1, conv.UnreadCount)
}

func TestAppend_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		convID   string
		senderID string
		content  string
		wantErr  error
	}{
		{"unknown conversation", "missing", "u1", "hi", ErrNotFound},
		{"sender not a participant", f.conv.ID, "u9", "hi", ErrInvalidSender},
		{"empty content", f.conv.ID, "u1", "", ErrInvalidInput},
		{"whitespace content", f.conv.ID, "u1", "   ", ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.log.Append(tt.convID, tt.senderID, tt.content, MessageText, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAppend_AttachmentsCarriedOpaque(t *testing.T) {
	f := newFixture(t)

	att := AttachmentRef{ID: "a1", FileName: "notes.pdf", FileSize: 1024, MimeType: "application/pdf", LocationRef: "s3://bucket/a1"}
	msg, err := f.log.Append(f.conv.ID, "u1", "see attached", MessageFile, []AttachmentRef{att})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, att, msg.Attachments[0])
}

func TestList_OrderedNonDecreasingByCreatedAt(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 10; i++ {
		sender := "u1"
		if i%2 == 1 {
			sender = "u2"
		}
		_, err := f.log.Append(f.conv.ID, sender, fmt.Sprintf("msg %d", i), MessageText, nil)
		require.NoError(t, err)
	}

	msgs, err := f.log.List(f.conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 10)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt),
			"sequence must be non-decreasing in CreatedAt")
	}
	assert.Equal(t, "msg 0", msgs[0].Content)
	assert.Equal(t, "msg 9", msgs[9].Content)
}

func TestList_Pagination(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		_, err := f.log.Append(f.conv.ID, "u1", fmt.Sprintf("msg %d", i), MessageText, nil)
		require.NoError(t, err)
	}

	window, err := f.log.List(f.conv.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "msg 1", window[0].Content)
	assert.Equal(t, "msg 2", window[1].Content)

	// Window extending past the end is clamped.
	tail, err := f.log.List(f.conv.ID, 10, 4)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "msg 4", tail[0].Content)

	// Out-of-range offset yields an empty sequence, not an error.
	empty, err := f.log.List(f.conv.ID, 10, 99)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestList_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.log.List("missing", 10, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.log.List(f.conv.ID, -1, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.log.List(f.conv.ID, 10, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMarkRead_TransitionsAndResets(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.log.Append(f.conv.ID, "u1", fmt.Sprintf("msg %d", i), MessageText, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 3, f.log.UnreadInConversation(f.conv.ID, "u2"))

	var updates int
	f.bus.Subscribe(bus.EventConversationUpdated, func(any) { updates++ })

	flipped, err := f.log.MarkRead(f.conv.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, 3, flipped)
	assert.Zero(t, f.log.UnreadInConversation(f.conv.ID, "u2"))
	assert.Equal(t, 1, updates)

	conv, err := f.convs.Get(f.conv.ID)
	require.NoError(t, err)
	assert.Zero(t, conv.UnreadCount)

	msgs, err := f.log.List(f.conv.ID, 0, 0)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.True(t, m.IsRead)
	}
}

func TestMarkRead_IdempotentNoSecondEvent(t *testing.T) {
	f := newFixture(t)

	_, err := f.log.Append(f.conv.ID, "u1", "hello", MessageText, nil)
	require.NoError(t, err)

	var updates int
	f.bus.Subscribe(bus.EventConversationUpdated, func(any) { updates++ })

	flipped, err := f.log.MarkRead(f.conv.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	flipped, err = f.log.MarkRead(f.conv.ID, "u2")
	require.NoError(t, err)
	assert.Zero(t, flipped, "second call is a no-op")
	assert.Equal(t, 1, updates, "no event on the idempotent call")
}

func TestMarkRead_OnlyReceiverSideFlips(t *testing.T) {
	f := newFixture(t)

	// u1 -> u2 and u2 -> u1; u2 reading must not touch u1's unread.
	_, err := f.log.Append(f.conv.ID, "u1", "to u2", MessageText, nil)
	require.NoError(t, err)
	_, err = f.log.Append(f.conv.ID, "u2", "to u1", MessageText, nil)
	require.NoError(t, err)

	_, err = f.log.MarkRead(f.conv.ID, "u2")
	require.NoError(t, err)

	assert.Zero(t, f.log.UnreadInConversation(f.conv.ID, "u2"))
	assert.Equal(t, 1, f.log.UnreadInConversation(f.conv.ID, "u1"))
}

func TestMarkRead_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.log.MarkRead("missing", "u2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.log.MarkRead(f.conv.ID, "u9")
	assert.ErrorIs(t, err, ErrInvalidSender)
}

func TestUnreadTotal_AcrossConversations(t *testing.T) {
	f := newFixture(t)

	carol := Participant{UserID: "u3", DisplayName: "Carol", Role: RoleTeacher}
	other, err := f.convs.CreateOrGet(alice(), carol, KindStudentTeacher)
	require.NoError(t, err)

	_, err = f.log.Append(f.conv.ID, "u2", "from bob", MessageText, nil)
	require.NoError(t, err)
	_, err = f.log.Append(other.ID, "u3", "from carol", MessageText, nil)
	require.NoError(t, err)
	_, err = f.log.Append(other.ID, "u3", "again", MessageText, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, f.log.UnreadTotal("u1"))
	assert.Zero(t, f.log.UnreadTotal("u2"))
	assert.Zero(t, f.log.UnreadTotal("u3"))
}

func TestAppend_ConcurrentSameConversationKeepsTotalOrder(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "u1"
			if i%2 == 1 {
				sender = "u2"
			}
			_, err := f.log.Append(f.conv.ID, sender, fmt.Sprintf("msg %d", i), MessageText, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := f.log.List(f.conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}
