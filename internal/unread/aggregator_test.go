// ABOUTME: Tests for the unread aggregator
// ABOUTME: Asserts the cache equals a brute-force recount after every mutation

package unread

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/messaging/internal/bus"
	"github.com/lessonloop/messaging/internal/store"
)

type fixture struct {
	bus   *bus.Bus
	convs *store.ConversationStore
	log   *store.MessageLog
	agg   *Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := bus.New(nil)
	convs := store.NewConversationStore(b, nil)
	log := store.NewMessageLog(convs, b, nil)
	agg := New(log, b, nil)
	t.Cleanup(agg.Close)
	return &fixture{bus: b, convs: convs, log: log, agg: agg}
}

func (f *fixture) assertConsistent(t *testing.T, users ...string) {
	t.Helper()
	for _, u := range users {
		assert.Equal(t, f.log.UnreadTotal(u), f.agg.CountFor(u),
			"cached unread for %s must equal brute-force recount", u)
	}
}

func TestCountFor_UnknownUserIsZero(t *testing.T) {
	f := newFixture(t)
	assert.Zero(t, f.agg.CountFor("nobody"))
}

func TestCountFor_TracksAppendsAndReads(t *testing.T) {
	f := newFixture(t)

	student := store.Participant{UserID: "u1", DisplayName: "Alice", Role: store.RoleStudent}
	teacher := store.Participant{UserID: "u2", DisplayName: "Bob", Role: store.RoleTeacher}
	conv, err := f.convs.CreateOrGet(student, teacher, store.KindStudentTeacher)
	require.NoError(t, err)
	f.assertConsistent(t, "u1", "u2")

	_, err = f.log.Append(conv.ID, "u1", "hello", store.MessageText, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.agg.CountFor("u2"))
	assert.Zero(t, f.agg.CountFor("u1"))
	f.assertConsistent(t, "u1", "u2")

	_, err = f.log.Append(conv.ID, "u1", "still there?", store.MessageText, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, f.agg.CountFor("u2"))
	f.assertConsistent(t, "u1", "u2")

	_, err = f.log.MarkRead(conv.ID, "u2")
	require.NoError(t, err)
	assert.Zero(t, f.agg.CountFor("u2"))
	f.assertConsistent(t, "u1", "u2")

	// Idempotent second mark-read leaves everything unchanged.
	_, err = f.log.MarkRead(conv.ID, "u2")
	require.NoError(t, err)
	assert.Zero(t, f.agg.CountFor("u2"))
	f.assertConsistent(t, "u1", "u2")
}

func TestCountFor_SumsAcrossConversations(t *testing.T) {
	f := newFixture(t)

	alice := store.Participant{UserID: "u1", DisplayName: "Alice", Role: store.RoleStudent}
	bob := store.Participant{UserID: "u2", DisplayName: "Bob", Role: store.RoleTeacher}
	carol := store.Participant{UserID: "u3", DisplayName: "Carol", Role: store.RoleTeacher}

	withBob, err := f.convs.CreateOrGet(alice, bob, store.KindStudentTeacher)
	require.NoError(t, err)
	withCarol, err := f.convs.CreateOrGet(alice, carol, store.KindStudentTeacher)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.log.Append(withBob.ID, "u2", fmt.Sprintf("bob %d", i), store.MessageText, nil)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err = f.log.Append(withCarol.ID, "u3", fmt.Sprintf("carol %d", i), store.MessageText, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, 5, f.agg.CountFor("u1"))
	f.assertConsistent(t, "u1", "u2", "u3")

	// Reading one conversation only drops that conversation's share.
	_, err = f.log.MarkRead(withBob.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, f.agg.CountFor("u1"))
	f.assertConsistent(t, "u1", "u2", "u3")
}

func TestClose_StopsTracking(t *testing.T) {
	f := newFixture(t)

	alice := store.Participant{UserID: "u1", DisplayName: "Alice", Role: store.RoleStudent}
	bob := store.Participant{UserID: "u2", DisplayName: "Bob", Role: store.RoleTeacher}
	conv, err := f.convs.CreateOrGet(alice, bob, store.KindStudentTeacher)
	require.NoError(t, err)

	f.agg.Close()
	_, err = f.log.Append(conv.ID, "u1", "hello", store.MessageText, nil)
	require.NoError(t, err)

	// Cache miss falls back to a recount, so the answer is still right.
	assert.Equal(t, 1, f.agg.CountFor("u2"))
}
