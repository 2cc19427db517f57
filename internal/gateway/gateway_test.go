// ABOUTME: HTTP-level tests for the gateway
// ABOUTME: Exercises auth gating, the REST operation surface, and error mapping

package gateway

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/messaging/internal/auth"
	"github.com/lessonloop/messaging/internal/bus"
	"github.com/lessonloop/messaging/internal/identity"
	"github.com/lessonloop/messaging/internal/messaging"
	"github.com/lessonloop/messaging/internal/notify"
	"github.com/lessonloop/messaging/internal/store"
)

var testSecret = []byte("gateway-test-secret")

type testEnv struct {
	handler http.Handler
	svc     *messaging.Service
	roster  *identity.Roster
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	roster := identity.NewRoster()
	roster.Put(store.Participant{UserID: "u1", DisplayName: "Alice", Role: store.RoleStudent})
	roster.Put(store.Participant{UserID: "u2", DisplayName: "Bob", Role: store.RoleTeacher})

	b := bus.New(nil)
	svc := messaging.New(b, messaging.Options{Identity: roster}, nil)
	t.Cleanup(svc.Close)

	g := New(svc, b, roster, auth.NewJWTVerifier(testSecret), nil)
	return &testEnv{handler: g.Routes(), svc: svc, roster: roster}
}

func tokenFor(t *testing.T, userID, name string, role store.Role) string {
	t.Helper()
	token, err := auth.IssueToken(testSecret, auth.Identity{UserID: userID, DisplayName: name, Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth_Open(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_RequiresToken(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/conversations", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateConversation_FlowAndIdempotency(t *testing.T) {
	env := newEnv(t)
	alice := tokenFor(t, "u1", "Alice", store.RoleStudent)

	rec := env.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{PeerID: "u2"})
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decode[store.Conversation](t, rec)
	assert.Equal(t, store.KindStudentTeacher, conv.Kind)
	assert.Equal(t, "Bob", conv.Participants[1].DisplayName, "peer profile resolved from roster")

	// Creating again resolves to the same conversation.
	rec = env.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{PeerID: "u2"})
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[store.Conversation](t, rec)
	assert.Equal(t, conv.ID, again.ID)
}

func TestCreateConversation_Errors(t *testing.T) {
	env := newEnv(t)
	alice := tokenFor(t, "u1", "Alice", store.RoleStudent)

	tests := []struct {
		name string
		req  CreateConversationRequest
		code int
	}{
		{"missing peer", CreateConversationRequest{}, http.StatusBadRequest},
		{"unknown peer", CreateConversationRequest{PeerID: "u9"}, http.StatusNotFound},
		{"self conversation", CreateConversationRequest{PeerID: "u1"}, http.StatusUnprocessableEntity},
		{"bad kind", CreateConversationRequest{PeerID: "u2", Kind: "group"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/conversations", alice, tt.req)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestMessages_AppendListMarkReadUnread(t *testing.T) {
	env := newEnv(t)
	alice := tokenFor(t, "u1", "Alice", store.RoleStudent)
	bob := tokenFor(t, "u2", "Bob", store.RoleTeacher)

	rec := env.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{PeerID: "u2"})
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decode[store.Conversation](t, rec)

	rec = env.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", alice,
		AppendMessageRequest{Content: "hello bob"})
	require.Equal(t, http.StatusCreated, rec.Code)
	msg := decode[store.Message](t, rec)
	assert.Equal(t, "u1", msg.SenderID)
	assert.Equal(t, "u2", msg.ReceiverID)

	rec = env.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[[]store.Message](t, rec)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello bob", msgs[0].Content)

	rec = env.do(t, http.MethodGet, "/api/unread", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[map[string]int](t, rec)["unread"])

	rec = env.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/read", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/unread", bob, nil)
	assert.Zero(t, decode[map[string]int](t, rec)["unread"])
}

func TestMessages_Errors(t *testing.T) {
	env := newEnv(t)
	alice := tokenFor(t, "u1", "Alice", store.RoleStudent)

	rec := env.do(t, http.MethodPost, "/api/conversations/missing/messages", alice,
		AppendMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	conv := decode[store.Conversation](t, env.do(t, http.MethodPost, "/api/conversations", alice,
		CreateConversationRequest{PeerID: "u2"}))

	rec = env.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", alice,
		AppendMessageRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	carol := tokenFor(t, "u3", "Carol", store.RoleTeacher)
	rec = env.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", carol,
		AppendMessageRequest{Content: "intruding"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages?limit=abc", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTyping_Endpoint(t *testing.T) {
	env := newEnv(t)
	alice := tokenFor(t, "u1", "Alice", store.RoleStudent)

	conv := decode[store.Conversation](t, env.do(t, http.MethodPost, "/api/conversations", alice,
		CreateConversationRequest{PeerID: "u2"}))

	rec := env.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/typing", alice,
		SetTypingRequest{IsTyping: true})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/conversations/missing/typing", alice,
		SetTypingRequest{IsTyping: true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotifications_ListAndDismiss(t *testing.T) {
	env := newEnv(t)
	alice := tokenFor(t, "u1", "Alice", store.RoleStudent)
	bob := tokenFor(t, "u2", "Bob", store.RoleTeacher)

	conv := decode[store.Conversation](t, env.do(t, http.MethodPost, "/api/conversations", alice,
		CreateConversationRequest{PeerID: "u2"}))
	env.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", alice,
		AppendMessageRequest{Content: "ping"})

	rec := env.do(t, http.MethodGet, "/api/notifications", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]notify.Notification](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "ping", list[0].Preview)

	rec = env.do(t, http.MethodDelete, "/api/notifications/"+list[0].ID, bob, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	list = decode[[]notify.Notification](t, env.do(t, http.MethodGet, "/api/notifications", bob, nil))
	assert.Empty(t, list)

	// Dismissing an unknown id stays a no-op.
	rec = env.do(t, http.MethodDelete, "/api/notifications/nope", bob, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
