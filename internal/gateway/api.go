// ABOUTME: HTTP API handlers mapping engine operations onto REST calls
// ABOUTME: Identity comes from the verified bearer token; the engine trusts it as-is

package gateway

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/lessonloop/messaging/internal/auth"
	"github.com/lessonloop/messaging/internal/store"
)

// CreateConversationRequest is the JSON request body for POST /api/conversations.
type CreateConversationRequest struct {
	PeerID string `json:"peer_id"`
	Kind   string `json:"kind,omitempty"`
}

// AppendMessageRequest is the JSON request body for POST /api/conversations/{id}/messages.
type AppendMessageRequest struct {
	Content     string                `json:"content"`
	Kind        string                `json:"kind,omitempty"`
	Attachments []store.AttachmentRef `json:"attachments,omitempty"`
}

// SetTypingRequest is the JSON request body for POST /api/conversations/{id}/typing.
type SetTypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// callerSnapshot builds the caller's participant snapshot, preferring
// the identity provider's current profile over the token claims.
func (g *Gateway) callerSnapshot(id *auth.Identity) store.Participant {
	if g.identity != nil {
		if p, err := g.identity.Lookup(id.UserID); err == nil {
			return p
		}
	}
	return store.Participant{
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		Role:        id.Role,
	}
}

func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.PeerID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "peer_id is required")
		return
	}

	kind := store.ConversationKind(req.Kind)
	if kind == "" {
		kind = store.KindStudentTeacher
	}
	if kind != store.KindStudentTeacher && kind != store.KindSupport {
		g.sendJSONError(w, http.StatusBadRequest, "unknown conversation kind")
		return
	}

	var peer store.Participant
	if g.identity != nil {
		p, err := g.identity.Lookup(req.PeerID)
		if err != nil {
			g.writeDomainError(w, err)
			return
		}
		peer = p
	} else {
		peer = store.Participant{UserID: req.PeerID}
	}

	conv, err := g.svc.CreateOrGetConversation(r.Context(), g.callerSnapshot(caller), peer, kind)
	if err != nil {
		g.writeDomainError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, conv)
}

func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	g.writeJSON(w, http.StatusOK, g.svc.ListConversationsForUser(r.Context(), caller.UserID))
}

func (g *Gateway) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	conversationID := r.PathValue("id")

	var req AppendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	msg, err := g.svc.AppendMessage(r.Context(), conversationID, caller.UserID, req.Content, store.MessageKind(req.Kind), req.Attachments)
	if err != nil {
		g.writeDomainError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, msg)
}

// queryInt parses an integer query parameter, defaulting when absent.
// Malformed values surface as invalid input downstream via -1.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	msgs, err := g.svc.ListMessages(r.Context(), conversationID, limit, offset)
	if err != nil {
		g.writeDomainError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, msgs)
}

func (g *Gateway) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	conversationID := r.PathValue("id")

	if err := g.svc.MarkConversationRead(r.Context(), conversationID, caller.UserID); err != nil {
		g.writeDomainError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) handleSetTyping(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	conversationID := r.PathValue("id")

	var req SetTypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := g.svc.SetTypingIndicator(r.Context(), conversationID, caller.UserID, req.IsTyping); err != nil {
		g.writeDomainError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) handleUnread(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	g.writeJSON(w, http.StatusOK, map[string]int{
		"unread": g.svc.UnreadCountForUser(r.Context(), caller.UserID),
	})
}

func (g *Gateway) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	g.writeJSON(w, http.StatusOK, g.svc.Notifications(r.Context(), caller.UserID))
}

func (g *Gateway) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	g.svc.DismissNotification(r.Context(), caller.UserID, r.PathValue("id"))
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
