// ABOUTME: HTTP serving shell for the messaging engine
// ABOUTME: One HTTP call per operation; bus events stream out over SSE and WebSocket

package gateway

import (
	"errors"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/lessonloop/messaging/internal/auth"
	"github.com/lessonloop/messaging/internal/bus"
	"github.com/lessonloop/messaging/internal/identity"
	"github.com/lessonloop/messaging/internal/messaging"
	"github.com/lessonloop/messaging/internal/store"
)

// Gateway exposes the messaging service over HTTP. Each engine
// operation maps to one call; each bus event maps to one push frame.
type Gateway struct {
	svc      *messaging.Service
	bus      *bus.Bus
	identity identity.Provider
	verifier auth.TokenVerifier
	logger   *slog.Logger
}

// New creates a gateway around the service. Pass nil logger for the
// default.
func New(svc *messaging.Service, b *bus.Bus, provider identity.Provider, verifier auth.TokenVerifier, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		svc:      svc,
		bus:      b,
		identity: provider,
		verifier: verifier,
		logger:   logger.With("component", "gateway"),
	}
}

// Routes builds the HTTP handler: /health is open, /api/* requires a
// verified bearer token.
func (g *Gateway) Routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/conversations", g.handleCreateConversation)
	api.HandleFunc("GET /api/conversations", g.handleListConversations)
	api.HandleFunc("POST /api/conversations/{id}/messages", g.handleAppendMessage)
	api.HandleFunc("GET /api/conversations/{id}/messages", g.handleListMessages)
	api.HandleFunc("POST /api/conversations/{id}/read", g.handleMarkRead)
	api.HandleFunc("POST /api/conversations/{id}/typing", g.handleSetTyping)
	api.HandleFunc("GET /api/unread", g.handleUnread)
	api.HandleFunc("GET /api/notifications", g.handleListNotifications)
	api.HandleFunc("DELETE /api/notifications/{id}", g.handleDismissNotification)
	api.HandleFunc("GET /api/events", g.handleEvents)
	api.HandleFunc("GET /api/ws", g.handleWebSocket)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.Handle("/api/", auth.Middleware(g.verifier)(api))
	return mux
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the response body with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error body with the given status.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, msg string) {
	g.writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps engine sentinel errors onto HTTP statuses.
func (g *Gateway) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, store.ErrInvalidParticipants):
		g.sendJSONError(w, http.StatusUnprocessableEntity, "invalid participants")
	case errors.Is(err, store.ErrInvalidSender):
		g.sendJSONError(w, http.StatusForbidden, "not a participant")
	case errors.Is(err, store.ErrInvalidInput):
		g.sendJSONError(w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, identity.ErrUnknownUser):
		g.sendJSONError(w, http.StatusNotFound, "unknown user")
	default:
		g.logger.Error("request failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}
