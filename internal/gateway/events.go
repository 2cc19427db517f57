// ABOUTME: Event streaming out of the gateway: SSE frames and WebSocket frames
// ABOUTME: Each bus event becomes one push frame, filtered to what the caller may see

package gateway

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/lessonloop/messaging/internal/auth"
	"github.com/lessonloop/messaging/internal/bus"
	"github.com/lessonloop/messaging/internal/notify"
	"github.com/lessonloop/messaging/internal/store"
	"github.com/lessonloop/messaging/internal/typing"
)

// frameBufferSize is the per-client channel buffer. Slow consumers drop
// frames rather than block publishers.
const frameBufferSize = 64

// Frame is one pushed event: the bus event name plus its payload.
type Frame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

var streamedEvents = []string{
	bus.EventConversationNew,
	bus.EventConversationUpdated,
	bus.EventMessageNew,
	bus.EventTypingUpdated,
	bus.EventNotificationNew,
}

// subscribeFrames attaches a bus observer for every streamed event name
// and returns a channel of frames relevant to userID. The returned
// cancel function must be called when the client goes away.
func (g *Gateway) subscribeFrames(userID string) (<-chan Frame, func()) {
	ch := make(chan Frame, frameBufferSize)

	subs := make([]bus.Subscription, 0, len(streamedEvents))
	for _, event := range streamedEvents {
		event := event
		subs = append(subs, g.bus.Subscribe(event, func(payload any) {
			if !g.relevantTo(userID, event, payload) {
				return
			}
			select {
			case ch <- Frame{Event: event, Payload: payload}:
			default:
				g.logger.Debug("dropped frame for slow subscriber",
					"user_id", userID,
					"event", event)
			}
		}))
	}

	cancel := func() {
		for _, s := range subs {
			g.bus.Unsubscribe(s)
		}
	}
	return ch, cancel
}

// relevantTo decides whether the caller may observe the event. Observers
// only see conversations they participate in, and never their own
// messages as notifications.
func (g *Gateway) relevantTo(userID, event string, payload any) bool {
	switch event {
	case bus.EventConversationNew, bus.EventConversationUpdated:
		conv, ok := payload.(*store.Conversation)
		return ok && conv.Participant(userID) != nil

	case bus.EventMessageNew:
		ev, ok := payload.(*store.MessageEvent)
		if !ok || ev.Message == nil {
			return false
		}
		return ev.Message.SenderID == userID || ev.Message.ReceiverID == userID

	case bus.EventTypingUpdated:
		ev, ok := payload.(*typing.Event)
		if !ok {
			return false
		}
		conv, err := g.svc.GetConversation(context.Background(), ev.ConversationID, userID)
		return err == nil && conv.Participant(userID) != nil

	case bus.EventNotificationNew:
		n, ok := payload.(*notify.Notification)
		if !ok || n.SenderID == userID {
			return false
		}
		conv, err := g.svc.GetConversation(context.Background(), n.ConversationID, userID)
		return err == nil && conv.Participant(userID) != nil
	}
	return false
}

// handleEvents streams bus events as server-sent events, one frame per
// event, until the client disconnects.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	frames, cancel := g.subscribeFrames(caller.UserID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	g.logger.Debug("event stream opened", "user_id", caller.UserID)

	for {
		select {
		case <-r.Context().Done():
			g.logger.Debug("event stream closed", "user_id", caller.UserID)
			return
		case frame := <-frames:
			if err := writeSSEFrame(w, frame); err != nil {
				g.logger.Debug("event stream write failed",
					"user_id", caller.UserID,
					"error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEFrame writes one frame in text/event-stream format.
func writeSSEFrame(w http.ResponseWriter, frame Frame) error {
	data, err := json.Marshal(frame.Payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + frame.Event + "\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return err
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The bearer token already gates access; cross-origin pages may
	// connect with a valid token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket streams the same frames over a WebSocket connection
// for clients that prefer a socket to EventSource.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	frames, cancel := g.subscribeFrames(caller.UserID)
	defer cancel()

	// Reader goroutine: the stream is push-only, but reads must be
	// drained to observe close frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	g.logger.Debug("websocket stream opened", "user_id", caller.UserID)

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case frame := <-frames:
			if err := conn.WriteJSON(frame); err != nil {
				g.logger.Debug("websocket write failed",
					"user_id", caller.UserID,
					"error", err)
				return
			}
		}
	}
}
