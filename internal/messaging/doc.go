// Package messaging assembles the conversation and messaging
// coordination engine.
//
// # Overview
//
// The Service composes the event bus, conversation store, message log,
// unread aggregator, notification generator and typing tracker into one
// public operation surface:
//
//	b := bus.New(logger)
//	svc := messaging.New(b, messaging.Options{Identity: roster}, logger)
//
// Key operations:
//
//   - CreateOrGetConversation: idempotent per unordered user pair
//   - AppendMessage: append-then-touch-then-publish, serialized per conversation
//   - ListMessages: ascending by CreatedAt with offset/limit windowing
//   - MarkConversationRead: one-way read transitions, idempotent
//   - UnreadCountForUser: aggregate unread total, cache-backed but never stale
//   - SetTypingIndicator: ephemeral, TTL-bounded composing state
//   - Notifications / DismissNotification: bounded transient previews
//
// # Events
//
// Every successful mutation publishes on the bus; observers subscribe to
// conversation:new, conversation:updated, message:new, typing:updated
// and notification:new. Delivery is synchronous and in subscription
// order, with per-handler failure isolation.
package messaging
