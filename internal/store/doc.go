// Package store owns conversation records and the per-conversation
// message log.
//
// # Components
//
// ConversationStore owns conversation records and participant snapshots:
// idempotent creation per unordered user pair, lookup, and activity
// touches. MessageLog owns the ordered message sequence per conversation:
// append, paginated retrieval, and read-state transitions.
//
// Both are in-memory, constructible service objects with an injected
// event bus and clock. State lives for the process lifetime; durable
// persistence is deliberately out of scope.
//
// # Events
//
// Mutations publish on the injected bus:
//
//   - conversation:new     (*Conversation) on first creation of a pair
//   - conversation:updated (*Conversation) on touch and on read-state change
//   - message:new          (*MessageEvent) on append
package store
