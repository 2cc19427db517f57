// Package gateway exposes the messaging engine over HTTP: one REST call
// per operation, with bus events pushed to clients as SSE or WebSocket
// frames. Identity arrives as a verified bearer token; the gateway adds
// request-level timeouts and trust-boundary checks, nothing more.
package gateway
