// Package server implements the auction server: the handshake endpoints that
// bootstrap encrypted sessions, the session-keyed encrypted request/response
// API over the registry, the WebSocket push channel fed by the event bus,
// and the authoritative one-second auction countdown.
//
// The handshake establishes confidentiality only, not client identity;
// identity is asserted per request by the login flow and the payloads the
// client submits.
package server
