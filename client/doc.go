// Package client implements the auction platform client: the handshake that
// bootstraps an encrypted session, the API channel that wraps every call in
// the session envelope, the push event stream, and the countdown reconciler
// that merges local ticking with authoritative server events.
package client
