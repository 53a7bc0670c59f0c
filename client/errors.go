package client

import (
	"errors"
	"fmt"
)

// ErrSessionNotEstablished is returned when an API method is called before a
// successful handshake. It is a caller error, not a transport failure.
var ErrSessionNotEstablished = errors.New("session not established")

// ErrEncryptionFailed marks a handshake that failed while encrypting the
// fresh session key, for instance against malformed server key material. The
// client must not proceed with a half-established session.
var ErrEncryptionFailed = errors.New("encryption failed")

// HandshakeError wraps a key-exchange failure. Handshake failures are fatal
// to session setup: they surface to the user and are never silently retried.
type HandshakeError struct {
	Op  string
	Err error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake: %s: %v", e.Op, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// APIError reports a non-2xx transport response, carrying the
// server-supplied detail message when one was present.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Detail)
}
