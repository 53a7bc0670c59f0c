package protocol

import (
	"encoding/json"
	"io"
)

// SessionHeader is the cleartext HTTP header carrying the session identifier
// on every authenticated call.
const SessionHeader = "X-Session-ID"

// AuctionStatus is the lifecycle state of an auction. The only transition is
// open -> closed; closed is terminal.
type AuctionStatus string

const (
	StatusOpen   AuctionStatus = "open"
	StatusClosed AuctionStatus = "closed"
)

// Auction is the canonical auction record. The server's registry owns the
// authoritative copy; clients hold read-through snapshots reconciled by
// pushed events and re-fetches.
type Auction struct {
	ID            string        `json:"id"`
	Item          string        `json:"item"`
	Description   string        `json:"description"`
	Seller        string        `json:"seller"`
	HighestBid    int           `json:"highest_bid"`
	HighestBidder string        `json:"highest_bidder"`
	Status        AuctionStatus `json:"status"`
	TimeRemaining int           `json:"time_remaining"`
}

// PublicKeyResponse carries the server's PEM-encoded RSA public key.
type PublicKeyResponse struct {
	Key string `json:"key"`
}

// HandshakeRequest carries the client-generated symmetric key, encrypted to
// the server's public key and base64 encoded.
type HandshakeRequest struct {
	EncryptedKey string `json:"encrypted_key"`
}

// HandshakeResponse returns the freshly minted session identifier.
type HandshakeResponse struct {
	SessionID string `json:"session_id"`
}

// EncryptedBody is the envelope shape shared by encrypted requests and
// responses: Data is base64(iv || ciphertext) under the session key.
type EncryptedBody struct {
	Data string `json:"data"`
}

// ErrorResponse is the cleartext error shape returned on non-2xx responses.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Credentials is the register/login payload. PasswordHash is a one-way
// digest computed client-side before transmission; it is not a protocol
// secret but keeps plaintext passwords off the wire.
type Credentials struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// CreateAuctionRequest opens a new auction. MinPrice becomes the starting
// highest bid.
type CreateAuctionRequest struct {
	ID            string `json:"id"`
	Item          string `json:"item"`
	Description   string `json:"description"`
	Seller        string `json:"seller"`
	MinPrice      int    `json:"min_price"`
	TimeRemaining int    `json:"time_remaining"`
}

// BidRequest places a bid on an auction.
type BidRequest struct {
	ID     string `json:"id"`
	Bidder string `json:"bidder"`
	Amount int    `json:"amount"`
}

// StatusResponse acknowledges a mutating call. NewHighest is set for bid and
// create-auction acknowledgements.
type StatusResponse struct {
	Status     string `json:"status"`
	NewHighest int    `json:"new_highest,omitempty"`
}

// DecodeMessage decodes a JSON message from a reader.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}
