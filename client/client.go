package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gregghy/sec-projet/crypto"
	"github.com/gregghy/sec-projet/protocol"
)

// Session is the client's copy of an established confidential channel: the
// opaque identifier the server knows it by and the symmetric key both ends
// share.
type Session struct {
	ID  string
	Key []byte
}

// Client is the API channel to an auction server. All methods except
// Handshake require an established session and wrap their payloads in the
// encrypted envelope under the session key.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *slog.Logger

	mu      sync.RWMutex
	session *Session
}

// New creates a client for the given server base URL.
func New(baseURL string, httpc *http.Client, log *slog.Logger) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
		log:     log,
	}
}

// HashPassword computes the one-way digest sent in place of the plaintext
// password. It is not a protocol secret; it only keeps the plaintext off the
// wire and out of server storage.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Handshake establishes the encrypted session: fetch the server public key,
// generate a fresh symmetric key, deliver it under RSA, store the returned
// session id. Any failure leaves the client without a session; no call can
// ride a half-established one.
func (c *Client) Handshake(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/public-key", nil, false)
	if err != nil {
		return &HandshakeError{Op: "fetch public key", Err: err}
	}
	defer resp.Body.Close()

	pkResp, err := protocol.DecodeMessage[protocol.PublicKeyResponse](resp.Body)
	if err != nil {
		return &HandshakeError{Op: "decode public key", Err: err}
	}
	pub, err := crypto.ParsePublicKey([]byte(pkResp.Key))
	if err != nil {
		return &HandshakeError{Op: "parse public key", Err: fmt.Errorf("%w: %v", ErrEncryptionFailed, err)}
	}

	key, err := crypto.NewSessionKey()
	if err != nil {
		return &HandshakeError{Op: "generate session key", Err: err}
	}
	ct, err := crypto.EncryptSessionKey(pub, key)
	if err != nil {
		return &HandshakeError{Op: "encrypt session key", Err: fmt.Errorf("%w: %v", ErrEncryptionFailed, err)}
	}

	body, err := protocol.SerializeMessage(&protocol.HandshakeRequest{
		EncryptedKey: base64.StdEncoding.EncodeToString(ct),
	})
	if err != nil {
		return &HandshakeError{Op: "encode request", Err: err}
	}

	resp, err = c.do(ctx, http.MethodPost, "/handshake", bytes.NewReader(body), false)
	if err != nil {
		return &HandshakeError{Op: "handshake request", Err: err}
	}
	defer resp.Body.Close()

	hsResp, err := protocol.DecodeMessage[protocol.HandshakeResponse](resp.Body)
	if err != nil {
		return &HandshakeError{Op: "decode response", Err: err}
	}

	c.mu.Lock()
	c.session = &Session{ID: hsResp.SessionID, Key: key}
	c.mu.Unlock()

	c.log.Info("session established", "session_id", hsResp.SessionID)
	return nil
}

// Session returns a copy of the established session, or nil before the
// handshake.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	cp := *c.session
	return &cp
}

// Register creates an account; the password is digested before it enters the
// encrypted payload.
func (c *Client) Register(ctx context.Context, username, password string) error {
	creds := protocol.Credentials{Username: username, PasswordHash: HashPassword(password)}
	var status protocol.StatusResponse
	return c.roundTrip(ctx, http.MethodPost, "/register", creds, &status)
}

// Login asserts the caller's identity for subsequent requests.
func (c *Client) Login(ctx context.Context, username, password string) error {
	creds := protocol.Credentials{Username: username, PasswordHash: HashPassword(password)}
	var status protocol.StatusResponse
	return c.roundTrip(ctx, http.MethodPost, "/login", creds, &status)
}

// Auctions fetches a snapshot of all auctions, closed ones included.
func (c *Client) Auctions(ctx context.Context) ([]protocol.Auction, error) {
	var out []protocol.Auction
	if err := c.roundTrip(ctx, http.MethodGet, "/auctions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Auction fetches one auction by id.
func (c *Client) Auction(ctx context.Context, id string) (protocol.Auction, error) {
	var out protocol.Auction
	if err := c.roundTrip(ctx, http.MethodGet, "/auction/"+id, nil, &out); err != nil {
		return protocol.Auction{}, err
	}
	return out, nil
}

// CreateAuction opens a new auction listing.
func (c *Client) CreateAuction(ctx context.Context, req protocol.CreateAuctionRequest) (protocol.StatusResponse, error) {
	var out protocol.StatusResponse
	if err := c.roundTrip(ctx, http.MethodPost, "/auction", req, &out); err != nil {
		return protocol.StatusResponse{}, err
	}
	return out, nil
}

// PlaceBid submits a bid. A submitted bid either completes with success or a
// definitive error; bids are safe to retry since amounts are monotonic.
func (c *Client) PlaceBid(ctx context.Context, auctionID, bidder string, amount int) (protocol.StatusResponse, error) {
	bid := protocol.BidRequest{ID: auctionID, Bidder: bidder, Amount: amount}
	var out protocol.StatusResponse
	if err := c.roundTrip(ctx, http.MethodPost, "/bid", bid, &out); err != nil {
		return protocol.StatusResponse{}, err
	}
	return out, nil
}

// roundTrip runs one encrypted request/response exchange: seal payload,
// attach the cleartext session header, open the response envelope into out.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload, out any) error {
	session := c.Session()
	if session == nil {
		return ErrSessionNotEstablished
	}

	var body io.Reader
	if payload != nil {
		data, err := crypto.SealJSON(payload, session.Key)
		if err != nil {
			return fmt.Errorf("seal request: %w", err)
		}
		raw, err := protocol.SerializeMessage(&protocol.EncryptedBody{Data: data})
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	resp, err := c.do(ctx, method, path, body, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	encBody, err := protocol.DecodeMessage[protocol.EncryptedBody](resp.Body)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := crypto.OpenJSON(encBody.Data, session.Key, out); err != nil {
		return fmt.Errorf("open response: %w", err)
	}
	return nil
}

// do performs the HTTP exchange and converts non-2xx responses into
// APIError, preferring the server's detail message.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, withSession bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if withSession {
		session := c.Session()
		if session == nil {
			return nil, ErrSessionNotEstablished
		}
		req.Header.Set(protocol.SessionHeader, session.ID)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode, Detail: http.StatusText(resp.StatusCode)}
		if detail, derr := protocol.DecodeMessage[protocol.ErrorResponse](resp.Body); derr == nil && detail.Detail != "" {
			apiErr.Detail = detail.Detail
		}
		return nil, apiErr
	}
	return resp, nil
}
