package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/gregghy/sec-projet/crypto"
	"github.com/gregghy/sec-projet/eventbus"
	"github.com/gregghy/sec-projet/protocol"
	"github.com/gregghy/sec-projet/registry"
)

type testEnv struct {
	srv *Server
	reg *registry.Registry
	bus *eventbus.Bus
	ts  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithClock(t, nil)
}

func newTestEnvWithClock(t *testing.T, clock clockwork.Clock) *testEnv {
	t.Helper()

	bus := eventbus.New(nil)
	reg, err := registry.New(context.Background(), registry.NewMemoryStore(), bus, nil)
	require.NoError(t, err)

	srv, err := New(&Config{Registry: reg, Bus: bus, Clock: clock})
	require.NoError(t, err)

	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &testEnv{srv: srv, reg: reg, bus: bus, ts: ts}
}

// handshake performs the full key exchange like a real client: fetch the PEM
// key, generate a fresh symmetric key, RSA-encrypt it, post it.
func (e *testEnv) handshake(t *testing.T) (sessionID string, key []byte) {
	t.Helper()

	resp, err := http.Get(e.ts.URL + "/public-key")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	pkResp, err := protocol.DecodeMessage[protocol.PublicKeyResponse](resp.Body)
	require.NoError(t, err)
	pub, err := crypto.ParsePublicKey([]byte(pkResp.Key))
	require.NoError(t, err)

	key, err = crypto.NewSessionKey()
	require.NoError(t, err)
	ct, err := crypto.EncryptSessionKey(pub, key)
	require.NoError(t, err)

	body, err := json.Marshal(protocol.HandshakeRequest{
		EncryptedKey: base64.StdEncoding.EncodeToString(ct),
	})
	require.NoError(t, err)

	resp, err = http.Post(e.ts.URL+"/handshake", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	hsResp, err := protocol.DecodeMessage[protocol.HandshakeResponse](resp.Body)
	require.NoError(t, err)
	require.NotEmpty(t, hsResp.SessionID)

	return hsResp.SessionID, key
}

// call sends an encrypted request and decrypts the response into out.
func (e *testEnv) call(t *testing.T, method, path, sessionID string, key []byte, payload, out any) *http.Response {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		data, err := crypto.SealJSON(payload, key)
		require.NoError(t, err)
		raw, err := json.Marshal(protocol.EncryptedBody{Data: data})
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, body)
	require.NoError(t, err)
	req.Header.Set(protocol.SessionHeader, sessionID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil && resp.StatusCode == http.StatusOK {
		encBody, err := protocol.DecodeMessage[protocol.EncryptedBody](resp.Body)
		require.NoError(t, err)
		require.NoError(t, crypto.OpenJSON(encBody.Data, key, out))
	}
	return resp
}

func TestFullEncryptedFlow(t *testing.T) {
	env := newTestEnv(t)
	sessionID, key := env.handshake(t)

	creds := protocol.Credentials{Username: "alice", PasswordHash: "0123abcd"}

	var status protocol.StatusResponse
	resp := env.call(t, http.MethodPost, "/register", sessionID, key, creds, &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "registered", status.Status)

	resp = env.call(t, http.MethodPost, "/login", sessionID, key, creds, &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", status.Status)

	create := protocol.CreateAuctionRequest{
		ID: "a1", Item: "vintage watch", Description: "1978, papers included",
		Seller: "alice", MinPrice: 100, TimeRemaining: 60,
	}
	resp = env.call(t, http.MethodPost, "/auction", sessionID, key, create, &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "accepted", status.Status)
	require.Equal(t, 100, status.NewHighest)

	var auctions []protocol.Auction
	resp = env.call(t, http.MethodGet, "/auctions", sessionID, key, nil, &auctions)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, auctions, 1)
	require.Equal(t, "a1", auctions[0].ID)

	var single protocol.Auction
	resp = env.call(t, http.MethodGet, "/auction/a1", sessionID, key, nil, &single)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, protocol.StatusOpen, single.Status)

	bid := protocol.BidRequest{ID: "a1", Bidder: "bob", Amount: 150}
	resp = env.call(t, http.MethodPost, "/bid", sessionID, key, bid, &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "accepted", status.Status)
	require.Equal(t, 150, status.NewHighest)
}

func TestHandshakeInvalidKeyMaterial(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(protocol.HandshakeRequest{
		EncryptedKey: base64.StdEncoding.EncodeToString([]byte("not an rsa ciphertext")),
	})
	require.NoError(t, err)

	resp, err := http.Post(env.ts.URL+"/handshake", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The failed path must not create a session entry.
	require.Zero(t, env.srv.Sessions().Len())
}

func TestHandshakeMalformedBase64(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"encrypted_key":"%%%not-base64%%%"}`)
	resp, err := http.Post(env.ts.URL+"/handshake", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Zero(t, env.srv.Sessions().Len())
}

func TestRequestWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/auctions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/auctions", nil)
	require.NoError(t, err)
	req.Header.Set(protocol.SessionHeader, "no-such-session")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)

	detail, err := protocol.DecodeMessage[protocol.ErrorResponse](resp2.Body)
	require.NoError(t, err)
	require.Equal(t, "invalid session", detail.Detail)
}

func TestGarbageEncryptedBody(t *testing.T) {
	env := newTestEnv(t)
	sessionID, _ := env.handshake(t)

	raw := []byte(`{"data":"bm90IGEgdmFsaWQgYmxvYg=="}`)
	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/auction", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set(protocol.SessionHeader, sessionID)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Nothing was created.
	require.Empty(t, env.reg.Auctions())
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	sessionID, key := env.handshake(t)

	resp := env.call(t, http.MethodPost, "/login", sessionID, key,
		protocol.Credentials{Username: "ghost", PasswordHash: "x"}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	detail, err := protocol.DecodeMessage[protocol.ErrorResponse](resp.Body)
	require.NoError(t, err)
	require.Equal(t, "invalid credentials", detail.Detail)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	sessionID, key := env.handshake(t)
	creds := protocol.Credentials{Username: "alice", PasswordHash: "h"}

	resp := env.call(t, http.MethodPost, "/register", sessionID, key, creds, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.call(t, http.MethodPost, "/register", sessionID, key, creds, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBidErrorsSurfaceDetail(t *testing.T) {
	env := newTestEnv(t)
	sessionID, key := env.handshake(t)

	resp := env.call(t, http.MethodPost, "/bid", sessionID, key,
		protocol.BidRequest{ID: "nope", Bidder: "bob", Amount: 10}, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, err := env.reg.CreateAuction(context.Background(), protocol.CreateAuctionRequest{
		ID: "a1", MinPrice: 100, TimeRemaining: 60,
	})
	require.NoError(t, err)

	resp = env.call(t, http.MethodPost, "/bid", sessionID, key,
		protocol.BidRequest{ID: "a1", Bidder: "bob", Amount: 100}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	detail, err := protocol.DecodeMessage[protocol.ErrorResponse](resp.Body)
	require.NoError(t, err)
	require.Contains(t, detail.Detail, "bid too low")
	require.Contains(t, detail.Detail, "100")
}

func TestSessionIsolation(t *testing.T) {
	env := newTestEnv(t)

	idA, keyA := env.handshake(t)
	idB, keyB := env.handshake(t)
	require.NotEqual(t, idA, idB)
	require.NotEqual(t, keyA, keyB)

	// Fetch an encrypted response for A, then try to open it with B's key.
	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/auctions", nil)
	require.NoError(t, err)
	req.Header.Set(protocol.SessionHeader, idA)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	encBody, err := protocol.DecodeMessage[protocol.EncryptedBody](resp.Body)
	require.NoError(t, err)

	var auctions []protocol.Auction
	require.NoError(t, crypto.OpenJSON(encBody.Data, keyA, &auctions))

	err = crypto.OpenJSON(encBody.Data, keyB, &auctions)
	require.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestHandshakeFlood(t *testing.T) {
	env := newTestEnv(t)

	const clients = 20
	ids := make([]string, clients)
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, _ := env.handshake(t)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, clients)
	for _, id := range ids {
		require.NotEmpty(t, id)
		require.False(t, seen[id], "flooded handshakes must still mint unique sessions")
		seen[id] = true
	}
	require.Equal(t, clients, env.srv.Sessions().Len())
}
