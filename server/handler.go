package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gregghy/sec-projet/crypto"
	"github.com/gregghy/sec-projet/protocol"
	"github.com/gregghy/sec-projet/registry"
)

type sessionKeyCtx struct{}

// sessionKey returns the symmetric key the requireSession middleware
// attached to the request context.
func sessionKey(ctx context.Context) []byte {
	key, _ := ctx.Value(sessionKeyCtx{}).([]byte)
	return key
}

// requireSession resolves the cleartext session header to a symmetric key.
// Calls without an established session never reach the handlers.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(protocol.SessionHeader)
		if id == "" {
			writeError(w, http.StatusUnauthorized, "session required")
			return
		}
		key, ok := s.sessions.Key(id)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKeyCtx{}, key)))
	})
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	pemBytes, err := crypto.MarshalPublicKey(&s.key.PublicKey)
	if err != nil {
		s.log.Error("marshal public key", "err", err)
		writeError(w, http.StatusInternalServerError, "public key unavailable")
		return
	}
	writeJSON(w, http.StatusOK, protocol.PublicKeyResponse{Key: string(pemBytes)})
}

func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	req, err := protocol.DecodeMessage[protocol.HandshakeRequest](r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "handshake failed")
		return
	}

	ct, err := base64.StdEncoding.DecodeString(req.EncryptedKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "handshake failed")
		return
	}

	// Invalid key material creates no session entry.
	key, err := crypto.DecryptSessionKey(s.key, ct)
	if err != nil {
		s.log.Warn("handshake rejected", "err", err)
		writeError(w, http.StatusBadRequest, "handshake failed")
		return
	}

	id := s.sessions.Create(key)
	s.log.Info("session established", "session_id", id)
	writeJSON(w, http.StatusOK, protocol.HandshakeResponse{SessionID: id})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r.Context())
	var creds protocol.Credentials
	if !decryptBody(w, r, key, &creds) {
		return
	}

	if err := s.registry.RegisterUser(r.Context(), creds.Username, creds.PasswordHash); err != nil {
		if errors.Is(err, registry.ErrUserExists) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("register user", "err", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	s.writeEncrypted(w, key, protocol.StatusResponse{Status: "registered"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r.Context())
	var creds protocol.Credentials
	if !decryptBody(w, r, key, &creds) {
		return
	}

	if err := s.registry.Authenticate(creds.Username, creds.PasswordHash); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.writeEncrypted(w, key, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	s.writeEncrypted(w, sessionKey(r.Context()), s.registry.Auctions())
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	a, err := s.registry.Auction(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeEncrypted(w, sessionKey(r.Context()), a)
}

func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r.Context())
	var req protocol.CreateAuctionRequest
	if !decryptBody(w, r, key, &req) {
		return
	}

	a, err := s.registry.CreateAuction(r.Context(), req)
	if err != nil {
		if errors.Is(err, registry.ErrAuctionExists) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("create auction", "err", err)
		writeError(w, http.StatusInternalServerError, "auction creation failed")
		return
	}

	s.writeEncrypted(w, key, protocol.StatusResponse{Status: "accepted", NewHighest: a.HighestBid})
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r.Context())
	var bid protocol.BidRequest
	if !decryptBody(w, r, key, &bid) {
		return
	}

	a, err := s.registry.PlaceBid(r.Context(), bid)
	switch {
	case err == nil:
		s.writeEncrypted(w, key, protocol.StatusResponse{Status: "accepted", NewHighest: a.HighestBid})
	case errors.Is(err, registry.ErrAuctionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrAuctionClosed), errors.Is(err, registry.ErrBidTooLow):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("place bid", "err", err)
		writeError(w, http.StatusInternalServerError, "bid failed")
	}
}

// decryptBody opens the {"data": ...} envelope into v. On failure it writes
// a 400 and reports false; no handler state changes on that path.
func decryptBody(w http.ResponseWriter, r *http.Request, key []byte, v any) bool {
	body, err := protocol.DecodeMessage[protocol.EncryptedBody](r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := crypto.OpenJSON(body.Data, key, v); err != nil {
		writeError(w, http.StatusBadRequest, "decryption failed")
		return false
	}
	return true
}

// writeEncrypted seals v under the session key into the response envelope.
func (s *Server) writeEncrypted(w http.ResponseWriter, key []byte, v any) {
	data, err := crypto.SealJSON(v, key)
	if err != nil {
		s.log.Error("seal response", "err", err)
		writeError(w, http.StatusInternalServerError, "encryption failed")
		return
	}
	writeJSON(w, http.StatusOK, protocol.EncryptedBody{Data: data})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, protocol.ErrorResponse{Detail: detail})
}
