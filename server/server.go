package server

import (
	"context"
	"crypto/rsa"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/gregghy/sec-projet/crypto"
	"github.com/gregghy/sec-projet/eventbus"
	"github.com/gregghy/sec-projet/registry"
)

// tickInterval is the authoritative countdown period.
const tickInterval = time.Second

// Config carries the auction server dependencies.
type Config struct {
	// Registry is the authoritative auction store. Required.
	Registry *registry.Registry

	// Bus feeds the real-time push channel. Required.
	Bus *eventbus.Bus

	// PrivateKey is the server's long-lived RSA key. Generated when nil.
	PrivateKey *rsa.PrivateKey

	// Clock drives the one-second auction countdown. Real clock when nil.
	Clock clockwork.Clock

	// Log is the structured logger. slog.Default when nil.
	Log *slog.Logger
}

// Server is the auction API server.
type Server struct {
	log      *slog.Logger
	key      *rsa.PrivateKey
	clock    clockwork.Clock
	sessions *SessionStore
	registry *registry.Registry
	hub      *Hub
}

// New creates a server, generating the long-lived RSA keypair if the config
// does not supply one.
func New(cfg *Config) (*Server, error) {
	key := cfg.PrivateKey
	if key == nil {
		var err error
		key, err = crypto.GenerateServerKey()
		if err != nil {
			return nil, err
		}
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Server{
		log:      log,
		key:      key,
		clock:    clock,
		sessions: NewSessionStore(),
		registry: cfg.Registry,
		hub:      NewHub(cfg.Bus, log),
	}, nil
}

// RegisterRoutes registers the handshake, auction API and push routes.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/public-key", s.handlePublicKey)
	r.Post("/handshake", s.handleHandshake)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Get("/auctions", s.handleListAuctions)
		r.Get("/auction/{id}", s.handleGetAuction)
		r.Post("/auction", s.handleCreateAuction)
		r.Post("/bid", s.handleBid)
	})

	// The push channel authenticates like any other call but cannot carry
	// bodies, so it sits outside the envelope.
	r.With(s.requireSession).Get("/ws", s.hub.ServeWS)
}

// Run drives the authoritative countdown: one registry tick per second until
// the context is cancelled. The local countdowns clients keep are advisory;
// the END events emitted here are the source of truth.
func (s *Server) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.registry.Tick(ctx)
		}
	}
}

// Sessions exposes the session table, used by tests and diagnostics.
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}
