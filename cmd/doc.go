// Package cmd provides CLI commands for the auction platform.
//
// # Commands
//
// server: Runs the auction API server with the RSA handshake, encrypted
// endpoints, websocket push and the countdown loop.
//
//	go run ./cmd/server --addr=:8000
//	go run ./cmd/server --addr=:8000 --db-host=localhost --db-name=auctions
//
// client: CLI for interacting with a running server. Every invocation
// performs the handshake before issuing requests.
//
//	go run ./cmd/client list -server http://localhost:8000
//	go run ./cmd/client bid -server http://localhost:8000 --id=a1 --bidder=bob --amount=150
//	go run ./cmd/client watch -server http://localhost:8000
package cmd
