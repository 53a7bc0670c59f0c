// Command server runs the auction platform API server.
//
// On startup it generates a fresh RSA key pair for the session handshake,
// loads persisted auctions and user accounts if PostgreSQL is configured,
// and starts the one-second countdown loop. All auction endpoints sit
// behind the encrypted session channel; /public-key and /handshake are the
// only plaintext routes besides the health endpoints.
//
// # Persistence
//
// Without --db-host the server keeps all state in memory and starts empty.
// With it, auctions and accounts are written through to PostgreSQL and
// reloaded on restart.
//
// # Usage
//
//	go run ./cmd/server --addr=:8000
//	go run ./cmd/server --addr=:8000 --db-host=localhost --db-name=auctions
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gregghy/sec-projet/api/httpserver"
	"github.com/gregghy/sec-projet/eventbus"
	"github.com/gregghy/sec-projet/registry"
	"github.com/gregghy/sec-projet/server"
)

func main() {
	var (
		addr        = flag.String("addr", ":8000", "HTTP listen address")
		enablePprof = flag.Bool("pprof", false, "Enable pprof debugging API")
		logJSON     = flag.Bool("log-json", false, "Log in JSON format")
		logDebug    = flag.Bool("log-debug", false, "Log at debug level")
		drain       = flag.Duration("drain-duration", 5*time.Second, "Wait after /drain before shutdown")
		dbHost      = flag.String("db-host", "", "PostgreSQL host (in-memory store if empty)")
		dbPort      = flag.Int("db-port", 5432, "PostgreSQL port")
		dbUser      = flag.String("db-user", "auction", "PostgreSQL user")
		dbPassword  = flag.String("db-password", "", "PostgreSQL password")
		dbName      = flag.String("db-name", "auctions", "PostgreSQL database name")
		dbSSLMode   = flag.String("db-sslmode", "disable", "PostgreSQL sslmode")
	)
	flag.Parse()

	log := newLogger(*logJSON, *logDebug)

	var store registry.Store = registry.NewMemoryStore()
	if *dbHost != "" {
		pg, err := registry.NewPostgresStore(&registry.PostgresConfig{
			Host:     *dbHost,
			Port:     *dbPort,
			User:     *dbUser,
			Password: *dbPassword,
			Database: *dbName,
			SSLMode:  *dbSSLMode,
		})
		if err != nil {
			log.Error("Connecting to PostgreSQL failed", "err", err)
			os.Exit(1)
		}
		store = pg
		log.Info("Using PostgreSQL store", "host", *dbHost, "database", *dbName)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.New(log)
	reg, err := registry.New(ctx, store, bus, log)
	if err != nil {
		log.Error("Loading auction registry failed", "err", err)
		os.Exit(1)
	}

	auctionSrv, err := server.New(&server.Config{
		Registry: reg,
		Bus:      bus,
		Log:      log,
	})
	if err != nil {
		log.Error("Creating auction server failed", "err", err)
		os.Exit(1)
	}

	shell, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               *addr,
		EnablePprof:              *enablePprof,
		Log:                      log,
		DrainDuration:            *drain,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		// No write timeout: /ws connections stay open indefinitely.
	}, auctionSrv)
	if err != nil {
		log.Error("Creating HTTP server failed", "err", err)
		os.Exit(1)
	}

	go auctionSrv.Run(ctx)
	shell.RunInBackground()
	fmt.Printf("Auction server listening on %s\n", *addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down")
	cancel()
	shell.Shutdown()
}

func newLogger(json, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
