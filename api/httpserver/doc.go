// Package httpserver provides the reusable HTTP server shell for the
// auction platform's API.
//
// It implements a base HTTP server with standard health endpoints, drain
// control and graceful shutdown around whatever routes the registrars
// bring. The auction API server implements RouteRegistrar and plugs its
// handshake, encrypted-channel and websocket routes into this shell.
//
// # Health and Diagnostics
//
// All servers built with BaseServer automatically include:
//
//   - Liveness Check: Simple endpoint to verify server is running (/livez)
//   - Readiness Check: Endpoint indicating if server is ready to accept requests (/readyz)
//   - Drain Control: Endpoints to prepare for graceful shutdown (/drain, /undrain)
//   - Profiling: Optional pprof debugging endpoints when enabled
//
// # Usage Example
//
//	srv, _ := httpserver.New(&httpserver.HTTPServerConfig{
//	    ListenAddr: ":8000",
//	    Log:        log,
//	}, auctionServer)
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
