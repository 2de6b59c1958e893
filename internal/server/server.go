package server

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Server wraps an *http.Server with start/shutdown lifecycle. The simulator
// runs three of these: protocol, control, and auth mock, one per port.
type Server struct {
	httpServer *http.Server
}

const (
	maxHeaderBytes    = 1 << 20 // 1 MB
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		MaxHeaderBytes:    maxHeaderBytes,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		// No WriteTimeout: websocket sessions outlive any sane value and
		// manage their own write deadlines.
	}
}

// Run starts the HTTP server on the given port and blocks until it stops.
func (s *Server) Run(port int, handler http.Handler) error {
	s.httpServer = newHTTPServer(fmt.Sprintf(":%d", port), handler)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new connections and waits for in-flight
// requests up to the context deadline, then releases the port.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
