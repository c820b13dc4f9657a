package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// DefaultReadHeaderTimeout bounds how long a client may take to send its
// request headers.
const DefaultReadHeaderTimeout = 5 * time.Second

// Config configures a Server.
type Config struct {
	// Addr is the listen address, host:port.
	Addr string

	// TLS switches the server to HTTPS.
	TLS *tls.Config

	// RateLimit is the number of requests per second allowed per client
	// IP. Zero disables limiting.
	RateLimit int

	// AllowList holds the IPs and CIDRs allowed to connect. Empty allows
	// everyone.
	AllowList []string

	Logger logger.Logger
}

// Server is the HTTP server of a node.
type Server struct {
	httpServer *http.Server
	tls        bool
	logger     logger.Logger
}

// New creates a server for routes wrapped in the middleware chain.
func New(cfg Config, routes http.Handler) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With("component", "httpserver")

	middlewares := []Middleware{Recover(log), RequestID()}
	if len(cfg.AllowList) > 0 {
		middlewares = append(middlewares, NetworkACL(cfg.AllowList, log))
	}
	if cfg.RateLimit > 0 {
		middlewares = append(middlewares, RateLimit(cfg.RateLimit))
	}
	middlewares = append(middlewares, AccessLog(log))

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           Chain(routes, middlewares...),
			TLSConfig:         cfg.TLS,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
		},
		tls:    cfg.TLS != nil,
		logger: log,
	}
}

// Start listens on the configured address and serves in the background.
// It returns the address actually bound.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}

	go func() {
		var err error
		if s.tls {
			err = s.httpServer.ServeTLS(ln, "", "")
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	return ln.Addr().String(), nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
