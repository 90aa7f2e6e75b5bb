// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

// Package webapp serves the HTML pages: landing, signup, login, members,
// and logout. Session state lives server-side; the browser only carries
// an opaque token cookie.
package webapp

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/membergate/membergate/internal/auth"
	"github.com/membergate/membergate/internal/observability"
)

// Config holds the web server settings.
type Config struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string

	// CookieSecure marks the session cookie Secure. Off by default so
	// local development over plain HTTP works.
	CookieSecure bool
}

// Server serves the member area web application.
type Server struct {
	cfg          Config
	auth         *auth.Service
	renderer     *Renderer
	metrics      *observability.Metrics
	logger       *slog.Logger
	cookieSecure bool

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates the web server. The metrics handle may be nil when
// observability is disabled.
func NewServer(cfg Config, svc *auth.Service, metrics *observability.Metrics, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("WEBAPP_NIL_DEPENDENCY").Errorf("auth service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:          cfg,
		auth:         svc,
		renderer:     renderer,
		metrics:      metrics,
		logger:       logger,
		cookieSecure: cfg.CookieSecure,
	}, nil
}

// Handler returns the full middleware-wrapped handler. Exposed for
// tests that drive the app through httptest.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// Start begins serving the web application.
// It returns an error channel that will receive any errors from the HTTP
// server after it starts. The channel is closed when the server stops
// gracefully.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the web server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_web_server").Wrap(err)
		}
	}

	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
