package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/sift/internal/shared"
)

// Server serves a [CallbackHandler] on the loopback address of a redirect URI.
type Server struct {
	addr    string
	handler *CallbackHandler
	logger  *log.Logger
	srv     *http.Server
}

// NewServer parses redirectURI and prepares a server for its host, port and path.
func NewServer(redirectURI, state string, login LoginFunc, logger *log.Logger) (*Server, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: redirect uri %q", shared.ErrInvalidConfig, redirectURI)
	}
	if logger == nil {
		logger = shared.WithLogger(log.Default(), "component", "callback")
	}

	h := NewCallbackHandler(u.Path, state, login)
	router := NewBasicRouter()
	router.Use(Recoverer(logger), RequestLogger(logger))
	router.Handler(h)

	return &Server{
		addr:    u.Host,
		handler: h,
		logger:  logger,
		srv: &http.Server{
			Addr:              u.Host,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenOn overrides the listen address. The redirect URI still has to reach it.
func (s *Server) ListenOn(addr string) {
	s.addr = addr
	s.srv.Addr = addr
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string { return s.addr }

// Wait serves until the callback completes or ctx ends, then shuts the server down.
func (s *Server) Wait(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w: listen on %s: %w", shared.ErrServiceUnavailable, s.addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	s.logger.Debug("waiting for callback", "addr", ln.Addr().String())

	var result error
	select {
	case r := <-s.handler.Result():
		result = r.Err
	case err := <-serveErr:
		result = err
	case <-ctx.Done():
		s.handler.Cancel(ctx.Err())
		result = ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("callback server shutdown", "error", err)
	}
	return result
}
