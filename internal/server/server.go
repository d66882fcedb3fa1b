package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/authava/authgate/internal/config"
)

// Server owns the forward-auth gateway's HTTP listener and graceful
// shutdown. It is deliberately thin: routing lives in NewRouter, everything
// here is start/stop bookkeeping.
type Server struct {
	logger       *slog.Logger
	httpServer   *http.Server
	adminMounted bool
	once         sync.Once
}

// New binds handler to the configured listen address. adminMounted reflects
// config.Config.AdminMounted() at construction time and is only used to
// annotate lifecycle log lines — the admin surface itself is already baked
// into handler by the caller.
func New(cfg config.Config, logger *slog.Logger, handler http.Handler) (*Server, error) {
	if handler == nil {
		return nil, errors.New("server: handler required")
	}

	addr := net.JoinHostPort(cfg.Listen.Address, strconv.Itoa(cfg.Listen.Port))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		logger:       logger.With(slog.String("component", "listener")),
		httpServer:   httpSrv,
		adminMounted: cfg.AdminMounted(),
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests before
// returning. A listener failure that isn't a clean Shutdown is returned
// wrapped as "server: listen: ..."; a cancelled ctx is returned after shutdown completes so callers can
// distinguish "stopped on purpose" from "listener died".
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("http listener starting",
			slog.String("address", s.httpServer.Addr),
			slog.Bool("admin_mounted", s.adminMounted))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: listen: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}
}

// shutdown is idempotent: ctx cancellation and a later signal can both race
// to call it, and http.Server.Shutdown must only run once.
func (s *Server) shutdown(ctx context.Context) error {
	var shutdownErr error
	s.once.Do(func() {
		s.logger.Info("http listener shutting down", slog.Bool("admin_mounted", s.adminMounted))
		shutdownErr = s.httpServer.Shutdown(ctx)
	})
	return shutdownErr
}
