// Package server runs the HTTP listener with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const defaultShutdownTimeout = 10 * time.Second

// Config configures a Server.
type Config struct {
	// Address is the TCP listen address (e.g., ":8000", "127.0.0.1:0").
	Address string

	Handler http.Handler

	// ShutdownTimeout bounds how long in-flight requests may run after
	// shutdown starts. Zero means 10 seconds.
	ShutdownTimeout time.Duration

	Logger *slog.Logger

	// OnShutdown runs when shutdown starts, before in-flight requests
	// are drained. Long-lived handlers (event streams) should be told
	// to return here.
	OnShutdown func()
}

// Server serves HTTP until its context is cancelled.
type Server struct {
	cfg   Config
	ready chan struct{}
	addr  net.Addr
}

// New creates a Server. Call Serve to start accepting connections.
func New(cfg Config) *Server {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Server{cfg: cfg, ready: make(chan struct{})}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address. Only valid after Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Serve binds the listener and serves until ctx is cancelled, then stops
// accepting connections and waits up to ShutdownTimeout for active
// requests.
func (s *Server) Serve(ctx context.Context) error {
	if s.cfg.Address == "" || s.cfg.Handler == nil || s.cfg.Logger == nil {
		return errors.New("server: address, handler and logger are required")
	}

	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	httpServer := &http.Server{
		Handler:           s.cfg.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	if s.cfg.OnShutdown != nil {
		httpServer.RegisterOnShutdown(s.cfg.OnShutdown)
	}

	s.cfg.Logger.Info("http server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		err := httpServer.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveDone <- err
	}()

	select {
	case <-ctx.Done():
		s.cfg.Logger.Info("http server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.cfg.Logger.Error("http server shutdown error", "error", err)
		return fmt.Errorf("http server shutdown: %w", err)
	}

	s.cfg.Logger.Info("http server stopped")
	return nil
}
