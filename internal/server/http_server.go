package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Start listens on the configured port and blocks until the server stops.
// A clean shutdown returns nil.
func (s *Server) Start() error {
	slog.Info("Server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, closes every notification socket and
// waits for connection goroutines until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server...")

	shutdownErr := s.httpServer.Shutdown(ctx)
	if shutdownErr != nil {
		slog.Error("HTTP server shutdown error", "error", shutdownErr)
	}

	s.registry.Shutdown()

	done := make(chan struct{})
	go func() {
		s.connections.Wait()
		close(done)
	}()

	select {
	case <-done:
		if shutdownErr != nil {
			return fmt.Errorf("failed to shutdown server: %w", shutdownErr)
		}
		slog.Info("HTTP server shutdown completed")
		return nil
	case <-ctx.Done():
		slog.Warn("Shutdown timeout reached, some connections may still be open")
		return ctx.Err()
	}
}
