package server

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Tyrowin/gonotify/internal/apperrors"
	"github.com/Tyrowin/gonotify/internal/auth"
)

// handleNotifications authenticates the upgrade request from its session
// cookie, upgrades it and keeps the socket registered under the caller's
// identity until either side closes it. Requests without a valid session
// are answered with 401 and never reach the registry.
func (s *Server) handleNotifications(c echo.Context) error {
	r := c.Request()

	identity, err := s.sessions.ExtractFromHandshake(strings.Join(r.Header.Values("Cookie"), "; "))
	if err != nil {
		s.authMetrics.HandshakeRejected.WithLabelValues(rejectReason(err)).Inc()
		return apperrors.UnauthorizedError("Invalid or missing session", err)
	}
	c.Set(identityKey, identity)

	s.connections.Add(1)
	defer s.connections.Done()

	conn, err := s.upgrader.Upgrade(c.Response(), r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		slog.WarnContext(r.Context(), "WebSocket upgrade failed", "identity", identity, "error", err)
		return nil
	}

	client := NewClient(conn, identity, r.RemoteAddr, s.cfg.MaxMessageSize)

	s.connections.Add(1)
	go func() {
		defer s.connections.Done()
		client.writePump()
	}()

	if err := s.registry.Serve(r.Context(), identity, client, client.readPump); err != nil {
		slog.WarnContext(r.Context(), "Notification socket ended with error", "identity", identity, "error", err)
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "missing"
	case errors.Is(err, auth.ErrExpiredToken):
		return "expired"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "signature"
	case errors.Is(err, auth.ErrMissingIdentityClaim):
		return "no_identity"
	default:
		return "malformed"
	}
}
