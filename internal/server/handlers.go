package server

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Tyrowin/gonotify/internal/apperrors"
	"github.com/Tyrowin/gonotify/internal/metrics"
	"github.com/Tyrowin/gonotify/internal/users"
)

// registrationNotice is broadcast to every connected user after a signup.
const registrationNotice = "New user registered: "

func (s *Server) handleHello(c echo.Context) error {
	return c.JSON(http.StatusOK, messageResponse{Message: "Hello World"})
}

// handleRoot sends signed-in users to the welcome page and everyone else to
// the login page.
func (s *Server) handleRoot(c echo.Context) error {
	if _, err := s.sessions.FromRequest(c.Request()); err == nil {
		return c.Redirect(http.StatusSeeOther, "/welcome")
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}

// handleWelcome serves the protected page. A missing or invalid session, or
// a session for an account that no longer exists, redirects to /login.
func (s *Server) handleWelcome(c echo.Context) error {
	ctx := c.Request().Context()

	identity, err := s.sessions.FromRequest(c.Request())
	if err != nil {
		return c.Redirect(http.StatusSeeOther, "/login")
	}

	if _, err := s.users.Lookup(ctx, identity); err != nil {
		if !errors.Is(err, users.ErrUserNotFound) {
			return apperrors.InternalError("failed to load account", err)
		}
		return c.Redirect(http.StatusSeeOther, "/login")
	}

	page, err := fs.ReadFile(s.staticFS, "welcome.html")
	if err != nil {
		return apperrors.InternalError("failed to load welcome page", err)
	}
	return c.HTMLBlob(http.StatusOK, page)
}

func (s *Server) handleRegister(c echo.Context) error {
	ctx := c.Request().Context()

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("Invalid request body", err)
	}

	u, err := s.users.Register(ctx, req.Email, req.Password)
	switch {
	case errors.Is(err, users.ErrDuplicateIdentity):
		s.authMetrics.Registrations.WithLabelValues(metrics.ResultDuplicate).Inc()
		return apperrors.ValidationError("Email already registered", err)
	case errors.Is(err, users.ErrInvalidEmail):
		s.authMetrics.Registrations.WithLabelValues(metrics.ResultRejected).Inc()
		return apperrors.ValidationError("Invalid email address", err)
	case errors.Is(err, users.ErrEmptyPassword):
		s.authMetrics.Registrations.WithLabelValues(metrics.ResultRejected).Inc()
		return apperrors.ValidationError("Password must not be empty", err)
	case err != nil:
		s.authMetrics.Registrations.WithLabelValues(metrics.ResultError).Inc()
		return apperrors.InternalError("failed to register user", err)
	}
	s.authMetrics.Registrations.WithLabelValues(metrics.ResultSuccess).Inc()

	s.announceRegistration(ctx, u.Email)

	return c.JSON(http.StatusOK, registerResponse{
		Message: "User registered successfully",
		Email:   u.Email,
	})
}

// announceRegistration tells every connected user about a new account. A
// delivery problem never fails the registration itself.
func (s *Server) announceRegistration(ctx context.Context, email string) {
	if err := s.notifier.Notify(ctx, registrationNotice+email); err != nil {
		slog.WarnContext(ctx, "Failed to announce registration", "email", email, "error", err)
	}
}

func (s *Server) handleLogin(c echo.Context) error {
	ctx := c.Request().Context()

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("Invalid request body", err)
	}

	u, err := s.users.Authenticate(ctx, req.Email, req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		s.authMetrics.LoginAttempts.WithLabelValues(metrics.ResultRejected).Inc()
		return apperrors.UnauthorizedError("Invalid credentials", err).WithField("email", req.Email)
	}
	if err != nil {
		s.authMetrics.LoginAttempts.WithLabelValues(metrics.ResultError).Inc()
		return apperrors.InternalError("failed to authenticate", err)
	}

	ttl := s.cfg.SessionTTL
	if ttl <= 0 {
		ttl = s.sessions.DefaultTTL()
	}

	token, err := s.sessions.Issue(u.Email, ttl)
	if err != nil {
		s.authMetrics.LoginAttempts.WithLabelValues(metrics.ResultError).Inc()
		return apperrors.InternalError("failed to issue session", err)
	}
	s.authMetrics.LoginAttempts.WithLabelValues(metrics.ResultSuccess).Inc()

	s.setSessionCookie(c, token, ttl)
	slog.InfoContext(ctx, "User logged in", "email", u.Email)
	return c.JSON(http.StatusOK, messageResponse{Message: "Login successful"})
}

// handleLogout drops the caller's registry entry when the session is still
// valid, clears the cookie either way and redirects to the login page.
func (s *Server) handleLogout(c echo.Context) error {
	if identity, err := s.sessions.FromRequest(c.Request()); err == nil {
		s.registry.Unregister(identity)
		slog.InfoContext(c.Request().Context(), "User logged out", "email", identity)
	}

	s.clearSessionCookie(c)
	return c.Redirect(http.StatusSeeOther, "/login")
}
