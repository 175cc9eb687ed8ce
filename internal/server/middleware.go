package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/gonotify/internal/apperrors"
	"github.com/Tyrowin/gonotify/internal/logging"
)

const rateLimiterExpiry = 5 * time.Minute

// correlationMiddleware assigns every request a correlation ID, stores it in
// the request context for logging and echoes it in X-Request-ID.
func correlationMiddleware() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: logging.NewID,
		RequestIDHandler: func(c echo.Context, id string) {
			ctx := logging.WithID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
		},
	})
}

func requestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}

// ErrorHandlingMiddleware turns handler errors into the JSON error body
// {"detail": ..., "type": ...} and logs them by type.
func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			return respondError(c, err)
		}
	}
}

// HTTPErrorHandler is installed as echo's error handler so that errors raised
// through c.Error, as the rate limiter does, get the same body as errors
// returned from handlers.
func HTTPErrorHandler(err error, c echo.Context) {
	if writeErr := respondError(c, err); writeErr != nil {
		slog.ErrorContext(c.Request().Context(), "Failed to write error response", "error", writeErr)
	}
}

func respondError(c echo.Context, err error) error {
	var structuredErr *apperrors.Error
	status := 0

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		structuredErr = WrapHTTPError(httpErr)
		status = httpErr.Code
	} else {
		structuredErr = apperrors.AsStructuredError(err)
		status = structuredErr.HTTPStatus()
	}
	logError(c, structuredErr, status)

	if c.Response().Committed {
		return nil
	}
	if err := c.JSON(status, structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func logError(c echo.Context, err *apperrors.Error, status int) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", status,
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if identity, ok := c.Get(identityKey).(string); ok {
		attrs = append(attrs, "identity", identity)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case apperrors.TypeUnauthorized, apperrors.TypeConflict, apperrors.TypeRateLimited:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.WarnContext(ctx, "Request denied", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}

// WrapHTTPError converts an echo.HTTPError into a structured error so that
// framework errors (unknown route, bad method, oversize body) share the
// response shape of application errors.
func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	var errType apperrors.ErrorType
	switch {
	case httpErr.Code == http.StatusNotFound:
		errType = apperrors.TypeNotFound
	case httpErr.Code == http.StatusUnauthorized:
		errType = apperrors.TypeUnauthorized
	case httpErr.Code == http.StatusConflict:
		errType = apperrors.TypeConflict
	case httpErr.Code == http.StatusTooManyRequests:
		errType = apperrors.TypeRateLimited
	case httpErr.Code >= 400 && httpErr.Code < 500:
		errType = apperrors.TypeValidation
	default:
		errType = apperrors.TypeInternal
	}

	err := &apperrors.Error{
		Type:    errType,
		Message: message,
		Context: make(map[string]any),
	}
	if httpErr.Internal != nil {
		err.Cause = httpErr.Internal
	}
	return err
}

// newRateLimiter limits requests per client IP with a token bucket.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return apperrors.RateLimitedError("Too many requests, slow down").WithField("client", identifier)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return apperrors.InternalError("rate limiter failure", err)
		},
	})
}
