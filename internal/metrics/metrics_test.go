package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNotificationMetrics(reg)

	m.ChannelRegistered()
	m.ChannelRegistered()
	m.ChannelRemoved()
	m.BroadcastDelivered(3, 1)
	m.BroadcastDelivered(2, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveChannels))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Broadcasts))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Deliveries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evictions))
}

func TestAuthMetricsLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAuthMetrics(reg)

	m.LoginAttempts.WithLabelValues(ResultSuccess).Inc()
	m.LoginAttempts.WithLabelValues(ResultRejected).Inc()
	m.LoginAttempts.WithLabelValues(ResultRejected).Inc()
	m.Registrations.WithLabelValues(ResultDuplicate).Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues(ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues(ResultDuplicate)))
}

func TestMetricsRegisterWithoutConflicts(t *testing.T) {
	reg := NewRegistry()

	require.NotPanics(t, func() {
		NewNotificationMetrics(reg)
		NewAuthMetrics(reg)
		NewRelayMetrics(reg)
		NewHTTPMetrics(reg)
	})
}

func TestHTTPMiddlewareRecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/hello", func(c echo.Context) error {
		return c.String(http.StatusOK, "hi")
	})
	e.GET("/metrics", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for _, path := range []string{"/hello", "/hello", "/metrics"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/hello", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := NewRegistry()
	m := NewNotificationMetrics(reg)
	m.ChannelRegistered()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "gonotify_notifications_active_channels 1"))
}
