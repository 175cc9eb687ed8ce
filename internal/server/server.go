package server

import (
	"context"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tyrowin/gonotify/internal/auth"
	"github.com/Tyrowin/gonotify/internal/config"
	"github.com/Tyrowin/gonotify/internal/metrics"
	"github.com/Tyrowin/gonotify/internal/notify"
	"github.com/Tyrowin/gonotify/internal/relay"
	"github.com/Tyrowin/gonotify/internal/server/web"
	"github.com/Tyrowin/gonotify/internal/users"
)

// identityKey is the echo context key holding the authenticated identity.
const identityKey = "identity"

type accountService interface {
	Register(ctx context.Context, email, password string) (*users.User, error)
	Authenticate(ctx context.Context, email, password string) (*users.User, error)
	Lookup(ctx context.Context, email string) (*users.User, error)
}

// HealthCheck is a named readiness check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the collaborators a Server is built from. Notifier defaults to
// local delivery through Registry and Metrics to a fresh registry.
type Deps struct {
	Config       *config.Config
	Users        accountService
	Sessions     *auth.Authority
	Registry     *notify.Registry
	Notifier     relay.Notifier
	Metrics      *prometheus.Registry
	HealthChecks []HealthCheck
}

// Server is the HTTP and WebSocket front end.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        *config.Config

	users    accountService
	sessions *auth.Authority
	registry *notify.Registry
	notifier relay.Notifier

	metricsRegistry *prometheus.Registry
	authMetrics     *metrics.AuthMetrics
	httpMetrics     *metrics.HTTPMetrics

	upgrader     websocket.Upgrader
	staticFS     fs.FS
	healthChecks []HealthCheck
	startTime    time.Time

	// connections tracks hijacked socket goroutines, which http.Server.Shutdown
	// does not wait for.
	connections sync.WaitGroup
}

// NewServer wires routes and middleware for d.
func NewServer(d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = HTTPErrorHandler

	if d.Metrics == nil {
		d.Metrics = metrics.NewRegistry()
	}
	if d.Notifier == nil {
		d.Notifier = relay.NewLocal(d.Registry)
	}

	origins := NewOriginPolicy(d.Config.AllowedOrigins)

	s := &Server{
		echo:            e,
		cfg:             d.Config,
		users:           d.Users,
		sessions:        d.Sessions,
		registry:        d.Registry,
		notifier:        d.Notifier,
		metricsRegistry: d.Metrics,
		authMetrics:     metrics.NewAuthMetrics(d.Metrics),
		httpMetrics:     metrics.NewHTTPMetrics(d.Metrics),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: writeWait,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      origins.CheckOrigin,
		},
		staticFS:     echo.MustSubFS(web.StaticFiles, "static"),
		healthChecks: d.HealthChecks,
		startTime:    time.Now(),
	}

	s.registerRoutes()
	s.httpServer = CreateServer(d.Config.Port, e)
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}
