package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Tyrowin/gonotify/internal/metrics"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware())
	s.echo.Use(requestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.httpMetrics.Middleware())
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/hello", s.handleHello)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.metricsRegistry)))

	s.echo.FileFS("/login", "login.html", s.staticFS)
	s.echo.FileFS("/register", "register.html", s.staticFS)
	s.echo.GET("/welcome", s.handleWelcome)
	s.echo.StaticFS("/static", s.staticFS)

	limiter := newRateLimiter(s.cfg.LoginRateLimit.PerSecond, s.cfg.LoginRateLimit.Burst)
	s.echo.POST("/register", s.handleRegister, limiter)
	s.echo.POST("/login", s.handleLogin, limiter)
	s.echo.POST("/logout", s.handleLogout)

	s.echo.GET("/ws/notifications", s.handleNotifications)
}
