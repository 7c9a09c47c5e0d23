package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/rotations/rotations/internal/config"
	"github.com/rotations/rotations/internal/domain/rotation"
	"github.com/rotations/rotations/internal/platform/auth"
	"github.com/rotations/rotations/internal/platform/db"
	"github.com/rotations/rotations/internal/platform/metrics"
	"github.com/rotations/rotations/internal/platform/middleware"
	"github.com/rotations/rotations/internal/platform/notification"
	"github.com/rotations/rotations/internal/platform/websocket"
)

const (
	exceptionalTopic = "assignments.exceptional"
	exceptionalEvent = "assignment.exceptional"
)

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// tenantSkipper bypasses tenant resolution for routes that never touch
// program data. The websocket must not pin a pooled connection for its lifetime.
func tenantSkipper(c echo.Context) bool {
	path := c.Path()
	return auth.IsPublicPath(path) ||
		path == "/ws" ||
		strings.HasPrefix(path, "/api/v1/alerts")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// server holds the wired echo instance and the resources to release on shutdown.
type server struct {
	echo       *echo.Echo
	dispatcher *notification.Dispatcher
	hub        *websocket.Hub
	nats       *notification.NATSChannel
}

func (s *server) close() {
	if s.nats != nil {
		s.nats.Close()
	}
}

func newServer(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *server {
	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewPrometheus(reg, "rotations")

	// Alerts
	hub := websocket.NewHub(logger)
	dispatcher := notification.NewDispatcher(
		notification.DispatcherConfig{Timeout: cfg.NotifyTimeout},
		notification.NewTemplateEngine(),
		rec,
		logger,
		notification.NewEmailChannel(notification.NewLogEmailSender(logger)),
		notification.NewHubChannel(hub, exceptionalTopic, exceptionalEvent),
	)
	srv := &server{dispatcher: dispatcher, hub: hub}
	if cfg.NATSURL != "" {
		nc, err := notification.DialNATSChannel(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("nats alerts disabled")
		} else {
			dispatcher.AddChannel(nc)
			srv.nats = nc
		}
	}
	logger.Info().Strs("channels", dispatcher.Channels()).Msg("alert channels ready")

	// Rotation domain
	assignments := rotation.NewAssignmentRepoPG(pool)
	directory := rotation.NewDirectoryRepoPG(pool)
	scheduler := rotation.NewScheduler(
		assignments,
		directory,
		db.NewTransactor(pool, cfg.DBTxRetries, logger),
		rotation.NewAlertNotifier(assignments, dispatcher, splitList(cfg.AlertEmail)...),
		rec,
		logger,
		rotation.Options{EnforceCapacity: cfg.EnforceCapacity},
	)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	e.Use(metrics.Middleware(rec))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.JWTSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Tenant middleware
	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant, tenantSkipper))

	// Infrastructure endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(rec.Handler()))
	e.GET("/ws", websocket.NewHandler(hub, cfg.CORSOrigins).HandleConnect, auth.RequireRole(auth.RoleCoordinator))

	// API
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.Audit(logger))

	rotation.NewHandler(scheduler, logger).RegisterRoutes(apiV1)
	notification.NewHandler(dispatcher).RegisterRoutes(apiV1.Group("", auth.RequireRole(auth.RoleCoordinator)))

	srv.echo = e
	return srv
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	logger := newLogger(os.Getenv("ENV"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	srv := newServer(cfg, pool, logger)
	defer srv.close()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
