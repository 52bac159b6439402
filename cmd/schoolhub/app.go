package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/schoolhub/internal/db"
	"github.com/nkiryanov/schoolhub/internal/handlers"
	"github.com/nkiryanov/schoolhub/internal/logger"
	"github.com/nkiryanov/schoolhub/internal/metrics"
	"github.com/nkiryanov/schoolhub/internal/repository/postgres"
	"github.com/nkiryanov/schoolhub/internal/service/auth"
	"github.com/nkiryanov/schoolhub/internal/service/auth/refresh"
	"github.com/nkiryanov/schoolhub/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/schoolhub/internal/service/ratelimit"
	"github.com/nkiryanov/schoolhub/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: l}

	// Connect to the database and run migrations
	app.pool, err = db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(app.pool)

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize services
	accessManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey, AccessTTL: c.AccessTTL})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	authority := refresh.New(
		refresh.Config{RefreshTTL: c.RefreshTTL, MaxSessionLifetime: c.SessionMaxLifetime},
		storage,
		accessManager,
		l.With("component", "refresh"),
	)
	userService := user.NewService(auth.DefaultHasher, storage)

	opts := []auth.Option{
		auth.WithMetrics(metrics.NewAuth(reg)),
		auth.WithLogger(l.With("component", "auth")),
	}
	if c.RedisURL != "" {
		limiter, err := app.connectLimiter(ctx, c)
		if err != nil {
			app.Close()
			return nil, err
		}
		opts = append(opts, auth.WithLimiter(limiter))
	} else {
		l.Warn("Redis is not configured, failed logins are not throttled")
	}

	authService, err := auth.NewService(auth.Config{CookieSecure: c.CookieSecure}, accessManager, authority, userService, opts...)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	app.Handler = handlers.NewRouter(
		handlers.RouterConfig{
			AuthRateLimit: c.AuthRateLimit,
			Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		},
		authService,
		l,
	)

	return app, nil
}

func (s *ServerApp) connectLimiter(ctx context.Context, c *Config) (*ratelimit.LoginLimiter, error) {
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	s.redis = redis.NewClient(opts)
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
	}

	return ratelimit.New(s.redis, ratelimit.Config{MaxAttempts: c.LoginMaxAttempts}), nil
}

// Release connections
func (s *ServerApp) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
