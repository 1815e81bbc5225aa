// Package main is the entry point for the staffdeck admin-UI server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/staffdeck/staffdeck/internal/client"
	"github.com/staffdeck/staffdeck/internal/commondata"
	"github.com/staffdeck/staffdeck/internal/config"
	"github.com/staffdeck/staffdeck/internal/listquery"
	"github.com/staffdeck/staffdeck/internal/observability"
	"github.com/staffdeck/staffdeck/internal/permission"
	"github.com/staffdeck/staffdeck/internal/realtime"
	"github.com/staffdeck/staffdeck/internal/screen"
	"github.com/staffdeck/staffdeck/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "staffdeck", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Screen definitions: load, validate, publish.
	loader := screen.NewLoader()
	defs, err := loader.LoadAll(cfg.Screens.Directories)
	if err != nil {
		logger.Error("screen loading failed", zap.Error(err))
		return 1
	}
	if verrs := screen.NewValidator().Validate(defs); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("screen validation error", zap.String("error", ve.Error()))
		}
		return 1
	}
	registry := screen.NewRegistry(defs)
	metrics.SetScreensLoaded(float64(registry.Len()))

	// SIGHUP swaps in a re-read set of screen definitions; a reload that
	// fails to load or validate keeps the current snapshot.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			reloadScreens(loader, registry, cfg.Screens.Directories, metrics, logger)
		}
	}()

	// Backend client.
	tokens := buildTokenSource(cfg.Backend.Auth)
	backend := client.New(cfg.Backend, tokens, metrics, logger)

	// Grant resolution.
	grantSource, grantCloser, err := buildGrantSource(ctx, cfg.Permissions, backend, logger)
	if err != nil {
		logger.Error("grant source initialization failed", zap.Error(err))
		return 1
	}
	grants := permission.NewResolver(grantSource, cfg.Permissions.CacheTTL, metrics)

	// List-query pipeline and common-data store.
	cache := listquery.NewCache(backend, cfg.ListQuery.FreshTTL, cfg.ListQuery.MaxEntries, metrics, logger)
	queries := listquery.NewController(cache)
	sessions := listquery.NewSessionStore(cfg.ListQuery.MaxEntries, 30*time.Minute)
	common := commondata.NewStore(backend, cfg.CommonData.FetchTimeout, metrics, logger)

	// Realtime change feed.
	var redisClient *redis.Client
	if cfg.Realtime.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Realtime.Addr,
			DB:   cfg.Realtime.DB,
		})
	}
	listener := realtime.NewListener(redisClient, cfg.Realtime.Channel, metrics, logger)
	if err := listener.Start(ctx); err != nil {
		logger.Error("realtime listener failed to start", zap.Error(err))
		return 1
	}
	defer listener.Close()

	ready := observability.ReadinessChecks{
		ScreensLoaded: func() bool { return registry.Len() > 0 },
		Realtime:      listener,
	}
	if hc, ok := grantSource.(observability.HealthChecker); ok {
		ready.Grants = hc
	}

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)
	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Registry:     registry,
		Screens:      screen.NewDescriptorProvider(registry, grants),
		Grants:       grants,
		Sessions:     sessions,
		Queries:      queries,
		CommonData:   common,
		Realtime:     listener,
		Backend:      backend,
		Ready:        ready,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("screens", registry.Len()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if grantCloser != nil {
		grantCloser()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// reloadScreens re-reads the screen definition directories and replaces the
// registry snapshot when the new set loads and validates cleanly.
func reloadScreens(loader *screen.Loader, registry *screen.Registry, dirs []string, metrics *observability.Metrics, logger *zap.Logger) {
	defs, err := loader.LoadAll(dirs)
	if err != nil {
		metrics.RecordScreenReload("error")
		logger.Error("screen reload failed", zap.Error(err))
		return
	}
	if verrs := screen.NewValidator().Validate(defs); len(verrs) > 0 {
		metrics.RecordScreenReload("error")
		for _, ve := range verrs {
			logger.Error("screen reload validation error", zap.String("error", ve.Error()))
		}
		return
	}
	registry.Replace(defs)
	metrics.RecordScreenReload("ok")
	metrics.SetScreensLoaded(float64(registry.Len()))
	logger.Info("screen definitions reloaded", zap.Int("screens", registry.Len()))
}

// buildTokenSource selects between a static service token and a refreshing
// one, depending on whether a refresh endpoint is configured.
func buildTokenSource(cfg config.BackendAuth) client.TokenSource {
	token := os.Getenv(cfg.TokenEnv)
	if cfg.RefreshURL != "" {
		return client.NewRefreshingTokenSource(cfg.RefreshURL, os.Getenv(cfg.RefreshTokenEnv), token)
	}
	return client.NewStaticTokenSource(token)
}

// buildGrantSource creates the grant source named by configuration.
func buildGrantSource(ctx context.Context, cfg config.PermissionsConfig, backend *client.Client, logger *zap.Logger) (permission.GrantSource, func(), error) {
	switch cfg.Source {
	case "static":
		source, err := permission.NewStaticGrantSource(cfg.StaticGrantsFile)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using static grants file", zap.String("path", cfg.StaticGrantsFile))
		return source, nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("grants: %s environment variable not set", cfg.DSNEnv)
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("grants: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("grants: ping: %w", err)
		}
		return permission.NewPgGrantSource(pool), pool.Close, nil
	case "backend", "":
		return permission.NewBackendGrantSource(backend), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported grant source: %q", cfg.Source)
	}
}
