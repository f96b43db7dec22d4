package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatekeeper/internal/api"
	"gatekeeper/internal/config"
	"gatekeeper/internal/logger"
	"gatekeeper/internal/models"
	"gatekeeper/internal/observability"
	"gatekeeper/internal/ratelimit"
	"gatekeeper/internal/stats"
	"gatekeeper/internal/storage"
	"gatekeeper/internal/version"

	"github.com/redis/go-redis/v9"
)

var (
	configFile    = flag.String("config", "", "Path to configuration file")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
	generateToken = flag.Bool("generate-token", false, "Print a new admin token and exit")
	exampleConfig = flag.String("example-config", "", "Write an example configuration file to this path and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()

	switch {
	case *showVersion:
		fmt.Println(ver.String())
		return
	case *generateToken:
		token, err := models.GenerateAdminToken()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	case *exampleConfig != "":
		if err := config.SaveExample(*exampleConfig); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Example configuration written to %s\n", *exampleConfig)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()
	instrument := cfg.Metrics.Enabled || cfg.Observability.Tracing.Enabled

	// Initialize sweep history storage
	sweeps, err := initializeStorage(cfg, instrument)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer sweeps.Close()

	// Initialize decision statistics
	recorder, statsCloser, err := initializeStats(cfg)
	if err != nil {
		slog.Error("Failed to initialize stats", "error", err)
		os.Exit(1)
	}
	if statsCloser != nil {
		defer statsCloser.Close()
	}

	// Initialize the limiter
	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(ratelimit.Config{
		Capacity:           cfg.Limiter.Capacity,
		BaseRate:           cfg.Limiter.BaseRate,
		MinRateFraction:    cfg.Limiter.MinRateFraction,
		MaxAllowedRequests: cfg.Limiter.MaxAllowedRequests,
		RetentionWindow:    cfg.Limiter.RetentionWindow,
		Clock:              ratelimit.SystemClock{},
	})
	if instrument {
		instrumented, err := observability.NewInstrumentedLimiter(limiter)
		if err != nil {
			slog.Error("Failed to create instrumented limiter", "error", err)
			os.Exit(1)
		}
		defer instrumented.Close()
		limiter = instrumented
	}
	slog.Info("Limiter initialized",
		"capacity", cfg.Limiter.Capacity,
		"base_rate", cfg.Limiter.BaseRate,
		"min_rate_fraction", cfg.Limiter.MinRateFraction,
		"max_allowed_requests", cfg.Limiter.MaxAllowedRequests,
		"retention_window", cfg.Limiter.RetentionWindow)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Schedule the janitor
	janitor := ratelimit.NewJanitor(limiter, sweeps, cfg.Janitor.Schedule)
	if cfg.Janitor.Enabled {
		if err := janitor.Start(ctx); err != nil {
			slog.Error("Failed to start janitor", "error", err)
			os.Exit(1)
		}
		defer janitor.Stop()
	}

	// Reload the config file on change
	if *configFile != "" {
		go func() {
			if err := config.Watch(ctx, *configFile, func(next *models.Config) {
				config.ApplyLive(cfg, next, logger.SetLevel)
			}); err != nil {
				slog.Error("Config watcher failed", "error", err)
			}
		}()
	}

	// Initialize HTTP handlers
	handlers := api.NewHandlers(limiter, janitor,
		api.WithSweepStore(sweeps),
		api.WithStats(recorder),
		api.WithMaxAllowedRequests(cfg.Limiter.MaxAllowedRequests),
		api.WithVersion(ver),
	)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	if cfg.Gateway.UpstreamURL != "" {
		gateway, err := api.NewGateway(cfg.Gateway.UpstreamURL)
		if err != nil {
			slog.Error("Failed to initialize gateway", "error", err)
			os.Exit(1)
		}
		routeOpts = append(routeOpts, api.WithGateway(gateway, ratelimit.Middleware(limiter, ratelimit.MiddlewareOptions{
			ClientHeader:      cfg.Gateway.ClientHeader,
			TrustClientHeader: cfg.Gateway.TrustClientHeader,
			TrustForwardedFor: cfg.Gateway.TrustForwardedFor,
			Stats:             recorder,
		})))
		slog.Info("Gateway enabled",
			"upstream", cfg.Gateway.UpstreamURL,
			"client_header", cfg.Gateway.ClientHeader,
			"trust_client_header", cfg.Gateway.TrustClientHeader,
			"trust_forwarded_for", cfg.Gateway.TrustForwardedFor,
		)
	}
	if cfg.Security.AdminToken == "" {
		slog.Warn("No admin token configured; admin endpoints are open")
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "version", ver.Version)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a server failure
	select {
	case <-ctx.Done():
		slog.Info("Shutting down server")
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
	}

	// Create a deadline to wait for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// initializeStorage creates the sweep history store, instrumented when
// observability is on.
func initializeStorage(cfg *models.Config, instrument bool) (storage.SweepStore, error) {
	store, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		return nil, err
	}
	slog.Info("Sweep history storage initialized", "type", cfg.Storage.Type)

	if !instrument {
		return store, nil
	}
	instrumented, err := observability.NewInstrumentedSweepStore(store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to instrument storage: %w", err)
	}
	return instrumented, nil
}

// initializeStats creates the decision statistics recorder. The returned
// closer is nil for in-process recorders.
func initializeStats(cfg *models.Config) (stats.Recorder, io.Closer, error) {
	if !cfg.Stats.Enabled {
		return stats.Nop{}, nil, nil
	}

	switch cfg.Stats.Type {
	case models.StatsTypeMemory:
		return stats.NewMemoryRecorder(stats.WithTrackClients(cfg.Stats.TrackClients)), nil, nil

	case models.StatsTypeRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.Redis.Addr,
			Password: cfg.Stats.Redis.Password,
			DB:       cfg.Stats.Redis.DB,
			PoolSize: cfg.Stats.Redis.PoolSize,
		})
		recorder := stats.NewRedisRecorder(rdb,
			stats.WithPrefix(cfg.Stats.Redis.Prefix),
			stats.WithTTL(cfg.Stats.TTL),
			stats.WithBucket(cfg.Stats.Bucket),
			stats.WithRedisTrackClients(cfg.Stats.TrackClients),
		)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.Ping(pingCtx); err != nil {
			// Recording is best effort; start anyway and report via /health.
			slog.Warn("Redis stats backend unreachable", "addr", cfg.Stats.Redis.Addr, "error", err)
		}
		return recorder, recorder, nil

	default:
		return nil, nil, fmt.Errorf("unsupported stats type: %s", cfg.Stats.Type)
	}
}
