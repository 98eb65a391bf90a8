// Package main is the entry point for the Nexora billing API server.
//
// It loads configuration (env, dotenv, SSM), opens the Postgres pool, wires
// the Mercado Pago client and the billing services, builds the HTTP server
// with the core chassis (middleware, routing, health checks), and starts
// listening for requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"nexora/internal/api/handlers"
	"nexora/internal/billing"
	"nexora/internal/config"
	"nexora/internal/core"
	"nexora/internal/db"
	"nexora/internal/external"
	"nexora/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	ctx := context.Background()

	// SSM resolution is bypassed when APP_ENV=local, so the provider is only
	// constructed for deployed environments. The region is read directly from
	// the environment because the provider is needed before config loads.
	var provider config.SecretProvider
	if env := os.Getenv("APP_ENV"); env != "" && env != "local" {
		region := os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1"
		}
		provider = config.NewSSMProvider(region)
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("nexora billing API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	// Database pool.
	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}

	subRepo := db.NewSubscriptionRepo(pool, logger)
	intentRepo := db.NewCheckoutIntentRepo(pool, logger)
	tenantRepo := db.NewTenantRepo(pool)

	// Mercado Pago client and webhook verifier.
	gateway := external.NewMercadoPagoClient(
		&http.Client{Timeout: 30 * time.Second},
		external.MercadoPagoClientConfig{
			AccessToken: cfg.MercadoPago.AccessToken.Unmask(),
			BaseURL:     cfg.MercadoPago.APIBaseURL,
			Logger:      logger,
		},
	)
	verifier := external.NewMercadoPagoVerifier()

	// Billing services.
	plans := billing.NewStaticPlanRegistry()
	reconciler := billing.NewReconciler(gateway, subRepo, intentRepo, logger)
	checkout := billing.NewCheckoutService(
		gateway, plans, intentRepo, subRepo, tenantRepo,
		cfg.Server.AppBaseURL, logger,
	)

	// Build the server.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.RegisterCloser(func(ctx context.Context) error {
		pool.Close()
		return nil
	})
	srv.HealthProbes = append(srv.HealthProbes, &dbProbe{pool: pool})

	// Metrics publish to CloudWatch when enabled; otherwise the middleware
	// passes through.
	if cfg.Observability.EnableMetrics {
		cw, cwErr := newCloudWatchClient(ctx, cfg.AWS)
		if cwErr != nil {
			return fmt.Errorf("creating cloudwatch client: %w", cwErr)
		}
		srv.Metrics = telemetry.NewCloudWatchMetrics(cw, cfg.Observability.MetricNamespace, logger)
	}

	// The webhook route lives at the root, outside /v1: its URL is registered
	// with the provider and must stay stable across API versions.
	webhookHandler := handlers.NewMercadoPagoWebhookHandler(
		reconciler,
		gateway,
		verifier,
		cfg.MercadoPago.WebhookToken.Unmask(),
		cfg.MercadoPago.WebhookSecret.Unmask(),
		logger,
	)
	srv.RootRouteRegistrars = append(srv.RootRouteRegistrars, webhookHandler.RegisterRoutes)

	billingHandler := handlers.NewBillingHandler(checkout, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, billingHandler.RegisterRoutes(srv.ServiceAuthMiddleware))

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// newPool creates a pgx connection pool with the configured tuning parameters.
func newPool(ctx context.Context, dbCfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dbCfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	poolCfg.MaxConns = int32(dbCfg.MaxConns)
	poolCfg.MinConns = int32(dbCfg.MinConns)
	poolCfg.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = dbCfg.HealthCheckPeriod
	poolCfg.ConnConfig.ConnectTimeout = dbCfg.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// newCloudWatchClient builds the CloudWatch client, honoring the LocalStack
// endpoint override when set.
func newCloudWatchClient(ctx context.Context, awsCfg config.AWSConfig) (*cloudwatch.Client, error) {
	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(awsCfg.Region))
	if err != nil {
		return nil, err
	}

	return cloudwatch.NewFromConfig(sdkCfg, func(o *cloudwatch.Options) {
		if awsCfg.EndpointURL != "" {
			o.BaseEndpoint = &awsCfg.EndpointURL
		}
	}), nil
}

// dbProbe reports database health for the /health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p *dbProbe) Name() string { return "database" }

func (p *dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to capture server errors from ListenAndServe.
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or server error.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with a 10-second deadline.
	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Shutdown server resources (DB pool, etc.).
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
