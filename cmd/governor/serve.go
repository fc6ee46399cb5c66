package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SscSPs/agent_governance/internal/adapters/executor"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/SscSPs/agent_governance/internal/handlers"
	"github.com/SscSPs/agent_governance/internal/metrics"
	"github.com/SscSPs/agent_governance/internal/middleware"
	"github.com/SscSPs/agent_governance/internal/platform/config"
	"github.com/SscSPs/agent_governance/internal/utils"
	"github.com/SscSPs/agent_governance/pkg/database"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
)

const (
	shutdownTimeout   = 15 * time.Second
	poolStatsInterval = 30 * time.Second
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the governance HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", true, "apply pending migrations before serving (postgres only)")
}

func serve(ctx context.Context) error {
	if err := dto.RegisterValidators(); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	if migrateOnStart && cfg.StorageDriver == config.StoragePostgres {
		if err := applyMigrations(); err != nil {
			return err
		}
	}

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if store.pool != nil && cfg.MetricsEnabled {
		go database.ReportPoolStats(ctx, store.pool, poolStatsInterval)
	}

	container, notifyErrors, err := buildServices(cfg, store.repos)
	if err != nil {
		return err
	}
	if notifyErrors != nil {
		go logNotificationFailures(ctx, notifyErrors)
	}

	registry := executor.NewRegistry()
	if cfg.ExecutorWebhookURL != "" {
		registry.RegisterMutations(executor.NewWebhookHandler(cfg.ExecutorWebhookURL, cfg.ExecutorTimeout))
	} else {
		logger.Warn("EXECUTOR_WEBHOOK_URL not set, mutating workflow steps will fail")
	}

	posthogClient := utils.InitializePosthogClient(cfg.PosthogAPIKey, cfg.PosthogEndpoint, logger)
	defer posthogClient.Close()

	router, err := newRouter(posthogClient)
	if err != nil {
		return err
	}
	handlers.RegisterRoutes(router, cfg, container, registry.Execute, posthogClient)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port), slog.String("storage", cfg.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to run: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// newRouter builds the engine with the global middleware chain. Routes are added by the caller.
func newRouter(posthogClient *utils.PosthogClientWrapper) (*gin.Engine, error) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery())
	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if cfg.MetricsEnabled {
		r.Use(metrics.GinMiddleware())
	}

	rate, err := limiter.NewRateFromFormatted(cfg.APIRateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid API_RATE_LIMIT %q: %w", cfg.APIRateLimit, err)
	}
	r.Use(middleware.RateLimit(limiter.New(limitermemory.NewStore(), rate)))
	r.Use(middleware.PosthogMiddleware(posthogClient))

	return r, nil
}

func logNotificationFailures(ctx context.Context, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			logger.Warn("Session notification failed", slog.String("error", err.Error()))
		}
	}
}
