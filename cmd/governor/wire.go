package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SscSPs/agent_governance/internal/adapters/notify"
	"github.com/SscSPs/agent_governance/internal/adapters/plans"
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/core/services"
	"github.com/SscSPs/agent_governance/internal/platform/config"
	"github.com/SscSPs/agent_governance/internal/repositories/database/memory"
	"github.com/SscSPs/agent_governance/internal/repositories/database/pgsql"
	"github.com/SscSPs/agent_governance/pkg/database"
	"github.com/jackc/pgx/v5/pgxpool"
)

// storage is the repository set plus whatever must be released on shutdown.
type storage struct {
	repos portsrepo.RepositoryProvider
	pool  *pgxpool.Pool
}

func (s *storage) Close() {
	database.ClosePgxPool(s.pool)
}

// openStorage selects the repository implementation from STORAGE_DRIVER.
func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn("Using in-memory storage, state is lost on exit")
		return &storage{repos: memory.NewRepositoryProvider()}, nil
	}
	pool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, cfg.EnableDBCheck)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database pool: %w", err)
	}
	return &storage{repos: pgsql.NewRepositoryProvider(pool), pool: pool}, nil
}

// buildServices wires the plan catalog and notifier into the service container.
// notifyErrors is nil unless a webhook notifier is configured.
func buildServices(cfg *config.Config, repos portsrepo.RepositoryProvider) (*portssvc.ServiceContainer, <-chan error, error) {
	catalog, err := plans.LoadCatalog(cfg.PlanCatalogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load plan catalog: %w", err)
	}
	planProvider, err := plans.NewCatalogProvider(catalog, repos.PlanTierRepo, cfg.DefaultPlanTier)
	if err != nil {
		return nil, nil, err
	}

	var (
		notifier     portssvc.SessionNotifier = notify.LogNotifier{}
		notifyErrors <-chan error
	)
	if cfg.NotifyWebhookURL != "" {
		bestEffort := notify.NewBestEffort(notify.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyTimeout), cfg.NotifyTimeout)
		notifier = bestEffort
		notifyErrors = bestEffort.Errors()
	}

	container, err := services.NewServiceContainer(cfg, repos, planProvider, notifier)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Services initialized",
		slog.Any("plan_tiers", catalog.TierNames()),
		slog.String("default_tier", cfg.DefaultPlanTier),
		slog.Bool("webhook_notifier", cfg.NotifyWebhookURL != ""))
	return container, notifyErrors, nil
}

// withServices opens storage, builds the services and runs fn with them.
func withServices(ctx context.Context, fn func(*portssvc.ServiceContainer) error) error {
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	container, _, err := buildServices(cfg, store.repos)
	if err != nil {
		return err
	}
	return fn(container)
}
