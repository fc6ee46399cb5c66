package pgsql

import (
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		ApprovalSettingsRepo: newPgxApprovalSettingsRepository(dbPool),
		ApprovalRepo:         newPgxApprovalRepository(dbPool),
		QuotaRepo:            newPgxQuotaRepository(dbPool),
		UsageRepo:            newPgxUsageRepository(dbPool),
		PlanTierRepo:         newPgxPlanTierRepository(dbPool),
		AuditRepo:            newPgxAuditRepository(dbPool),
		WorkflowRepo:         newPgxWorkflowRepository(dbPool),
		TemplateRepo:         newPgxTemplateRepository(dbPool),
	}
}
