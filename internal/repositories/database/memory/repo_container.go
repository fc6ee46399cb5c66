package memory

import (
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
)

// NewRepositoryProvider creates a provider backed entirely by process memory.
func NewRepositoryProvider() portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		ApprovalSettingsRepo: NewApprovalSettingsRepository(),
		ApprovalRepo:         NewApprovalRepository(),
		QuotaRepo:            NewQuotaRepository(),
		UsageRepo:            NewUsageRepository(),
		PlanTierRepo:         NewPlanTierRepository(),
		AuditRepo:            NewAuditRepository(),
		WorkflowRepo:         NewWorkflowRepository(),
		TemplateRepo:         NewTemplateRepository(),
	}
}
