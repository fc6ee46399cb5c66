package services

import (
	"fmt"

	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/platform/config"
)

// NewServiceContainer creates a new service container with properly initialized dependencies.
// planProvider and notifier may be nil.
func NewServiceContainer(
	cfg *config.Config,
	repos portsrepo.RepositoryProvider,
	planProvider portssvc.PlanQuotaProvider,
	notifier portssvc.SessionNotifier,
	options ...ServiceOption,
) (*portssvc.ServiceContainer, error) {
	builtIn, err := LoadTemplateCatalog(cfg.TemplateCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow templates: %w", err)
	}

	container := &portssvc.ServiceContainer{}

	// The audit trail is the leaf every other service writes to or counts from.
	container.Audit = NewAuditService(repos.AuditRepo, options...)
	container.Quota = NewQuotaService(repos.QuotaRepo, repos.UsageRepo, container.Audit, planProvider, options...)
	container.Approval = NewApprovalService(repos.ApprovalSettingsRepo, repos.ApprovalRepo, notifier, options...)
	container.Template = NewTemplateService(repos.TemplateRepo, builtIn, options...)

	// The engine registers itself as an approval observer.
	container.Workflow = NewWorkflowService(
		repos.WorkflowRepo,
		container.Approval,
		container.Quota,
		container.Audit,
		container.Template,
		options...,
	)

	return container, nil
}

// Helper to check interface implementations at compile time
var (
	_ portssvc.AuditSvcFacade    = (*auditService)(nil)
	_ portssvc.QuotaSvcFacade    = (*quotaService)(nil)
	_ portssvc.ApprovalSvcFacade = (*approvalService)(nil)
	_ portssvc.WorkflowSvcFacade = (*workflowService)(nil)
	_ portssvc.TemplateSvc       = (*templateService)(nil)
)
