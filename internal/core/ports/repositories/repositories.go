package repositories

// RepositoryProvider holds all repository interfaces needed by services.
// This makes passing dependencies to the service container constructor cleaner.
type RepositoryProvider struct {
	ApprovalSettingsRepo ApprovalSettingsRepositoryFacade
	ApprovalRepo         ApprovalRepositoryFacade
	QuotaRepo            QuotaRepositoryFacade
	UsageRepo            UsageRepositoryFacade
	PlanTierRepo         PlanTierRepository
	AuditRepo            AuditRepositoryFacade
	WorkflowRepo         WorkflowRepositoryFacade
	TemplateRepo         TemplateRepositoryFacade
}
