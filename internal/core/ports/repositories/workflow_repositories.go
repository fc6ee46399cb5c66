package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/agent_governance/internal/core/domain"
)

// WorkflowReader defines read operations for workflows.
type WorkflowReader interface {
	// FindWorkflowByID loads the workflow with its steps and execution log.
	FindWorkflowByID(ctx context.Context, workflowID string) (*domain.Workflow, error)

	// ListWorkflows returns workflow headers without steps, newest first.
	ListWorkflows(ctx context.Context, filter domain.WorkflowFilter) ([]domain.Workflow, error)

	CountActiveWorkflows(ctx context.Context, userID string) (int, error)
}

// WorkflowWriter defines write operations for workflows.
type WorkflowWriter interface {
	// CreateWorkflowWithinLimit inserts the workflow and its steps only if the user has fewer than
	// limit active workflows, evaluated atomically with the insert. Returns apperrors.ErrConcurrencyLimit otherwise.
	CreateWorkflowWithinLimit(ctx context.Context, workflow domain.Workflow, limit int) error

	// ClaimWorkflowStep moves a pending step of a running workflow to running and commits it.
	// It reports false, without error, when another caller already claimed the step or the workflow is no longer running.
	ClaimWorkflowStep(ctx context.Context, workflowID string, stepNumber int, startedAt time.Time) (bool, error)

	// SaveWorkflowProgress updates the workflow header and the given steps and appends the log rows, in one unit.
	// Nothing is written unless the stored status still equals expected; apperrors.ErrStaleWorkflow is returned then.
	SaveWorkflowProgress(ctx context.Context, workflow domain.Workflow, expected domain.WorkflowStatus, steps []domain.WorkflowStep, log []domain.ExecutionLogEntry) error
}

// WorkflowRepositoryFacade combines all workflow repository interfaces.
type WorkflowRepositoryFacade interface {
	WorkflowReader
	WorkflowWriter
}

// TemplateReader defines read operations for user-defined workflow templates.
type TemplateReader interface {
	FindTemplateByID(ctx context.Context, templateID string) (*domain.WorkflowTemplate, error)
	ListTemplatesByUser(ctx context.Context, userID string) ([]domain.WorkflowTemplate, error)
}

// TemplateWriter defines write operations for user-defined workflow templates.
type TemplateWriter interface {
	SaveTemplate(ctx context.Context, template domain.WorkflowTemplate) error
}

// TemplateRepositoryFacade combines all template repository interfaces.
type TemplateRepositoryFacade interface {
	TemplateReader
	TemplateWriter
}
