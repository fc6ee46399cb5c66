package services

import (
	"context"

	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/SscSPs/agent_governance/internal/dto"
)

// Executor performs the domain mutation behind an action. It is called at most once per step attempt.
type Executor func(ctx context.Context, action domain.ActionType, parameters map[string]any) (*domain.ExecutionResult, error)

// WorkflowReaderSvc defines read operations for workflows.
type WorkflowReaderSvc interface {
	// GetWorkflow returns the workflow with its steps and execution log.
	GetWorkflow(ctx context.Context, userID string, workflowID string) (*domain.Workflow, error)

	ListWorkflows(ctx context.Context, userID string, params dto.ListWorkflowsParams) (*dto.ListWorkflowsResponse, error)
}

// WorkflowWriterSvc defines lifecycle operations for workflows.
type WorkflowWriterSvc interface {
	// CreateWorkflow validates the plan or resolves the template and inserts the workflow,
	// failing with apperrors.ErrConcurrencyLimit when the user is at their active workflow ceiling.
	CreateWorkflow(ctx context.Context, userID string, req dto.CreateWorkflowRequest) (*domain.Workflow, error)

	StartWorkflow(ctx context.Context, userID string, workflowID string) (*domain.Workflow, error)
	PauseWorkflow(ctx context.Context, userID string, workflowID string) (*domain.Workflow, error)
	ResumeWorkflow(ctx context.Context, userID string, workflowID string) (*domain.Workflow, error)
	CancelWorkflow(ctx context.Context, userID string, workflowID string) (*domain.Workflow, error)

	// RetryWorkflow resets the failed step to pending and sets the workflow running.
	RetryWorkflow(ctx context.Context, userID string, workflowID string) (*domain.Workflow, error)
}

// WorkflowExecutorSvc advances workflows.
type WorkflowExecutorSvc interface {
	// ExecuteNextStep advances the workflow by at most one step. Gate denials, quota denials and
	// executor failures are reported in the outcome. Errors are reserved for lookups and storage.
	ExecuteNextStep(ctx context.Context, workflowID string, executor Executor) (*domain.StepOutcome, error)
}

// WorkflowSvcFacade combines all workflow-related service interfaces.
type WorkflowSvcFacade interface {
	WorkflowReaderSvc
	WorkflowWriterSvc
	WorkflowExecutorSvc
	ApprovalObserver
}

// TemplateSvc defines operations on workflow templates.
type TemplateSvc interface {
	// ListTemplates returns the built-in catalog followed by the user's own templates.
	ListTemplates(ctx context.Context, userID string) ([]domain.WorkflowTemplate, error)

	// GetTemplate resolves a built-in id or a template owned by the user.
	GetTemplate(ctx context.Context, userID string, templateID string) (*domain.WorkflowTemplate, error)

	CreateTemplate(ctx context.Context, userID string, req dto.CreateTemplateRequest) (*domain.WorkflowTemplate, error)
}
