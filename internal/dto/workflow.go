package dto

import (
	"github.com/SscSPs/agent_governance/internal/core/domain"
)

// StepDefinitionRequest is one step of a submitted plan. Steps are numbered by position.
type StepDefinitionRequest struct {
	Action           domain.ActionType `json:"action" binding:"required,actiontype"`
	Description      string            `json:"description"`
	Parameters       map[string]any    `json:"parameters"`
	DependsOn        []int             `json:"dependsOn"`
	RequiresApproval bool              `json:"requiresApproval"`
}

// ToStepDefinitions converts a submitted plan to domain step definitions.
func ToStepDefinitions(steps []StepDefinitionRequest) []domain.StepDefinition {
	out := make([]domain.StepDefinition, len(steps))
	for i, s := range steps {
		out[i] = domain.StepDefinition{
			StepNumber:       i + 1,
			Action:           s.Action,
			Description:      s.Description,
			Parameters:       s.Parameters,
			DependsOn:        s.DependsOn,
			RequiresApproval: s.RequiresApproval,
		}
	}
	return out
}

// CreateWorkflowRequest defines a new workflow, either from an explicit plan or a template.
// StepParameters are merged over a template's step parameters, keyed by step number.
type CreateWorkflowRequest struct {
	Name           string                  `json:"name" binding:"required,max=200"`
	SessionID      *string                 `json:"sessionID"`
	TemplateID     *string                 `json:"templateID"`
	Plan           []StepDefinitionRequest `json:"plan" binding:"omitempty,dive"`
	StepParameters map[int]map[string]any  `json:"stepParameters"`
	MaxRetries     int                     `json:"maxRetries"`
	AutoStart      bool                    `json:"autoStart"`
}

// ListWorkflowsParams defines query parameters for listing workflows.
type ListWorkflowsParams struct {
	Status *string `form:"status" binding:"omitempty,workflowstatus"`
	Limit  int     `form:"limit,default=20" binding:"min=1,max=200"`
	Offset int     `form:"offset,default=0" binding:"min=0"`
}

// ListWorkflowsResponse wraps the list of workflows.
type ListWorkflowsResponse struct {
	Workflows []domain.Workflow `json:"workflows"`
}

// CreateTemplateRequest defines a user-owned workflow template.
type CreateTemplateRequest struct {
	Name        string                  `json:"name" binding:"required,max=200"`
	Description string                  `json:"description"`
	Plan        []StepDefinitionRequest `json:"plan" binding:"required,min=1,dive"`
}

// ListTemplatesResponse wraps built-in and user templates.
type ListTemplatesResponse struct {
	Templates []domain.WorkflowTemplate `json:"templates"`
}
