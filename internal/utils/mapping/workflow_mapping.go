package mapping

import (
	"encoding/json"
	"fmt"

	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/SscSPs/agent_governance/internal/models"
)

// ToModelWorkflow converts the workflow header. Steps and log rows are mapped separately.
func ToModelWorkflow(d domain.Workflow) (models.Workflow, error) {
	plan, err := json.Marshal(d.Plan)
	if err != nil {
		return models.Workflow{}, fmt.Errorf("failed to encode plan of workflow %s: %w", d.ID, err)
	}
	return models.Workflow{
		ID:             d.ID,
		UserID:         d.UserID,
		SessionID:      d.SessionID,
		Name:           d.Name,
		TemplateID:     d.TemplateID,
		TotalSteps:     d.TotalSteps,
		CompletedSteps: d.CompletedSteps,
		CurrentStep:    d.CurrentStep,
		Status:         string(d.Status),
		Plan:           plan,
		RetryCount:     d.RetryCount,
		MaxRetries:     d.MaxRetries,
		LastError:      d.LastError,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		StartedAt:      d.StartedAt,
		CompletedAt:    d.CompletedAt,
	}, nil
}

// ToDomainWorkflow converts the header row. Steps and ExecutionLog are left empty.
func ToDomainWorkflow(m models.Workflow) (domain.Workflow, error) {
	var plan []domain.StepDefinition
	if len(m.Plan) > 0 {
		if err := json.Unmarshal(m.Plan, &plan); err != nil {
			return domain.Workflow{}, fmt.Errorf("failed to decode plan of workflow %s: %w", m.ID, err)
		}
	}
	return domain.Workflow{
		ID:             m.ID,
		UserID:         m.UserID,
		SessionID:      m.SessionID,
		Name:           m.Name,
		TemplateID:     m.TemplateID,
		TotalSteps:     m.TotalSteps,
		CompletedSteps: m.CompletedSteps,
		CurrentStep:    m.CurrentStep,
		Status:         domain.WorkflowStatus(m.Status),
		Plan:           plan,
		RetryCount:     m.RetryCount,
		MaxRetries:     m.MaxRetries,
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// ToModelWorkflowStep converts a domain step to its row.
func ToModelWorkflowStep(d domain.WorkflowStep) models.WorkflowStep {
	deps := make([]int32, len(d.DependsOn))
	for i, dep := range d.DependsOn {
		deps[i] = int32(dep)
	}
	params := d.Parameters
	if params == nil {
		params = map[string]any{}
	}
	return models.WorkflowStep{
		WorkflowID:       d.WorkflowID,
		StepNumber:       d.StepNumber,
		Action:           string(d.Action),
		Description:      d.Description,
		Parameters:       params,
		DependsOn:        deps,
		RequiresApproval: d.RequiresApproval,
		Status:           string(d.Status),
		ApprovalID:       d.ApprovalID,
		Result:           d.Result,
		Error:            d.Error,
		AuditLogID:       d.AuditLogID,
		StartedAt:        d.StartedAt,
		CompletedAt:      d.CompletedAt,
	}
}

// ToDomainWorkflowStep converts a step row to the domain type.
func ToDomainWorkflowStep(m models.WorkflowStep) domain.WorkflowStep {
	var deps []int
	for _, dep := range m.DependsOn {
		deps = append(deps, int(dep))
	}
	return domain.WorkflowStep{
		WorkflowID:       m.WorkflowID,
		StepNumber:       m.StepNumber,
		Action:           domain.ActionType(m.Action),
		Description:      m.Description,
		Parameters:       m.Parameters,
		DependsOn:        deps,
		RequiresApproval: m.RequiresApproval,
		Status:           domain.StepStatus(m.Status),
		ApprovalID:       m.ApprovalID,
		Result:           m.Result,
		Error:            m.Error,
		AuditLogID:       m.AuditLogID,
		StartedAt:        m.StartedAt,
		CompletedAt:      m.CompletedAt,
	}
}

// ToModelExecutionLogEntry converts a log row.
func ToModelExecutionLogEntry(d domain.ExecutionLogEntry) models.ExecutionLogEntry {
	return models.ExecutionLogEntry{
		WorkflowID: d.WorkflowID,
		Sequence:   d.Sequence,
		StepNumber: d.StepNumber,
		Action:     string(d.Action),
		Outcome:    string(d.Outcome),
		Message:    d.Message,
		AuditLogID: d.AuditLogID,
		LoggedAt:   d.LoggedAt,
	}
}

// ToDomainExecutionLogEntry converts a log row to the domain type.
func ToDomainExecutionLogEntry(m models.ExecutionLogEntry) domain.ExecutionLogEntry {
	return domain.ExecutionLogEntry{
		WorkflowID: m.WorkflowID,
		Sequence:   m.Sequence,
		StepNumber: m.StepNumber,
		Action:     domain.ActionType(m.Action),
		Outcome:    domain.ExecutionOutcome(m.Outcome),
		Message:    m.Message,
		AuditLogID: m.AuditLogID,
		LoggedAt:   m.LoggedAt,
	}
}

// ToModelWorkflowTemplate converts a user template. Built-in templates are never stored.
func ToModelWorkflowTemplate(d domain.WorkflowTemplate) (models.WorkflowTemplate, error) {
	if d.UserID == nil {
		return models.WorkflowTemplate{}, fmt.Errorf("template %s has no owner", d.ID)
	}
	plan, err := json.Marshal(d.Plan)
	if err != nil {
		return models.WorkflowTemplate{}, fmt.Errorf("failed to encode plan of template %s: %w", d.ID, err)
	}
	return models.WorkflowTemplate{
		ID:          d.ID,
		UserID:      *d.UserID,
		Name:        d.Name,
		Description: d.Description,
		Plan:        plan,
		CreatedAt:   d.CreatedAt,
	}, nil
}

// ToDomainWorkflowTemplate converts a template row to the domain type.
func ToDomainWorkflowTemplate(m models.WorkflowTemplate) (domain.WorkflowTemplate, error) {
	var plan []domain.StepDefinition
	if err := json.Unmarshal(m.Plan, &plan); err != nil {
		return domain.WorkflowTemplate{}, fmt.Errorf("failed to decode plan of template %s: %w", m.ID, err)
	}
	owner := m.UserID
	return domain.WorkflowTemplate{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Plan:        plan,
		UserID:      &owner,
		CreatedAt:   m.CreatedAt,
	}, nil
}
