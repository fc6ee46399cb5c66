package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
)

type workflowRepository struct {
	mu   sync.RWMutex
	byID map[string]domain.Workflow
}

// NewWorkflowRepository creates an in-memory workflow store. The concurrency ceiling is
// evaluated under the same lock as the insert.
func NewWorkflowRepository() portsrepo.WorkflowRepositoryFacade {
	return &workflowRepository{byID: map[string]domain.Workflow{}}
}

func (r *workflowRepository) FindWorkflowByID(_ context.Context, workflowID string) (*domain.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.byID[workflowID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	wf = cloneWorkflow(wf)
	return &wf, nil
}

func (r *workflowRepository) ListWorkflows(_ context.Context, filter domain.WorkflowFilter) ([]domain.Workflow, error) {
	r.mu.RLock()
	var out []domain.Workflow
	for _, wf := range r.byID {
		if wf.UserID != filter.UserID || (filter.Status != nil && wf.Status != *filter.Status) {
			continue
		}
		header := cloneWorkflow(wf)
		header.Steps = nil
		header.ExecutionLog = nil
		out = append(out, header)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *workflowRepository) CountActiveWorkflows(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countActive(userID), nil
}

func (r *workflowRepository) countActive(userID string) int {
	count := 0
	for _, wf := range r.byID {
		if wf.UserID == userID && wf.Status.IsActive() {
			count++
		}
	}
	return count
}

func (r *workflowRepository) CreateWorkflowWithinLimit(_ context.Context, workflow domain.Workflow, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[workflow.ID]; exists {
		return apperrors.ErrDuplicate
	}
	if r.countActive(workflow.UserID) >= limit {
		return apperrors.ErrConcurrencyLimit
	}
	r.byID[workflow.ID] = cloneWorkflow(workflow)
	return nil
}

func (r *workflowRepository) ClaimWorkflowStep(_ context.Context, workflowID string, stepNumber int, startedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[workflowID]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	if stored.Status != domain.WorkflowRunning {
		return false, nil
	}
	for i := range stored.Steps {
		if stored.Steps[i].StepNumber != stepNumber {
			continue
		}
		if stored.Steps[i].Status != domain.StepPending {
			return false, nil
		}
		claimed := cloneWorkflow(stored)
		claimed.Steps[i].Status = domain.StepRunning
		claimed.Steps[i].StartedAt = &startedAt
		r.byID[workflowID] = claimed
		return true, nil
	}
	return false, fmt.Errorf("workflow %s step %d: %w", workflowID, stepNumber, apperrors.ErrNotFound)
}

func (r *workflowRepository) SaveWorkflowProgress(_ context.Context, workflow domain.Workflow, expected domain.WorkflowStatus, steps []domain.WorkflowStep, log []domain.ExecutionLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[workflow.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Status != expected {
		return fmt.Errorf("workflow %s is %s, expected %s: %w", workflow.ID, stored.Status, expected, apperrors.ErrStaleWorkflow)
	}

	updated := cloneWorkflow(workflow)
	updated.Steps = stored.Steps
	updated.ExecutionLog = stored.ExecutionLog

	for _, step := range steps {
		replaced := false
		for i := range updated.Steps {
			if updated.Steps[i].StepNumber == step.StepNumber {
				updated.Steps[i] = step
				replaced = true
				break
			}
		}
		if !replaced {
			return fmt.Errorf("workflow %s step %d: %w", workflow.ID, step.StepNumber, apperrors.ErrNotFound)
		}
	}
	for _, entry := range log {
		if entry.Sequence != len(updated.ExecutionLog)+1 {
			return fmt.Errorf("workflow %s execution log sequence %d: %w", workflow.ID, entry.Sequence, apperrors.ErrDuplicate)
		}
		updated.ExecutionLog = append(updated.ExecutionLog, entry)
	}

	r.byID[workflow.ID] = cloneWorkflow(updated)
	return nil
}

func cloneWorkflow(wf domain.Workflow) domain.Workflow {
	wf.Plan = append([]domain.StepDefinition(nil), wf.Plan...)
	wf.Steps = append([]domain.WorkflowStep(nil), wf.Steps...)
	wf.ExecutionLog = append([]domain.ExecutionLogEntry(nil), wf.ExecutionLog...)
	return wf
}

type templateRepository struct {
	mu   sync.RWMutex
	byID map[string]domain.WorkflowTemplate
}

// NewTemplateRepository creates an in-memory store for user-defined templates.
func NewTemplateRepository() portsrepo.TemplateRepositoryFacade {
	return &templateRepository{byID: map[string]domain.WorkflowTemplate{}}
}

func (r *templateRepository) FindTemplateByID(_ context.Context, templateID string) (*domain.WorkflowTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[templateID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &t, nil
}

func (r *templateRepository) ListTemplatesByUser(_ context.Context, userID string) ([]domain.WorkflowTemplate, error) {
	r.mu.RLock()
	var out []domain.WorkflowTemplate
	for _, t := range r.byID {
		if t.UserID != nil && *t.UserID == userID {
			out = append(out, t)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *templateRepository) SaveTemplate(_ context.Context, template domain.WorkflowTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[template.ID]; exists {
		return apperrors.ErrDuplicate
	}
	r.byID[template.ID] = template
	return nil
}
