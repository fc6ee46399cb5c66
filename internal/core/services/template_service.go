package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/google/uuid"
)

type templateService struct {
	BaseService
	templateRepo portsrepo.TemplateRepositoryFacade
	builtIn      []domain.WorkflowTemplate
	byID         map[string]domain.WorkflowTemplate
}

// NewTemplateService serves the built-in catalog alongside user-defined templates.
func NewTemplateService(templateRepo portsrepo.TemplateRepositoryFacade, builtIn []domain.WorkflowTemplate, options ...ServiceOption) portssvc.TemplateSvc {
	byID := make(map[string]domain.WorkflowTemplate, len(builtIn))
	for _, t := range builtIn {
		byID[t.ID] = t
	}
	return &templateService{
		BaseService:  newBaseService(options...),
		templateRepo: templateRepo,
		builtIn:      builtIn,
		byID:         byID,
	}
}

var _ portssvc.TemplateSvc = (*templateService)(nil)

func (s *templateService) ListTemplates(ctx context.Context, userID string) ([]domain.WorkflowTemplate, error) {
	own, err := s.templateRepo.ListTemplatesByUser(ctx, userID)
	if err != nil {
		s.LogError(ctx, err, "Failed to list workflow templates", slog.String("user_id", userID))
		return nil, err
	}
	out := make([]domain.WorkflowTemplate, 0, len(s.builtIn)+len(own))
	out = append(out, s.builtIn...)
	out = append(out, own...)
	return out, nil
}

func (s *templateService) GetTemplate(ctx context.Context, userID string, templateID string) (*domain.WorkflowTemplate, error) {
	if t, ok := s.byID[templateID]; ok {
		return &t, nil
	}
	t, err := s.templateRepo.FindTemplateByID(ctx, templateID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to find workflow template", slog.String("template_id", templateID))
		}
		return nil, err
	}
	if t.UserID == nil || *t.UserID != userID {
		return nil, fmt.Errorf("workflow template %s: %w", templateID, apperrors.ErrNotFound)
	}
	return t, nil
}

func (s *templateService) CreateTemplate(ctx context.Context, userID string, req dto.CreateTemplateRequest) (*domain.WorkflowTemplate, error) {
	plan, err := domain.NormalizePlan(dto.ToStepDefinitions(req.Plan))
	if err != nil {
		return nil, err
	}
	owner := userID
	tpl := domain.WorkflowTemplate{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Plan:        plan,
		UserID:      &owner,
		CreatedAt:   s.Now(),
	}
	if err := s.templateRepo.SaveTemplate(ctx, tpl); err != nil {
		s.LogError(ctx, err, "Failed to save workflow template", slog.String("user_id", userID))
		return nil, err
	}
	s.LogInfo(ctx, "Workflow template created",
		slog.String("template_id", tpl.ID),
		slog.String("user_id", userID))
	return &tpl, nil
}
