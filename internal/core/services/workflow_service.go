package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/SscSPs/agent_governance/internal/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Soft failure reasons reported in StepOutcome.
const (
	reasonAwaitingApproval   = "awaiting approval"
	reasonDependencies       = "dependencies not completed"
	reasonApprovalExpired    = "approval expired"
	reasonApprovalRejected   = "approval rejected"
	reasonStepFailed         = "step failed, retry the workflow to run it again"
	reasonStepAlreadyRunning = "step is already running"
)

// heldWorkflowKey marks a context whose caller already holds the workflow's lock.
type heldWorkflowKey struct{}

type workflowService struct {
	BaseService
	workflowRepo portsrepo.WorkflowRepositoryFacade
	approvals    portssvc.ApprovalSvcFacade
	quotas       portssvc.QuotaSvcFacade
	audit        portssvc.AuditLoggerSvc
	templates    portssvc.TemplateSvc

	locks sync.Map // workflow id -> *sync.Mutex
}

// NewWorkflowService creates the workflow engine and registers it as an approval observer.
func NewWorkflowService(
	workflowRepo portsrepo.WorkflowRepositoryFacade,
	approvals portssvc.ApprovalSvcFacade,
	quotas portssvc.QuotaSvcFacade,
	audit portssvc.AuditLoggerSvc,
	templates portssvc.TemplateSvc,
	options ...ServiceOption,
) portssvc.WorkflowSvcFacade {
	svc := &workflowService{
		BaseService:  newBaseService(options...),
		workflowRepo: workflowRepo,
		approvals:    approvals,
		quotas:       quotas,
		audit:        audit,
		templates:    templates,
	}
	approvals.RegisterObserver(svc)
	return svc
}

var _ portssvc.WorkflowSvcFacade = (*workflowService)(nil)

func (s *workflowService) lockWorkflow(ctx context.Context, workflowID string) (context.Context, func()) {
	m, _ := s.locks.LoadOrStore(workflowID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return context.WithValue(ctx, heldWorkflowKey{}, workflowID), mu.Unlock
}

func holdsWorkflowLock(ctx context.Context, workflowID string) bool {
	held, _ := ctx.Value(heldWorkflowKey{}).(string)
	return held == workflowID
}

func (s *workflowService) GetWorkflow(ctx context.Context, userID string, workflowID string) (*domain.Workflow, error) {
	wf, err := s.workflowRepo.FindWorkflowByID(ctx, workflowID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to find workflow", slog.String("workflow_id", workflowID))
		}
		return nil, err
	}
	if wf.UserID != userID {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, apperrors.ErrNotFound)
	}
	return wf, nil
}

func (s *workflowService) ListWorkflows(ctx context.Context, userID string, params dto.ListWorkflowsParams) (*dto.ListWorkflowsResponse, error) {
	filter := domain.WorkflowFilter{UserID: userID, Limit: params.Limit, Offset: params.Offset}
	if params.Status != nil {
		st := domain.WorkflowStatus(*params.Status)
		filter.Status = &st
	}
	workflows, err := s.workflowRepo.ListWorkflows(ctx, filter)
	if err != nil {
		s.LogError(ctx, err, "Failed to list workflows", slog.String("user_id", userID))
		return nil, err
	}
	if workflows == nil {
		workflows = []domain.Workflow{}
	}
	return &dto.ListWorkflowsResponse{Workflows: workflows}, nil
}

func (s *workflowService) CreateWorkflow(ctx context.Context, userID string, req dto.CreateWorkflowRequest) (*domain.Workflow, error) {
	var plan []domain.StepDefinition
	switch {
	case req.TemplateID != nil && *req.TemplateID != "":
		tpl, err := s.templates.GetTemplate(ctx, userID, *req.TemplateID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown workflow template %q", apperrors.ErrValidation, *req.TemplateID)
			}
			return nil, err
		}
		plan = planFromTemplate(tpl.Plan, req.StepParameters)
	default:
		plan = dto.ToStepDefinitions(req.Plan)
	}

	plan, err := domain.NormalizePlan(plan)
	if err != nil {
		return nil, err
	}

	quotas, err := s.quotas.EffectiveQuotas(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	wf := domain.NewWorkflow(uuid.NewString(), userID, req.Name, req.SessionID, req.TemplateID, plan, req.MaxRetries, now)
	if req.AutoStart {
		if err := wf.TransitionTo(domain.WorkflowRunning, now); err != nil {
			return nil, err
		}
	}

	if err := s.workflowRepo.CreateWorkflowWithinLimit(ctx, wf, quotas.MaxConcurrentWorkflows); err != nil {
		if errors.Is(err, apperrors.ErrConcurrencyLimit) {
			metrics.RecordWorkflowCreated("concurrency_limit")
			s.LogInfo(ctx, "Workflow rejected by concurrency ceiling",
				slog.String("user_id", userID),
				slog.Int("limit", quotas.MaxConcurrentWorkflows))
			return nil, fmt.Errorf("at most %d active workflows: %w", quotas.MaxConcurrentWorkflows, err)
		}
		s.LogError(ctx, err, "Failed to create workflow", slog.String("user_id", userID))
		return nil, err
	}
	metrics.RecordWorkflowCreated("created")

	s.LogInfo(ctx, "Workflow created",
		slog.String("workflow_id", wf.ID),
		slog.String("user_id", userID),
		slog.Int("total_steps", wf.TotalSteps))
	return &wf, nil
}

// planFromTemplate copies a template plan, merging per-step parameter overrides.
func planFromTemplate(plan []domain.StepDefinition, overrides map[int]map[string]any) []domain.StepDefinition {
	out := make([]domain.StepDefinition, len(plan))
	for i, def := range plan {
		params := make(map[string]any, len(def.Parameters))
		maps.Copy(params, def.Parameters)
		maps.Copy(params, overrides[def.StepNumber])
		def.Parameters = params
		def.DependsOn = append([]int(nil), def.DependsOn...)
		out[i] = def
	}
	return out
}

func (s *workflowService) StartWorkflow(ctx context.Context, userID string, workflowID string) (*domain.Workflow, error) {
	return s.transition(ctx, userID, workflowID, func(wf *domain.Workflow, now time.Time) error {
		if wf.Status != domain.WorkflowPending {
			return fmt.Errorf("%w: workflow %s is %s, only pending workflows can be started", apperrors.ErrInvalidTransition, wf.ID, wf.Status)
		}
		return wf.TransitionTo(domain.WorkflowRunning, now)
	})
}

func (s *workflowService) PauseWorkflow(ctx context.Context, userID string, workflowID string) (*domain.Workflow, error) {
	return s.transition(ctx, userID, workflowID, func(wf *domain.Workflow, now time.Time) error {
		return wf.TransitionTo(domain.WorkflowPaused, now)
	})
}

func (s *workflowService) ResumeWorkflow(ctx context.Context, userID string, workflowID string) (*domain.Workflow, error) {
	ctx, unlock := s.lockWorkflow(ctx, workflowID)
	defer unlock()

	wf, err := s.GetWorkflow(ctx, userID, workflowID)
	if err != nil {
		return nil, err
	}
	switch wf.Status {
	case domain.WorkflowPaused:
		if err := wf.TransitionTo(domain.WorkflowRunning, s.Now()); err != nil {
			return nil, err
		}
		if err := s.save(ctx, wf, domain.WorkflowPaused, nil, nil); err != nil {
			return nil, err
		}
	case domain.WorkflowAwaitingApproval:
		outcome, err := s.refreshAwaitingApproval(ctx, wf)
		if err != nil {
			return nil, err
		}
		if outcome != nil && outcome.Reason == reasonAwaitingApproval {
			return nil, fmt.Errorf("%w: workflow %s is still awaiting approval", apperrors.ErrInvalidTransition, wf.ID)
		}
	default:
		return nil, fmt.Errorf("%w: workflow %s is %s and cannot be resumed", apperrors.ErrInvalidTransition, wf.ID, wf.Status)
	}
	return wf, nil
}

func (s *workflowService) CancelWorkflow(ctx context.Context, userID string, workflowID string) (*domain.Workflow, error) {
	return s.transition(ctx, userID, workflowID, func(wf *domain.Workflow, now time.Time) error {
		return wf.TransitionTo(domain.WorkflowCancelled, now)
	})
}

func (s *workflowService) RetryWorkflow(ctx context.Context, userID string, workflowID string) (*domain.Workflow, error) {
	ctx, unlock := s.lockWorkflow(ctx, workflowID)
	defer unlock()

	wf, err := s.GetWorkflow(ctx, userID, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: workflow %s is %s and cannot be retried", apperrors.ErrInvalidTransition, wf.ID, wf.Status)
	}
	step, ok := wf.FailedStep()
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s has no failed step to retry", apperrors.ErrValidation, wf.ID)
	}

	from := wf.Status
	now := s.Now()
	step.ResetForRetry()
	wf.CurrentStep = step.StepNumber
	wf.LastError = nil
	wf.UpdatedAt = now
	if wf.Status != domain.WorkflowRunning {
		if err := wf.TransitionTo(domain.WorkflowRunning, now); err != nil {
			return nil, err
		}
	}
	if err := s.save(ctx, wf, from, []domain.WorkflowStep{*step}, nil); err != nil {
		return nil, err
	}

	s.LogInfo(ctx, "Workflow step reset for retry",
		slog.String("workflow_id", wf.ID),
		slog.Int("step_number", step.StepNumber),
		slog.Int("retry_count", wf.RetryCount))
	return wf, nil
}

func (s *workflowService) transition(ctx context.Context, userID, workflowID string, apply func(*domain.Workflow, time.Time) error) (*domain.Workflow, error) {
	ctx, unlock := s.lockWorkflow(ctx, workflowID)
	defer unlock()

	wf, err := s.GetWorkflow(ctx, userID, workflowID)
	if err != nil {
		return nil, err
	}
	from := wf.Status
	if err := apply(wf, s.Now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, wf, from, nil, nil); err != nil {
		return nil, err
	}
	s.LogInfo(ctx, "Workflow status changed",
		slog.String("workflow_id", wf.ID),
		slog.String("from", string(from)),
		slog.String("to", string(wf.Status)))
	return wf, nil
}

func (s *workflowService) ExecuteNextStep(ctx context.Context, workflowID string, executor portssvc.Executor) (*domain.StepOutcome, error) {
	ctx, unlock := s.lockWorkflow(ctx, workflowID)
	defer unlock()

	wf, err := s.workflowRepo.FindWorkflowByID(ctx, workflowID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to find workflow", slog.String("workflow_id", workflowID))
		}
		return nil, err
	}

	switch wf.Status {
	case domain.WorkflowRunning:
	case domain.WorkflowAwaitingApproval:
		outcome, err := s.refreshAwaitingApproval(ctx, wf)
		if err != nil || outcome != nil {
			return outcome, err
		}
	default:
		return softOutcome(wf, wf.CurrentStep, fmt.Sprintf("workflow is %s", wf.Status)), nil
	}

	step, ok := wf.Step(wf.CurrentStep)
	if !ok {
		return s.complete(ctx, wf)
	}
	switch step.Status {
	case domain.StepPending:
	case domain.StepFailed:
		return softOutcome(wf, step.StepNumber, reasonStepFailed), nil
	case domain.StepRunning:
		return softOutcome(wf, step.StepNumber, reasonStepAlreadyRunning), nil
	default:
		return s.complete(ctx, wf)
	}

	if !wf.DependenciesMet(*step) {
		metrics.RecordWorkflowStep(step.Action.String(), "dependencies_pending")
		return softOutcome(wf, step.StepNumber, reasonDependencies), nil
	}

	amount := domain.AmountFromParameters(step.Action, step.Parameters)

	var approvedBy *string
	if step.RequiresApproval {
		approval, err := s.linkedApproval(ctx, wf, step)
		if err != nil {
			return nil, err
		}
		if approval != nil && approval.Status == domain.ApprovalApproved {
			approvedBy = approval.ReviewedBy
		} else {
			decision, err := s.approvals.Decide(ctx, wf.UserID, step.Action, amount)
			if err != nil {
				return nil, err
			}
			if decision.RequiresApproval {
				return s.requestApproval(ctx, wf, step, decision)
			}
		}
	}

	quota, err := s.quotas.CheckQuota(ctx, wf.UserID, step.Action, amount)
	if err != nil {
		return nil, err
	}
	if !quota.Allowed {
		metrics.RecordWorkflowStep(step.Action.String(), "quota_denied")
		outcome := softOutcome(wf, step.StepNumber, quota.Reason)
		outcome.Quota = quota
		return outcome, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Past this point the step runs and is recorded even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	now := s.Now()
	claimed, err := s.workflowRepo.ClaimWorkflowStep(ctx, wf.ID, step.StepNumber, now)
	if err != nil {
		s.LogError(ctx, err, "Failed to claim workflow step",
			slog.String("workflow_id", wf.ID),
			slog.Int("step_number", step.StepNumber))
		return nil, err
	}
	if !claimed {
		return s.claimLost(ctx, wf, step)
	}
	step.Status = domain.StepRunning
	step.StartedAt = &now

	started := time.Now()
	result, execErr := executor(ctx, step.Action, step.Parameters)
	metrics.RecordStepExecution(step.Action.String(), time.Since(started))

	if execErr != nil {
		return s.recordFailure(ctx, wf, step, execErr, approvedBy)
	}
	if result == nil {
		result = &domain.ExecutionResult{}
	}
	return s.recordSuccess(ctx, wf, step, result, amount, approvedBy)
}

// claimLost reports why another caller holds the step: it is running elsewhere or the workflow moved on.
func (s *workflowService) claimLost(ctx context.Context, wf *domain.Workflow, step *domain.WorkflowStep) (*domain.StepOutcome, error) {
	stored, err := s.workflowRepo.FindWorkflowByID(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	metrics.RecordWorkflowStep(step.Action.String(), "claim_lost")
	if stored.Status != domain.WorkflowRunning {
		return softOutcome(stored, step.StepNumber, fmt.Sprintf("workflow is %s", stored.Status)), nil
	}
	return softOutcome(stored, step.StepNumber, reasonStepAlreadyRunning), nil
}

// linkedApproval re-reads the approval linked to step, if any.
func (s *workflowService) linkedApproval(ctx context.Context, wf *domain.Workflow, step *domain.WorkflowStep) (*domain.PendingApproval, error) {
	if step.ApprovalID == nil {
		return nil, nil
	}
	approval, err := s.approvals.GetApproval(ctx, wf.UserID, *step.ApprovalID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return approval, nil
}

func (s *workflowService) requestApproval(ctx context.Context, wf *domain.Workflow, step *domain.WorkflowStep, decision *domain.ApprovalDecision) (*domain.StepOutcome, error) {
	stepNumber := step.StepNumber
	reasoning := step.Description
	if reasoning == "" {
		reasoning = decision.Reason
	}
	approval, err := s.approvals.CreateApprovalRequest(ctx, wf.UserID, dto.CreateApprovalRequest{
		ActionType:    step.Action,
		ActionPayload: step.Parameters,
		SessionID:     wf.SessionID,
		WorkflowID:    &wf.ID,
		StepNumber:    &stepNumber,
		Reasoning:     reasoning,
	})
	if err != nil {
		return nil, err
	}

	from := wf.Status
	now := s.Now()
	step.ApprovalID = &approval.ApprovalID
	if err := wf.TransitionTo(domain.WorkflowAwaitingApproval, now); err != nil {
		return nil, err
	}
	logEntry := s.appendLog(wf, step, domain.OutcomeApprovalRequested, decision.Reason, nil, now)
	if err := s.save(ctx, wf, from, []domain.WorkflowStep{*step}, []domain.ExecutionLogEntry{logEntry}); err != nil {
		return nil, err
	}
	metrics.RecordWorkflowStep(step.Action.String(), string(domain.OutcomeApprovalRequested))

	s.LogInfo(ctx, "Workflow step awaiting approval",
		slog.String("workflow_id", wf.ID),
		slog.Int("step_number", step.StepNumber),
		slog.String("approval_id", approval.ApprovalID))

	outcome := softOutcome(wf, step.StepNumber, decision.Reason)
	outcome.Result = map[string]any{"approvalId": approval.ApprovalID}
	return outcome, nil
}

func (s *workflowService) recordSuccess(ctx context.Context, wf *domain.Workflow, step *domain.WorkflowStep, result *domain.ExecutionResult, paramAmount *decimal.Decimal, approvedBy *string) (*domain.StepOutcome, error) {
	amount := paramAmount
	if result.Amount != nil {
		amount = result.Amount
	}
	if err := s.quotas.RecordUsage(ctx, wf.UserID, domain.UsageUpdate{
		Action:       step.Action,
		Amount:       amount,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
	}); err != nil {
		// The action already ran; the step still completes.
		s.LogError(ctx, err, "Failed to record usage for workflow step",
			slog.String("workflow_id", wf.ID),
			slog.Int("step_number", step.StepNumber))
	}

	entry := s.auditEntry(wf, step, approvedBy)
	entry.Success = true
	entry.ResourceType = result.ResourceType
	entry.ResourceID = result.ResourceID
	entry.PreviousState = result.PreviousState
	entry.NewState = result.NewState
	entry.IsReversible = reversibility(step.Action, result.Reversible)
	if amount != nil {
		currency := result.Currency
		if currency == "" {
			currency = domain.CurrencyFromParameters(step.Parameters)
		}
		direction := result.Direction
		if direction == "" {
			direction = domain.DirectionNone
		}
		entry.FinancialImpact = &domain.FinancialImpact{
			Amount:           *amount,
			Currency:         currency,
			Direction:        direction,
			AccountsAffected: result.AccountsAffected,
		}
	}
	logged := s.audit.LogAction(ctx, entry)

	from := wf.Status
	now := s.Now()
	step.Status = domain.StepCompleted
	step.Result = result.Output
	if step.Result == nil {
		step.Result = map[string]any{}
	}
	step.Error = nil
	step.AuditLogID = &logged.ID
	step.CompletedAt = &now

	wf.CompletedSteps++
	wf.CurrentStep++
	wf.UpdatedAt = now
	logEntry := s.appendLog(wf, step, domain.OutcomeCompleted, "", &logged.ID, now)
	if wf.CompletedSteps >= wf.TotalSteps {
		if err := wf.TransitionTo(domain.WorkflowCompleted, now); err != nil {
			return nil, err
		}
	}
	if err := s.saveStepResult(ctx, wf, from, *step, logEntry); err != nil {
		return nil, err
	}
	metrics.RecordWorkflowStep(step.Action.String(), string(domain.OutcomeCompleted))

	s.LogInfo(ctx, "Workflow step completed",
		slog.String("workflow_id", wf.ID),
		slog.Int("step_number", step.StepNumber),
		slog.String("action", step.Action.String()),
		slog.String("audit_id", logged.ID))

	return &domain.StepOutcome{
		Success:    true,
		Completed:  wf.Status == domain.WorkflowCompleted,
		StepNumber: step.StepNumber,
		Status:     wf.Status,
		Result:     step.Result,
	}, nil
}

func (s *workflowService) recordFailure(ctx context.Context, wf *domain.Workflow, step *domain.WorkflowStep, execErr error, approvedBy *string) (*domain.StepOutcome, error) {
	msg := execErr.Error()

	entry := s.auditEntry(wf, step, approvedBy)
	entry.Success = false
	entry.ErrorMessage = &msg
	entry.IsReversible = domain.ReversibleNo
	logged := s.audit.LogAction(ctx, entry)

	from := wf.Status
	now := s.Now()
	step.Status = domain.StepFailed
	step.Error = &msg
	step.AuditLogID = &logged.ID
	step.CompletedAt = &now

	wf.RetryCount++
	wf.LastError = &msg
	wf.UpdatedAt = now
	logEntry := s.appendLog(wf, step, domain.OutcomeFailed, msg, &logged.ID, now)
	if wf.RetryCount >= wf.MaxRetries {
		if err := wf.TransitionTo(domain.WorkflowFailed, now); err != nil {
			return nil, err
		}
	}
	if err := s.saveStepResult(ctx, wf, from, *step, logEntry); err != nil {
		return nil, err
	}
	metrics.RecordWorkflowStep(step.Action.String(), string(domain.OutcomeFailed))

	s.LogWarn(ctx, "Workflow step failed",
		slog.String("workflow_id", wf.ID),
		slog.Int("step_number", step.StepNumber),
		slog.String("action", step.Action.String()),
		slog.String("error", msg),
		slog.Int("retry_count", wf.RetryCount),
		slog.Int("max_retries", wf.MaxRetries))

	return &domain.StepOutcome{
		StepNumber: step.StepNumber,
		Status:     wf.Status,
		Reason:     msg,
	}, nil
}

func (s *workflowService) complete(ctx context.Context, wf *domain.Workflow) (*domain.StepOutcome, error) {
	from := wf.Status
	if err := wf.TransitionTo(domain.WorkflowCompleted, s.Now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, wf, from, nil, nil); err != nil {
		return nil, err
	}
	s.LogInfo(ctx, "Workflow completed", slog.String("workflow_id", wf.ID))
	return &domain.StepOutcome{Success: true, Completed: true, Status: wf.Status}, nil
}

// refreshAwaitingApproval re-reads the approval a suspended workflow waits on and applies its outcome.
// It returns nil when the workflow is running again and the caller may continue.
func (s *workflowService) refreshAwaitingApproval(ctx context.Context, wf *domain.Workflow) (*domain.StepOutcome, error) {
	step, ok := wf.Step(wf.CurrentStep)
	if !ok || step.ApprovalID == nil {
		from := wf.Status
		if err := wf.TransitionTo(domain.WorkflowRunning, s.Now()); err != nil {
			return nil, err
		}
		return nil, s.save(ctx, wf, from, nil, nil)
	}

	approval, err := s.approvals.GetApproval(ctx, wf.UserID, *step.ApprovalID)
	if err != nil {
		return nil, err
	}
	if approval.Status == domain.ApprovalPending {
		outcome := softOutcome(wf, step.StepNumber, reasonAwaitingApproval)
		outcome.Result = map[string]any{"approvalId": approval.ApprovalID}
		return outcome, nil
	}

	if err := s.applyApprovalOutcome(ctx, wf, step, *approval); err != nil {
		return nil, err
	}
	switch approval.Status {
	case domain.ApprovalApproved:
		return nil, nil
	case domain.ApprovalRejected:
		return softOutcome(wf, step.StepNumber, reasonApprovalRejected), nil
	default:
		return softOutcome(wf, step.StepNumber, reasonApprovalExpired), nil
	}
}

// applyApprovalOutcome moves a workflow out of awaiting_approval according to a terminal approval and saves it.
func (s *workflowService) applyApprovalOutcome(ctx context.Context, wf *domain.Workflow, step *domain.WorkflowStep, approval domain.PendingApproval) error {
	from := wf.Status
	now := s.Now()
	var (
		steps []domain.WorkflowStep
		log   []domain.ExecutionLogEntry
	)

	switch approval.Status {
	case domain.ApprovalApproved:
		if err := wf.TransitionTo(domain.WorkflowRunning, now); err != nil {
			return err
		}
	case domain.ApprovalRejected:
		failStep(step, reasonApprovalRejected, now)
		wf.LastError = step.Error
		if err := wf.TransitionTo(domain.WorkflowFailed, now); err != nil {
			return err
		}
		steps = append(steps, *step)
		log = append(log, s.appendLog(wf, step, domain.OutcomeApprovalRejected, deref(approval.ReviewNotes), nil, now))
	case domain.ApprovalExpired:
		failStep(step, reasonApprovalExpired, now)
		wf.LastError = step.Error
		if err := wf.TransitionTo(domain.WorkflowRunning, now); err != nil {
			return err
		}
		steps = append(steps, *step)
		log = append(log, s.appendLog(wf, step, domain.OutcomeApprovalExpired, "", nil, now))
	default:
		return nil
	}

	if err := s.save(ctx, wf, from, steps, log); err != nil {
		return err
	}
	s.LogInfo(ctx, "Workflow approval outcome applied",
		slog.String("workflow_id", wf.ID),
		slog.Int("step_number", step.StepNumber),
		slog.String("approval_status", string(approval.Status)),
		slog.String("workflow_status", string(wf.Status)))
	return nil
}

// OnApprovalResolved moves a suspended workflow forward when its approval is resolved elsewhere.
func (s *workflowService) OnApprovalResolved(ctx context.Context, approval domain.PendingApproval) {
	if approval.WorkflowID == nil || approval.StepNumber == nil {
		return
	}
	workflowID := *approval.WorkflowID
	// ExecuteNextStep and ResumeWorkflow apply the outcome themselves.
	if holdsWorkflowLock(ctx, workflowID) {
		return
	}
	ctx, unlock := s.lockWorkflow(ctx, workflowID)
	defer unlock()

	wf, err := s.workflowRepo.FindWorkflowByID(ctx, workflowID)
	if err != nil {
		s.LogError(ctx, err, "Failed to load workflow for approval resolution",
			slog.String("workflow_id", workflowID),
			slog.String("approval_id", approval.ApprovalID))
		return
	}
	if wf.Status != domain.WorkflowAwaitingApproval {
		return
	}
	step, ok := wf.Step(*approval.StepNumber)
	if !ok || step.ApprovalID == nil || *step.ApprovalID != approval.ApprovalID {
		return
	}
	if err := s.applyApprovalOutcome(ctx, wf, step, approval); err != nil {
		s.LogError(ctx, err, "Failed to apply approval resolution to workflow",
			slog.String("workflow_id", workflowID),
			slog.String("approval_id", approval.ApprovalID))
	}
}

func (s *workflowService) auditEntry(wf *domain.Workflow, step *domain.WorkflowStep, approvedBy *string) domain.AuditLogEntry {
	stepNumber := step.StepNumber
	entry := domain.AuditLogEntry{
		UserID:       wf.UserID,
		SessionID:    wf.SessionID,
		WorkflowID:   &wf.ID,
		WorkflowStep: &stepNumber,
		Action:       step.Action,
		Reasoning:    step.Description,
		ApprovalType: domain.ApprovalTypeAuto,
		ApprovalID:   step.ApprovalID,
	}
	if approvedBy != nil {
		entry.ApprovalType = domain.ApprovalTypeManual
		entry.ApprovedBy = approvedBy
	}
	return entry
}

func (s *workflowService) appendLog(wf *domain.Workflow, step *domain.WorkflowStep, outcome domain.ExecutionOutcome, message string, auditID *string, now time.Time) domain.ExecutionLogEntry {
	entry := domain.ExecutionLogEntry{
		WorkflowID: wf.ID,
		Sequence:   len(wf.ExecutionLog) + 1,
		StepNumber: step.StepNumber,
		Action:     step.Action,
		Outcome:    outcome,
		Message:    message,
		AuditLogID: auditID,
		LoggedAt:   now,
	}
	wf.ExecutionLog = append(wf.ExecutionLog, entry)
	return entry
}

// save persists wf provided its stored status is still from.
func (s *workflowService) save(ctx context.Context, wf *domain.Workflow, from domain.WorkflowStatus, steps []domain.WorkflowStep, log []domain.ExecutionLogEntry) error {
	if err := s.workflowRepo.SaveWorkflowProgress(ctx, *wf, from, steps, log); err != nil {
		if errors.Is(err, apperrors.ErrStaleWorkflow) {
			s.LogWarn(ctx, "Workflow changed before it could be saved",
				slog.String("workflow_id", wf.ID),
				slog.String("from", string(from)),
				slog.String("status", string(wf.Status)))
			return err
		}
		s.LogError(ctx, err, "Failed to save workflow progress",
			slog.String("workflow_id", wf.ID),
			slog.String("status", string(wf.Status)))
		return err
	}
	return nil
}

// saveStepResult records an executed step. When the workflow was paused or cancelled while the
// step ran, the result is written on top of the stored header and the stored status is kept.
func (s *workflowService) saveStepResult(ctx context.Context, wf *domain.Workflow, from domain.WorkflowStatus, step domain.WorkflowStep, entry domain.ExecutionLogEntry) error {
	err := s.save(ctx, wf, from, []domain.WorkflowStep{step}, []domain.ExecutionLogEntry{entry})
	if !errors.Is(err, apperrors.ErrStaleWorkflow) {
		return err
	}

	stored, err := s.workflowRepo.FindWorkflowByID(ctx, wf.ID)
	if err != nil {
		s.LogError(ctx, err, "Failed to reload workflow after concurrent change", slog.String("workflow_id", wf.ID))
		return err
	}
	stored.CompletedSteps = wf.CompletedSteps
	stored.CurrentStep = wf.CurrentStep
	stored.RetryCount = wf.RetryCount
	stored.LastError = wf.LastError
	stored.UpdatedAt = wf.UpdatedAt
	for i := range stored.Steps {
		if stored.Steps[i].StepNumber == step.StepNumber {
			stored.Steps[i] = step
		}
	}
	entry.Sequence = len(stored.ExecutionLog) + 1
	stored.ExecutionLog = append(stored.ExecutionLog, entry)

	if err := s.save(ctx, stored, stored.Status, []domain.WorkflowStep{step}, []domain.ExecutionLogEntry{entry}); err != nil {
		return err
	}
	*wf = *stored
	return nil
}

func failStep(step *domain.WorkflowStep, reason string, now time.Time) {
	step.Status = domain.StepFailed
	step.Error = &reason
	step.CompletedAt = &now
}

func softOutcome(wf *domain.Workflow, stepNumber int, reason string) *domain.StepOutcome {
	return &domain.StepOutcome{
		StepNumber: stepNumber,
		Status:     wf.Status,
		Reason:     reason,
	}
}

// reversibility uses the executor's answer when it gave one. Read-only actions have nothing to undo.
func reversibility(action domain.ActionType, reported domain.Reversibility) domain.Reversibility {
	if reported.IsValid() {
		return reported
	}
	if action.IsReadOnly() {
		return domain.ReversibleNo
	}
	return domain.ReversibleYes
}
