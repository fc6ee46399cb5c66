package domain

import (
	"fmt"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/shopspring/decimal"
)

const (
	DefaultMaxRetries = 3
	MinMaxRetries     = 1
	MaxMaxRetries     = 10
)

// ClampMaxRetries bounds the retry budget to 1..10, using the default for zero.
func ClampMaxRetries(n int) int {
	if n == 0 {
		return DefaultMaxRetries
	}
	return clampInt(n, MinMaxRetries, MaxMaxRetries)
}

// WorkflowStatus is the lifecycle state of a Workflow.
type WorkflowStatus string

const (
	WorkflowPending          WorkflowStatus = "pending"
	WorkflowRunning          WorkflowStatus = "running"
	WorkflowPaused           WorkflowStatus = "paused"
	WorkflowAwaitingApproval WorkflowStatus = "awaiting_approval"
	WorkflowCompleted        WorkflowStatus = "completed"
	WorkflowFailed           WorkflowStatus = "failed"
	WorkflowCancelled        WorkflowStatus = "cancelled"
)

// ActiveWorkflowStatuses count toward the concurrent workflow ceiling.
var ActiveWorkflowStatuses = []WorkflowStatus{
	WorkflowPending,
	WorkflowRunning,
	WorkflowPaused,
	WorkflowAwaitingApproval,
}

var workflowTransitions = map[WorkflowStatus][]WorkflowStatus{
	WorkflowPending:          {WorkflowRunning, WorkflowCancelled},
	WorkflowRunning:          {WorkflowAwaitingApproval, WorkflowPaused, WorkflowCompleted, WorkflowFailed, WorkflowCancelled},
	WorkflowAwaitingApproval: {WorkflowRunning, WorkflowCompleted, WorkflowFailed, WorkflowCancelled},
	WorkflowPaused:           {WorkflowRunning, WorkflowFailed, WorkflowCancelled},
	WorkflowCompleted:        {},
	WorkflowFailed:           {},
	WorkflowCancelled:        {},
}

// IsTerminal reports whether no further transition is possible.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed || s == WorkflowCancelled
}

// IsActive reports whether the workflow counts toward the concurrency ceiling.
func (s WorkflowStatus) IsActive() bool {
	for _, a := range ActiveWorkflowStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known status.
func (s WorkflowStatus) IsValid() bool {
	_, ok := workflowTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to WorkflowStatus) bool {
	for _, next := range workflowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StepStatus is the lifecycle state of a WorkflowStep.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// StepDefinition is one entry of a plan, as submitted or taken from a template.
type StepDefinition struct {
	StepNumber       int            `json:"stepNumber" yaml:"step"`
	Action           ActionType     `json:"action" yaml:"action"`
	Description      string         `json:"description,omitempty" yaml:"description"`
	Parameters       map[string]any `json:"parameters,omitempty" yaml:"parameters"`
	DependsOn        []int          `json:"dependsOn,omitempty" yaml:"depends_on"`
	RequiresApproval bool           `json:"requiresApproval" yaml:"requires_approval"`
}

// NormalizePlan numbers unnumbered steps and validates the plan.
// Steps must be numbered 1..N in order and may only depend on earlier steps.
func NormalizePlan(plan []StepDefinition) ([]StepDefinition, error) {
	if len(plan) == 0 {
		return nil, fmt.Errorf("%w: workflow plan must contain at least one step", apperrors.ErrValidation)
	}
	out := make([]StepDefinition, len(plan))
	for i, def := range plan {
		want := i + 1
		if def.StepNumber == 0 {
			def.StepNumber = want
		}
		if def.StepNumber != want {
			return nil, fmt.Errorf("%w: step %d is numbered %d, steps must be numbered sequentially from 1", apperrors.ErrValidation, want, def.StepNumber)
		}
		if !def.Action.IsValid() {
			return nil, fmt.Errorf("%w: step %d has unknown action type %q", apperrors.ErrValidation, want, def.Action)
		}
		for _, dep := range def.DependsOn {
			if dep < 1 || dep >= want {
				return nil, fmt.Errorf("%w: step %d depends on step %d, dependencies must reference earlier steps", apperrors.ErrValidation, want, dep)
			}
		}
		if def.Parameters == nil {
			def.Parameters = map[string]any{}
		}
		out[i] = def
	}
	return out, nil
}

// WorkflowStep is the persisted execution state of one plan entry.
type WorkflowStep struct {
	WorkflowID       string         `json:"workflowID"`
	StepNumber       int            `json:"stepNumber"`
	Action           ActionType     `json:"action"`
	Description      string         `json:"description,omitempty"`
	Parameters       map[string]any `json:"parameters"`
	DependsOn        []int          `json:"dependsOn,omitempty"`
	RequiresApproval bool           `json:"requiresApproval"`
	Status           StepStatus     `json:"status"`
	ApprovalID       *string        `json:"approvalID,omitempty"`
	Result           map[string]any `json:"result,omitempty"`
	Error            *string        `json:"error,omitempty"`
	AuditLogID       *string        `json:"auditLogID,omitempty"`
	StartedAt        *time.Time     `json:"startedAt,omitempty"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
}

// ResetForRetry puts a failed step back to pending, clearing its error and approval link.
func (s *WorkflowStep) ResetForRetry() {
	s.Status = StepPending
	s.Error = nil
	s.ApprovalID = nil
	s.StartedAt = nil
	s.CompletedAt = nil
}

// ExecutionOutcome labels an execution log row.
type ExecutionOutcome string

const (
	OutcomeCompleted         ExecutionOutcome = "completed"
	OutcomeFailed            ExecutionOutcome = "failed"
	OutcomeApprovalRequested ExecutionOutcome = "approval_requested"
	OutcomeApprovalExpired   ExecutionOutcome = "approval_expired"
	OutcomeApprovalRejected  ExecutionOutcome = "approval_rejected"
)

// ExecutionLogEntry is one append-only row of a workflow's execution history.
type ExecutionLogEntry struct {
	WorkflowID string           `json:"workflowID"`
	Sequence   int              `json:"sequence"`
	StepNumber int              `json:"stepNumber"`
	Action     ActionType       `json:"action"`
	Outcome    ExecutionOutcome `json:"outcome"`
	Message    string           `json:"message,omitempty"`
	AuditLogID *string          `json:"auditLogID,omitempty"`
	LoggedAt   time.Time        `json:"loggedAt"`
}

// Workflow is a multi-step plan executed one step at a time.
type Workflow struct {
	ID             string              `json:"id"`
	UserID         string              `json:"userID"`
	SessionID      *string             `json:"sessionID,omitempty"`
	Name           string              `json:"name"`
	TemplateID     *string             `json:"templateID,omitempty"`
	TotalSteps     int                 `json:"totalSteps"`
	CompletedSteps int                 `json:"completedSteps"`
	CurrentStep    int                 `json:"currentStep"`
	Status         WorkflowStatus      `json:"status"`
	Plan           []StepDefinition    `json:"plan"`
	RetryCount     int                 `json:"retryCount"`
	MaxRetries     int                 `json:"maxRetries"`
	LastError      *string             `json:"lastError,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	StartedAt      *time.Time          `json:"startedAt,omitempty"`
	CompletedAt    *time.Time          `json:"completedAt,omitempty"`
	Steps          []WorkflowStep      `json:"steps,omitempty"`
	ExecutionLog   []ExecutionLogEntry `json:"executionLog,omitempty"`
}

// TransitionTo moves the workflow to the next status, stamping start and completion times.
func (w *Workflow) TransitionTo(next WorkflowStatus, now time.Time) error {
	if !CanTransition(w.Status, next) {
		return fmt.Errorf("%w: workflow %s cannot move from %s to %s", apperrors.ErrInvalidTransition, w.ID, w.Status, next)
	}
	w.Status = next
	w.UpdatedAt = now
	if next == WorkflowRunning && w.StartedAt == nil {
		started := now
		w.StartedAt = &started
	}
	if next.IsTerminal() {
		done := now
		w.CompletedAt = &done
	}
	return nil
}

// Step returns the step with the given number.
func (w *Workflow) Step(number int) (*WorkflowStep, bool) {
	for i := range w.Steps {
		if w.Steps[i].StepNumber == number {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

// FailedStep returns the first failed step, if any.
func (w *Workflow) FailedStep() (*WorkflowStep, bool) {
	for i := range w.Steps {
		if w.Steps[i].Status == StepFailed {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

// DependenciesMet reports whether every dependency of step is completed.
func (w *Workflow) DependenciesMet(step WorkflowStep) bool {
	for _, dep := range step.DependsOn {
		d, ok := w.Step(dep)
		if !ok || d.Status != StepCompleted {
			return false
		}
	}
	return true
}

// NewWorkflow builds a pending workflow and its steps from a normalized plan.
func NewWorkflow(id, userID, name string, sessionID, templateID *string, plan []StepDefinition, maxRetries int, now time.Time) Workflow {
	steps := make([]WorkflowStep, len(plan))
	for i, def := range plan {
		steps[i] = WorkflowStep{
			WorkflowID:       id,
			StepNumber:       def.StepNumber,
			Action:           def.Action,
			Description:      def.Description,
			Parameters:       def.Parameters,
			DependsOn:        def.DependsOn,
			RequiresApproval: def.RequiresApproval,
			Status:           StepPending,
		}
	}
	return Workflow{
		ID:          id,
		UserID:      userID,
		SessionID:   sessionID,
		Name:        name,
		TemplateID:  templateID,
		TotalSteps:  len(plan),
		CurrentStep: 1,
		Status:      WorkflowPending,
		Plan:        plan,
		MaxRetries:  ClampMaxRetries(maxRetries),
		CreatedAt:   now,
		UpdatedAt:   now,
		Steps:       steps,
	}
}

// WorkflowFilter narrows workflow listings.
type WorkflowFilter struct {
	UserID string
	Status *WorkflowStatus
	Limit  int
	Offset int
}

// WorkflowTemplate is a reusable plan. Built-in templates have no owner.
type WorkflowTemplate struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description"`
	Plan        []StepDefinition `json:"plan" yaml:"plan"`
	BuiltIn     bool             `json:"builtIn" yaml:"-"`
	UserID      *string          `json:"userID,omitempty" yaml:"-"`
	CreatedAt   time.Time        `json:"createdAt" yaml:"-"`
}

// ExecutionResult is what an executor reports for a successful action.
type ExecutionResult struct {
	Output           map[string]any   `json:"output,omitempty"`
	ResourceType     string           `json:"resourceType,omitempty"`
	ResourceID       *string          `json:"resourceID,omitempty"`
	PreviousState    map[string]any   `json:"previousState,omitempty"`
	NewState         map[string]any   `json:"newState,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	Direction        ImpactDirection  `json:"direction,omitempty"`
	AccountsAffected []string         `json:"accountsAffected,omitempty"`
	InputTokens      int64            `json:"inputTokens,omitempty"`
	OutputTokens     int64            `json:"outputTokens,omitempty"`
	Reversible       Reversibility    `json:"reversible,omitempty"`
}

// StepOutcome is the result of one ExecuteNextStep call. Soft failures are reported here, not as errors.
type StepOutcome struct {
	Success    bool              `json:"success"`
	Completed  bool              `json:"completed"`
	StepNumber int               `json:"stepNumber,omitempty"`
	Status     WorkflowStatus    `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	Result     map[string]any    `json:"result,omitempty"`
	Quota      *QuotaCheckResult `json:"quota,omitempty"`
}
