package models

import (
	"encoding/json"
	"time"
)

// Workflow represents a row of workflows. The submitted plan is kept verbatim as JSON.
type Workflow struct {
	ID             string          `db:"id"`
	UserID         string          `db:"user_id"`
	SessionID      *string         `db:"session_id"`
	Name           string          `db:"name"`
	TemplateID     *string         `db:"template_id"`
	TotalSteps     int             `db:"total_steps"`
	CompletedSteps int             `db:"completed_steps"`
	CurrentStep    int             `db:"current_step"`
	Status         string          `db:"status"`
	Plan           json.RawMessage `db:"plan"`
	RetryCount     int             `db:"retry_count"`
	MaxRetries     int             `db:"max_retries"`
	LastError      *string         `db:"last_error"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
	StartedAt      *time.Time      `db:"started_at"`
	CompletedAt    *time.Time      `db:"completed_at"`
}

// WorkflowStep represents a row of workflow_steps.
type WorkflowStep struct {
	WorkflowID       string         `db:"workflow_id"`
	StepNumber       int            `db:"step_number"`
	Action           string         `db:"action"`
	Description      string         `db:"description"`
	Parameters       map[string]any `db:"parameters"`
	DependsOn        []int32        `db:"depends_on"`
	RequiresApproval bool           `db:"requires_approval"`
	Status           string         `db:"status"`
	ApprovalID       *string        `db:"approval_id"`
	Result           map[string]any `db:"result"`
	Error            *string        `db:"error"`
	AuditLogID       *string        `db:"audit_log_id"`
	StartedAt        *time.Time     `db:"started_at"`
	CompletedAt      *time.Time     `db:"completed_at"`
}

// ExecutionLogEntry represents a row of workflow_execution_log.
type ExecutionLogEntry struct {
	WorkflowID string    `db:"workflow_id"`
	Sequence   int       `db:"sequence"`
	StepNumber int       `db:"step_number"`
	Action     string    `db:"action"`
	Outcome    string    `db:"outcome"`
	Message    string    `db:"message"`
	AuditLogID *string   `db:"audit_log_id"`
	LoggedAt   time.Time `db:"logged_at"`
}

// WorkflowTemplate represents a row of workflow_templates.
type WorkflowTemplate struct {
	ID          string          `db:"id"`
	UserID      string          `db:"user_id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Plan        json.RawMessage `db:"plan"`
	CreatedAt   time.Time       `db:"created_at"`
}
