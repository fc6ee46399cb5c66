package models

import "time"

// AuditLog represents a row of audit_logs. Rows are never updated except for the reversal columns.
type AuditLog struct {
	ID            string         `db:"id"`
	UserID        string         `db:"user_id"`
	SessionID     *string        `db:"session_id"`
	WorkflowID    *string        `db:"workflow_id"`
	WorkflowStep  *int           `db:"workflow_step"`
	Action        string         `db:"action"`
	ResourceType  string         `db:"resource_type"`
	ResourceID    *string        `db:"resource_id"`
	PreviousState map[string]any `db:"previous_state"`
	NewState      map[string]any `db:"new_state"`
	Reasoning     string         `db:"reasoning"`
	Confidence    *float64       `db:"confidence"`
	ApprovedBy    *string        `db:"approved_by"`
	ApprovalType  string         `db:"approval_type"`
	ApprovalID    *string        `db:"approval_id"`
	IsReversible  string         `db:"is_reversible"`
	Success       bool           `db:"success"`
	ErrorMessage  *string        `db:"error_message"`
	ErrorDetails  map[string]any `db:"error_details"`
	FinancialImpact
	ReversedAt      *time.Time `db:"reversed_at"`
	ReversedBy      *string    `db:"reversed_by"`
	ReversalAuditID *string    `db:"reversal_audit_id"`
	CreatedAt       time.Time  `db:"created_at"`
}
