package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalSettings represents a row of approval_settings.
type ApprovalSettings struct {
	UserID                   string          `db:"user_id"`
	RequireApproval          bool            `db:"require_approval"`
	InvoiceThreshold         decimal.Decimal `db:"invoice_threshold"`
	BillThreshold            decimal.Decimal `db:"bill_threshold"`
	JournalEntryThreshold    decimal.Decimal `db:"journal_entry_threshold"`
	AutoApproveReadOnly      bool            `db:"auto_approve_read_only"`
	AllowedActions           []string        `db:"allowed_actions"` // NULL means no allow list
	BlockedActions           []string        `db:"blocked_actions"`
	NotifyOnApprovalRequired bool            `db:"notify_on_approval_required"`
	NotifyOnResolution       bool            `db:"notify_on_resolution"`
	ApprovalTimeoutHours     int             `db:"approval_timeout_hours"`
	AuditFields
}

// PendingApproval represents a row of pending_approvals.
type PendingApproval struct {
	ApprovalID    string         `db:"approval_id"`
	UserID        string         `db:"user_id"`
	ActionType    string         `db:"action_type"`
	ActionPayload map[string]any `db:"action_payload"`
	SessionID     *string        `db:"session_id"`
	WorkflowID    *string        `db:"workflow_id"`
	StepNumber    *int           `db:"step_number"`
	Reasoning     string         `db:"reasoning"`
	Confidence    *float64       `db:"confidence"`
	Status        string         `db:"status"`
	FinancialImpact
	ExpiresAt   time.Time  `db:"expires_at"`
	ReviewedBy  *string    `db:"reviewed_by"`
	ReviewedAt  *time.Time `db:"reviewed_at"`
	ReviewNotes *string    `db:"review_notes"`
	CreatedAt   time.Time  `db:"created_at"`
}
