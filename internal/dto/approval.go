package dto

import (
	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/shopspring/decimal"
)

// UpdateApprovalSettingsRequest defines the settings a user may change.
// Nil fields are left untouched. An empty list clears the allow or deny list.
type UpdateApprovalSettingsRequest struct {
	RequireApproval          *bool                `json:"requireApproval"`
	InvoiceThreshold         *decimal.Decimal     `json:"invoiceThreshold"`
	BillThreshold            *decimal.Decimal     `json:"billThreshold"`
	JournalEntryThreshold    *decimal.Decimal     `json:"journalEntryThreshold"`
	AutoApproveReadOnly      *bool                `json:"autoApproveReadOnly"`
	AllowedActions           *[]domain.ActionType `json:"allowedActions" binding:"omitempty,dive,actiontype"`
	BlockedActions           *[]domain.ActionType `json:"blockedActions" binding:"omitempty,dive,actiontype"`
	NotifyOnApprovalRequired *bool                `json:"notifyOnApprovalRequired"`
	NotifyOnResolution       *bool                `json:"notifyOnResolution"`
	ApprovalTimeoutHours     *int                 `json:"approvalTimeoutHours"`
}

// DecideRequest asks the gate whether an action needs sign-off.
type DecideRequest struct {
	ActionType      domain.ActionType `json:"actionType" binding:"required,actiontype"`
	EstimatedAmount *decimal.Decimal  `json:"estimatedAmount"`
}

// CreateApprovalRequest defines the data needed to open an approval request.
type CreateApprovalRequest struct {
	ActionType      domain.ActionType       `json:"actionType" binding:"required,actiontype"`
	ActionPayload   map[string]any          `json:"actionPayload"`
	SessionID       *string                 `json:"sessionID"`
	WorkflowID      *string                 `json:"workflowID"`
	StepNumber      *int                    `json:"stepNumber" binding:"omitempty,min=1"`
	Reasoning       string                  `json:"reasoning"`
	Confidence      *float64                `json:"confidence" binding:"omitempty,min=0,max=1"`
	EstimatedImpact *domain.FinancialImpact `json:"estimatedImpact"`
}

// ResolveApprovalRequest carries optional reviewer notes.
type ResolveApprovalRequest struct {
	Notes *string `json:"notes" binding:"omitempty,max=2000"`
}

// ListApprovalsParams defines query parameters for listing approvals.
type ListApprovalsParams struct {
	Status *string `form:"status" binding:"omitempty,approvalstatus"`
	Limit  int     `form:"limit,default=20" binding:"min=1,max=200"`
	Offset int     `form:"offset,default=0" binding:"min=0"`
}

// ListApprovalsResponse wraps the list of approvals.
type ListApprovalsResponse struct {
	Approvals []domain.PendingApproval `json:"approvals"`
}

// ExpireApprovalsResponse reports a bulk expiry sweep.
type ExpireApprovalsResponse struct {
	Expired int `json:"expired"`
}
