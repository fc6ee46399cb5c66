package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultApprovalTimeoutHours = 24
	MinApprovalTimeoutHours     = 1
	MaxApprovalTimeoutHours     = 720
)

// ApprovalSettings are a user's guardrails for the approval gate.
type ApprovalSettings struct {
	UserID                   string          `json:"userID"`
	RequireApproval          bool            `json:"requireApproval"`
	InvoiceThreshold         decimal.Decimal `json:"invoiceThreshold"`
	BillThreshold            decimal.Decimal `json:"billThreshold"`
	JournalEntryThreshold    decimal.Decimal `json:"journalEntryThreshold"`
	AutoApproveReadOnly      bool            `json:"autoApproveReadOnly"`
	AllowedActions           []ActionType    `json:"allowedActions,omitempty"` // nil means "no allow list"
	BlockedActions           []ActionType    `json:"blockedActions,omitempty"`
	NotifyOnApprovalRequired bool            `json:"notifyOnApprovalRequired"`
	NotifyOnResolution       bool            `json:"notifyOnResolution"`
	ApprovalTimeoutHours     int             `json:"approvalTimeoutHours"`
	AuditFields
}

// DefaultApprovalSettings returns the settings a user gets on first access.
func DefaultApprovalSettings(userID string, now time.Time) ApprovalSettings {
	return ApprovalSettings{
		UserID:                   userID,
		RequireApproval:          true,
		InvoiceThreshold:         decimal.NewFromInt(1000),
		BillThreshold:            decimal.NewFromInt(1000),
		JournalEntryThreshold:    decimal.NewFromInt(5000),
		AutoApproveReadOnly:      true,
		NotifyOnApprovalRequired: true,
		NotifyOnResolution:       true,
		ApprovalTimeoutHours:     DefaultApprovalTimeoutHours,
		AuditFields: AuditFields{
			CreatedAt:     now,
			CreatedBy:     userID,
			LastUpdatedAt: now,
			LastUpdatedBy: userID,
		},
	}
}

// ClampApprovalTimeoutHours bounds the timeout to 1..720 hours, using the default for zero.
func ClampApprovalTimeoutHours(hours int) int {
	if hours == 0 {
		return DefaultApprovalTimeoutHours
	}
	return clampInt(hours, MinApprovalTimeoutHours, MaxApprovalTimeoutHours)
}

// ThresholdFor returns the amount threshold for the action's category, if it has one.
func (s ApprovalSettings) ThresholdFor(action ActionType) (decimal.Decimal, bool) {
	switch action.Category() {
	case CategoryInvoice:
		return s.InvoiceThreshold, true
	case CategoryBill:
		return s.BillThreshold, true
	case CategoryJournalEntry:
		return s.JournalEntryThreshold, true
	}
	return decimal.Zero, false
}

// IsBlocked reports whether the action is on the deny list.
func (s ApprovalSettings) IsBlocked(action ActionType) bool {
	return containsAction(s.BlockedActions, action)
}

// IsAllowListed reports whether the action passes the allow list. No list means everything passes.
func (s ApprovalSettings) IsAllowListed(action ActionType) bool {
	if s.AllowedActions == nil {
		return true
	}
	return containsAction(s.AllowedActions, action)
}

func containsAction(list []ActionType, action ActionType) bool {
	for _, a := range list {
		if a == action {
			return true
		}
	}
	return false
}

// ApprovalDecision is the gate's answer for a single action.
type ApprovalDecision struct {
	RequiresApproval bool             `json:"requiresApproval"`
	Reason           string           `json:"reason"`
	Threshold        *decimal.Decimal `json:"threshold,omitempty"`
}

// ApprovalStatus is the lifecycle state of a PendingApproval.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// IsTerminal reports whether the approval can no longer change.
func (s ApprovalStatus) IsTerminal() bool {
	return s != ApprovalPending
}

// PendingApproval is a request for human sign-off on a gated action.
type PendingApproval struct {
	ApprovalID      string           `json:"approvalID"`
	UserID          string           `json:"userID"`
	ActionType      ActionType       `json:"actionType"`
	ActionPayload   map[string]any   `json:"actionPayload"`
	SessionID       *string          `json:"sessionID,omitempty"`
	WorkflowID      *string          `json:"workflowID,omitempty"`
	StepNumber      *int             `json:"stepNumber,omitempty"`
	Reasoning       string           `json:"reasoning,omitempty"`
	Confidence      *float64         `json:"confidence,omitempty"`
	Status          ApprovalStatus   `json:"status"`
	EstimatedImpact *FinancialImpact `json:"estimatedImpact,omitempty"`
	ExpiresAt       time.Time        `json:"expiresAt"`
	ReviewedBy      *string          `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewedAt,omitempty"`
	ReviewNotes     *string          `json:"reviewNotes,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// IsExpiredAt reports whether a still-pending approval has lapsed at now.
func (a PendingApproval) IsExpiredAt(now time.Time) bool {
	return a.Status == ApprovalPending && !a.ExpiresAt.After(now)
}

// ApprovalResolution carries the write-once review fields.
type ApprovalResolution struct {
	Status     ApprovalStatus
	ReviewedBy string
	ReviewedAt time.Time
	Notes      *string
}
