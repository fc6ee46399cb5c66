package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalType records how an audited action was cleared to run.
type ApprovalType string

const (
	ApprovalTypeAuto      ApprovalType = "auto"
	ApprovalTypeManual    ApprovalType = "manual"
	ApprovalTypeThreshold ApprovalType = "threshold"
)

// Reversibility states whether an audited action can be compensated later.
type Reversibility string

const (
	ReversibleYes     Reversibility = "yes"
	ReversibleNo      Reversibility = "no"
	ReversiblePartial Reversibility = "partial"
)

// IsValid reports whether r is one of the known values.
func (r Reversibility) IsValid() bool {
	switch r {
	case ReversibleYes, ReversibleNo, ReversiblePartial:
		return true
	}
	return false
}

// AuditLogEntry is one append-only record of an agent action attempt.
// Only the reversal fields may be set after the entry is written.
type AuditLogEntry struct {
	ID              string           `json:"id"`
	UserID          string           `json:"userID"`
	SessionID       *string          `json:"sessionID,omitempty"`
	WorkflowID      *string          `json:"workflowID,omitempty"`
	WorkflowStep    *int             `json:"workflowStep,omitempty"`
	Action          ActionType       `json:"action"`
	ResourceType    string           `json:"resourceType,omitempty"`
	ResourceID      *string          `json:"resourceID,omitempty"`
	PreviousState   map[string]any   `json:"previousState,omitempty"`
	NewState        map[string]any   `json:"newState,omitempty"`
	Reasoning       string           `json:"reasoning,omitempty"`
	Confidence      *float64         `json:"confidence,omitempty"`
	ApprovedBy      *string          `json:"approvedBy,omitempty"`
	ApprovalType    ApprovalType     `json:"approvalType"`
	ApprovalID      *string          `json:"approvalID,omitempty"`
	IsReversible    Reversibility    `json:"isReversible"`
	Success         bool             `json:"success"`
	ErrorMessage    *string          `json:"errorMessage,omitempty"`
	ErrorDetails    map[string]any   `json:"errorDetails,omitempty"`
	FinancialImpact *FinancialImpact `json:"financialImpact,omitempty"`
	ReversedAt      *time.Time       `json:"reversedAt,omitempty"`
	ReversedBy      *string          `json:"reversedBy,omitempty"`
	ReversalAuditID *string          `json:"reversalAuditID,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// IsReversed reports whether a reversal has already been linked.
func (e AuditLogEntry) IsReversed() bool {
	return e.ReversedAt != nil
}

// CanUndo reports whether the entry may still be reversed.
func (e AuditLogEntry) CanUndo() bool {
	return !e.IsReversed() && e.IsReversible != ReversibleNo && e.Success
}

// AuditFilter narrows audit queries. Zero values mean "any".
type AuditFilter struct {
	UserID     string
	Action     *ActionType
	WorkflowID *string
	Success    *bool
	From       *time.Time
	To         *time.Time
	Limit      int
	// Keyset cursor: entries strictly older than (AfterCreatedAt, AfterID).
	AfterCreatedAt *time.Time
	AfterID        string
}

// Matches applies the filter to a single entry. Cursor and limit are not considered.
func (f AuditFilter) Matches(e AuditLogEntry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != nil && e.Action != *f.Action {
		return false
	}
	if f.WorkflowID != nil && (e.WorkflowID == nil || *e.WorkflowID != *f.WorkflowID) {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

// AuditStats is a read-side aggregation over a user's audit trail.
type AuditStats struct {
	UserID           string                     `json:"userID"`
	From             time.Time                  `json:"from"`
	To               time.Time                  `json:"to"`
	TotalActions     int                        `json:"totalActions"`
	Successful       int                        `json:"successful"`
	Failed           int                        `json:"failed"`
	Reversed         int                        `json:"reversed"`
	ByAction         map[ActionType]int         `json:"byAction"`
	ImpactByCurrency map[string]decimal.Decimal `json:"impactByCurrency"`
}

// NewAuditStats returns an empty aggregation for the window.
func NewAuditStats(userID string, from, to time.Time) AuditStats {
	return AuditStats{
		UserID:           userID,
		From:             from,
		To:               to,
		ByAction:         map[ActionType]int{},
		ImpactByCurrency: map[string]decimal.Decimal{},
	}
}

// Add folds one entry into the aggregation.
func (s *AuditStats) Add(e AuditLogEntry) {
	s.TotalActions++
	if e.Success {
		s.Successful++
	} else {
		s.Failed++
	}
	if e.IsReversed() {
		s.Reversed++
	}
	s.ByAction[e.Action]++
	if e.FinancialImpact != nil && !e.FinancialImpact.Amount.IsZero() {
		cur := e.FinancialImpact.Currency
		s.ImpactByCurrency[cur] = s.ImpactByCurrency[cur].Add(e.FinancialImpact.Amount)
	}
}

// ExportFormat selects the audit export encoding.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ReversalRecord describes the compensating action being linked to an entry.
type ReversalRecord struct {
	Action          ActionType
	ResourceType    string
	ResourceID      *string
	PreviousState   map[string]any
	NewState        map[string]any
	Reasoning       string
	FinancialImpact *FinancialImpact
}
