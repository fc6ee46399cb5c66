package dto

import (
	"time"

	"github.com/SscSPs/agent_governance/internal/core/domain"
)

// ListAuditParams defines query parameters for listing audit entries.
type ListAuditParams struct {
	Action     *string    `form:"action" binding:"omitempty,actiontype"`
	WorkflowID *string    `form:"workflowID"`
	Success    *bool      `form:"success"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit      int        `form:"limit,default=50" binding:"min=1,max=500"`
	NextToken  *string    `form:"nextToken"`
}

// ListAuditResponse wraps a page of audit entries.
type ListAuditResponse struct {
	Entries   []domain.AuditLogEntry `json:"entries"`
	NextToken *string                `json:"nextToken,omitempty"`
}

// AuditStatsParams selects the aggregation window. Defaults to the trailing 30 days.
type AuditStatsParams struct {
	From *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ExportAuditParams defines the export format and filter.
type ExportAuditParams struct {
	Format     string     `form:"format,default=json" binding:"oneof=json csv"`
	Action     *string    `form:"action" binding:"omitempty,actiontype"`
	WorkflowID *string    `form:"workflowID"`
	Success    *bool      `form:"success"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// CanUndoResponse reports whether an entry may still be reversed.
type CanUndoResponse struct {
	EntryID string `json:"entryID"`
	CanUndo bool   `json:"canUndo"`
}

// RecordReversalRequest describes the compensating action the caller already performed.
type RecordReversalRequest struct {
	ActionType      domain.ActionType       `json:"actionType" binding:"required,actiontype"`
	ResourceType    string                  `json:"resourceType"`
	ResourceID      *string                 `json:"resourceID"`
	PreviousState   map[string]any          `json:"previousState"`
	NewState        map[string]any          `json:"newState"`
	Reasoning       string                  `json:"reasoning"`
	FinancialImpact *domain.FinancialImpact `json:"financialImpact"`
}

// ToReversalRecord converts the request to its domain form.
func (r RecordReversalRequest) ToReversalRecord() domain.ReversalRecord {
	return domain.ReversalRecord{
		Action:          r.ActionType,
		ResourceType:    r.ResourceType,
		ResourceID:      r.ResourceID,
		PreviousState:   r.PreviousState,
		NewState:        r.NewState,
		Reasoning:       r.Reasoning,
		FinancialImpact: r.FinancialImpact,
	}
}
