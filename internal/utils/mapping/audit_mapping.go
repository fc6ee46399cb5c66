package mapping

import (
	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/SscSPs/agent_governance/internal/models"
)

// ToModelAuditLog converts a domain audit entry to the row model.
func ToModelAuditLog(d domain.AuditLogEntry) models.AuditLog {
	return models.AuditLog{
		ID:              d.ID,
		UserID:          d.UserID,
		SessionID:       d.SessionID,
		WorkflowID:      d.WorkflowID,
		WorkflowStep:    d.WorkflowStep,
		Action:          string(d.Action),
		ResourceType:    d.ResourceType,
		ResourceID:      d.ResourceID,
		PreviousState:   d.PreviousState,
		NewState:        d.NewState,
		Reasoning:       d.Reasoning,
		Confidence:      d.Confidence,
		ApprovedBy:      d.ApprovedBy,
		ApprovalType:    string(d.ApprovalType),
		ApprovalID:      d.ApprovalID,
		IsReversible:    string(d.IsReversible),
		Success:         d.Success,
		ErrorMessage:    d.ErrorMessage,
		ErrorDetails:    d.ErrorDetails,
		FinancialImpact: ToModelFinancialImpact(d.FinancialImpact),
		ReversedAt:      d.ReversedAt,
		ReversedBy:      d.ReversedBy,
		ReversalAuditID: d.ReversalAuditID,
		CreatedAt:       d.CreatedAt,
	}
}

// ToDomainAuditLog converts the row model to a domain audit entry.
func ToDomainAuditLog(m models.AuditLog) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:              m.ID,
		UserID:          m.UserID,
		SessionID:       m.SessionID,
		WorkflowID:      m.WorkflowID,
		WorkflowStep:    m.WorkflowStep,
		Action:          domain.ActionType(m.Action),
		ResourceType:    m.ResourceType,
		ResourceID:      m.ResourceID,
		PreviousState:   m.PreviousState,
		NewState:        m.NewState,
		Reasoning:       m.Reasoning,
		Confidence:      m.Confidence,
		ApprovedBy:      m.ApprovedBy,
		ApprovalType:    domain.ApprovalType(m.ApprovalType),
		ApprovalID:      m.ApprovalID,
		IsReversible:    domain.Reversibility(m.IsReversible),
		Success:         m.Success,
		ErrorMessage:    m.ErrorMessage,
		ErrorDetails:    m.ErrorDetails,
		FinancialImpact: ToDomainFinancialImpact(m.FinancialImpact),
		ReversedAt:      m.ReversedAt,
		ReversedBy:      m.ReversedBy,
		ReversalAuditID: m.ReversalAuditID,
		CreatedAt:       m.CreatedAt,
	}
}

// ToDomainAuditLogSlice converts a slice of audit rows.
func ToDomainAuditLogSlice(ms []models.AuditLog) []domain.AuditLogEntry {
	out := make([]domain.AuditLogEntry, len(ms))
	for i, m := range ms {
		out[i] = ToDomainAuditLog(m)
	}
	return out
}
