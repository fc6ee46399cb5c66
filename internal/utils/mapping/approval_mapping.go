package mapping

import (
	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/SscSPs/agent_governance/internal/models"
	"github.com/shopspring/decimal"
)

// ToModelApprovalSettings converts domain settings to the row model.
func ToModelApprovalSettings(d domain.ApprovalSettings) models.ApprovalSettings {
	blocked := ActionsToStrings(d.BlockedActions)
	if blocked == nil {
		blocked = []string{}
	}
	return models.ApprovalSettings{
		UserID:                   d.UserID,
		RequireApproval:          d.RequireApproval,
		InvoiceThreshold:         d.InvoiceThreshold,
		BillThreshold:            d.BillThreshold,
		JournalEntryThreshold:    d.JournalEntryThreshold,
		AutoApproveReadOnly:      d.AutoApproveReadOnly,
		AllowedActions:           ActionsToStrings(d.AllowedActions),
		BlockedActions:           blocked,
		NotifyOnApprovalRequired: d.NotifyOnApprovalRequired,
		NotifyOnResolution:       d.NotifyOnResolution,
		ApprovalTimeoutHours:     d.ApprovalTimeoutHours,
		AuditFields:              ToModelAuditFields(d.AuditFields),
	}
}

// ToDomainApprovalSettings converts the row model to domain settings.
func ToDomainApprovalSettings(m models.ApprovalSettings) domain.ApprovalSettings {
	blocked := StringsToActions(m.BlockedActions)
	if len(blocked) == 0 {
		blocked = nil
	}
	return domain.ApprovalSettings{
		UserID:                   m.UserID,
		RequireApproval:          m.RequireApproval,
		InvoiceThreshold:         m.InvoiceThreshold,
		BillThreshold:            m.BillThreshold,
		JournalEntryThreshold:    m.JournalEntryThreshold,
		AutoApproveReadOnly:      m.AutoApproveReadOnly,
		AllowedActions:           StringsToActions(m.AllowedActions),
		BlockedActions:           blocked,
		NotifyOnApprovalRequired: m.NotifyOnApprovalRequired,
		NotifyOnResolution:       m.NotifyOnResolution,
		ApprovalTimeoutHours:     m.ApprovalTimeoutHours,
		AuditFields:              ToDomainAuditFields(m.AuditFields),
	}
}

// ToModelPendingApproval converts a domain approval to the row model.
func ToModelPendingApproval(d domain.PendingApproval) models.PendingApproval {
	payload := d.ActionPayload
	if payload == nil {
		payload = map[string]any{}
	}
	return models.PendingApproval{
		ApprovalID:      d.ApprovalID,
		UserID:          d.UserID,
		ActionType:      string(d.ActionType),
		ActionPayload:   payload,
		SessionID:       d.SessionID,
		WorkflowID:      d.WorkflowID,
		StepNumber:      d.StepNumber,
		Reasoning:       d.Reasoning,
		Confidence:      d.Confidence,
		Status:          string(d.Status),
		FinancialImpact: ToModelFinancialImpact(d.EstimatedImpact),
		ExpiresAt:       d.ExpiresAt,
		ReviewedBy:      d.ReviewedBy,
		ReviewedAt:      d.ReviewedAt,
		ReviewNotes:     d.ReviewNotes,
		CreatedAt:       d.CreatedAt,
	}
}

// ToDomainPendingApproval converts the row model to a domain approval.
func ToDomainPendingApproval(m models.PendingApproval) domain.PendingApproval {
	return domain.PendingApproval{
		ApprovalID:      m.ApprovalID,
		UserID:          m.UserID,
		ActionType:      domain.ActionType(m.ActionType),
		ActionPayload:   m.ActionPayload,
		SessionID:       m.SessionID,
		WorkflowID:      m.WorkflowID,
		StepNumber:      m.StepNumber,
		Reasoning:       m.Reasoning,
		Confidence:      m.Confidence,
		Status:          domain.ApprovalStatus(m.Status),
		EstimatedImpact: ToDomainFinancialImpact(m.FinancialImpact),
		ExpiresAt:       m.ExpiresAt,
		ReviewedBy:      m.ReviewedBy,
		ReviewedAt:      m.ReviewedAt,
		ReviewNotes:     m.ReviewNotes,
		CreatedAt:       m.CreatedAt,
	}
}

// ToDomainPendingApprovalSlice converts a slice of row models.
func ToDomainPendingApprovalSlice(ms []models.PendingApproval) []domain.PendingApproval {
	out := make([]domain.PendingApproval, len(ms))
	for i, m := range ms {
		out[i] = ToDomainPendingApproval(m)
	}
	return out
}

// ActionsToStrings keeps nil as nil so a missing allow list stays NULL.
func ActionsToStrings(actions []domain.ActionType) []string {
	if actions == nil {
		return nil
	}
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}

// StringsToActions is the inverse of ActionsToStrings.
func StringsToActions(values []string) []domain.ActionType {
	if values == nil {
		return nil
	}
	out := make([]domain.ActionType, len(values))
	for i, v := range values {
		out[i] = domain.ActionType(v)
	}
	return out
}

func decimalNull(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
